// Demo web server for go-easyweb
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	prof "github.com/go-while/go-cpu-mem-profiler"
	"github.com/go-while/go-easyweb/internal/config"
	"github.com/go-while/go-easyweb/internal/views"
	"github.com/go-while/go-easyweb/internal/web"
)

var appVersion = "-unset-"

var (
	// command-line flags
	webport     int
	webssl      bool
	webcertFile string
	webkeyFile  string
	publicDir   string
	extension   string
	dbPath      string
	withSession bool
	debug       bool
	watch       bool
	pprofAddr   string
)

func main() {
	config.AppVersion = appVersion

	flag.IntVar(&webport, "port", 0, "Web server port (default: $PORT or 8080)")
	flag.BoolVar(&webssl, "ssl", false, "Enable SSL")
	flag.StringVar(&webcertFile, "sslcert", "", "SSL certificate file (/path/to/fullchain.pem)")
	flag.StringVar(&webkeyFile, "sslkey", "", "SSL key file (/path/to/privkey.pem)")
	flag.StringVar(&publicDir, "public", config.DefaultPublicDir, "Directory holding views and static files")
	flag.StringVar(&extension, "ext", config.DefaultTemplateExtension, "File extension of views")
	flag.StringVar(&dbPath, "db", "", "SQLite database file (empty: no database)")
	flag.BoolVar(&withSession, "session", false, "Enable sessions, needs -db and $"+config.SessionSecretEnvVar)
	flag.BoolVar(&debug, "debug", false, "Reparse templates on every request")
	flag.BoolVar(&watch, "watch", false, "Reload edited templates (ignored with -debug)")
	flag.StringVar(&pprofAddr, "pprof", "", "Serve pprof on this address (e.g. :51111)")
	flag.Parse()

	mainConfig := config.NewDefaultConfig()
	webConfig := mainConfig.Web
	log.Printf("Starting go-easyweb demo server (version: %s)", appVersion)

	// Override config with command-line flags if provided
	if webport > 0 {
		webConfig.ListenPort = webport
		log.Printf("[WEB]: Overriding listen port with command-line flag: %d", webConfig.ListenPort)
	}
	if webssl {
		webConfig.SSL = true
		webConfig.CertFile = webcertFile
		webConfig.KeyFile = webkeyFile
		log.Printf("[WEB]: SSL enabled via command-line flag")
	}
	webConfig.PublicDir = publicDir
	webConfig.Extension = extension
	webConfig.Debug = debug
	webConfig.Watch = watch

	// Validate port
	if webConfig.ListenPort < 1 || webConfig.ListenPort > 65535 {
		log.Fatalf("[WEB]: Invalid port number: %d (must be between 1 and 65535)", webConfig.ListenPort)
	}

	if pprofAddr != "" {
		Prof := prof.NewProf()
		go Prof.PprofWeb(pprofAddr)
		log.Printf("[WEB]: pprof listening on %s", pprofAddr)
	}

	server := web.NewServer(webConfig)
	server.UseBodyParsing()

	if dbPath != "" {
		mainConfig.Database.Path = dbPath
		if err := server.UseDatabaseConfig(mainConfig.Database); err != nil {
			log.Fatalf("[WEB]: Failed to initialize database: %v", err)
		}
		defer server.Close()
	}
	if withSession {
		if err := server.UseSessionConfig(mainConfig.Session); err != nil {
			log.Fatalf("[WEB]: Failed to enable sessions: %v", err)
		}
	}

	server.AddView(filepath.Join(webConfig.PublicDir, "index."+webConfig.Extension), indexView)
	server.IgnoreViewsForPath("/helloworld")
	server.UseTemplates("")
	server.UseStatic("")
	server.Use404("")

	server.Router.GET("/helloworld", func(c *gin.Context) {
		c.File(filepath.Join(webConfig.PublicDir, "helloworld.html"))
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Listen(ctx, webConfig.ListenPort); err != nil {
		log.Printf("[WEB]: Server stopped with error: %v", err)
		return
	}
	log.Printf("[WEB]: Bye")
}

// indexView counts visits in the session when sessions are enabled
func indexView(c *gin.Context) (views.Result, error) {
	data := map[string]any{
		"now":     time.Now().Format(time.RFC1123),
		"version": appVersion,
	}
	if sess := web.GetSession(c); sess != nil {
		visits := 1
		if v, ok := sess.Get("visits"); ok {
			if f, ok := v.(float64); ok {
				visits = int(f) + 1
			}
		}
		if err := sess.Set("visits", visits); err != nil {
			return views.None(), err
		}
		data["visits"] = visits
	}
	return views.Data(data), nil
}
