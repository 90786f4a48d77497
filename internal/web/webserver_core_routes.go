package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/go-while/go-easyweb/internal/config"
	"github.com/go-while/go-easyweb/internal/database"
	"github.com/go-while/go-easyweb/internal/views"
)

var (
	// ErrDatabaseRequired is returned by UseSession before UseDatabase
	ErrDatabaseRequired = errors.New("database must be used before using sessions")
	// ErrNoSessionSecret is returned when no session secret is configured
	ErrNoSessionSecret = errors.New("session secret is empty (set $" + config.SessionSecretEnvVar + ")")
)

// Server is the façade around gin, the view dispatcher, the database and
// the session store. Configure it with the Use* methods, then Listen.
type Server struct {
	Router *gin.Engine
	Config *config.WebConfig

	// GracePeriod is how long Listen waits for in-flight requests on shutdown
	// before closing their connections
	GracePeriod time.Duration

	views    *views.Registry
	resolver *views.Resolver
	engine   views.Renderer
	fallback *views.Fallback

	db       *database.Database
	sessions *sessionManager

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// NewServer creates a new web server instance. A nil webconfig selects the defaults.
func NewServer(webconfig *config.WebConfig) *Server {
	if webconfig == nil {
		webconfig = config.NewDefaultWebConfig()
	}

	// Set Gin to release mode for production
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Configure Gin to trust reverse proxy headers
	router.SetTrustedProxies([]string{"127.0.0.1", "::1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"})

	// Configure security headers based on SSL setup
	secureConfig := secure.Config{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}

	// Only add SSL-specific headers if SSL is enabled on the application itself
	// (not when running behind a reverse proxy like nginx with SSL)
	if webconfig.SSL {
		secureConfig.SSLRedirect = true
		secureConfig.STSSeconds = 31536000
		secureConfig.STSIncludeSubdomains = true
	}

	resolver := views.NewResolver(webconfig.PublicDir, webconfig.Extension)
	engine := views.NewHTMLEngine(webconfig.Debug)

	server := &Server{
		Router:      router,
		Config:      webconfig,
		GracePeriod: config.ShutdownGracePeriod,
		views:       views.NewRegistry(),
		resolver:    resolver,
		engine:      engine,
		fallback:    views.NewFallback(resolver, engine),
	}

	router.Use(server.ApacheLogFormat())
	router.Use(gin.CustomRecovery(server.recovery))
	router.Use(secure.New(secureConfig))
	router.Use(server.ReverseProxyMiddleware())

	return server
}

// SetRenderer replaces the template engine. Call before UseTemplates and Use404.
func (s *Server) SetRenderer(engine views.Renderer) {
	s.engine = engine
	s.fallback = views.NewFallback(s.resolver, engine)
}

// Render renders a template with the configured engine.
func (s *Server) Render(templatePath string, data views.Context) (string, error) {
	return s.engine.Render(templatePath, data)
}

// AddView registers a data callback for the view file at filePath
// (for example "public/about.html"). Must be called before Listen.
func (s *Server) AddView(filePath string, fn views.ViewFunc) {
	if s.isRunning() {
		log.Printf("[WEB]: Ignoring AddView('%s') while the server is running", filePath)
		return
	}
	s.views.AddView(filePath, fn)
}

// IgnoreViewsForPath excludes a URL path from view dispatch. Must be called before Listen.
func (s *Server) IgnoreViewsForPath(urlPath string) {
	if s.isRunning() {
		log.Printf("[WEB]: Ignoring IgnoreViewsForPath('%s') while the server is running", urlPath)
		return
	}
	s.views.IgnoreViewsForPath(urlPath)
}

// UseTemplates mounts the view dispatcher, for every path or below prefix.
func (s *Server) UseTemplates(prefix string) {
	d := views.NewDispatcher(s.resolver, s.views, s.engine, s.fallback, prefix)
	s.Router.Use(d.Handler())
}

// Use404 installs the terminal 404 handler. With an empty prefix it
// answers every unmatched request, otherwise only those below prefix.
func (s *Server) Use404(prefix string) {
	if prefix == "" || prefix == "/" {
		s.Router.NoRoute(s.fallback.NotFound)
		return
	}
	s.Router.Use(func(c *gin.Context) {
		if _, ok := views.StripPrefix(prefix, c.Request.URL.Path); ok && c.FullPath() == "" {
			s.fallback.NotFound(c)
		}
	})
}

// Use mounts middleware for every request.
func (s *Server) Use(handlers ...gin.HandlerFunc) {
	s.Router.Use(handlers...)
}

// UseAt mounts middleware that only runs for requests below prefix.
func (s *Server) UseAt(prefix string, handlers ...gin.HandlerFunc) {
	for _, h := range handlers {
		h := h
		s.Router.Use(func(c *gin.Context) {
			if _, ok := views.StripPrefix(prefix, c.Request.URL.Path); ok {
				h(c)
			}
		})
	}
}

// UseDatabase opens the SQLite database at path ("" selects database.db).
func (s *Server) UseDatabase(path string) error {
	return s.UseDatabaseConfig(config.NewDefaultDatabaseConfig(path))
}

// UseDatabaseConfig opens the SQLite database described by dbconfig.
func (s *Server) UseDatabaseConfig(dbconfig config.DatabaseConfig) error {
	db, err := database.OpenDatabase(dbconfig)
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

// DB returns the database opened by UseDatabase, or nil.
func (s *Server) DB() *database.Database {
	return s.db
}

// UseSession mounts the session middleware backed by the database.
// An empty secret falls back to $SESSION_SECRET.
func (s *Server) UseSession(secret string) error {
	sessionConfig := config.NewDefaultSessionConfig()
	if secret != "" {
		sessionConfig.Secret = secret
	}
	return s.UseSessionConfig(sessionConfig)
}

// UseSessionConfig mounts the session middleware with sessionConfig.
// Empty cookie name, expiry or cleanup interval select the defaults.
func (s *Server) UseSessionConfig(sessionConfig config.SessionConfig) error {
	if s.db == nil {
		return ErrDatabaseRequired
	}
	if sessionConfig.Secret == "" {
		return ErrNoSessionSecret
	}
	if sessionConfig.CookieName == "" {
		sessionConfig.CookieName = config.DefaultSessionCookie
	}
	if sessionConfig.Expiry <= 0 {
		sessionConfig.Expiry = config.DefaultSessionExpiry
	}
	if sessionConfig.CleanupInterval <= 0 {
		sessionConfig.CleanupInterval = config.DefaultSessionCleanup
	}
	s.sessions = newSessionManager(s.db, sessionConfig)
	s.Router.Use(s.sessions.middleware)
	return nil
}

// Listen serves on port until ctx is cancelled, then shuts down gracefully:
// in-flight requests get GracePeriod before their connections are closed.
func (s *Server) Listen(ctx context.Context, port int) error {
	if port <= 0 {
		port = s.Config.ListenPort
	}
	addr := ":" + strconv.Itoa(port)

	if s.Config.SSL && (s.Config.CertFile == "" || s.Config.KeyFile == "") {
		return errors.New("SSL enabled but cert_file or key_file not specified in config")
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: config.DefaultReadHeaderTimeout,
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	if s.sessions != nil {
		s.StartSessionCleanup(bgCtx)
	}
	if s.Config.Watch {
		s.startTemplateWatcher(bgCtx)
	}

	errChan := make(chan error, 1)
	go func() {
		var err error
		if s.Config.SSL {
			log.Printf("[WEB]: Starting HTTPS server on %s", addr)
			err = httpServer.ListenAndServeTLS(s.Config.CertFile, s.Config.KeyFile)
		} else {
			log.Printf("[WEB]: Starting HTTP server on %s", addr)
			err = httpServer.ListenAndServe()
		}
		errChan <- err
	}()

	select {
	case err := <-errChan:
		stopBackground()
		s.wg.Wait()
		s.setStopped()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web server failed: %w", err)
	case <-ctx.Done():
	}

	grace := s.GracePeriod
	if grace <= 0 {
		grace = config.ShutdownGracePeriod
	}
	log.Printf("[WEB]: Shutting down, waiting up to %s for in-flight requests...", grace)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	var shutdownErr error
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WEB]: Graceful shutdown timed out, forcing close: %v", err)
		if cerr := httpServer.Close(); cerr != nil {
			log.Printf("[WEB]: Error forcing close: %v", cerr)
		}
		shutdownErr = err
	}
	<-errChan
	stopBackground()
	s.wg.Wait()
	s.setStopped()
	log.Printf("[WEB]: Web server stopped")
	return shutdownErr
}

// Close releases the database. Call after Listen returned.
func (s *Server) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Shutdown()
}

// startTemplateWatcher reloads edited views. Only the default engine caches.
func (s *Server) startTemplateWatcher(ctx context.Context) {
	engine, ok := s.engine.(*views.HTMLEngine)
	if !ok || s.Config.Debug {
		return
	}
	w, err := views.NewWatcher(s.Config.PublicDir, engine)
	if err != nil {
		log.Printf("[WEB]: Template watcher disabled: %v", err)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		w.Run(ctx)
	}()
}

func (s *Server) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Server) setStopped() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// recovery logs handler panics and answers with the 500 page
func (s *Server) recovery(c *gin.Context, err any) {
	log.Printf("[WEB]: Panic serving %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	if c.Writer.Written() {
		c.Abort()
		return
	}
	s.fallback.InternalError(c)
}

// ReverseProxyMiddleware handles X-Forwarded headers when running behind a reverse proxy
func (s *Server) ReverseProxyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Handle X-Forwarded-Proto to detect if the original request was HTTPS
		if proto := c.GetHeader("X-Forwarded-Proto"); proto == "https" {
			c.Request.URL.Scheme = "https"
		}

		// Handle X-Forwarded-Host to get the original host
		if host := c.GetHeader("X-Forwarded-Host"); host != "" {
			c.Request.Host = host
		}

		c.Next()
	}
}

// ApacheLogFormat logs requests in the Apache combined log format
func (s *Server) ApacheLogFormat() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf(`%s - - [%s] "%s %s %s" %d %d "%s" "%s"`+"\n",
			param.ClientIP,
			param.TimeStamp.Format("02/Jan/2006:15:04:05 -0700"),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.BodySize,
			param.Request.Referer(),
			param.Request.UserAgent(),
		)
	})
}

// isHTTPS detects HTTPS from the request or a trusted reverse proxy header
func isHTTPS(c *gin.Context) bool {
	return c.Request != nil && (c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https"))
}
