package web

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/go-while/go-easyweb/internal/views"
)

// UseStatic serves files from the public directory, for every path or below prefix.
// A directory is answered with its index.html. Misses fall through.
func (s *Server) UseStatic(prefix string) {
	s.Router.Use(StaticHandler(s.Config.PublicDir, prefix))
}

// StaticHandler returns a Gin handler for serving files below root
func StaticHandler(root, prefix string) gin.HandlerFunc {
	urlPrefix := strings.TrimSuffix(prefix, "/")
	if urlPrefix == "" {
		urlPrefix = "/"
	}
	// without indexes a directory only exists if it holds an index.html,
	// and no listing is ever rendered
	var fs static.ServeFileSystem = static.LocalFile(root, false)
	serve := static.Serve(urlPrefix, fs)

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Next()
			return
		}
		if c.FullPath() != "" {
			// an explicit route matched
			c.Next()
			return
		}
		if _, ok := views.StripPrefix(prefix, c.Request.URL.Path); !ok {
			c.Next()
			return
		}
		if !fs.Exists(urlPrefix, c.Request.URL.Path) {
			c.Next()
			return
		}

		// Set some cache headers for static content
		c.Header("Cache-Control", "public, max-age=3600") // browser caches an hour
		serve(c)
		c.Abort()
	}
}
