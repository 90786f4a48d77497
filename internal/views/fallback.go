package views

import (
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
)

const (
	notFoundHTML      = "<h1>404 Page Not Found</h1>"
	internalErrorHTML = "<h1>500 Internal Server Error</h1>"
	htmlContentType   = "text/html; charset=utf-8"
)

// Fallback answers requests nothing else handled (404) and requests whose
// view failed (500). Lookup order for both: <code>.<ext> rendered as a
// template, then <code>.html served verbatim, then a literal page.
type Fallback struct {
	root   string
	ext    string
	engine Renderer
}

// NewFallback creates the 404/500 handler for the resolver's public dir.
func NewFallback(resolver *Resolver, engine Renderer) *Fallback {
	return &Fallback{
		root:   resolver.Root(),
		ext:    resolver.Extension(),
		engine: engine,
	}
}

// NotFound sends the 404 page.
func (f *Fallback) NotFound(c *gin.Context) {
	f.serve(c, http.StatusNotFound, "404", notFoundHTML)
}

// InternalError sends the 500 page.
func (f *Fallback) InternalError(c *gin.Context) {
	f.serve(c, http.StatusInternalServerError, "500", internalErrorHTML)
}

func (f *Fallback) serve(c *gin.Context, status int, name, literal string) {
	defer c.Abort()

	tmplPath := filepath.Join(f.root, name+f.ext)
	if ok, _ := isFile(tmplPath); ok {
		out, err := f.engine.Render(tmplPath, BaseContext(c))
		if err == nil {
			c.Data(status, htmlContentType, []byte(out))
			return
		}
		log.Printf("[VIEWS]: Failed to render %s page '%s': %v", name, tmplPath, err)
	}

	staticPath := filepath.Join(f.root, name+".html")
	if staticPath != tmplPath {
		if ok, _ := isFile(staticPath); ok {
			content, err := os.ReadFile(staticPath)
			if err == nil {
				c.Data(status, htmlContentType, content)
				return
			}
			log.Printf("[VIEWS]: Failed to read %s page '%s': %v", name, staticPath, err)
		}
	}

	c.Data(status, htmlContentType, []byte(literal))
}
