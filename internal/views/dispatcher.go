package views

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Dispatcher is the gin middleware that renders views.
//
// Per request it ends in one of four states: delegate (c.Next), render,
// suppress (the view callback answered) or fail (500 page).
type Dispatcher struct {
	resolver *Resolver
	registry *Registry
	engine   Renderer
	fallback *Fallback
	prefix   string
}

// NewDispatcher creates a dispatcher mounted at prefix ("" or "/" for all paths).
func NewDispatcher(resolver *Resolver, registry *Registry, engine Renderer, fallback *Fallback, prefix string) *Dispatcher {
	return &Dispatcher{
		resolver: resolver,
		registry: registry,
		engine:   engine,
		fallback: fallback,
		prefix:   prefix,
	}
}

// Handler returns the middleware.
func (d *Dispatcher) Handler() gin.HandlerFunc {
	return d.serve
}

func (d *Dispatcher) serve(c *gin.Context) {
	urlPath, ok := StripPrefix(d.prefix, c.Request.URL.Path)
	if !ok {
		c.Next()
		return
	}
	// explicit gin routes win over views
	if c.FullPath() != "" {
		c.Next()
		return
	}
	if d.registry.IsIgnored(urlPath) {
		c.Next()
		return
	}
	if !d.resolver.MatchesExtension(urlPath) {
		c.Next()
		return
	}

	filePath, err := d.resolver.ResolveViewPath(urlPath)
	if err != nil {
		if errors.Is(err, ErrViewNotFound) {
			c.Next()
			return
		}
		log.Printf("[VIEWS]: Failed to resolve view for '%s': %v", c.Request.URL.Path, err)
		d.fallback.InternalError(c)
		return
	}

	ctx := BaseContext(c)
	if fn, ok := d.registry.View(filePath); ok {
		result := d.invoke(c, filePath, fn)
		switch result.Kind {
		case ResultSuppress:
			c.Abort()
			return
		case ResultData:
			ctx = ctx.Merge(result.Data)
		}
	}

	out, err := d.engine.Render(filePath, ctx)
	if err != nil {
		log.Printf("[VIEWS]: Failed to render view '%s': %v", filePath, err)
		d.fallback.InternalError(c)
		return
	}
	c.Data(http.StatusOK, htmlContentType, []byte(out))
	c.Abort()
}

// invoke runs a view callback. Errors and panics degrade to None.
func (d *Dispatcher) invoke(c *gin.Context, filePath string, fn ViewFunc) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[VIEWS]: View callback for '%s' panicked: %v", filePath, r)
			result = None()
		}
	}()

	res, err := fn(c)
	if err != nil {
		log.Printf("[VIEWS]: View callback for '%s' failed: %v", filePath, err)
		return None()
	}
	return res
}

// StripPrefix returns urlPath relative to the mount prefix and whether
// urlPath lies below it. "/blog" matches "/blog" and "/blog/x" but not "/blogger".
func StripPrefix(prefix, urlPath string) (string, bool) {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return urlPath, true
	}
	if urlPath == prefix {
		return "/", true
	}
	if strings.HasPrefix(urlPath, prefix+"/") {
		return urlPath[len(prefix):], true
	}
	return "", false
}
