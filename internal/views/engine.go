package views

import (
	"bytes"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Keys of the base render context.
const (
	RequestKey  = "Request"
	ResponseKey = "Response"
)

// Context is the data handed to a template.
type Context map[string]any

// BaseContext returns the context every view gets: request and response.
func BaseContext(c *gin.Context) Context {
	return Context{
		RequestKey:  c.Request,
		ResponseKey: c.Writer,
	}
}

// Merge returns a copy of ctx with data laid over it.
func (ctx Context) Merge(data map[string]any) Context {
	merged := make(Context, len(ctx)+len(data))
	for k, v := range ctx {
		merged[k] = v
	}
	for k, v := range data {
		merged[k] = v
	}
	return merged
}

// Renderer turns a template file and a context into markup.
type Renderer interface {
	Render(templatePath string, data Context) (string, error)
}

// HTMLEngine renders html/template files. Parsed templates are cached per
// path unless the engine runs in debug mode.
type HTMLEngine struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
	funcs     template.FuncMap
	debug     bool
}

// NewHTMLEngine creates the default template engine.
func NewHTMLEngine(debug bool) *HTMLEngine {
	return &HTMLEngine{
		templates: make(map[string]*template.Template),
		funcs:     DefaultFuncs(),
		debug:     debug,
	}
}

// DefaultFuncs are available in every template rendered by HTMLEngine.
func DefaultFuncs() template.FuncMap {
	return template.FuncMap{
		// cases.Caser keeps state, so build one per call
		"title": func(s string) string { return cases.Title(language.English).String(s) },
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}
}

// Funcs adds template functions. Call before the first Render.
func (e *HTMLEngine) Funcs(funcs template.FuncMap) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for name, fn := range funcs {
		e.funcs[name] = fn
	}
	e.templates = make(map[string]*template.Template)
}

// Invalidate drops the cached template for templatePath.
func (e *HTMLEngine) Invalidate(templatePath string) {
	e.mu.Lock()
	delete(e.templates, filepath.Clean(templatePath))
	e.mu.Unlock()
}

// Reset drops all cached templates.
func (e *HTMLEngine) Reset() {
	e.mu.Lock()
	e.templates = make(map[string]*template.Template)
	e.mu.Unlock()
}

// Render executes the template at templatePath with data.
func (e *HTMLEngine) Render(templatePath string, data Context) (string, error) {
	tmpl, err := e.lookup(templatePath)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templatePath, err)
	}
	return buf.String(), nil
}

func (e *HTMLEngine) lookup(templatePath string) (*template.Template, error) {
	templatePath = filepath.Clean(templatePath)
	if !e.debug {
		e.mu.RLock()
		tmpl, ok := e.templates[templatePath]
		e.mu.RUnlock()
		if ok {
			return tmpl, nil
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// Double-check after acquiring lock
	if tmpl, ok := e.templates[templatePath]; ok && !e.debug {
		return tmpl, nil
	}
	tmpl, err := template.New(filepath.Base(templatePath)).Funcs(e.funcs).ParseFiles(templatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templatePath, err)
	}
	if !e.debug {
		e.templates[templatePath] = tmpl
	}
	return tmpl, nil
}
