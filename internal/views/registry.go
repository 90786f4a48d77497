package views

import (
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// ResultKind tells the dispatcher what to do after a view callback ran.
type ResultKind int

const (
	// ResultNone renders the view with the base context.
	ResultNone ResultKind = iota
	// ResultData merges Result.Data into the base context before rendering.
	ResultData
	// ResultSuppress skips rendering; the callback has answered the request itself.
	ResultSuppress
)

// Result is the outcome of a ViewFunc.
type Result struct {
	Kind ResultKind
	Data map[string]any
}

// None renders the view with only the request and response.
func None() Result {
	return Result{Kind: ResultNone}
}

// Data renders the view with data merged into the context.
// A nil map is the same as None.
func Data(data map[string]any) Result {
	if data == nil {
		return None()
	}
	return Result{Kind: ResultData, Data: data}
}

// Suppress tells the dispatcher not to render anything.
func Suppress() Result {
	return Result{Kind: ResultSuppress}
}

// ViewFunc produces render data for a view. A returned error (or a panic)
// makes the dispatcher fall back to rendering with the base context.
type ViewFunc func(c *gin.Context) (Result, error)

// Registry holds view callbacks keyed by view file path and the URL paths
// excluded from view dispatch. It is filled before the server starts and
// only read while serving requests, so it carries no lock.
type Registry struct {
	views   map[string]ViewFunc
	ignored map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		views:   make(map[string]ViewFunc),
		ignored: make(map[string]struct{}),
	}
}

// AddView registers fn for the view file at filePath (for example
// "public/about.html"). The last registration for a path wins.
func (r *Registry) AddView(filePath string, fn ViewFunc) {
	r.views[filepath.Clean(filePath)] = fn
}

// View returns the callback registered for filePath.
func (r *Registry) View(filePath string) (ViewFunc, bool) {
	fn, ok := r.views[filepath.Clean(filePath)]
	if !ok || fn == nil {
		return nil, false
	}
	return fn, true
}

// IgnoreViewsForPath excludes urlPath from view dispatch.
func (r *Registry) IgnoreViewsForPath(urlPath string) {
	r.ignored[NormalizeIgnorePath(urlPath)] = struct{}{}
}

// IsIgnored reports whether urlPath was excluded with IgnoreViewsForPath.
func (r *Registry) IsIgnored(urlPath string) bool {
	_, ok := r.ignored[NormalizeIgnorePath(urlPath)]
	return ok
}

// NormalizeIgnorePath is the single representation used for the ignore
// list: no leading or trailing slashes. The root path becomes "".
func NormalizeIgnorePath(urlPath string) string {
	return strings.Trim(urlPath, "/")
}
