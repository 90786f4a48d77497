// Package views maps request paths onto template files below the public
// directory and renders them, with optional per-view data callbacks.
package views

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
)

// ErrViewNotFound is returned when no view file matches a request path.
var ErrViewNotFound = errors.New("view not found")

// Resolver locates view files for URL paths.
//
// Lookup order for a request path p (root = public dir, ext = template extension):
//
//	/          -> root/index.ext, root/index/index.ext
//	p.ext      -> root/p.ext (verbatim, nothing else is tried)
//	p          -> root/p.ext, root/p/index.ext
type Resolver struct {
	root string
	ext  string // with leading dot
}

// NewResolver creates a resolver for views below root using the template
// extension ext ("html" and ".html" are equivalent).
func NewResolver(root, ext string) *Resolver {
	ext = strings.TrimPrefix(ext, ".")
	return &Resolver{
		root: filepath.Clean(root),
		ext:  "." + ext,
	}
}

// Root returns the public directory.
func (r *Resolver) Root() string {
	return r.root
}

// Extension returns the template extension including the leading dot.
func (r *Resolver) Extension() string {
	return r.ext
}

// MatchesExtension reports whether urlPath may name a view: it has no
// extension or the template extension. No file system access happens here.
func (r *Resolver) MatchesExtension(urlPath string) bool {
	ext := path.Ext(trimTrailingSlash(urlPath))
	return ext == "" || ext == r.ext
}

// ResolveViewPath returns the file path of the view serving urlPath, or
// ErrViewNotFound. Other errors come from the file system.
func (r *Resolver) ResolveViewPath(urlPath string) (string, error) {
	clean := cleanURLPath(urlPath)
	if clean == "/" {
		return r.firstFile(
			filepath.Join(r.root, "index"+r.ext),
			filepath.Join(r.root, "index", "index"+r.ext),
		)
	}

	rel := filepath.FromSlash(strings.TrimPrefix(clean, "/"))
	if strings.HasSuffix(clean, r.ext) {
		return r.firstFile(filepath.Join(r.root, rel))
	}
	return r.firstFile(
		filepath.Join(r.root, rel+r.ext),
		filepath.Join(r.root, rel, "index"+r.ext),
	)
}

// firstFile returns the first candidate that is a regular file.
func (r *Resolver) firstFile(candidates ...string) (string, error) {
	for _, candidate := range candidates {
		ok, err := isFile(candidate)
		if err != nil {
			return "", fmt.Errorf("failed to stat view '%s': %w", candidate, err)
		}
		if ok {
			return candidate, nil
		}
	}
	return "", ErrViewNotFound
}

// isFile reports whether name exists and is a regular file.
// Missing files and paths running through a regular file are not errors.
func isFile(name string) (bool, error) {
	info, err := os.Stat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func trimTrailingSlash(p string) string {
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		return p[:len(p)-1]
	}
	return p
}

// cleanURLPath strips one trailing slash and cleans p as a rooted path,
// so ".." can never climb above the public directory.
func cleanURLPath(p string) string {
	return path.Clean("/" + trimTrailingSlash(p))
}
