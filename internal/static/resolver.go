// Package static maps requested asset paths onto the operator-configured
// override directory that replaces the client's bundled files.
package static

import (
	"context"
	"mime"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const (
	indexFileName    = "index.html"
	fallbackMIMEType = "application/octet-stream"
)

// PathSource yields the configured override root, empty when unset.
type PathSource interface {
	StaticFilePath(ctx context.Context) (string, error)
}

// Result describes a resolved override file.
type Result struct {
	ContentType string
	FilePath    string
}

// Resolver resolves asset requests against the override root.
type Resolver struct {
	paths  PathSource
	logger *zap.Logger
}

// NewResolver constructs a resolver over the given path source.
func NewResolver(paths PathSource, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{paths: paths, logger: logger}
}

// Resolve returns the override file serving the requested path, or nil when
// no override applies: no root configured, a traversal attempt, or a store
// failure all fall back to the caller's default assets. The path must be
// relative to the override root; parent-directory segments and absolute
// paths are rejected.
func (r *Resolver) Resolve(ctx context.Context, requested string) *Result {
	root, err := r.paths.StaticFilePath(ctx)
	if err != nil {
		r.logger.Debug("static root lookup failed", zap.Error(err))
		return nil
	}
	if root == "" {
		return nil
	}

	if strings.Contains(requested, "..") || strings.HasPrefix(requested, "/") {
		r.logger.Debug("static path rejected", zap.String("requested", requested))
		return nil
	}
	target := requested
	if target == "" {
		target = indexFileName
	}

	contentType := mime.TypeByExtension(filepath.Ext(target))
	if contentType == "" {
		contentType = fallbackMIMEType
	}

	return &Result{
		ContentType: contentType,
		FilePath:    filepath.Join(root, target),
	}
}
