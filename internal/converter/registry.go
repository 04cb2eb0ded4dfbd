package converter

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// Registry routes conversions to engines by file extension.
// Thread-safe for concurrent access.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine // key: file extension (e.g. ".html")
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]Engine)}
}

// NewStandardRegistry creates the standard-tier registry: in-process
// engines for lightweight formats, the markitdown CLI for the rest.
func NewStandardRegistry(opts ...MarkitdownOption) *Registry {
	r := NewRegistry()
	r.Register(NewMarkdownEngine())
	r.Register(NewTextEngine())
	r.Register(NewHTMLEngine())
	r.Register(NewCSVEngine())
	r.Register(NewMarkitdownEngine(opts...))
	return r
}

// Register adds an engine for each of its supported extensions.
// Extensions are normalized to lowercase with a leading dot; a later
// registration for the same extension wins.
func (r *Registry) Register(engine Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ext := range engine.SupportedExtensions() {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		r.engines[ext] = engine
	}
}

// EngineFor returns the engine registered for the extension, or nil.
// Lookup is case-insensitive.
func (r *Registry) EngineFor(ext string) Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engines[strings.ToLower(ext)]
}

// Convert routes to the engine for the filename's extension.
func (r *Registry) Convert(ctx context.Context, filename string, content []byte) (*Result, error) {
	ext := filepath.Ext(filename)
	engine := r.EngineFor(ext)
	if engine == nil {
		return nil, fmt.Errorf("no converter for file type %s", ext)
	}
	return engine.Convert(ctx, filename, content)
}

// SupportedExtensions returns all registered extensions.
func (r *Registry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.engines))
	for ext := range r.engines {
		exts = append(exts, ext)
	}
	return exts
}
