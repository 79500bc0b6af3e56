// Package registry implements the thread-safe module store and the
// 8-step discovery pipeline of spec.md §4.4.
package registry

import (
	"sync"

	"github.com/edgecomet/apcore/core"
)

// Factory builds a module's Handler plus its compile-time defaults
// (schemas, description, annotations). It is the static-target
// equivalent of the duck-typed "module class/factory" spec.md's
// discovery pipeline inspects at runtime (Design Note: "Duck-typed
// auto-inference... becomes interface-based dispatch in a static
// target").
type Factory func() *ModuleSource

// ModuleSource is what a Factory produces: everything the discovery
// pipeline's step 8 ("instantiate & register") needs from code, before
// metadata is merged over it.
type ModuleSource struct {
	Description  string
	InputSchema  map[string]any
	OutputSchema map[string]any
	Version      string
	Tags         []string
	Metadata     map[string]any
	Handler      core.Handler
	OnLoad       func() error
	OnUnload     func() error
}

// SourceRegistry is the process-wide, compile-time analogue of
// "exactly one exported implementation in the unit": an embedding binary
// binds lookup keys to factories via RegisterSource, and step 4 of
// discovery ("entry-point resolve") becomes a lookup against this map
// instead of loading and duck-type-inspecting a source file at runtime.
// Discovery looks up the metadata's entry_point, else the ID-map class
// hint, else the discovered file's path (its root joined with the path
// under it).
type SourceRegistry struct {
	mu    sync.RWMutex
	bySrc map[string]Factory // keyed by entry_point, class hint or discovered file path
}

// NewSourceRegistry constructs an empty SourceRegistry.
func NewSourceRegistry() *SourceRegistry {
	return &SourceRegistry{bySrc: make(map[string]Factory)}
}

// RegisterSource binds key (an entry_point, an ID-map class hint or a
// discovered file's path) to the factory that implements it; a later call
// with the same key replaces the earlier factory. Typically called from an
// embedding binary's init(), mirroring the ID-map's {file, id, class}
// triples but for Go's static dispatch instead of Python's dynamic import.
func (r *SourceRegistry) RegisterSource(key string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySrc[key] = factory
}

// Lookup returns the factory registered under key, if any.
func (r *SourceRegistry) Lookup(key string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.bySrc[key]
	return f, ok
}

// Count reports how many sources are registered.
func (r *SourceRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySrc)
}
