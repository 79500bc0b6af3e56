package core

import "context"

// ModuleIDPattern is the grammar every module_id must satisfy
// (spec.md §6): lowercase dot-segments, each starting with a letter.
const ModuleIDPattern = `^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)*$`

// Handler is the shape every registered module implements: execute
// against a derived Context on inputs the Executor has already validated
// against the module's input schema, producing outputs the Executor
// later validates against its output schema.
type Handler interface {
	Execute(ctx context.Context, callCtx *Context, inputs map[string]any) (map[string]any, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, callCtx *Context, inputs map[string]any) (map[string]any, error)

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, callCtx *Context, inputs map[string]any) (map[string]any, error) {
	return f(ctx, callCtx, inputs)
}

// Annotations describe hint metadata about a module's behavior,
// per spec.md §3 "Module descriptor".
type Annotations struct {
	ReadOnlyHint    bool
	DestructiveHint bool
	IdempotentHint  bool
	OpenWorldHint   bool
	Streaming       bool
}

// DefaultAnnotations matches the MCP export profile defaults
// (spec.md §4.3): readOnlyHint=false, destructiveHint=false,
// idempotentHint=false, openWorldHint=true.
func DefaultAnnotations() Annotations {
	return Annotations{OpenWorldHint: true}
}

// Example is a single documented input/output pair for a module.
type Example struct {
	Name        string
	Description string
	Input       map[string]any
	Output      map[string]any
}

// Module is a registered unit exposing a schema, description and
// executable handler (GLOSSARY "Module").
type Module struct {
	ID            string
	Description   string
	InputSchema   map[string]any
	OutputSchema  map[string]any
	Version       string
	Tags          []string
	Annotations   Annotations
	Examples      []Example
	Metadata      map[string]any
	Handler       Handler
	OnLoad        func() error
	OnUnload      func() error
	Dependencies  []DependencyInfo
}

// Descriptor composes the public-facing descriptor for a module,
// as produced by Registry.GetDefinition.
type Descriptor struct {
	ModuleID     string
	Description  string
	InputSchema  map[string]any
	OutputSchema map[string]any
	Version      string
	Tags         []string
	Annotations  Annotations
	Examples     []Example
	Metadata     map[string]any
}

// DiscoveredModule is one source file the Registry's scan step found,
// before metadata/entry-point resolution (spec.md §3).
type DiscoveredModule struct {
	FilePath    string
	CanonicalID string
	MetaPath    string
	Namespace   string
}

// DependencyInfo is one declared module dependency edge (spec.md §3).
type DependencyInfo struct {
	ModuleID string
	Version  string
	Optional bool
}
