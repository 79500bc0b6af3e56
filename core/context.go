package core

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Context is per-call metadata, created at the root of a call tree and
// derived for each nested child call (spec.md §3 "Context").
//
// Grounded on the teacher's internal/edge/edgectx.RenderContext: a
// struct pairing request-scoped metadata with a Go context.Context for
// deadline/cancellation plumbing, built once per request and enriched
// via a chain of With* calls as the pipeline learns more. Context plays
// the same role here, except "enrichment" is call-tree derivation
// rather than within-one-request field population, and Data is shared
// by pointer across the whole tree rather than rebuilt per step (Design
// Note: "Shared context.data across a call tree becomes a concurrent
// map in a threaded runtime").
type Context struct {
	TraceID        string
	CallerID       string
	CallChain      []string
	Identity       Identity
	RedactedInputs map[string]any

	shared *sharedData
	goCtx  context.Context
}

// sharedData backs Context.Data: one instance per call tree (root and
// every descendant share the same pointer), guarded by its own mutex so
// concurrent sibling branches never race writing to the same stack key.
type sharedData struct {
	mu   sync.Mutex
	data map[string]any
}

// NewRootContext creates a context at the root of a call tree: a fresh
// trace_id, empty call_chain, and a fresh shared data map.
func NewRootContext(goCtx context.Context, identity Identity) *Context {
	if goCtx == nil {
		goCtx = context.Background()
	}
	return &Context{
		TraceID:   uuid.NewString(),
		CallerID:  "",
		CallChain: nil,
		Identity:  identity,
		shared:    &sharedData{data: map[string]any{}},
		goCtx:     goCtx,
	}
}

// Derive produces the child context for the next call in the tree:
// caller_id becomes the last element of the current chain (or empty at
// the root), and moduleID is appended to call_chain. TraceID, Identity
// and the shared Data map are carried over unchanged, per spec.
func (c *Context) Derive(goCtx context.Context, moduleID string) *Context {
	if goCtx == nil {
		goCtx = c.goCtx
	}
	caller := ""
	if len(c.CallChain) > 0 {
		caller = c.CallChain[len(c.CallChain)-1]
	}
	chain := make([]string, len(c.CallChain), len(c.CallChain)+1)
	copy(chain, c.CallChain)
	chain = append(chain, moduleID)

	return &Context{
		TraceID:   c.TraceID,
		CallerID:  caller,
		CallChain: chain,
		Identity:  c.Identity,
		shared:    c.shared,
		goCtx:     goCtx,
	}
}

// WithGoContext returns a shallow copy of c carrying a different
// underlying context.Context (used by the Executor to attach a
// per-call deadline without disturbing the call-tree metadata).
func (c *Context) WithGoContext(goCtx context.Context) *Context {
	cp := *c
	cp.goCtx = goCtx
	return &cp
}

// GoContext returns the underlying context.Context for cancellation and
// deadline propagation.
func (c *Context) GoContext() context.Context {
	if c.goCtx == nil {
		return context.Background()
	}
	return c.goCtx
}

// CurrentModule returns call_chain[-1], the module currently executing,
// or "" at the root before any derivation.
func (c *Context) CurrentModule() string {
	if len(c.CallChain) == 0 {
		return ""
	}
	return c.CallChain[len(c.CallChain)-1]
}

// Get reads a key from the shared Data map.
func (c *Context) Get(key string) (any, bool) {
	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	v, ok := c.shared.data[key]
	return v, ok
}

// Set writes a key in the shared Data map.
func (c *Context) Set(key string, value any) {
	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	c.shared.data[key] = value
}

// PushStack appends value onto the []any stack stored at key, creating
// it if absent. Middlewares use per-trace stacks (not single slots)
// because one middleware instance may appear in multiple overlapping
// call frames of the same tree (spec.md §5).
func (c *Context) PushStack(key string, value any) {
	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	stack, _ := c.shared.data[key].([]any)
	c.shared.data[key] = append(stack, value)
}

// PopStack removes and returns the top of the []any stack stored at
// key. ok is false if the stack is absent or empty.
func (c *Context) PopStack(key string) (value any, ok bool) {
	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	stack, _ := c.shared.data[key].([]any)
	if len(stack) == 0 {
		return nil, false
	}
	value = stack[len(stack)-1]
	c.shared.data[key] = stack[:len(stack)-1]
	return value, true
}

// PeekStack returns the top of the []any stack stored at key without
// removing it.
func (c *Context) PeekStack(key string) (value any, ok bool) {
	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	stack, _ := c.shared.data[key].([]any)
	if len(stack) == 0 {
		return nil, false
	}
	return stack[len(stack)-1], true
}

// CountInChain returns how many times moduleID appears in call_chain.
func (c *Context) CountInChain(moduleID string) int {
	n := 0
	for _, id := range c.CallChain {
		if id == moduleID {
			n++
		}
	}
	return n
}
