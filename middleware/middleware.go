// Package middleware implements the onion-style Middleware Manager of
// spec.md §4.5: an ordered, mutable list of before/after/on_error
// hooks, executed with a snapshot-then-iterate-lock-free concurrency
// model.
//
// Go rendering note: spec.md also specifies `execute_*_async` variants
// with per-call coroutine-function detection. Go has one call path —
// every hook takes a *core.Context (whose GoContext() carries the call's
// context.Context) and is called directly,
// synchronously, by its caller (the Executor); there is no separate
// "awaited when the implementation is a coroutine function" branch to
// render, since Go does not distinguish sync/async functions at the
// type level. The synchronous semantics below are the whole contract.
package middleware

import (
	"sync"

	"github.com/edgecomet/apcore/core"
)

// Middleware is the full hook surface. Implementations that only need
// one or two hooks should embed Base and override selectively — Base
// is deliberately not abstract (spec.md: "The base abstraction is not
// abstract").
type Middleware interface {
	Before(moduleID string, inputs map[string]any, ctx *core.Context) (map[string]any, error)
	After(moduleID string, inputs, output map[string]any, ctx *core.Context) (map[string]any, error)
	OnError(moduleID string, inputs map[string]any, callErr error, ctx *core.Context) (map[string]any, error)
}

// Base is a no-op Middleware: every hook returns (nil, nil), meaning
// "no replacement, pass through". Embed it and override only the hooks
// a concrete middleware cares about.
type Base struct{}

func (Base) Before(string, map[string]any, *core.Context) (map[string]any, error)       { return nil, nil }
func (Base) After(string, map[string]any, map[string]any, *core.Context) (map[string]any, error) {
	return nil, nil
}
func (Base) OnError(string, map[string]any, error, *core.Context) (map[string]any, error) {
	return nil, nil
}

// ChainError wraps the original failure from execute_before along with
// which middlewares had already run (spec.md §4.5 "wrap in
// MiddlewareChainError{original, executed_middlewares}").
type ChainError struct {
	Original            error
	ExecutedMiddlewares []Middleware
}

func (e *ChainError) Error() string {
	return "middleware chain error: " + e.Original.Error()
}

func (e *ChainError) Unwrap() error { return e.Original }

func (e *ChainError) Code() string { return core.CodeMiddlewareChain }

// ErrorLogger receives a recovered-from error during execute_on_error
// when a handler itself raises (spec.md: "If a handler raises, log its
// exception and continue").
type ErrorLogger func(mw Middleware, err error)

// Manager is the ordered, mutable middleware list.
type Manager struct {
	mu    sync.Mutex
	items []Middleware
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Add appends m to the end of the registration order.
func (mgr *Manager) Add(m Middleware) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	mgr.items = append(mgr.items, m)
}

// Remove removes m by identity (the first occurrence found). Reports
// whether anything was removed.
func (mgr *Manager) Remove(m Middleware) bool {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	for i, existing := range mgr.items {
		if existing == m {
			next := make([]Middleware, 0, len(mgr.items)-1)
			next = append(next, mgr.items[:i]...)
			next = append(next, mgr.items[i+1:]...)
			mgr.items = next
			return true
		}
	}
	return false
}

// snapshot takes the lock only long enough to copy the current slice
// header, then returns — execution walks the snapshot lock-free so
// concurrent Add/Remove never blocks, or is blocked by, an in-flight
// pipeline (spec.md §4.5 "Concurrency").
func (mgr *Manager) snapshot() []Middleware {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return append([]Middleware(nil), mgr.items...)
}

// ExecuteBefore runs every middleware's Before hook in registration
// order. Each middleware is appended to the returned executed list
// *before* its Before is invoked, so a failing hook's own middleware is
// still recorded as executed (spec.md: "append to executed_list before
// calling before").
func (mgr *Manager) ExecuteBefore(moduleID string, inputs map[string]any, ctx *core.Context) (map[string]any, []Middleware, error) {
	items := mgr.snapshot()
	executed := make([]Middleware, 0, len(items))
	current := inputs

	for _, m := range items {
		executed = append(executed, m)
		replacement, err := m.Before(moduleID, current, ctx)
		if err != nil {
			return nil, executed, &ChainError{Original: err, ExecutedMiddlewares: executed}
		}
		if replacement != nil {
			current = replacement
		}
	}
	return current, executed, nil
}

// ExecuteAfter runs every middleware's After hook in reverse
// registration order. A raised error propagates as-is, unwrapped
// (spec.md: "Exceptions propagate as-is (no wrapping)").
func (mgr *Manager) ExecuteAfter(moduleID string, inputs, output map[string]any, ctx *core.Context) (map[string]any, error) {
	items := mgr.snapshot()
	current := output

	for i := len(items) - 1; i >= 0; i-- {
		replacement, err := items[i].After(moduleID, inputs, current, ctx)
		if err != nil {
			return nil, err
		}
		if replacement != nil {
			current = replacement
		}
	}
	return current, nil
}

// ExecuteOnError walks executed (the list recorded by ExecuteBefore,
// or the full snapshot for a failure outside the before-chain) in
// reverse, returning the first non-nil recovery output. A handler that
// itself raises is logged (via logErr, which may be nil) and skipped.
func (mgr *Manager) ExecuteOnError(executed []Middleware, moduleID string, inputs map[string]any, callErr error, ctx *core.Context, logErr ErrorLogger) map[string]any {
	for i := len(executed) - 1; i >= 0; i-- {
		recovered, err := safeOnError(executed[i], moduleID, inputs, callErr, ctx)
		if err != nil {
			if logErr != nil {
				logErr(executed[i], err)
			}
			continue
		}
		if recovered != nil {
			return recovered
		}
	}
	return nil
}

func safeOnError(m Middleware, moduleID string, inputs map[string]any, callErr error, ctx *core.Context) (out map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = core.NewError(core.CodeMiddlewareChain, "on_error handler panicked").WithDetail("panic", r)
		}
	}()
	return m.OnError(moduleID, inputs, callErr, ctx)
}
