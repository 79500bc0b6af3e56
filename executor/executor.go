// Package executor implements the Executor of spec.md §4.6: the
// 10-step synchronous call pipeline that ties the Registry, ACL,
// Middleware Manager and Schema engine together around one module
// invocation.
//
// Go rendering note: spec.md's call/call_async distinction collapses
// into one entry point, Call, since every step already takes a
// context.Context for cancellation/deadlines — there is no separate
// coroutine-detected code path to render in Go. Stream is kept as its
// own method (see stream.go) because it has a genuinely different
// return shape (a channel of incremental chunks), not because it is
// "the async one".
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/edgecomet/apcore/acl"
	"github.com/edgecomet/apcore/core"
	"github.com/edgecomet/apcore/middleware"
	"github.com/edgecomet/apcore/registry"
	"github.com/edgecomet/apcore/schema"
)

// ErrorLogger receives errors raised by middleware on_error handlers
// and the one-time warning that timeout enforcement is disabled, so the
// embedding application can log them (spec.md: "log its exception and
// continue"). A handler panic is not logged here; it is returned to the
// caller as the call's error.
type ErrorLogger func(moduleID string, err error)

// Executor runs the call pipeline against a Registry, optionally
// guarded by an ACL and wrapped in a Middleware Manager.
//
// Grounded on internal/edge/orchestrator.RenderOrchestrator's
// numbered-step pipeline style (const timeout knobs, one pipeline
// method per call, errors returned rather than panicking) and on
// RenderContext.GetContext/TimeRemaining's deadline-budget idiom,
// adapted from one HTTP render request to a generic module call.
type Executor struct {
	Registry   *registry.Store
	Middleware *middleware.Manager
	ACL        *acl.ACL
	Config     *core.Config
	Limits     Limits
	LogError   ErrorLogger

	warnZeroTimeout sync.Once
}

// New builds an Executor. mw and aclEngine may be nil (no middleware,
// no access control); cfg may be nil (all limits default).
func New(reg *registry.Store, mw *middleware.Manager, aclEngine *acl.ACL, cfg *core.Config) *Executor {
	if mw == nil {
		mw = middleware.NewManager()
	}
	return &Executor{
		Registry:   reg,
		Middleware: mw,
		ACL:        aclEngine,
		Config:     cfg,
		Limits:     limitsFromConfig(cfg),
	}
}

// callOptions carries the per-call overrides a caller may supply
// through CallOption, distinct from the Executor's configured
// defaults.
type callOptions struct {
	timeoutMS *int
	identity  core.Identity
}

// CallOption customizes a single Call/Stream invocation.
type CallOption func(*callOptions)

// WithTimeoutMS overrides the effective per-call timeout (step 7).
// Zero disables enforcement; negative is rejected with InvalidInput.
func WithTimeoutMS(ms int) CallOption {
	return func(o *callOptions) { o.timeoutMS = &ms }
}

// WithIdentity sets the caller's Identity when starting a new call
// tree (ignored when a parent Context is supplied — Identity is
// inherited down the chain per spec.md §3).
func WithIdentity(identity core.Identity) CallOption {
	return func(o *callOptions) { o.identity = identity }
}

func resolveCallOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, apply := range opts {
		apply(&o)
	}
	return o
}

// ValidationResult is validate(module_id, inputs)'s return shape:
// steps 1–3 plus input validation only, reported structurally instead
// of as an error so a caller can present every field problem at once.
type ValidationResult struct {
	Valid  bool
	Errors []schema.ValidationError
}

// Call runs the full 10-step pipeline for moduleID. parent may be nil
// to start a fresh call tree.
func (ex *Executor) Call(ctx context.Context, moduleID string, inputs map[string]any, parent *core.Context, opts ...CallOption) (map[string]any, error) {
	o := resolveCallOptions(opts)

	callCtx, mod, preparedInputs, err := ex.prepare(ctx, moduleID, inputs, parent, o)
	if err != nil {
		return nil, err
	}

	beforeInputs, executed, err := ex.Middleware.ExecuteBefore(moduleID, preparedInputs, callCtx)
	if err != nil {
		var chainErr *middleware.ChainError
		if errors.As(err, &chainErr) {
			if recovered := ex.Middleware.ExecuteOnError(chainErr.ExecutedMiddlewares, moduleID, preparedInputs, chainErr.Original, callCtx, ex.middlewareErrorLogger(moduleID)); recovered != nil {
				return ex.finishAfterChain(moduleID, preparedInputs, recovered, callCtx)
			}
		}
		return nil, err
	}

	output, execErr := ex.executeWithTimeout(callCtx, mod, beforeInputs, o)
	if execErr != nil {
		recovered := ex.Middleware.ExecuteOnError(executed, moduleID, beforeInputs, execErr, callCtx, ex.middlewareErrorLogger(moduleID))
		if recovered == nil {
			return nil, execErr
		}
		output = recovered
	}

	validatedOutput, err := ex.validateOutput(mod, output)
	if err != nil {
		return ex.recoverAfterOutputStage(mod, moduleID, executed, beforeInputs, err, callCtx)
	}

	final, err := ex.finishAfterChain(moduleID, beforeInputs, validatedOutput, callCtx)
	if err != nil {
		return ex.recoverAfterOutputStage(mod, moduleID, executed, beforeInputs, err, callCtx)
	}
	return final, nil
}

// recoverAfterOutputStage implements the error-recovery protocol for
// failures at steps 8 (output validation) and 9 (after-chain): spec.md
// §4.6 "Any exception raised at steps 7–9 triggers the error-recovery
// protocol on executed_list: if a handler returns a recovery mapping,
// re-enter at step 8 with that mapping; otherwise re-raise." The
// recovery mapping gets exactly one re-validation and one after-chain
// pass — a second failure surfaces directly, with no further recovery
// attempt.
func (ex *Executor) recoverAfterOutputStage(mod *core.Module, moduleID string, executed []middleware.Middleware, inputs map[string]any, failure error, callCtx *core.Context) (map[string]any, error) {
	recovered := ex.Middleware.ExecuteOnError(executed, moduleID, inputs, failure, callCtx, ex.middlewareErrorLogger(moduleID))
	if recovered == nil {
		return nil, failure
	}

	revalidated, err := ex.validateOutput(mod, recovered)
	if err != nil {
		return nil, err
	}
	return ex.finishAfterChain(moduleID, inputs, revalidated, callCtx)
}

// Validate performs steps 1–3 then input validation only (no ACL
// check, no execution), per spec.md §4.6.
func (ex *Executor) Validate(ctx context.Context, moduleID string, inputs map[string]any, parent *core.Context, opts ...CallOption) (ValidationResult, error) {
	o := resolveCallOptions(opts)
	callCtx := ex.deriveContext(ctx, moduleID, parent, o)

	if err := ex.safetyCheck(callCtx, moduleID); err != nil {
		return ValidationResult{}, err
	}
	mod, ok := ex.Registry.Get(moduleID)
	if !ok {
		return ValidationResult{}, core.NewError(core.CodeModuleNotFound, "module not found").WithDetail("module_id", moduleID)
	}

	v, err := schema.Build(schema.Node(mod.InputSchema), schema.DefaultOptions())
	if err != nil {
		return ValidationResult{}, core.NewError(core.CodeSchemaValidation, "input schema could not be built").WithCause(err)
	}
	ok2, errs := v.Validate(inputs)
	return ValidationResult{Valid: ok2, Errors: errs}, nil
}

// prepare runs steps 1–5 (context derivation through input validation
// and redaction); the middleware before-chain (step 6) is NOT included
// here — callers of prepare run it themselves since its failure
// handling differs between Call and Stream. It returns the context, the
// resolved module, and validated+redaction-recorded inputs.
func (ex *Executor) prepare(ctx context.Context, moduleID string, inputs map[string]any, parent *core.Context, o callOptions) (*core.Context, *core.Module, map[string]any, error) {
	callCtx := ex.deriveContext(ctx, moduleID, parent, o)

	if err := ex.safetyCheck(callCtx, moduleID); err != nil {
		return nil, nil, nil, err
	}

	mod, ok := ex.Registry.Get(moduleID)
	if !ok {
		return nil, nil, nil, core.NewError(core.CodeModuleNotFound, "module not found").WithDetail("module_id", moduleID)
	}

	if ex.ACL != nil {
		// callCtx.CallerID is already "" for a root (external) call and
		// the real module id otherwise; acl.Rule's own "@external"/
		// "@system" token matching expects exactly that raw value, not a
		// transformed sentinel.
		decision := ex.ACL.Check(callCtx.CallerID, moduleID, callCtx.Identity, len(callCtx.CallChain))
		if !decision.Allowed() {
			return nil, nil, nil, core.NewError(core.CodeACLDenied, "access denied by ACL").
				WithDetail("caller_id", callCtx.CallerID).WithDetail("module_id", moduleID)
		}
	}

	validated, err := ex.validateInput(mod, inputs)
	if err != nil {
		return nil, nil, nil, err
	}
	callCtx.RedactedInputs = Redact(validated, mod.InputSchema)

	return callCtx, mod, validated, nil
}

func (ex *Executor) deriveContext(ctx context.Context, moduleID string, parent *core.Context, o callOptions) *core.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if parent != nil {
		return parent.Derive(ctx, moduleID)
	}

	root := core.NewRootContext(ctx, o.identity)
	if ex.Limits.GlobalTimeoutMS > 0 {
		// Intentionally not deferring cancel: the detached-worker design
		// (spec.md's "Timeouts with abandoned workers") means a call may
		// outlive this function's return, so the deadline itself — not an
		// explicit cancel — is what bounds the whole tree's lifetime.
		deadlineCtx, _ := context.WithTimeout(root.GoContext(), time.Duration(ex.Limits.GlobalTimeoutMS)*time.Millisecond)
		root = root.WithGoContext(deadlineCtx)
	}
	// nil: the child inherits root's go context, which carries the
	// global deadline when one is configured.
	return root.Derive(nil, moduleID)
}

// safetyCheck implements step 2: call-depth, cycle and frequency
// limits against callCtx.CallChain (which already has moduleID
// appended by Derive).
func (ex *Executor) safetyCheck(callCtx *core.Context, moduleID string) error {
	chain := callCtx.CallChain

	if len(chain) > ex.Limits.MaxCallDepth {
		return core.NewError(core.CodeCallDepthExceeded, "call chain depth exceeded").
			WithDetail("call_chain", chain).WithDetail("max_call_depth", ex.Limits.MaxCallDepth)
	}

	if len(chain) >= 2 {
		prior := chain[:len(chain)-1]
		lastIdx := -1
		for i, id := range prior {
			if id == moduleID {
				lastIdx = i
			}
		}
		// Only a cycle of length >= 2 (some other module between the two
		// occurrences) is circular; direct self-recursion is left to the
		// frequency check below.
		if lastIdx >= 0 && lastIdx < len(prior)-1 {
			cycle := append([]string(nil), chain[lastIdx:]...)
			return core.NewError(core.CodeCircularCall, "circular call detected").WithDetail("cycle", cycle)
		}
	}

	if count := callCtx.CountInChain(moduleID); count > ex.Limits.MaxModuleRepeat {
		return core.NewError(core.CodeCallFrequencyExceeded, "module called too many times in this chain").
			WithDetail("module_id", moduleID).WithDetail("count", count).WithDetail("max_module_repeat", ex.Limits.MaxModuleRepeat)
	}

	return nil
}

// validateInput implements step 5's validation half (redaction is
// applied by the caller once it has a Context to store it on).
func (ex *Executor) validateInput(mod *core.Module, inputs map[string]any) (map[string]any, error) {
	v, err := schema.Build(schema.Node(mod.InputSchema), schema.DefaultOptions())
	if err != nil {
		return nil, core.NewError(core.CodeSchemaValidation, "input schema could not be built").WithCause(err)
	}
	if ok, errs := v.Validate(inputs); !ok {
		return nil, &schema.ValidationFailedError{ModuleID: mod.ID, Errors: errs}
	}
	return deepCopyMap(inputs), nil
}

// validateOutput implements step 8.
func (ex *Executor) validateOutput(mod *core.Module, output map[string]any) (map[string]any, error) {
	v, err := schema.Build(schema.Node(mod.OutputSchema), schema.DefaultOptions())
	if err != nil {
		return nil, core.NewError(core.CodeSchemaValidation, "output schema could not be built").WithCause(err)
	}
	if ok, errs := v.Validate(output); !ok {
		return nil, &schema.ValidationFailedError{ModuleID: mod.ID, Errors: errs}
	}
	return output, nil
}

// executeWithTimeout implements step 7: run the handler on a detached
// worker, returning ModuleTimeoutError if it doesn't finish within the
// effective timeout. On timeout the handler's context is done (deadline
// exceeded), but the worker goroutine is not stopped — a handler that
// ignores its context may keep running; the framework simply stops
// waiting on it (Design Note "Timeouts with abandoned workers").
func (ex *Executor) executeWithTimeout(callCtx *core.Context, mod *core.Module, inputs map[string]any, o callOptions) (map[string]any, error) {
	timeoutMS := ex.Limits.DefaultTimeoutMS
	if o.timeoutMS != nil {
		timeoutMS = *o.timeoutMS
	}
	if timeoutMS < 0 {
		return nil, core.NewError(core.CodeInvalidInput, "timeout_ms must not be negative").WithDetail("timeout_ms", timeoutMS)
	}

	goCtx := callCtx.GoContext()

	if timeoutMS == 0 {
		ex.warnZeroTimeout.Do(func() {
			ex.logError(mod.ID, core.NewError(core.CodeInvalidInput, "timeout enforcement disabled (timeout_ms=0)"))
		})
		return mod.Handler.Execute(goCtx, callCtx, inputs)
	}

	runCtx, cancel := context.WithTimeout(goCtx, time.Duration(timeoutMS)*time.Millisecond)
	defer cancel()

	type result struct {
		out map[string]any
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: core.NewError(core.CodeInvalidInput, fmt.Sprintf("module handler panicked: %v", r))}
			}
		}()
		out, err := mod.Handler.Execute(runCtx, callCtx.WithGoContext(runCtx), inputs)
		done <- result{out: out, err: err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-runCtx.Done():
		return nil, core.NewError(core.CodeModuleTimeout, "module call timed out").
			WithDetail("module_id", mod.ID).WithDetail("timeout_ms", timeoutMS)
	}
}

func (ex *Executor) finishAfterChain(moduleID string, inputs, output map[string]any, callCtx *core.Context) (map[string]any, error) {
	final, err := ex.Middleware.ExecuteAfter(moduleID, inputs, output, callCtx)
	if err != nil {
		return nil, err
	}
	if final != nil {
		return final, nil
	}
	return output, nil
}

func (ex *Executor) logError(moduleID string, err error) {
	if ex.LogError != nil {
		ex.LogError(moduleID, err)
	}
}

// middlewareErrorLogger adapts ex.LogError to middleware.ErrorLogger's
// shape, discarding the failing middleware's identity (Executor.LogError
// is keyed by module_id, not by middleware instance). Returns nil when
// no logger is configured, which ExecuteOnError treats as "don't log".
func (ex *Executor) middlewareErrorLogger(moduleID string) middleware.ErrorLogger {
	if ex.LogError == nil {
		return nil
	}
	return func(_ middleware.Middleware, err error) {
		ex.LogError(moduleID, err)
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = deepCopyValue(el)
		}
		return out
	default:
		return t
	}
}
