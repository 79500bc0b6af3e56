package logging

import (
	"time"

	"github.com/edgecomet/apcore/core"
)

// startsKey is the core.Context shared-data key holding the current call's
// start-time stack (spec.md §4.8.3).
const startsKey = "_obs_logging_starts"

// Middleware logs a module call's start, completion and failure through a
// base ContextLogger, deriving a per-call logger via FromContext so every
// line carries the call's trace_id/module_id/caller_id.
type Middleware struct {
	Base       *ContextLogger
	LogInputs  bool
	LogOutputs bool
}

// NewMiddleware builds a logging middleware over base.
func NewMiddleware(base *ContextLogger, logInputs, logOutputs bool) *Middleware {
	return &Middleware{Base: base, LogInputs: logInputs, LogOutputs: logOutputs}
}

func (m *Middleware) Before(moduleID string, inputs map[string]any, ctx *core.Context) (map[string]any, error) {
	ctx.PushStack(startsKey, time.Now())

	extra := map[string]any{}
	if m.LogInputs {
		extra["inputs"] = loggedInputs(inputs, ctx)
	}
	m.Base.FromContext(ctx, moduleID).Info("Module call started", extra)
	return nil, nil
}

func (m *Middleware) After(moduleID string, inputs, output map[string]any, ctx *core.Context) (map[string]any, error) {
	extra := map[string]any{"duration_ms": popDurationMS(ctx)}
	if m.LogOutputs {
		extra["outputs"] = output
	}
	m.Base.FromContext(ctx, moduleID).Info("Module call completed", extra)
	return nil, nil
}

func (m *Middleware) OnError(moduleID string, inputs map[string]any, callErr error, ctx *core.Context) (map[string]any, error) {
	extra := map[string]any{
		"duration_ms": popDurationMS(ctx),
		"error":       callErr.Error(),
		"error_code":  core.CodeOf(callErr),
	}
	m.Base.FromContext(ctx, moduleID).Error("Module call failed", extra)
	return nil, nil
}

// loggedInputs prefers ctx.RedactedInputs (populated at step 5 of the call
// pipeline) over raw inputs, per spec.md §4.8.3.
func loggedInputs(inputs map[string]any, ctx *core.Context) map[string]any {
	if ctx.RedactedInputs != nil {
		return ctx.RedactedInputs
	}
	return inputs
}

func popDurationMS(ctx *core.Context) float64 {
	top, ok := ctx.PopStack(startsKey)
	if !ok {
		return 0
	}
	start, ok := top.(time.Time)
	if !ok {
		return 0
	}
	return float64(time.Since(start).Microseconds()) / 1000.0
}
