package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edgecomet/apcore/core"
)

func TestMiddlewareLogsLifecycle(t *testing.T) {
	base, buf := newBufferedLogger(t, FormatJSON, true)
	mw := NewMiddleware(base, true, true)

	ctx := core.NewRootContext(nil, core.Identity{}).Derive(nil, "mod.a")
	ctx.RedactedInputs = map[string]any{"password": RedactedPlaceholder}

	_, _ = mw.Before("mod.a", map[string]any{"password": "p@ss"}, ctx)
	_, _ = mw.After("mod.a", nil, map[string]any{"ok": true}, ctx)

	out := buf.String()
	assert.Contains(t, out, "Module call started")
	assert.Contains(t, out, "Module call completed")
	assert.Contains(t, out, "duration_ms")
	assert.Contains(t, out, RedactedPlaceholder)
	assert.NotContains(t, out, "p@ss")
}

func TestMiddlewareLogsFailureAtError(t *testing.T) {
	base, buf := newBufferedLogger(t, FormatJSON, false)
	mw := NewMiddleware(base, false, false)

	ctx := core.NewRootContext(nil, core.Identity{}).Derive(nil, "mod.a")
	_, _ = mw.Before("mod.a", nil, ctx)
	_, _ = mw.OnError("mod.a", nil, core.NewError(core.CodeModuleTimeout, "boom"), ctx)

	out := buf.String()
	assert.Contains(t, out, "Module call failed")
	assert.Contains(t, out, `"error_code":"MODULE_TIMEOUT"`)
}
