package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgecomet/apcore/acl"
	"github.com/edgecomet/apcore/core"
	"github.com/edgecomet/apcore/middleware"
	"github.com/edgecomet/apcore/registry"
)

func echoModule(id string) *core.Module {
	return &core.Module{
		ID:           id,
		Description:  "echoes its input",
		InputSchema:  map[string]any{"type": "object", "properties": map[string]any{"x": map[string]any{"type": "string"}}, "required": []interface{}{"x"}},
		OutputSchema: map[string]any{"type": "object"},
		Handler: core.HandlerFunc(func(_ context.Context, _ *core.Context, in map[string]any) (map[string]any, error) {
			return in, nil
		}),
	}
}

func newStoreWith(mods ...*core.Module) *registry.Store {
	s := registry.New()
	for _, m := range mods {
		if err := s.Register(m, nil); err != nil {
			panic(err)
		}
	}
	return s
}

func TestCallHappyPath(t *testing.T) {
	ex := New(newStoreWith(echoModule("mod.a")), nil, nil, nil)
	out, err := ex.Call(context.Background(), "mod.a", map[string]any{"x": "hi"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", out["x"])
}

func TestCallModuleNotFound(t *testing.T) {
	ex := New(registry.New(), nil, nil, nil)
	_, err := ex.Call(context.Background(), "mod.missing", nil, nil)
	require.Error(t, err)
	assert.Equal(t, core.CodeModuleNotFound, core.CodeOf(err))
}

func TestCallInputValidationFailure(t *testing.T) {
	ex := New(newStoreWith(echoModule("mod.a")), nil, nil, nil)
	_, err := ex.Call(context.Background(), "mod.a", map[string]any{}, nil)
	require.Error(t, err)
	assert.Equal(t, core.CodeSchemaValidation, core.CodeOf(err))
}

func TestCallACLDenied(t *testing.T) {
	a := acl.New(acl.Deny, nil)
	ex := New(newStoreWith(echoModule("mod.a")), nil, a, nil)
	_, err := ex.Call(context.Background(), "mod.a", map[string]any{"x": "hi"}, nil)
	require.Error(t, err)
	assert.Equal(t, core.CodeACLDenied, core.CodeOf(err))
}

func TestCallACLAllowedByRule(t *testing.T) {
	rule := &acl.Rule{Callers: []string{"@external"}, Targets: []string{"mod.*"}, Effect: acl.Allow}
	a := acl.New(acl.Deny, []*acl.Rule{rule})
	ex := New(newStoreWith(echoModule("mod.a")), nil, a, nil)
	_, err := ex.Call(context.Background(), "mod.a", map[string]any{"x": "hi"}, nil)
	require.NoError(t, err)
}

func TestCallDepthExceeded(t *testing.T) {
	ex := New(newStoreWith(echoModule("mod.a")), nil, nil, nil)
	ex.Limits.MaxCallDepth = 1

	root := core.NewRootContext(context.Background(), core.Identity{})
	parent := root.Derive(context.Background(), "mod.outer")

	_, err := ex.Call(context.Background(), "mod.a", map[string]any{"x": "hi"}, parent)
	require.Error(t, err)
	assert.Equal(t, core.CodeCallDepthExceeded, core.CodeOf(err))
}

func TestCallCircularCallDetected(t *testing.T) {
	ex := New(newStoreWith(echoModule("mod.a")), nil, nil, nil)

	root := core.NewRootContext(context.Background(), core.Identity{})
	parent := root.Derive(context.Background(), "mod.a")
	parent = parent.Derive(context.Background(), "mod.b")

	_, err := ex.Call(context.Background(), "mod.a", map[string]any{"x": "hi"}, parent)
	require.Error(t, err)
	assert.Equal(t, core.CodeCircularCall, core.CodeOf(err))
}

func TestCallFrequencyExceeded(t *testing.T) {
	ex := New(newStoreWith(echoModule("mod.a")), nil, nil, nil)
	ex.Limits.MaxModuleRepeat = 2

	ctx := context.Background()
	parent := core.NewRootContext(ctx, core.Identity{})
	for i := 0; i < 2; i++ {
		parent = parent.Derive(ctx, "mod.a")
	}

	_, err := ex.Call(ctx, "mod.a", map[string]any{"x": "hi"}, parent)
	require.Error(t, err)
	assert.Equal(t, core.CodeCallFrequencyExceeded, core.CodeOf(err))
}

func TestCallTimeout(t *testing.T) {
	slow := &core.Module{
		ID:           "mod.slow",
		InputSchema:  map[string]any{"type": "object"},
		OutputSchema: map[string]any{"type": "object"},
		Handler: core.HandlerFunc(func(ctx context.Context, _ *core.Context, in map[string]any) (map[string]any, error) {
			select {
			case <-time.After(200 * time.Millisecond):
				return in, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}),
	}
	ex := New(newStoreWith(slow), nil, nil, nil)
	_, err := ex.Call(context.Background(), "mod.slow", nil, nil, WithTimeoutMS(10))
	require.Error(t, err)
	assert.Equal(t, core.CodeModuleTimeout, core.CodeOf(err))
}

func TestCallNegativeTimeoutRejected(t *testing.T) {
	ex := New(newStoreWith(echoModule("mod.a")), nil, nil, nil)
	_, err := ex.Call(context.Background(), "mod.a", map[string]any{"x": "hi"}, nil, WithTimeoutMS(-1))
	require.Error(t, err)
	assert.Equal(t, core.CodeInvalidInput, core.CodeOf(err))
}

func TestCallOutputValidationFailure(t *testing.T) {
	strict := &core.Module{
		ID:           "mod.strict",
		InputSchema:  map[string]any{"type": "object"},
		OutputSchema: map[string]any{"type": "object", "properties": map[string]any{"y": map[string]any{"type": "string"}}, "required": []interface{}{"y"}},
		Handler: core.HandlerFunc(func(_ context.Context, _ *core.Context, in map[string]any) (map[string]any, error) {
			return map[string]any{}, nil
		}),
	}
	ex := New(newStoreWith(strict), nil, nil, nil)
	_, err := ex.Call(context.Background(), "mod.strict", nil, nil)
	require.Error(t, err)
	assert.Equal(t, core.CodeSchemaValidation, core.CodeOf(err))
}

type failingBefore struct {
	middleware.Base
}

func (failingBefore) Before(string, map[string]any, *core.Context) (map[string]any, error) {
	return nil, assert.AnError
}

type recoveringOnError struct {
	middleware.Base
	recovery map[string]any
}

func (m recoveringOnError) OnError(string, map[string]any, error, *core.Context) (map[string]any, error) {
	return m.recovery, nil
}

func TestCallBeforeChainFailureWithoutRecoveryPropagates(t *testing.T) {
	mgr := middleware.NewManager()
	mgr.Add(failingBefore{})
	ex := New(newStoreWith(echoModule("mod.a")), mgr, nil, nil)

	_, err := ex.Call(context.Background(), "mod.a", map[string]any{"x": "hi"}, nil)
	require.Error(t, err)
	assert.Equal(t, core.CodeMiddlewareChain, core.CodeOf(err))
}

func TestCallBeforeChainFailureRecoveredShortCircuitsToAfterChain(t *testing.T) {
	mgr := middleware.NewManager()
	recoverer := recoveringOnError{recovery: map[string]any{"recovered": true}}
	mgr.Add(recoverer)
	mgr.Add(failingBefore{})
	ex := New(newStoreWith(echoModule("mod.a")), mgr, nil, nil)

	out, err := ex.Call(context.Background(), "mod.a", map[string]any{"x": "hi"}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"recovered": true}, out)
}

func TestCallHandlerErrorRecoveredByOnError(t *testing.T) {
	failing := &core.Module{
		ID:           "mod.fails",
		InputSchema:  map[string]any{"type": "object"},
		OutputSchema: map[string]any{"type": "object"},
		Handler: core.HandlerFunc(func(_ context.Context, _ *core.Context, in map[string]any) (map[string]any, error) {
			return nil, assert.AnError
		}),
	}
	mgr := middleware.NewManager()
	mgr.Add(recoveringOnError{recovery: map[string]any{"ok": true}})
	ex := New(newStoreWith(failing), mgr, nil, nil)

	out, err := ex.Call(context.Background(), "mod.fails", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, out)
}

func TestValidateSkipsACLAndReturnsStructuredResult(t *testing.T) {
	a := acl.New(acl.Deny, nil) // would deny every call
	ex := New(newStoreWith(echoModule("mod.a")), nil, a, nil)

	result, err := ex.Validate(context.Background(), "mod.a", map[string]any{})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Errors)

	result, err = ex.Validate(context.Background(), "mod.a", map[string]any{"x": "hi"})
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestRedactDoesNotMutateOriginal(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"password": map[string]any{"type": "string", "x-sensitive": true},
			"name":     map[string]any{"type": "string"},
		},
	}
	data := map[string]any{"password": "hunter2", "name": "ada", "_secret_token": "abc"}
	redacted := Redact(data, schema)

	assert.Equal(t, RedactedPlaceholder, redacted["password"])
	assert.Equal(t, "ada", redacted["name"])
	assert.Equal(t, RedactedPlaceholder, redacted["_secret_token"])
	assert.Equal(t, "hunter2", data["password"], "original must be untouched")
}
