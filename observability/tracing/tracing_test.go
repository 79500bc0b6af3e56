package tracing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgecomet/apcore/core"
)

func TestNewSamplerValidatesStrategyAndRate(t *testing.T) {
	_, err := NewSampler("bogus", 0.5)
	require.Error(t, err)

	_, err = NewSampler(Proportional, 1.5)
	require.Error(t, err)

	s, err := NewSampler(Full, 0)
	require.NoError(t, err)
	assert.True(t, s.decide())
}

func TestSamplingInheritedAcrossSpansInOneTrace(t *testing.T) {
	s, err := NewSampler(Proportional, 1) // always-true at rate 1
	require.NoError(t, err)

	root := core.NewRootContext(nil, core.Identity{})
	first := s.sampledForTrace(root)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, s.sampledForTrace(root))
	}
}

func TestMiddlewareEmitsSpanOnAfter(t *testing.T) {
	sampler, err := NewSampler(Full, 0)
	require.NoError(t, err)
	exporter := NewInMemoryExporter(0)
	mw := NewMiddleware(sampler, exporter)

	ctx := core.NewRootContext(nil, core.Identity{}).Derive(nil, "mod.a")
	_, err = mw.Before("mod.a", nil, ctx)
	require.NoError(t, err)
	_, err = mw.After("mod.a", nil, map[string]any{"ok": true}, ctx)
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "mod.a", spans[0].Name)
	assert.Equal(t, StatusOK, spans[0].Status)
	assert.False(t, spans[0].EndTime.IsZero())
}

func TestMiddlewareErrorFirstAlwaysExportsErrors(t *testing.T) {
	sampler, err := NewSampler(ErrorFirst, 0) // rate 0: success spans never sampled
	require.NoError(t, err)
	exporter := NewInMemoryExporter(0)
	mw := NewMiddleware(sampler, exporter)

	ctx := core.NewRootContext(nil, core.Identity{}).Derive(nil, "mod.a")
	_, _ = mw.Before("mod.a", nil, ctx)
	_, _ = mw.OnError("mod.a", nil, core.NewError(core.CodeModuleTimeout, "boom"), ctx)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, StatusError, spans[0].Status)
	assert.Equal(t, core.CodeModuleTimeout, spans[0].Attributes["error_code"])
}

func TestMiddlewareMissingTopIsNoOp(t *testing.T) {
	sampler, err := NewSampler(Full, 0)
	require.NoError(t, err)
	exporter := NewInMemoryExporter(0)
	mw := NewMiddleware(sampler, exporter)

	ctx := core.NewRootContext(nil, core.Identity{}).Derive(nil, "mod.a")
	_, err = mw.After("mod.a", nil, nil, ctx)
	require.NoError(t, err)
	assert.Empty(t, exporter.GetSpans())
}

func TestInMemoryExporterEvictsOldest(t *testing.T) {
	exporter := NewInMemoryExporter(2)
	require.NoError(t, exporter.Export(&Span{SpanID: "a"}))
	require.NoError(t, exporter.Export(&Span{SpanID: "b"}))
	require.NoError(t, exporter.Export(&Span{SpanID: "c"}))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "b", spans[0].SpanID)
	assert.Equal(t, "c", spans[1].SpanID)
}

func TestParentSpanIDFromStack(t *testing.T) {
	ctx := core.NewRootContext(nil, core.Identity{})
	parent := pushSpan(ctx, "outer", "outer", "")
	child := pushSpan(ctx, "inner", "inner", "outer")
	assert.Equal(t, parent.SpanID, child.ParentSpanID)

	popped := popSpan(ctx)
	assert.Equal(t, child.SpanID, popped.SpanID)
	popped = popSpan(ctx)
	assert.Equal(t, parent.SpanID, popped.SpanID)
}
