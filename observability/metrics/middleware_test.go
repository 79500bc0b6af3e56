package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgecomet/apcore/core"
)

func TestMiddlewareRecordsSuccessAndDuration(t *testing.T) {
	mc := NewMetricsCollector()
	mw := NewMiddleware(mc)
	ctx := core.NewRootContext(nil, core.Identity{})

	_, err := mw.Before("mod.a", nil, ctx)
	require.NoError(t, err)
	_, err = mw.After("mod.a", nil, nil, ctx)
	require.NoError(t, err)

	snap := mc.Snapshot()
	require.Len(t, snap.Counters, 1)
	assert.Equal(t, "success", snap.Counters[0].Labels["status"])
	require.Len(t, snap.Histograms, 1)
}

func TestMiddlewareRecordsErrorAndErrorCode(t *testing.T) {
	mc := NewMetricsCollector()
	mw := NewMiddleware(mc)
	ctx := core.NewRootContext(nil, core.Identity{})

	_, _ = mw.Before("mod.a", nil, ctx)
	_, _ = mw.OnError("mod.a", nil, core.NewError(core.CodeModuleTimeout, "boom"), ctx)

	snap := mc.Snapshot()
	var sawErrorCounter, sawErrorsTotal bool
	for _, c := range snap.Counters {
		if c.Name == NameCallsTotal && c.Labels["status"] == "error" {
			sawErrorCounter = true
		}
		if c.Name == NameErrorsTotal && c.Labels["code"] == core.CodeModuleTimeout {
			sawErrorsTotal = true
		}
	}
	assert.True(t, sawErrorCounter)
	assert.True(t, sawErrorsTotal)
}
