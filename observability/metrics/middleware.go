package metrics

import (
	"reflect"
	"time"

	"github.com/edgecomet/apcore/core"
)

// startsKey is the core.Context shared-data key holding the current call's
// start-time stack (spec.md §4.8.2).
const startsKey = "_metrics_starts"

// Middleware records call counts, error counts and durations for every
// module call via a MetricsCollector.
type Middleware struct {
	Collector *MetricsCollector
}

// NewMiddleware builds a metrics middleware backed by collector.
func NewMiddleware(collector *MetricsCollector) *Middleware {
	return &Middleware{Collector: collector}
}

func (m *Middleware) Before(moduleID string, inputs map[string]any, ctx *core.Context) (map[string]any, error) {
	ctx.PushStack(startsKey, time.Now())
	return nil, nil
}

func (m *Middleware) After(moduleID string, inputs, output map[string]any, ctx *core.Context) (map[string]any, error) {
	dur := popDuration(ctx)
	m.Collector.IncrementCalls(moduleID, "success")
	m.Collector.ObserveDuration(moduleID, dur)
	return nil, nil
}

func (m *Middleware) OnError(moduleID string, inputs map[string]any, callErr error, ctx *core.Context) (map[string]any, error) {
	dur := popDuration(ctx)
	m.Collector.IncrementCalls(moduleID, "error")
	m.Collector.ObserveDuration(moduleID, dur)

	code := core.CodeOf(callErr)
	if code == "" {
		code = typeName(callErr)
	}
	m.Collector.IncrementErrors(moduleID, code)
	return nil, nil
}

func popDuration(ctx *core.Context) float64 {
	top, ok := ctx.PopStack(startsKey)
	if !ok {
		return 0
	}
	start, ok := top.(time.Time)
	if !ok {
		return 0
	}
	return time.Since(start).Seconds()
}

// typeName names the concrete error type when it carries no stable Code.
func typeName(err error) string {
	if err == nil {
		return ""
	}
	t := reflect.TypeOf(err)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
