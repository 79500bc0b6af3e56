package tracing

import (
	"reflect"
	"time"

	"github.com/edgecomet/apcore/core"
)

func nowUTC() time.Time { return time.Now().UTC() }

// typeName names the concrete error type when it carries no stable Code,
// e.g. for errors produced outside the core.Error taxonomy.
func typeName(err error) string {
	t := reflect.TypeOf(err)
	if t == nil {
		return ""
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Middleware implements middleware.Middleware, creating a span in Before
// and closing it in After/OnError per spec.md §4.8.1. Embed no Base: every
// hook is meaningful here.
type Middleware struct {
	Sampler       *Sampler
	Exporter      Exporter
	OnExportError func(err error)
}

// NewMiddleware builds a tracing middleware from a validated Sampler and an
// Exporter. Both must be non-nil.
func NewMiddleware(sampler *Sampler, exporter Exporter) *Middleware {
	return &Middleware{Sampler: sampler, Exporter: exporter}
}

func (m *Middleware) Before(moduleID string, inputs map[string]any, ctx *core.Context) (map[string]any, error) {
	pushSpan(ctx, moduleID, moduleID, ctx.CallerID)
	return nil, nil
}

func (m *Middleware) After(moduleID string, inputs, output map[string]any, ctx *core.Context) (map[string]any, error) {
	span := popSpan(ctx)
	if span == nil {
		return nil, nil
	}
	span.Status = StatusOK
	m.closeSpan(span, ctx)
	return nil, nil
}

func (m *Middleware) OnError(moduleID string, inputs map[string]any, callErr error, ctx *core.Context) (map[string]any, error) {
	span := popSpan(ctx)
	if span == nil {
		return nil, nil
	}
	span.Status = StatusError
	span.SetAttribute("error_code", core.CodeOf(callErr))
	span.SetAttribute("error_type", errorTypeName(callErr))
	m.closeSpan(span, ctx)
	return nil, nil
}

func (m *Middleware) closeSpan(span *Span, ctx *core.Context) {
	span.EndTime = nowUTC()
	sampled := m.Sampler.sampledForTrace(ctx)
	if !sampled && span.Status == StatusError && m.Sampler.shouldExportError() {
		sampled = true
	}
	if !sampled {
		return
	}
	if err := m.Exporter.Export(span); err != nil && m.OnExportError != nil {
		m.OnExportError(err)
	}
}

func errorTypeName(err error) string {
	if err == nil {
		return ""
	}
	return typeName(err)
}
