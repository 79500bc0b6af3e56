package tracing

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/edgecomet/apcore/core"
)

// fixedIDGenerator forces the SDK's Tracer.Start to mint the exact
// trace/span id pair configured on it, so an apcore Span's own ids survive
// the round trip through otel's span model. It is swapped under
// OTLPExporter.mu immediately before each Start call.
type fixedIDGenerator struct {
	traceID trace.TraceID
	spanID  trace.SpanID
}

func (g *fixedIDGenerator) NewIDs(context.Context) (trace.TraceID, trace.SpanID) {
	return g.traceID, g.spanID
}

func (g *fixedIDGenerator) NewSpanID(context.Context, trace.TraceID) trace.SpanID {
	return g.spanID
}

// OTLPExporter adapts apcore Spans onto an externally supplied
// sdktrace.SpanExporter (typically built with otlptracegrpc/otlptracehttp
// by the embedding application). NewOTLPExporter rejects a nil upstream
// exporter with a clear configuration error rather than letting it panic
// deep in export.
type OTLPExporter struct {
	mu       sync.Mutex
	idGen    *fixedIDGenerator
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewOTLPExporter wraps exporter in a TracerProvider configured with a
// batcher, ready to replay apcore Spans onto it.
func NewOTLPExporter(exporter sdktrace.SpanExporter) (*OTLPExporter, error) {
	if exporter == nil {
		return nil, core.NewError(core.CodeConfigError, "tracing: OTLP exporter requires a non-nil sdktrace.SpanExporter (build one with otlptracegrpc or otlptracehttp)")
	}
	idGen := &fixedIDGenerator{}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithIDGenerator(idGen),
	)
	return &OTLPExporter{
		idGen:    idGen,
		provider: provider,
		tracer:   provider.Tracer("github.com/edgecomet/apcore"),
	}, nil
}

// parseTraceID accepts either a plain 32-hex-char id or a dashed UUID v4
// string (apcore's Context.TraceID format) and decodes it to otel's
// 16-byte TraceID.
func parseTraceID(s string) (trace.TraceID, error) {
	b, err := hex.DecodeString(strings.ReplaceAll(s, "-", ""))
	if err != nil || len(b) != 16 {
		return trace.TraceID{}, core.NewError(core.CodeInvalidInput, "tracing: malformed trace id").WithDetail("trace_id", s)
	}
	var id trace.TraceID
	copy(id[:], b)
	return id, nil
}

func parseSpanID(s string) (trace.SpanID, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 8 {
		return trace.SpanID{}, core.NewError(core.CodeInvalidInput, "tracing: malformed span id").WithDetail("span_id", s)
	}
	var id trace.SpanID
	copy(id[:], b)
	return id, nil
}

// Export replays span onto the underlying OTLP exporter: apcore attributes
// are copied on, every value as an otel string attribute (non-string values
// are formatted with %v, so numbers and booleans do not keep their otel
// type), status is mapped, and events are replayed in order.
func (o *OTLPExporter) Export(span *Span) error {
	traceID, err := parseTraceID(span.TraceID)
	if err != nil {
		// A trace id that is neither 32 hex characters nor a dashed UUID
		// is rejected and the span is not exported, so malformed input
		// never reaches the SDK.
		return err
	}
	spanID, err := parseSpanID(span.SpanID)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if span.ParentSpanID != "" {
		if parentSpanID, perr := parseSpanID(span.ParentSpanID); perr == nil {
			parentSC := trace.NewSpanContext(trace.SpanContextConfig{
				TraceID:    traceID,
				SpanID:     parentSpanID,
				TraceFlags: trace.FlagsSampled,
			})
			ctx = trace.ContextWithSpanContext(ctx, parentSC)
		}
	}

	o.mu.Lock()
	o.idGen.traceID = traceID
	o.idGen.spanID = spanID
	_, otelSpan := o.tracer.Start(ctx, span.Name, trace.WithTimestamp(span.StartTime))
	o.mu.Unlock()

	attrs := make([]attribute.KeyValue, 0, len(span.Attributes)+3)
	attrs = append(attrs,
		attribute.String("apcore.trace_id", span.TraceID),
		attribute.String("apcore.span_id", span.SpanID),
	)
	if span.ParentSpanID != "" {
		attrs = append(attrs, attribute.String("apcore.parent_span_id", span.ParentSpanID))
	}
	for k, v := range span.Attributes {
		attrs = append(attrs, attribute.String(k, stringifyAttr(v)))
	}
	otelSpan.SetAttributes(attrs...)

	for _, ev := range span.Events {
		evAttrs := make([]attribute.KeyValue, 0, len(ev.Attributes))
		for k, v := range ev.Attributes {
			evAttrs = append(evAttrs, attribute.String(k, stringifyAttr(v)))
		}
		otelSpan.AddEvent(ev.Name, trace.WithTimestamp(ev.Time), trace.WithAttributes(evAttrs...))
	}

	switch span.Status {
	case StatusError:
		otelSpan.SetStatus(codes.Error, "")
	default:
		otelSpan.SetStatus(codes.Ok, "")
	}

	otelSpan.End(trace.WithTimestamp(span.EndTime))
	return nil
}

// Shutdown flushes and closes the underlying TracerProvider.
func (o *OTLPExporter) Shutdown(ctx context.Context) error {
	return o.provider.Shutdown(ctx)
}

func stringifyAttr(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}
