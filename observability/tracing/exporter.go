package tracing

import (
	"encoding/json"
	"io"
	"sync"
)

// Exporter ships a finished Span somewhere (stdout, an in-memory ring for
// tests, an OTLP collector). Export is called once per span, after it has
// been popped off its context's stack.
type Exporter interface {
	Export(span *Span) error
}

type spanJSON struct {
	TraceID      string         `json:"trace_id"`
	SpanID       string         `json:"span_id"`
	ParentSpanID string         `json:"parent_span_id,omitempty"`
	Name         string         `json:"name"`
	StartTime    string         `json:"start_time"`
	EndTime      string         `json:"end_time"`
	Status       Status         `json:"status"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	Events       []Event        `json:"events,omitempty"`
}

func toJSON(span *Span) spanJSON {
	return spanJSON{
		TraceID:      span.TraceID,
		SpanID:       span.SpanID,
		ParentSpanID: span.ParentSpanID,
		Name:         span.Name,
		StartTime:    span.StartTime.Format("2006-01-02T15:04:05.000Z07:00"),
		EndTime:      span.EndTime.Format("2006-01-02T15:04:05.000Z07:00"),
		Status:       span.Status,
		Attributes:   span.Attributes,
		Events:       span.Events,
	}
}

// StdoutExporter writes one JSON object per line to an io.Writer (spec.md
// §6's "Stdout span exporter" on-the-wire format).
type StdoutExporter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdoutExporter builds an exporter writing to w.
func NewStdoutExporter(w io.Writer) *StdoutExporter {
	return &StdoutExporter{w: w}
}

func (e *StdoutExporter) Export(span *Span) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	enc := json.NewEncoder(e.w)
	return enc.Encode(toJSON(span))
}

// DefaultMaxSpans is the default InMemoryExporter ring capacity.
const DefaultMaxSpans = 10000

// InMemoryExporter is a thread-safe bounded ring buffer of spans, for tests
// and local inspection. When full, the oldest span is evicted.
type InMemoryExporter struct {
	mu       sync.Mutex
	maxSpans int
	spans    []*Span
}

// NewInMemoryExporter builds a ring with the given capacity; maxSpans <= 0
// falls back to DefaultMaxSpans.
func NewInMemoryExporter(maxSpans int) *InMemoryExporter {
	if maxSpans <= 0 {
		maxSpans = DefaultMaxSpans
	}
	return &InMemoryExporter{maxSpans: maxSpans}
}

func (e *InMemoryExporter) Export(span *Span) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spans = append(e.spans, span)
	if len(e.spans) > e.maxSpans {
		e.spans = e.spans[len(e.spans)-e.maxSpans:]
	}
	return nil
}

// GetSpans returns a copy of the currently retained spans, oldest first.
func (e *InMemoryExporter) GetSpans() []*Span {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Span, len(e.spans))
	copy(out, e.spans)
	return out
}

// Clear empties the ring.
func (e *InMemoryExporter) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spans = nil
}
