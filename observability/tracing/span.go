// Package tracing implements the stack-based nested-span tracer described
// in spec.md §4.8.1: a Middleware that pushes a Span onto
// ctx.data["_tracing_spans"] in Before, pops and closes it in After/OnError,
// and exports it through a pluggable Exporter when the trace's sampling
// decision says to.
//
// Grounded on the teacher's internal/common/requestid.Generate (hex-ID
// generation from crypto/rand) for SpanID, and on core.Context's
// PushStack/PopStack (itself grounded on edgectx.RenderContext) for the
// per-trace span stack.
package tracing

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/edgecomet/apcore/core"
)

// spanStackKey is the core.Context shared-data key holding the current
// trace's span stack (spec.md §4.8.1).
const spanStackKey = "_tracing_spans"

// sampledKey holds the trace-wide sampling decision, recorded once at the
// root so every descendant span observes the same choice.
const sampledKey = "_tracing_sampled"

// Status is a Span's terminal state.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Event is a timestamped annotation recorded on a Span.
type Event struct {
	Name       string
	Time       time.Time
	Attributes map[string]any
}

// Span is one node in a call tree's trace, per spec.md §3's Span shape.
type Span struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Name         string
	StartTime    time.Time
	EndTime      time.Time
	Status       Status
	Attributes   map[string]any
	Events       []Event
}

// NewSpanID returns a 16-hex-character span id from 8 random bytes.
func NewSpanID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing is a fatal platform condition; spec.md §4.8.1
		// does not define a fallback format, so any fixed-length filler
		// that cannot collide with a real id is acceptable here.
		return "0000000000000000"
	}
	return hex.EncodeToString(b)
}

// SetAttribute records an attribute on the span.
func (s *Span) SetAttribute(key string, value any) {
	if s.Attributes == nil {
		s.Attributes = map[string]any{}
	}
	s.Attributes[key] = value
}

// AddEvent appends a timestamped event to the span.
func (s *Span) AddEvent(name string, attrs map[string]any) {
	s.Events = append(s.Events, Event{Name: name, Time: time.Now().UTC(), Attributes: attrs})
}

// pushSpan starts a child span under callCtx's current trace, using the top
// of the stack (if any) as the new span's parent, and pushes it.
func pushSpan(callCtx *core.Context, name, moduleID, callerID string) *Span {
	parentID := ""
	if top, ok := callCtx.PeekStack(spanStackKey); ok {
		if parent, ok := top.(*Span); ok {
			parentID = parent.SpanID
		}
	}
	span := &Span{
		TraceID:      callCtx.TraceID,
		SpanID:       NewSpanID(),
		ParentSpanID: parentID,
		Name:         name,
		StartTime:    time.Now().UTC(),
		Attributes:   map[string]any{"module_id": moduleID, "caller_id": callerID},
	}
	callCtx.PushStack(spanStackKey, span)
	return span
}

// popSpan removes and returns the top span of callCtx's stack, or nil if
// the stack was empty (a mismatched Before/After pair); the tracing
// Middleware's After/OnError then return without exporting anything, and
// nothing is logged.
func popSpan(callCtx *core.Context) *Span {
	top, ok := callCtx.PopStack(spanStackKey)
	if !ok {
		return nil
	}
	span, _ := top.(*Span)
	return span
}
