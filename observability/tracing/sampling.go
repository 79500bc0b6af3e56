package tracing

import (
	"math/rand"

	"github.com/edgecomet/apcore/core"
)

// Strategy selects which traces get exported, per spec.md §4.8.1.
type Strategy string

const (
	// Full samples every trace.
	Full Strategy = "full"
	// Off samples no trace.
	Off Strategy = "off"
	// Proportional samples a random fraction of traces at Rate.
	Proportional Strategy = "proportional"
	// ErrorFirst behaves like Proportional for successful spans, but
	// always exports spans that end in error.
	ErrorFirst Strategy = "error_first"
)

// Sampler decides, once per trace, whether that trace's spans are exported.
type Sampler struct {
	Strategy Strategy
	Rate     float64
}

// NewSampler validates strategy and rate and builds a Sampler.
func NewSampler(strategy Strategy, rate float64) (*Sampler, error) {
	switch strategy {
	case Full, Off, Proportional, ErrorFirst:
	default:
		return nil, core.NewError(core.CodeInvalidInput, "tracing: unknown sampling strategy").WithDetail("strategy", string(strategy))
	}
	if rate < 0 || rate > 1 {
		return nil, core.NewError(core.CodeInvalidInput, "tracing: sampling rate must be in [0,1]").WithDetail("rate", rate)
	}
	return &Sampler{Strategy: strategy, Rate: rate}, nil
}

// decide makes the once-per-trace sampling decision for a success path.
func (s *Sampler) decide() bool {
	switch s.Strategy {
	case Full:
		return true
	case Off:
		return false
	case Proportional, ErrorFirst:
		return rand.Float64() < s.Rate
	default:
		return false
	}
}

// sampledForTrace returns the trace-wide decision recorded at the root,
// making it (and recording it) if this is the first span of the trace.
func (s *Sampler) sampledForTrace(callCtx *core.Context) bool {
	if v, ok := callCtx.Get(sampledKey); ok {
		if sampled, ok := v.(bool); ok {
			return sampled
		}
	}
	sampled := s.decide()
	callCtx.Set(sampledKey, sampled)
	return sampled
}

// shouldExportError reports whether an error-terminated span should export
// even when the trace-wide decision was "not sampled" — true only for
// error_first.
func (s *Sampler) shouldExportError() bool {
	return s.Strategy == ErrorFirst
}
