package executor

import "github.com/edgecomet/apcore/core"

// Default pipeline limits, per spec.md §4.6.
const (
	DefaultTimeoutMS    = 30000
	DefaultGlobalTimeoutMS = 60000
	DefaultMaxCallDepth    = 32
	DefaultMaxModuleRepeat = 3
)

// Limits bounds one Executor's pipeline: per-call and whole-tree
// timeouts, and the two cycle/repetition safety checks of step 2.
type Limits struct {
	DefaultTimeoutMS int
	GlobalTimeoutMS  int
	MaxCallDepth     int
	MaxModuleRepeat  int
}

// DefaultLimits returns the spec's default knob values.
func DefaultLimits() Limits {
	return Limits{
		DefaultTimeoutMS: DefaultTimeoutMS,
		GlobalTimeoutMS:  DefaultGlobalTimeoutMS,
		MaxCallDepth:     DefaultMaxCallDepth,
		MaxModuleRepeat:  DefaultMaxModuleRepeat,
	}
}

// limitsFromConfig reads executor.* dot-paths, falling back to
// DefaultLimits for anything absent — the same config-driven-with-
// defaults idiom the teacher uses throughout internal/common/config.
// cfg may be nil (core.Config's accessors are nil-receiver safe).
func limitsFromConfig(cfg *core.Config) Limits {
	d := DefaultLimits()
	return Limits{
		DefaultTimeoutMS: cfg.GetInt("executor.default_timeout_ms", d.DefaultTimeoutMS),
		GlobalTimeoutMS:  cfg.GetInt("executor.global_timeout_ms", d.GlobalTimeoutMS),
		MaxCallDepth:     cfg.GetInt("executor.max_call_depth", d.MaxCallDepth),
		MaxModuleRepeat:  cfg.GetInt("executor.max_module_repeat", d.MaxModuleRepeat),
	}
}
