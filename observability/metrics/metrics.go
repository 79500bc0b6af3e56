// Package metrics implements the hand-rolled MetricsCollector of spec.md
// §4.8.2: counters and histograms keyed by (name, sorted label tuple),
// manual bucket accounting, and a Prometheus text exporter.
//
// This is deliberately not built on github.com/prometheus/client_golang's
// Registry/Collector model — see DESIGN.md for why; client_golang is not a
// dependency of this module. observability/metrics/httpserver serves this
// package's own export output over fasthttp using the text-format
// content-type constant from github.com/prometheus/common/expfmt.
//
// Grounded on the teacher's internal/render/metrics.PrometheusMetrics for
// the namespaced-metric-name and convenience-wrapper shape
// (RecordRender/RecordError et al. become IncrementCalls/IncrementErrors),
// adapted from per-field prometheus.CounterVec/Histogram fields to a
// single generic, dynamically-keyed store per spec.md's contract.
package metrics

import (
	"math"
	"sort"
	"sync"
)

// DefaultBuckets are the histogram boundaries used when none are supplied
// (spec.md §4.8.2).
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0}

// Metric names used by the convenience wrappers and the Middleware.
const (
	NameCallsTotal      = "apcore_module_calls_total"
	NameErrorsTotal     = "apcore_module_errors_total"
	NameDurationSeconds = "apcore_module_duration_seconds"
)

type counterEntry struct {
	name   string
	labels map[string]string
	value  float64
}

type histogramEntry struct {
	name    string
	labels  map[string]string
	sum     float64
	count   uint64
	buckets map[float64]uint64
}

// MetricsCollector is a thread-safe, single-lock metric store: counters
// and histograms are both keyed by (name, sorted label tuple), and
// histogram bucket counts are additionally keyed by boundary.
type MetricsCollector struct {
	mu         sync.Mutex
	boundaries []float64
	counters   map[string]*counterEntry
	histograms map[string]*histogramEntry
}

// NewMetricsCollector builds an empty collector using DefaultBuckets for
// every histogram. Pass custom boundaries via NewMetricsCollectorWithBuckets
// if a deployment needs different resolution.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithBuckets(DefaultBuckets)
}

// NewMetricsCollectorWithBuckets builds a collector using the given
// histogram boundaries for every metric it observes.
func NewMetricsCollectorWithBuckets(boundaries []float64) *MetricsCollector {
	b := append([]float64(nil), boundaries...)
	sort.Float64s(b)
	return &MetricsCollector{
		boundaries: b,
		counters:   map[string]*counterEntry{},
		histograms: map[string]*histogramEntry{},
	}
}

func cloneLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

// labelKey produces the sorted, canonical tuple used as part of a metric's
// storage key — spec.md's "(name, sorted-label-tuple)".
func labelKey(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b []byte
	for _, k := range keys {
		b = append(b, k...)
		b = append(b, '=')
		b = append(b, labels[k]...)
		b = append(b, ';')
	}
	return string(b)
}

func fullKey(name string, labels map[string]string) string {
	return name + "\x00" + labelKey(labels)
}

// Increment adds amount (default 1 via IncrementCalls/IncrementErrors) to
// the counter identified by (name, labels), creating it at zero first.
func (mc *MetricsCollector) Increment(name string, labels map[string]string, amount float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	key := fullKey(name, labels)
	e, ok := mc.counters[key]
	if !ok {
		e = &counterEntry{name: name, labels: cloneLabels(labels)}
		mc.counters[key] = e
	}
	e.value += amount
}

// Observe records value against the histogram identified by (name,
// labels): every bucket whose boundary is >= value is incremented, plus
// the conventional +Inf bucket, and the sum/count are updated.
func (mc *MetricsCollector) Observe(name string, labels map[string]string, value float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	key := fullKey(name, labels)
	e, ok := mc.histograms[key]
	if !ok {
		e = &histogramEntry{name: name, labels: cloneLabels(labels), buckets: map[float64]uint64{}}
		mc.histograms[key] = e
	}
	e.sum += value
	e.count++
	for _, b := range mc.boundaries {
		if value <= b {
			e.buckets[b]++
		}
	}
	e.buckets[math.Inf(1)]++
}

// IncrementCalls is a convenience wrapper around Increment for
// apcore_module_calls_total{module_id,status}.
func (mc *MetricsCollector) IncrementCalls(moduleID, status string) {
	mc.Increment(NameCallsTotal, map[string]string{"module_id": moduleID, "status": status}, 1)
}

// IncrementErrors is a convenience wrapper around Increment for
// apcore_module_errors_total{module_id,code}.
func (mc *MetricsCollector) IncrementErrors(moduleID, code string) {
	mc.Increment(NameErrorsTotal, map[string]string{"module_id": moduleID, "code": code}, 1)
}

// ObserveDuration is a convenience wrapper around Observe for
// apcore_module_duration_seconds{module_id}.
func (mc *MetricsCollector) ObserveDuration(moduleID string, seconds float64) {
	mc.Observe(NameDurationSeconds, map[string]string{"module_id": moduleID}, seconds)
}

// Reset clears every counter and histogram.
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.counters = map[string]*counterEntry{}
	mc.histograms = map[string]*histogramEntry{}
}
