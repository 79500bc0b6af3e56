package metrics

// CounterSample is one counter series, captured by Snapshot.
type CounterSample struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// HistogramSample is one histogram series, captured by Snapshot. Buckets
// maps boundary (math.Inf(1) for the conventional +Inf bucket) to its
// cumulative count.
type HistogramSample struct {
	Name    string
	Labels  map[string]string
	Sum     float64
	Count   uint64
	Buckets map[float64]uint64
}

// Snapshot is a deep-copied view of a MetricsCollector's current state.
type Snapshot struct {
	Counters   []CounterSample
	Histograms []HistogramSample
}

// Snapshot returns a deep copy of the collector's current counters and
// histograms, safe to read or retain without further locking.
func (mc *MetricsCollector) Snapshot() Snapshot {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	snap := Snapshot{
		Counters:   make([]CounterSample, 0, len(mc.counters)),
		Histograms: make([]HistogramSample, 0, len(mc.histograms)),
	}
	for _, e := range mc.counters {
		snap.Counters = append(snap.Counters, CounterSample{Name: e.name, Labels: cloneLabels(e.labels), Value: e.value})
	}
	for _, e := range mc.histograms {
		buckets := make(map[float64]uint64, len(e.buckets))
		for b, c := range e.buckets {
			buckets[b] = c
		}
		snap.Histograms = append(snap.Histograms, HistogramSample{
			Name: e.name, Labels: cloneLabels(e.labels), Sum: e.sum, Count: e.count, Buckets: buckets,
		})
	}
	return snap
}
