package metrics

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

var helpText = map[string]string{
	NameCallsTotal:      "Total number of module calls",
	NameErrorsTotal:     "Total number of module call errors",
	NameDurationSeconds: "Module call duration in seconds",
}

func helpFor(name string) string {
	if h, ok := helpText[name]; ok {
		return h
	}
	return "apcore metric " + name
}

// ExportPrometheus renders the collector's current state in the standard
// Prometheus text exposition format: # HELP / # TYPE headers per metric
// name, labels sorted alphabetically except a histogram's le label, which
// is always emitted last (spec.md §4.8.2).
func (mc *MetricsCollector) ExportPrometheus() string {
	snap := mc.Snapshot()

	countersByName := map[string][]CounterSample{}
	for _, c := range snap.Counters {
		countersByName[c.Name] = append(countersByName[c.Name], c)
	}
	histogramsByName := map[string][]HistogramSample{}
	for _, h := range snap.Histograms {
		histogramsByName[h.Name] = append(histogramsByName[h.Name], h)
	}

	seen := map[string]bool{}
	names := make([]string, 0, len(countersByName)+len(histogramsByName))
	for n := range countersByName {
		if !seen[n] {
			names = append(names, n)
			seen[n] = true
		}
	}
	for n := range histogramsByName {
		if !seen[n] {
			names = append(names, n)
			seen[n] = true
		}
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		if counters, ok := countersByName[name]; ok {
			sort.Slice(counters, func(i, j int) bool { return labelKey(counters[i].Labels) < labelKey(counters[j].Labels) })
			fmt.Fprintf(&b, "# HELP %s %s\n", name, helpFor(name))
			fmt.Fprintf(&b, "# TYPE %s counter\n", name)
			for _, c := range counters {
				fmt.Fprintf(&b, "%s%s %s\n", name, formatLabels(c.Labels, ""), formatFloat(c.Value))
			}
		}
		if histograms, ok := histogramsByName[name]; ok {
			sort.Slice(histograms, func(i, j int) bool { return labelKey(histograms[i].Labels) < labelKey(histograms[j].Labels) })
			fmt.Fprintf(&b, "# HELP %s %s\n", name, helpFor(name))
			fmt.Fprintf(&b, "# TYPE %s histogram\n", name)
			for _, h := range histograms {
				boundaries := make([]float64, 0, len(h.Buckets))
				for bnd := range h.Buckets {
					boundaries = append(boundaries, bnd)
				}
				sort.Float64s(boundaries)
				for _, bnd := range boundaries {
					fmt.Fprintf(&b, "%s_bucket%s %d\n", name, formatLabels(h.Labels, leString(bnd)), h.Buckets[bnd])
				}
				fmt.Fprintf(&b, "%s_sum%s %s\n", name, formatLabels(h.Labels, ""), formatFloat(h.Sum))
				fmt.Fprintf(&b, "%s_count%s %s\n", name, formatLabels(h.Labels, ""), strconv.FormatUint(h.Count, 10))
			}
		}
	}
	return b.String()
}

// formatLabels renders a Prometheus label set. When le is non-empty it is
// appended as the final label regardless of its own alphabetical position,
// per spec.md's "le emitted last" rule.
func formatLabels(labels map[string]string, le string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, labels[k]))
	}
	if le != "" {
		parts = append(parts, fmt.Sprintf("le=%q", le))
	}
	if len(parts) == 0 {
		return ""
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func leString(boundary float64) string {
	if math.IsInf(boundary, 1) {
		return "+Inf"
	}
	return strconv.FormatFloat(boundary, 'g', -1, 64)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
