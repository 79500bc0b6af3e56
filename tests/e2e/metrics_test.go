package e2e

import (
	"context"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/edgecomet/apcore/core"
	"github.com/edgecomet/apcore/executor"
	"github.com/edgecomet/apcore/middleware"
	"github.com/edgecomet/apcore/observability/metrics"
	"github.com/edgecomet/apcore/registry"
)

var _ = Describe("Prometheus export driven by real calls", func() {
	It("records calls and durations through the metrics middleware, not a direct collector call", func() {
		store := registry.New()
		noop := &core.Module{
			ID:           "mod.x",
			InputSchema:  objectSchema(nil),
			OutputSchema: objectSchema(nil),
			Handler: core.HandlerFunc(func(_ context.Context, _ *core.Context, _ map[string]any) (map[string]any, error) {
				return map[string]any{}, nil
			}),
		}
		Expect(store.Register(noop, nil)).To(Succeed())

		collector := metrics.NewMetricsCollector()
		mgr := middleware.NewManager()
		mgr.Add(metrics.NewMiddleware(collector))

		ex := executor.New(store, mgr, nil, nil)
		_, err := ex.Call(context.Background(), "mod.x", map[string]any{}, nil)
		Expect(err).NotTo(HaveOccurred())
		_, err = ex.Call(context.Background(), "mod.x", map[string]any{}, nil)
		Expect(err).NotTo(HaveOccurred())

		out := collector.ExportPrometheus()
		Expect(out).To(ContainSubstring(`apcore_module_calls_total{module_id="mod.x",status="success"} 2`))
		Expect(strings.Contains(out, `apcore_module_duration_seconds_bucket{module_id="mod.x",le="0.05"}`)).To(BeTrue())
		Expect(out).To(ContainSubstring(`apcore_module_duration_seconds_bucket{module_id="mod.x",le="+Inf"}`))
	})
})
