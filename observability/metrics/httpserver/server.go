// Package httpserver exposes a MetricsCollector's Prometheus text output
// over a dedicated fasthttp server, for embedders who want a pull-based
// endpoint without wiring their own HTTP stack.
//
// Grounded directly on the teacher's internal/common/metricsserver.StartMetricsServer
// (metrics always run on their own port and path, a *fasthttp.Server built
// with the same timeout/keepalive knobs, started in a goroutine, nil
// returned when disabled). The one substitution: the handler serves
// MetricsCollector.ExportPrometheus's hand-rolled text output instead of a
// promhttp.Handler, using prometheus/common's expfmt text content-type
// constant so scrapers still see the conventional media type.
package httpserver

import (
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/apcore/observability/metrics"
)

// StartServer starts a fasthttp server dedicated to exposing collector's
// Prometheus text output at path. Returns (nil, nil) if enabled is false.
func StartServer(enabled bool, listen, path string, collector *metrics.MetricsCollector, logger *zap.Logger) (*fasthttp.Server, error) {
	if !enabled {
		if logger != nil {
			logger.Info("metrics collection disabled")
		}
		return nil, nil
	}

	handler := NewHandler(path, collector)

	srv := &fasthttp.Server{
		Handler:            handler,
		Name:               "apcore-metrics",
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		MaxRequestBodySize: 1 * 1024,
		TCPKeepalive:       true,
		TCPKeepalivePeriod: 30 * time.Second,
		MaxConnsPerIP:      100,
		MaxRequestsPerConn: 1000,
		Concurrency:        100,
	}

	go func() {
		if logger != nil {
			logger.Info("metrics server listening", zap.String("listen", listen), zap.String("path", path))
		}
		if err := srv.ListenAndServe(listen); err != nil && logger != nil {
			logger.Error("metrics server stopped", zap.String("listen", listen), zap.Error(err))
		}
	}()

	return srv, nil
}

// NewHandler builds a fasthttp.RequestHandler serving collector's export at
// path and 404 for everything else, usable standalone when an embedder
// already runs its own fasthttp server and just wants the route.
func NewHandler(path string, collector *metrics.MetricsCollector) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) != path {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			ctx.SetBodyString("Not Found")
			return
		}
		ctx.SetContentType(string(expfmt.FmtText))
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString(collector.ExportPrometheus())
	}
}
