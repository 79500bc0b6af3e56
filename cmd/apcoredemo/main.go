// Command apcoredemo wires the Registry, ACL, Middleware Manager,
// Executor and the three observability middlewares (tracing, metrics,
// logging) together around a handful of example modules, so the whole
// pipeline can be exercised end to end from one binary.
//
// Grounded on the teacher's cmd/render-service/main.go: flag-driven
// config path, a logger built before anything else, a dedicated
// metrics server started in its own goroutine, and a signal-driven
// graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/apcore/acl"
	"github.com/edgecomet/apcore/binding"
	"github.com/edgecomet/apcore/core"
	"github.com/edgecomet/apcore/executor"
	"github.com/edgecomet/apcore/middleware"
	"github.com/edgecomet/apcore/observability/logging"
	"github.com/edgecomet/apcore/observability/metrics"
	"github.com/edgecomet/apcore/observability/metrics/httpserver"
	"github.com/edgecomet/apcore/observability/tracing"
	"github.com/edgecomet/apcore/registry"
)

func main() {
	metricsListen := flag.String("metrics-listen", "127.0.0.1:9090", "listen address for the Prometheus metrics endpoint")
	metricsPath := flag.String("metrics-path", "/metrics", "path the Prometheus metrics endpoint is served at")
	aclPath := flag.String("acl", "", "optional path to an ACL rules YAML file; an allow-everything ACL is used when empty")
	logFormat := flag.String("log-format", "text", "structured log format: json or text")
	flag.Parse()

	logger, err := logging.NewContextLogger(logging.Config{
		Level:   logging.LevelInfo,
		Format:  logging.Format(*logFormat),
		Console: logging.ConsoleConfig{Enabled: true},
	}, "apcoredemo")
	if err != nil {
		panic(err)
	}

	store := registry.New()
	if err := registerExampleModules(store); err != nil {
		logger.Fatal("failed to register example modules", map[string]any{"error": err.Error()})
	}

	aclEngine, err := buildACL(*aclPath)
	if err != nil {
		logger.Fatal("failed to build ACL", map[string]any{"error": err.Error()})
	}

	collector := metrics.NewMetricsCollector()
	mgr := buildMiddlewareManager(logger, collector)

	cfg := core.NewConfig(nil)
	ex := executor.New(store, mgr, aclEngine, cfg)

	zapLogger, err := zap.NewProduction()
	if err != nil {
		zapLogger = zap.NewNop()
	}
	metricsServer, err := httpserver.StartServer(true, *metricsListen, *metricsPath, collector, zapLogger)
	if err != nil {
		logger.Fatal("failed to start metrics server", map[string]any{"error": err.Error()})
	}

	runSample(ex, logger)

	logger.Info("apcoredemo ready", map[string]any{
		"metrics_listen": *metricsListen,
		"metrics_path":   *metricsPath,
		"modules":        store.Count(),
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down", nil)
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", map[string]any{"error": err.Error()})
		}
	}
	logger.Info("apcoredemo stopped", nil)
}

// registerExampleModules binds the demo's three Go functions into
// core.Modules via reflection and registers them into store, rather
// than hand-writing core.Module literals — exercising the same
// inference path an embedder's own modules would go through.
func registerExampleModules(store *registry.Store) error {
	greetModule, err := binding.MakeFunctionModule(greet, binding.Options{
		ModuleID:    "examples.greet",
		Description: "Greets the caller by name.",
	})
	if err != nil {
		return err
	}
	if err := store.Register(greetModule, nil); err != nil {
		return err
	}

	echoModule, err := binding.MakeFunctionModule(echo, binding.Options{
		ModuleID:    "examples.echo",
		Description: "Returns its input unchanged.",
	})
	if err != nil {
		return err
	}
	if err := store.Register(echoModule, nil); err != nil {
		return err
	}

	failModule, err := binding.MakeFunctionModule(alwaysFails, binding.Options{
		ModuleID:    "examples.always_fails",
		Description: "Always raises, to exercise the on_error middleware path.",
	})
	if err != nil {
		return err
	}
	return store.Register(failModule, nil)
}

// buildACL loads rules from path when given, otherwise falls back to
// an allow-everything ACL so the demo runs with zero configuration.
func buildACL(path string) (*acl.ACL, error) {
	if path == "" {
		return acl.New(acl.Allow, nil), nil
	}
	return acl.NewFromFile(path)
}

// buildMiddlewareManager registers the three observability middlewares
// in the recommended outer-to-inner order (spec.md §4.8.4: tracing,
// metrics, logging).
func buildMiddlewareManager(logger *logging.ContextLogger, collector *metrics.MetricsCollector) *middleware.Manager {
	mgr := middleware.NewManager()

	sampler, err := tracing.NewSampler(tracing.Full, 1.0)
	if err != nil {
		panic(err) // Full/1.0 always validates; a failure here is a programming error
	}
	tracingMW := tracing.NewMiddleware(sampler, tracing.NewStdoutExporter(os.Stdout))
	mgr.Add(tracingMW)

	mgr.Add(metrics.NewMiddleware(collector))

	mgr.Add(logging.NewMiddleware(logger, false, true))

	return mgr
}

// runSample exercises the pipeline once for each example module so
// running the binary produces visible tracing/metrics/logging output
// without needing a separate client.
func runSample(ex *executor.Executor, logger *logging.ContextLogger) {
	ctx := context.Background()

	if out, err := ex.Call(ctx, "examples.greet", map[string]any{"name": "ada"}, nil); err != nil {
		logger.Error("sample call failed", map[string]any{"module_id": "examples.greet", "error": err.Error()})
	} else {
		logger.Info("sample call succeeded", map[string]any{"module_id": "examples.greet", "output": out})
	}

	if out, err := ex.Call(ctx, "examples.echo", map[string]any{"ping": true}, nil); err != nil {
		logger.Error("sample call failed", map[string]any{"module_id": "examples.echo", "error": err.Error()})
	} else {
		logger.Info("sample call succeeded", map[string]any{"module_id": "examples.echo", "output": out})
	}

	if _, err := ex.Call(ctx, "examples.always_fails", map[string]any{}, nil); err != nil {
		logger.Info("sample call failed as expected", map[string]any{"module_id": "examples.always_fails", "error": fmt.Sprint(err)})
	}
}
