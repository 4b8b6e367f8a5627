package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/feiyangfan/search-hub/internal/adapters/http"
	"github.com/feiyangfan/search-hub/internal/bootstrap"
	"github.com/feiyangfan/search-hub/internal/config"
	"github.com/feiyangfan/search-hub/internal/observability/logging"
	"github.com/feiyangfan/search-hub/internal/observability/metrics"
)

const serviceName = "search-api"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	go watchBreaker(ctx, app, httpMetrics)

	router := httpadapter.NewRouter(app.SearchUC, app.IngestUC, app.Repo).
		WithMetrics(serviceName, httpMetrics).
		Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      httpMetrics.Middleware(serviceName, router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: httpMetrics.Handler(),
	}

	go func() {
		slog.Info("metrics listening", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	go func() {
		slog.Info("api listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("api server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api shutdown failed", "error", err)
	}
	_ = metricsServer.Shutdown(shutdownCtx)
}

// watchBreaker mirrors the semantic breaker state into the metrics
// registry and counts transitions into the open state.
func watchBreaker(ctx context.Context, app *bootstrap.App, m *metrics.HTTPServerMetrics) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var lastState float64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state := float64(app.SemanticBreaker.State())
			m.SetBreakerState(serviceName, "semantic", state)
			if state == 1 && lastState != 1 {
				m.RecordBreakerOpened(serviceName, "semantic")
			}
			lastState = state
		}
	}
}
