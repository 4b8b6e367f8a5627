package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/feiyangfan/search-hub/internal/bootstrap"
	"github.com/feiyangfan/search-hub/internal/config"
	"github.com/feiyangfan/search-hub/internal/observability/logging"
	"github.com/feiyangfan/search-hub/internal/observability/metrics"
)

const serviceName = "search-worker"

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

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		slog.Info("metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeDocumentIngested(ctx, func(handlerCtx context.Context, documentID string) error {
		indexCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		workerMetrics.StartDocument()
		start := time.Now()
		indexErr := app.IndexUC.IndexByID(indexCtx, documentID)
		workerMetrics.FinishDocument(serviceName, time.Since(start), indexErr)
		return indexErr
	})
	if err != nil {
		slog.Error("worker subscribe failed", "error", err)
		os.Exit(1)
	}
}
