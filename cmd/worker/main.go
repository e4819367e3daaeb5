package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/bootstrap"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/config"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/usecase"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/observability/logging"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/observability/metrics"
)

// The worker answers queries arriving over NATS and reloads on index events.
func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.NATSURL == "" {
		log.Fatal("worker requires NATS_URL")
	}
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.NewQueryApp(ctx, cfg, logger, bootstrap.QueryAppOptions{
		Service:       "worker",
		QueryObserver: workerMetrics.Serving(),
		Reloads:       workerMetrics.Serving(),
		WithQueue:     true,
	})
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	if err := app.Start(ctx); err != nil {
		logger.Warn("index_not_ready", "error", err)
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return app.Queue.SubscribeIndexBuilt(groupCtx, app.Reload)
	})
	group.Go(func() error {
		logger.Info("worker_serving_queries", "subject", cfg.NATSQuerySubject, "group", cfg.NATSQueryGroup)
		return app.Queue.ServeQueries(groupCtx, func(handlerCtx context.Context, query string, k int) string {
			workerMetrics.StartRequest()
			started := time.Now()
			out := app.QueryUC.Query(handlerCtx, query, k)
			workerMetrics.FinishRequest("worker", time.Since(started), strings.HasPrefix(out, usecase.ErrorPrefix))
			return out
		})
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("worker error: %v", err)
	}
}
