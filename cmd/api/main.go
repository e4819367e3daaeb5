package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/adapters/http"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/bootstrap"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/config"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/observability/logging"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/observability/metrics"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.NewQueryApp(ctx, cfg, logger, bootstrap.QueryAppOptions{
		Service:       "api",
		QueryObserver: httpMetrics.Serving(),
		Reloads:       httpMetrics.Serving(),
		WithQueue:     true,
	})
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	// Serve even without an index: /readyz reports 503 and queries answer
	// with an initialization error until a reload succeeds.
	if err := app.Start(ctx); err != nil {
		logger.Warn("index_not_ready", "error", err)
	}

	router := httpadapter.NewRouter(app.QueryUC, app.QueryUC, httpMetrics, httpadapter.Options{
		Service:        "api",
		DefaultK:       cfg.RAGTopK,
		RateLimitRPS:   cfg.HTTPRateLimitRPS,
		RateLimitBurst: cfg.HTTPRateLimitBurst,
		MaxInFlight:    cfg.HTTPMaxInFlight,
		RequestTimeout: time.Duration(cfg.HTTPRequestTimeoutSec) * time.Second,
	}, logging.Component(logger, "http"))

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if app.Queue != nil {
		group.Go(func() error {
			return app.Queue.SubscribeIndexBuilt(groupCtx, app.Reload)
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("api error: %v", err)
	}
}
