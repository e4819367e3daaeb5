package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/config"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/ports"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/usecase"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/queue/nats"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/resilience"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/storage/localfs"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/storage/minio"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/observability/logging"
)

// ReloadObserver is told about every index load attempt.
type ReloadObserver interface {
	ObserveReload(err error)
}

// QueryApp wires the serving side: artifact store, capabilities and the
// query service. Queue and Mirror are nil when not configured.
type QueryApp struct {
	Config  config.Config
	QueryUC *usecase.QueryService
	Store   *localfs.Storage
	Queue   *nats.Queue
	Mirror  *minio.Mirror

	reloads ReloadObserver
	logger  *slog.Logger
	closeFn func()
}

type QueryAppOptions struct {
	Service       string
	QueryObserver ports.QueryObserver
	Reloads       ReloadObserver
	// WithQueue connects to NATS when NATS_URL is set.
	WithQueue bool
}

func NewQueryApp(ctx context.Context, cfg config.Config, logger *slog.Logger, opts QueryAppOptions) (*QueryApp, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := newStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Queries fail fast: the breaker stays on but there are no retries.
	queryExecutor := resilience.NewExecutor(resilienceConfig(cfg).SingleAttempt(), logging.Component(logger, "resilience"))
	embedder, err := newEmbedder(cfg, queryExecutor)
	if err != nil {
		return nil, err
	}
	reranker, err := newReranker(cfg, queryExecutor)
	if err != nil {
		return nil, err
	}

	mirror, err := newMirror(ctx, cfg, store, logger)
	if err != nil {
		return nil, err
	}

	var queue *nats.Queue
	if opts.WithQueue {
		queue, err = newQueue(cfg, opts.Service, nil, logger)
		if err != nil {
			return nil, err
		}
	}

	queryOptions := []usecase.QueryOption{usecase.WithQueryLogger(logging.Component(logger, "query"))}
	if opts.QueryObserver != nil {
		queryOptions = append(queryOptions, usecase.WithQueryObserver(opts.QueryObserver))
	}
	queryUC := usecase.NewQueryService(embedder, reranker, store, usecase.QueryOptions{
		DefaultK:    cfg.RAGTopK,
		VectorTopN:  cfg.RAGVectorTopN,
		LexicalTopN: cfg.RAGLexicalTopN,
	}, queryOptions...)

	return &QueryApp{
		Config:  cfg,
		QueryUC: queryUC,
		Store:   store,
		Queue:   queue,
		Mirror:  mirror,
		reloads: opts.Reloads,
		logger:  logger,
		closeFn: func() {
			if queue != nil {
				queue.Close()
			}
		},
	}, nil
}

// Start pulls the remote generation when configured and loads the current
// one. A load failure is returned but the app stays usable: queries answer
// with an initialization error until a later Reload succeeds.
func (a *QueryApp) Start(ctx context.Context) error {
	if a.Mirror != nil && a.Config.MinIOPullOnStart {
		if _, _, err := a.Mirror.Pull(ctx); err != nil {
			a.logger.Warn("mirror_pull_failed", "error", err)
		}
	}
	return a.load(ctx)
}

// Reload handles an index event. With a mirror configured the announced
// generation is pulled first, so hosts without a shared disk converge.
func (a *QueryApp) Reload(ctx context.Context, generation string) error {
	if a.Mirror != nil {
		if _, _, err := a.Mirror.Pull(ctx); err != nil {
			a.logger.Warn("mirror_pull_failed", "generation", generation, "error", err)
		}
	}
	if err := a.load(ctx); err != nil {
		return fmt.Errorf("reload for %s: %w", generation, err)
	}
	if served, err := a.QueryUC.Generation(); err == nil && served != generation {
		a.logger.Warn("index_event_generation_mismatch", "announced", generation, "serving", served)
	}
	return nil
}

func (a *QueryApp) load(ctx context.Context) error {
	err := a.QueryUC.Load(ctx)
	if a.reloads != nil {
		a.reloads.ObserveReload(err)
	}
	return err
}

func (a *QueryApp) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
