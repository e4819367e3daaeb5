package bootstrap

import (
	"context"
	"log/slog"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/config"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/ports"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/usecase"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/chunking"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/extractor"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/index"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/repository/postgres"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/resilience"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/storage/localfs"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/vectorindex/flat"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/observability/logging"
)

// BuildApp wires the offline index builder. Ledger is nil without
// LEDGER_DSN.
type BuildApp struct {
	Config  config.Config
	BuildUC ports.IndexBuilder
	Store   *localfs.Storage
	Ledger  *postgres.BuildRepository

	closeFn func()
}

type BuildAppOptions struct {
	Observer ports.BuildObserver
	// Publish enables the mirror and index events when configured.
	Publish bool
}

func NewBuildApp(ctx context.Context, cfg config.Config, logger *slog.Logger, opts BuildAppOptions) (*BuildApp, error) {
	if logger == nil {
		logger = slog.Default()
	}

	compression, err := flat.ParseCompression(cfg.VectorCompression)
	if err != nil {
		return nil, err
	}
	store, err := newStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Build-time embedding retries transient failures.
	executor := resilience.NewExecutor(resilienceConfig(cfg), logging.Component(logger, "resilience"))
	embedder, err := newEmbedder(cfg, executor)
	if err != nil {
		return nil, err
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	buildOptions := []usecase.BuildOption{usecase.WithBuildLogger(logging.Component(logger, "index_build"))}
	if opts.Observer != nil {
		buildOptions = append(buildOptions, usecase.WithBuildObserver(opts.Observer))
	}

	ledger, db, err := newLedger(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if ledger != nil {
		closers = append(closers, func() { _ = db.Close() })
		buildOptions = append(buildOptions, usecase.WithBuildLedger(ledger))
	}

	if opts.Publish {
		mirror, err := newMirror(ctx, cfg, store, logger)
		if err != nil {
			closeAll()
			return nil, err
		}
		if mirror != nil {
			buildOptions = append(buildOptions, usecase.WithArtifactMirror(mirror))
		}

		queue, err := newQueue(cfg, "indexer", executor, logger)
		if err != nil {
			closeAll()
			return nil, err
		}
		if queue != nil {
			closers = append(closers, queue.Close)
			buildOptions = append(buildOptions, usecase.WithIndexEvents(queue))
		}
	}

	buildUC := usecase.NewIndexBuildUseCase(
		extractor.NewRegistry(),
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder,
		index.NewFactory(compression),
		store,
		usecase.BuildOptions{EmbedBatchSize: cfg.EmbedBatchSize},
		buildOptions...,
	)

	return &BuildApp{
		Config:  cfg,
		BuildUC: buildUC,
		Store:   store,
		Ledger:  ledger,
		closeFn: closeAll,
	}, nil
}

// OpenLedger connects to the build ledger for read-only use.
func OpenLedger(ctx context.Context, cfg config.Config) (*postgres.BuildRepository, func(), error) {
	ledger, db, err := newLedger(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if ledger == nil {
		return nil, func() {}, nil
	}
	return ledger, func() { _ = db.Close() }, nil
}

// OpenStore opens the local artifact store.
func OpenStore(cfg config.Config, logger *slog.Logger) (*localfs.Storage, error) {
	return newStore(cfg, logger)
}

func (a *BuildApp) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

