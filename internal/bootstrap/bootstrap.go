package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/config"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/ports"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/llm/ollama"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/llm/openai"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/queue/nats"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/repository/postgres"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/rerank/crossencoder"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/rerank/overlap"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/resilience"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/storage/localfs"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/storage/minio"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/observability/logging"
)

const Version = "0.1.0"

func resilienceConfig(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	if cfg.ResilienceRetryMaxAttempts > 0 {
		rc.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	}
	rc.BreakerEnabled = cfg.ResilienceBreakerEnabled
	if cfg.ResilienceBreakerMinRequests > 0 {
		rc.BreakerMinRequests = uint32(cfg.ResilienceBreakerMinRequests)
	}
	if cfg.ResilienceBreakerOpenSeconds > 0 {
		rc.BreakerOpenTimeout = time.Duration(cfg.ResilienceBreakerOpenSeconds) * time.Second
	}
	return rc
}

func newEmbedder(cfg config.Config, executor *resilience.Executor) (ports.Embedder, error) {
	switch strings.ToLower(cfg.EmbedProvider) {
	case "", "ollama":
		return ollama.NewEmbedder(ollama.New(cfg.OllamaURL, cfg.OllamaEmbedModel, cfg.OllamaJudgeModel, executor)), nil
	case "openai":
		return openai.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIEmbedModel, executor)
	default:
		return nil, fmt.Errorf("unknown embed provider %q", cfg.EmbedProvider)
	}
}

func newReranker(cfg config.Config, executor *resilience.Executor) (ports.Reranker, error) {
	switch strings.ToLower(cfg.RerankProvider) {
	case "", "crossencoder":
		timeout := time.Duration(cfg.CrossEncoderTimeoutSeconds) * time.Second
		return crossencoder.New(cfg.CrossEncoderURL, timeout, executor), nil
	case "ollama":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaEmbedModel, cfg.OllamaJudgeModel, executor)
		return ollama.NewJudge(client, cfg.JudgeConcurrency), nil
	case "overlap":
		return overlap.New(), nil
	default:
		return nil, fmt.Errorf("unknown rerank provider %q", cfg.RerankProvider)
	}
}

func newStore(cfg config.Config, logger *slog.Logger) (*localfs.Storage, error) {
	store, err := localfs.New(cfg.IndexPath, cfg.IndexRetainGenerations, logging.Component(logger, "artifact_store"))
	if err != nil {
		return nil, fmt.Errorf("init artifact store: %w", err)
	}
	return store, nil
}

func newMirror(ctx context.Context, cfg config.Config, store *localfs.Storage, logger *slog.Logger) (*minio.Mirror, error) {
	if cfg.MinIOEndpoint == "" {
		return nil, nil
	}
	mirror, err := minio.New(ctx, minio.Config{
		Endpoint:  cfg.MinIOEndpoint,
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
		Bucket:    cfg.MinIOBucket,
		Prefix:    cfg.MinIOPrefix,
		UseSSL:    cfg.MinIOUseSSL,
	}, store, logging.Component(logger, "artifact_mirror"))
	if err != nil {
		return nil, fmt.Errorf("init artifact mirror: %w", err)
	}
	return mirror, nil
}

func newQueue(cfg config.Config, name string, executor *resilience.Executor, logger *slog.Logger) (*nats.Queue, error) {
	if cfg.NATSURL == "" {
		return nil, nil
	}
	queue, err := nats.NewWithOptions(cfg.NATSURL, nats.Options{
		Name: name,
		Subjects: nats.Subjects{
			IndexBuilt: cfg.NATSIndexSubject,
			Query:      cfg.NATSQuerySubject,
			QueryGroup: cfg.NATSQueryGroup,
		},
		ResilienceExecutor: executor,
		Logger:             logging.Component(logger, "queue"),
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	return queue, nil
}

func newLedger(ctx context.Context, cfg config.Config) (*postgres.BuildRepository, *sql.DB, error) {
	if cfg.LedgerDSN == "" {
		return nil, nil, nil
	}
	db, err := postgres.OpenDB(cfg.LedgerDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger db: %w", err)
	}
	repo := postgres.NewBuildRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure ledger schema: %w", err)
	}
	return repo, db, nil
}
