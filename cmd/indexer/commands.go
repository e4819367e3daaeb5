package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/bootstrap"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/config"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/queue/nats"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/observability/logging"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/observability/metrics"
)

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "indexer",
		Usage:     "Build and inspect the compliance knowledge index",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "index-path",
				Usage:   "Directory holding index generations",
				EnvVars: []string{"INDEX_PATH"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "build",
				Usage:  "Build a new index generation from a document directory",
				Action: buildCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "dir",
						Aliases: []string{"d"},
						Usage:   "Knowledge base directory",
						EnvVars: []string{"KNOWLEDGE_DIR"},
					},
					&cli.StringFlag{
						Name:  "metrics-textfile",
						Usage: "Write build metrics to this file in Prometheus text format",
					},
					&cli.BoolFlag{
						Name:  "no-publish",
						Usage: "Skip the object store mirror and index events",
					},
				},
			},
			{
				Name:   "inspect",
				Usage:  "Show the current manifest, retained generations and recent builds",
				Action: inspectCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "builds",
						Usage: "Number of ledger rows to show",
						Value: 10,
					},
				},
			},
			{
				Name:      "query",
				Usage:     "Run one query and print the rendered result",
				ArgsUsage: "<question>",
				Action:    queryCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "k",
						Usage: "Number of passages to return (0 uses RAG_TOP_K)",
					},
					&cli.BoolFlag{
						Name:  "remote",
						Usage: "Send the query to workers over NATS instead of loading the index",
					},
				},
			},
		},
	}
}

func loadConfig(c *cli.Context) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	if v := c.String("index-path"); v != "" {
		cfg.IndexPath = v
	}
	cfg.LogLevel = c.String("log-level")
	return cfg, logging.NewJSONLoggerTo(c.App.ErrWriter, "indexer", cfg.LogLevel), nil
}

func buildCommand(c *cli.Context) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	if v := c.String("dir"); v != "" {
		cfg.KnowledgeDir = v
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	buildMetrics := metrics.NewBuildMetrics("indexer")
	app, err := bootstrap.NewBuildApp(ctx, cfg, logger, bootstrap.BuildAppOptions{
		Observer: buildMetrics,
		Publish:  !c.Bool("no-publish"),
	})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	report, buildErr := app.BuildUC.Build(ctx, cfg.KnowledgeDir)

	if path := c.String("metrics-textfile"); path != "" {
		if err := buildMetrics.WriteTextfile(path); err != nil {
			logger.Warn("metrics_textfile_failed", "path", path, "error", err)
		}
	}
	if report != nil {
		if err := writeJSON(c.App.Writer, report); err != nil {
			return err
		}
	}
	if buildErr != nil {
		return fmt.Errorf("build failed: %w", buildErr)
	}
	return nil
}

type inspectOutput struct {
	Current     *domain.Manifest     `json:"current,omitempty"`
	Generations []string             `json:"generations"`
	Builds      []domain.BuildRecord `json:"builds,omitempty"`
}

func inspectCommand(c *cli.Context) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := bootstrap.OpenStore(cfg, logger)
	if err != nil {
		return err
	}

	var out inspectOutput
	out.Generations, err = store.Generations()
	if err != nil {
		return fmt.Errorf("list generations: %w", err)
	}
	current, err := store.Current()
	switch {
	case err == nil:
		manifest, err := store.Manifest(current)
		if err != nil {
			return fmt.Errorf("read manifest: %w", err)
		}
		out.Current = &manifest
	case domain.IsKind(err, domain.ErrInitialization):
		logger.Info("no_generation_published", "index_path", cfg.IndexPath)
	default:
		return err
	}

	ledger, closeLedger, err := bootstrap.OpenLedger(c.Context, cfg)
	if err != nil {
		return err
	}
	defer closeLedger()
	if ledger != nil {
		out.Builds, err = ledger.Recent(c.Context, c.Int("builds"))
		if err != nil {
			return fmt.Errorf("read build ledger: %w", err)
		}
	}
	return writeJSON(c.App.Writer, out)
}

func queryCommand(c *cli.Context) error {
	text := c.Args().First()
	if text == "" {
		return errors.New("query text is required")
	}
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}

	if c.Bool("remote") {
		if cfg.NATSURL == "" {
			return errors.New("--remote requires NATS_URL")
		}
		queue, err := nats.NewWithOptions(cfg.NATSURL, nats.Options{
			Name:     "indexer",
			Subjects: nats.Subjects{Query: cfg.NATSQuerySubject, QueryGroup: cfg.NATSQueryGroup},
			Logger:   logging.Component(logger, "queue"),
		})
		if err != nil {
			return err
		}
		defer queue.Close()
		reply, err := queue.Query(ctx, text, c.Int("k"))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(c.App.Writer, reply)
		return err
	}

	app, err := bootstrap.NewQueryApp(ctx, cfg, logger, bootstrap.QueryAppOptions{Service: "indexer"})
	if err != nil {
		return err
	}
	defer app.Close()
	if err := app.Start(ctx); err != nil {
		logger.Warn("index_not_ready", "error", err)
	}
	_, err = fmt.Fprintln(c.App.Writer, app.QueryUC.Query(ctx, text, c.Int("k")))
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
