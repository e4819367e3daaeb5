package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	mcpadapter "github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/adapters/mcp"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/bootstrap"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/config"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/observability/logging"
)

// stdout carries the MCP protocol, so logs go to stderr.
func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx := context.Background()
	app, err := bootstrap.NewQueryApp(ctx, cfg, logger, bootstrap.QueryAppOptions{Service: "mcp"})
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	if err := app.Start(ctx); err != nil {
		logger.Warn("index_not_ready", "error", err)
	}

	server := mcpadapter.New(app.QueryUC, bootstrap.Version, logging.Component(logger, "mcp"))
	if err := server.ServeStdio(); err != nil {
		logger.Error("mcp_server_stopped", "error", err)
		os.Exit(1)
	}
}
