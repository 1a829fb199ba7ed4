package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/dualsaude/docreader/internal/adapters/mcp"
	"github.com/dualsaude/docreader/internal/bootstrap"
	"github.com/dualsaude/docreader/internal/config"
	"github.com/dualsaude/docreader/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel)
	slog.SetDefault(logger)

	app, err := bootstrap.New(context.Background(), cfg, logger, "mcp")
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	s := mcpadapter.NewTools(app.Analyzer, app.History, logger).NewServer()
	logger.Info("mcp_serving_stdio")
	if err := server.ServeStdio(s); err != nil {
		logger.Error("mcp_server_failed", "error", err)
	}
}
