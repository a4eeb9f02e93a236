package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/devricklin/keyword-forwarder/internal/conf"
	"github.com/devricklin/keyword-forwarder/internal/data"
	"github.com/devricklin/keyword-forwarder/internal/logging"
	"github.com/devricklin/keyword-forwarder/mcpserver"
)

// forwarder-mcp serves read-only forwarder tools over MCP stdio. Stdout
// carries the protocol, so logs go to stderr.
func main() {
	_ = godotenv.Load()

	cfg, err := conf.LoadFromEnv()
	if err != nil {
		logging.New(os.Stderr, "info", "console").Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err := cfg.ValidateStore(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := data.NewStore(ctx, cfg.ToStoreOptions())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer store.Close()

	server := mcpserver.NewServer(cfg.Matcher(), store, cfg.Forward.SourceChatIDs)
	logger.Info().Str("store", cfg.Store.Backend).Msg("forwarder MCP server starting")
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("MCP server error")
		store.Close()
		os.Exit(1)
	}
}
