package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"pairchat/internal/app"
)

func main() {
	// load local .env (dev only)
	_ = godotenv.Load()

	cfg := app.LoadServerConfig()
	logger := app.NewLogger(cfg.Env)

	// cancel on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	handle, err := app.RunServer(ctx, cfg, logger)
	if err != nil {
		logger.Error("server.start", "err", err)
		os.Exit(1)
	}

	if err := handle.Wait(); err != nil {
		logger.Error("server.exit", "err", err)
		os.Exit(1)
	}
	logger.Info("server.shutdown.complete")
}
