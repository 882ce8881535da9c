package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/opennews-pt/pt-news-extractor/internal/app"
	"github.com/opennews-pt/pt-news-extractor/internal/config"
	"github.com/opennews-pt/pt-news-extractor/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "news-api start failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if _, err := logger.Init(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("news-api starting", "config", map[string]any{
		"env":         cfg.Env,
		"http_addr":   cfg.HTTPAddr,
		"job_backend": cfg.JobBackend,
		"workers":     cfg.WorkerCount,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := app.NewServer(ctx, cfg, logger.Global())
	if err != nil {
		logger.ErrorObj("failed to initialize api server", "error", err)
		return err
	}

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("api server run: %w", err)
	}
	return nil
}
