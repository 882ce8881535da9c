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
		fmt.Fprintf(os.Stderr, "news-worker start failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.JobBackend != config.BackendRedis {
		// bbolt holds an exclusive file lock; the api process runs the workers itself
		return fmt.Errorf("news-worker requires job_backend=%s, got %q", config.BackendRedis, cfg.JobBackend)
	}

	if _, err := logger.Init(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("news-worker starting", "config", map[string]any{
		"env":         cfg.Env,
		"redis_addr":  cfg.RedisAddr,
		"workers":     cfg.WorkerCount,
		"job_timeout": cfg.JobTimeout.String(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker, err := app.NewWorker(ctx, cfg, logger.Global())
	if err != nil {
		logger.ErrorObj("failed to initialize worker", "error", err)
		return err
	}

	if err := worker.Run(ctx); err != nil {
		return fmt.Errorf("worker run: %w", err)
	}
	return nil
}
