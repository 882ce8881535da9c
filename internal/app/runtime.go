package app

import (
	"context"
	"fmt"

	"github.com/opennews-pt/pt-news-extractor/internal/config"
	"github.com/opennews-pt/pt-news-extractor/internal/jobs"
	"github.com/opennews-pt/pt-news-extractor/internal/logger"
	"github.com/opennews-pt/pt-news-extractor/pkg/notifiers"
	"github.com/opennews-pt/pt-news-extractor/pkg/providers"
)

// runtime holds the pieces shared by the API and the worker processes.
type runtime struct {
	cfg         *config.Config
	providerReg *providers.Registry
	backend     jobs.Backend
	log         logger.Logger
}

func newRuntime(ctx context.Context, cfg *config.Config, log logger.Logger) (*runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)
	if ctx == nil {
		ctx = context.Background()
	}

	providerReg, err := providers.LoadProviders(cfg.ProvidersFile)
	if err != nil {
		return nil, fmt.Errorf("load providers registry: %w", err)
	}
	providerList := providerReg.All()
	providerIDs := make([]string, 0, len(providerList))
	for _, p := range providerList {
		providerIDs = append(providerIDs, string(p.ID))
	}
	log.InfoObj("providers registry loaded", "providers_meta", map[string]any{
		"count": len(providerIDs),
		"ids":   providerIDs,
		"file":  cfg.ProvidersFile,
	})

	backend, err := jobs.Open(ctx, backendConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("init job backend: %w", err)
	}
	log.InfoObj("job backend initialized", "backend_config", map[string]any{
		"type":                     cfg.JobBackend,
		"path":                     cfg.BBoltPath,
		"redis_addr":               cfg.RedisAddr,
		"result_ttl_seconds":       int(cfg.JobResultTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.JobCleanupInterval.Seconds()),
	})

	return &runtime{
		cfg:         cfg,
		providerReg: providerReg,
		backend:     backend,
		log:         log,
	}, nil
}

func backendConfig(cfg *config.Config) jobs.BackendConfig {
	return jobs.BackendConfig{
		Type:     cfg.JobBackend,
		BoltPath: cfg.BBoltPath,
		Redis: jobs.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		},
		Retention: jobs.Options{
			ResultTTL:       cfg.JobResultTTL,
			ActiveTTL:       cfg.JobTimeout * 2,
			CleanupInterval: cfg.JobCleanupInterval,
		},
	}
}

// loadNotifiers builds the completion fan-out. Without a notifiers file the
// fan-out is empty.
func loadNotifiers(ctx context.Context, cfg *config.Config, log logger.Logger) (*notifiers.Fanout, error) {
	reg, err := notifiers.LoadRegistry(cfg.NotifiersFile)
	if err != nil {
		return nil, fmt.Errorf("load notifiers registry: %w", err)
	}
	enabled := reg.Enabled()
	built, err := notifiers.BuildAll(ctx, notifiers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build notifiers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, n := range enabled {
		summaries = append(summaries, map[string]string{
			"id":   n.ID,
			"type": n.Type,
		})
	}
	log.InfoObj("notifiers registry loaded", "notifiers_meta", map[string]any{
		"count":     len(summaries),
		"notifiers": summaries,
	})
	return notifiers.NewFanout(built), nil
}

// closeBackend safely closes the job backend, logging any errors encountered.
func (rt *runtime) closeBackend() {
	if rt == nil || rt.backend == nil {
		return
	}
	if err := rt.backend.Close(); err != nil {
		rt.log.ErrorObj("job backend close failed", "error", err)
	}
}
