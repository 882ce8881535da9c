package jobs

import (
	"context"
	"fmt"
)

const (
	BackendBBolt = "bbolt"
	BackendRedis = "redis"
)

// BackendConfig selects and configures a concrete backend.
type BackendConfig struct {
	Type      string
	BoltPath  string
	Redis     RedisConfig
	Retention Options
}

// Open returns the backend named by cfg.Type.
func Open(ctx context.Context, cfg BackendConfig) (Backend, error) {
	switch cfg.Type {
	case BackendBBolt, "":
		return OpenBolt(cfg.BoltPath, cfg.Retention)
	case BackendRedis:
		return OpenRedis(ctx, cfg.Redis, cfg.Retention)
	default:
		return nil, fmt.Errorf("unknown job backend %q", cfg.Type)
	}
}
