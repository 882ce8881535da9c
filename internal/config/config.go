package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Backends supported for job records.
const (
	BackendBBolt = "bbolt"
	BackendRedis = "redis"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName       string `mapstructure:"app_name"`
	Env           string `mapstructure:"app_env"`
	LogLevel      string `mapstructure:"log_level"`
	HTTPAddr      string `mapstructure:"http_addr"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	ProvidersFile string `mapstructure:"providers_file"`
	NotifiersFile string `mapstructure:"notifiers_file"`

	JobBackend    string `mapstructure:"job_backend"`
	BBoltPath     string `mapstructure:"bbolt_path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`

	JobResultTTLSeconds       int64         `mapstructure:"job_result_ttl_seconds"`
	JobTimeoutSeconds         int64         `mapstructure:"job_timeout_seconds"`
	JobCleanupIntervalSeconds int64         `mapstructure:"job_cleanup_interval_seconds"`
	HTTPTimeoutSeconds        int64         `mapstructure:"http_timeout_seconds"`
	JobResultTTL              time.Duration `mapstructure:"-"`
	JobTimeout                time.Duration `mapstructure:"-"`
	JobCleanupInterval        time.Duration `mapstructure:"-"`
	HTTPTimeout               time.Duration `mapstructure:"-"`

	WorkerCount int `mapstructure:"worker_count"`
	MaxPages    int `mapstructure:"max_pages"`

	PublicoUser string `mapstructure:"publico_user"`
	PublicoPW   string `mapstructure:"publico_pw"`
	CMUser      string `mapstructure:"cm_user"`
	CMPW        string `mapstructure:"cm_pw"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "pt-news-extractor")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("http_addr", ":8000")
	v.SetDefault("public_base_url", "")
	v.SetDefault("providers_file", "")
	v.SetDefault("notifiers_file", "")

	v.SetDefault("job_backend", BackendBBolt)
	v.SetDefault("bbolt_path", "./data/jobs.db")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_prefix", "ptnews")

	v.SetDefault("job_result_ttl_seconds", int64((3*time.Hour)/time.Second))
	v.SetDefault("job_timeout_seconds", int64((3*time.Hour)/time.Second))
	v.SetDefault("job_cleanup_interval_seconds", int64((10*time.Minute)/time.Second))
	v.SetDefault("http_timeout_seconds", 30)

	v.SetDefault("worker_count", 2)
	v.SetDefault("max_pages", 500)

	v.SetDefault("publico_user", "")
	v.SetDefault("publico_pw", "")
	v.SetDefault("cm_user", "")
	v.SetDefault("cm_pw", "")
}

func (cfg *Config) finalize() error {
	cfg.JobBackend = strings.ToLower(strings.TrimSpace(cfg.JobBackend))
	switch cfg.JobBackend {
	case BackendBBolt:
		if strings.TrimSpace(cfg.BBoltPath) == "" {
			return fmt.Errorf("bbolt_path is required for the bbolt backend")
		}
	case BackendRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return fmt.Errorf("redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid job_backend %q (expected %s or %s)", cfg.JobBackend, BackendBBolt, BackendRedis)
	}

	durations := []struct {
		name    string
		seconds int64
		dst     *time.Duration
	}{
		{"job_result_ttl_seconds", cfg.JobResultTTLSeconds, &cfg.JobResultTTL},
		{"job_timeout_seconds", cfg.JobTimeoutSeconds, &cfg.JobTimeout},
		{"job_cleanup_interval_seconds", cfg.JobCleanupIntervalSeconds, &cfg.JobCleanupInterval},
		{"http_timeout_seconds", cfg.HTTPTimeoutSeconds, &cfg.HTTPTimeout},
	}
	for _, d := range durations {
		if d.seconds <= 0 {
			return fmt.Errorf("invalid %s (must be positive seconds)", d.name)
		}
		*d.dst = time.Duration(d.seconds) * time.Second
	}

	if cfg.WorkerCount <= 0 {
		return fmt.Errorf("invalid worker_count (must be positive)")
	}
	if cfg.MaxPages <= 0 {
		return fmt.Errorf("invalid max_pages (must be positive)")
	}
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	return nil
}
