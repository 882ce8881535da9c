package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JobBackend != BackendBBolt {
		t.Fatalf("unexpected backend %q", cfg.JobBackend)
	}
	if cfg.JobResultTTL != 3*time.Hour || cfg.JobTimeout != 3*time.Hour {
		t.Fatalf("unexpected job durations %v / %v", cfg.JobResultTTL, cfg.JobTimeout)
	}
	if cfg.WorkerCount != 2 || cfg.MaxPages != 500 {
		t.Fatalf("unexpected worker_count/max_pages %d/%d", cfg.WorkerCount, cfg.MaxPages)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("JOB_BACKEND", "REDIS")
	t.Setenv("JOB_TIMEOUT_SECONDS", "60")
	t.Setenv("PUBLIC_BASE_URL", "https://news.example.org/")
	t.Setenv("CM_USER", "someone@example.org")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JobBackend != BackendRedis {
		t.Fatalf("unexpected backend %q", cfg.JobBackend)
	}
	if cfg.JobTimeout != time.Minute {
		t.Fatalf("unexpected job timeout %v", cfg.JobTimeout)
	}
	if cfg.PublicBaseURL != "https://news.example.org" {
		t.Fatalf("unexpected public base url %q", cfg.PublicBaseURL)
	}
	if cfg.CMUser != "someone@example.org" {
		t.Fatalf("unexpected cm user %q", cfg.CMUser)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"backend":  {"JOB_BACKEND", "mongo"},
		"ttl":      {"JOB_RESULT_TTL_SECONDS", "0"},
		"workers":  {"WORKER_COUNT", "-1"},
		"maxpages": {"MAX_PAGES", "0"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", kv[0], kv[1])
			}
		})
	}
}
