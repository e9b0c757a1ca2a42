package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("POSTGRES_URL", "postgres://localhost/replayvault")
	t.Setenv("CLICKHOUSE_URL", "clickhouse://localhost:9000")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("BLOB_SIGNING_KEY", "test-signing-key")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.WorkerCount != 4 {
		t.Errorf("WorkerCount = %d, want 4", cfg.WorkerCount)
	}
	if cfg.DecodeTimeout != 30*time.Second {
		t.Errorf("DecodeTimeout = %v, want 30s", cfg.DecodeTimeout)
	}
	if cfg.ReplayRetention != 0 {
		t.Errorf("ReplayRetention = %v, want 0 (keep forever)", cfg.ReplayRetention)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("POSTGRES_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for missing POSTGRES_URL")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "9090")
	t.Setenv("WORKER_COUNT", "16")
	t.Setenv("RENDER_TIMEOUT", "20m")
	t.Setenv("ALLOWED_ORIGINS", "https://replays.example.org, https://staging.example.org")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.WorkerCount != 16 {
		t.Errorf("WorkerCount = %d, want 16", cfg.WorkerCount)
	}
	if cfg.RenderTimeout != 20*time.Minute {
		t.Errorf("RenderTimeout = %v, want 20m", cfg.RenderTimeout)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v, want 2 entries", cfg.AllowedOrigins)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	setRequired(t)
	t.Setenv("DECODE_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DecodeTimeout != 30*time.Second {
		t.Errorf("DecodeTimeout = %v, want 30s (fallback)", cfg.DecodeTimeout)
	}
}
