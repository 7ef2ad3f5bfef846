package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.API.BaseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("base url = %s", cfg.API.BaseURL)
	}
	if cfg.Dispatch.MaxRetries != 3 {
		t.Errorf("max retries = %d", cfg.Dispatch.MaxRetries)
	}
	if cfg.Dispatch.BaseRetryDelay != time.Second {
		t.Errorf("base retry delay = %v", cfg.Dispatch.BaseRetryDelay)
	}
	if cfg.Dispatch.InterRequestDelay != 100*time.Millisecond {
		t.Errorf("inter-request delay = %v", cfg.Dispatch.InterRequestDelay)
	}
	if cfg.Selector.DefaultModel == "" {
		t.Error("no default model configured")
	}
	if !cfg.Cache.Enabled {
		t.Error("cache should default to enabled")
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_DB_PATH", "/tmp/env-expanded.db")

	path := filepath.Join(t.TempDir(), "recapd.yaml")
	data := `
db_path: ${TEST_DB_PATH}
api:
  base_url: https://proxy.internal/v1
  timeout: 30s
dispatch:
  max_retries: 5
  base_retry_delay: 2s
cost:
  daily_cost_limit: 25
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.DBPath != "/tmp/env-expanded.db" {
		t.Errorf("db path = %s, env var not expanded", cfg.DBPath)
	}
	if cfg.API.BaseURL != "https://proxy.internal/v1" {
		t.Errorf("base url = %s", cfg.API.BaseURL)
	}
	if cfg.Dispatch.MaxRetries != 5 {
		t.Errorf("max retries = %d", cfg.Dispatch.MaxRetries)
	}
	if cfg.Dispatch.BaseRetryDelay != 2*time.Second {
		t.Errorf("base retry delay = %v", cfg.Dispatch.BaseRetryDelay)
	}
	if cfg.Cost.DailyCostLimit != 25 {
		t.Errorf("daily limit = %v", cfg.Cost.DailyCostLimit)
	}

	// Untouched sections keep their defaults.
	if cfg.Dispatch.TickInterval != time.Second {
		t.Errorf("tick interval = %v, want default", cfg.Dispatch.TickInterval)
	}
	if cfg.Selector.DefaultModel != "anthropic/claude-3-haiku" {
		t.Errorf("default model = %s, want default", cfg.Selector.DefaultModel)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() on a missing file should error")
	}
}
