package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all recapd configuration.
type Config struct {
	API      APIConfig      `yaml:"api"`
	DBPath   string         `yaml:"db_path"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Cost     CostConfig     `yaml:"cost"`
	Selector SelectorConfig `yaml:"selector"`
	Service  ServiceConfig  `yaml:"service"`
	Cache    CacheConfig    `yaml:"cache"`
}

// APIConfig points at the upstream multi-model API.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Referer string        `yaml:"referer"`
	Title   string        `yaml:"title"`
	Timeout time.Duration `yaml:"timeout"`
}

// DispatchConfig tunes the per-credential request dispatcher.
type DispatchConfig struct {
	MaxRetries        int           `yaml:"max_retries"`
	BaseRetryDelay    time.Duration `yaml:"base_retry_delay"`
	TickInterval      time.Duration `yaml:"tick_interval"`
	InterRequestDelay time.Duration `yaml:"inter_request_delay"`
	WarnThreshold     int           `yaml:"warn_threshold"`
}

// CostConfig sets default spend ceilings, overridable per user in settings.
type CostConfig struct {
	MaxCostPerRequest float64 `yaml:"max_cost_per_request"`
	DailyCostLimit    float64 `yaml:"daily_cost_limit"`
	MonthlyCostLimit  float64 `yaml:"monthly_cost_limit"`
}

// SelectorConfig tunes model selection.
type SelectorConfig struct {
	DefaultModel string        `yaml:"default_model"`
	CatalogTTL   time.Duration `yaml:"catalog_ttl"`
}

// ServiceConfig tunes the service orchestrator.
type ServiceConfig struct {
	DispatcherIdleEviction time.Duration `yaml:"dispatcher_idle_eviction"`
	JobEvictionGrace       time.Duration `yaml:"job_eviction_grace"`
	SweepSchedule          string        `yaml:"sweep_schedule"`
	HealthSchedule         string        `yaml:"health_schedule"`
}

// CacheConfig controls the TTL key-value cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Title:   "recapd",
			Timeout: 120 * time.Second,
		},
		DBPath: "recapd.db",
		Dispatch: DispatchConfig{
			MaxRetries:        3,
			BaseRetryDelay:    time.Second,
			TickInterval:      time.Second,
			InterRequestDelay: 100 * time.Millisecond,
			WarnThreshold:     10,
		},
		Cost: CostConfig{
			MaxCostPerRequest: 0.50,
			DailyCostLimit:    10.0,
			MonthlyCostLimit:  100.0,
		},
		Selector: SelectorConfig{
			DefaultModel: "anthropic/claude-3-haiku",
			CatalogTTL:   time.Hour,
		},
		Service: ServiceConfig{
			DispatcherIdleEviction: time.Hour,
			JobEvictionGrace:       5 * time.Minute,
			SweepSchedule:          "*/5 * * * *",
			HealthSchedule:         "* * * * *",
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     time.Hour,
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}
