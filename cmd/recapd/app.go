package main

import (
	"fmt"
	"log"
	"os"

	"github.com/recapd-ai/recapd/pkg/cache"
	"github.com/recapd-ai/recapd/pkg/config"
	"github.com/recapd-ai/recapd/pkg/jobs"
	"github.com/recapd-ai/recapd/pkg/ledger"
	"github.com/recapd-ai/recapd/pkg/models"
	"github.com/recapd-ai/recapd/pkg/openrouter"
	"github.com/recapd-ai/recapd/pkg/service"
	"github.com/recapd-ai/recapd/pkg/settings"
)

// loadConfig reads the config file, falling back to defaults when the
// default path does not exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && path == "recapd.yaml" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// app bundles everything a command needs, with a single Close.
type app struct {
	cfg     *config.Config
	store   *settings.SQLiteStore
	ledger  *ledger.SQLiteLedger
	cache   *cache.Cache
	jobs    *jobs.SQLiteStore
	service *service.Service
}

// openApp wires stores and the service from one SQLite database path.
func openApp(configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	store, err := settings.New(cfg.DBPath, cfg.Cost, cfg.Selector.DefaultModel)
	if err != nil {
		return nil, fmt.Errorf("init settings store: %w", err)
	}
	lg, err := ledger.New(cfg.DBPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init ledger: %w", err)
	}
	var c *cache.Cache
	if cfg.Cache.Enabled {
		c, err = cache.New(cfg.DBPath, cfg.Cache.TTL)
		if err != nil {
			store.Close()
			lg.Close()
			return nil, fmt.Errorf("init cache: %w", err)
		}
	}
	jobStore, err := jobs.NewStore(cfg.DBPath)
	if err != nil {
		store.Close()
		lg.Close()
		if c != nil {
			c.Close()
		}
		return nil, fmt.Errorf("init job store: %w", err)
	}

	events := &models.Events{
		OnRateLimitWarning: func(w models.RateLimitWarning) {
			log.Printf("rate-limit warning for %s: %d/%d requests remaining",
				w.UserID, w.Snapshot.RequestsRemaining, w.Snapshot.RequestsLimit)
		},
		OnCostAlert: func(a models.CostAlert) {
			log.Printf("cost alert for %s: $%.4f of $%.4f daily limit used",
				a.UserID, a.DailyUsed, a.DailyLimit)
		},
		OnError: func(e models.ErrorEvent) {
			log.Printf("error [%s] for %s: %s", e.Category, e.UserID, e.Message)
		},
		OnJobProgress: func(p models.JobProgressEvent) {
			log.Printf("job %s [%s]: %d/%d processed, %d failed",
				p.JobID, p.Status, p.Progress.ProcessedItems, p.Progress.TotalItems, p.Progress.FailedItems)
		},
		OnEmergencyStop: func(reason string) {
			log.Printf("EMERGENCY STOP: %s", reason)
		},
	}

	svc := service.New(cfg, openrouter.New(cfg.API), store, lg, c, jobStore, events)

	return &app{
		cfg:     cfg,
		store:   store,
		ledger:  lg,
		cache:   c,
		jobs:    jobStore,
		service: svc,
	}, nil
}

// Close releases every store.
func (a *app) Close() {
	a.service.Stop()
	if a.cache != nil {
		_ = a.cache.Close()
	}
	_ = a.jobs.Close()
	_ = a.ledger.Close()
	_ = a.store.Close()
}
