package service

import (
	"context"
	"log"
	"time"

	"github.com/recapd-ai/recapd/pkg/models"
)

// DispatcherHealth is one credential's queue state.
type DispatcherHealth struct {
	UserID     string                    `json:"user_id"`
	QueueDepth int                       `json:"queue_depth"`
	LastUsed   time.Time                 `json:"last_used"`
	RateLimit  *models.RateLimitSnapshot `json:"rate_limit,omitempty"`
}

// Health is an aggregated snapshot of the service's collaborators.
type Health struct {
	Healthy     bool               `json:"healthy"`
	Database    string             `json:"database"`
	Cache       string             `json:"cache"`
	Dispatchers []DispatcherHealth `json:"dispatchers"`
	ActiveJobs  int                `json:"active_jobs"`
	CheckedAt   time.Time          `json:"checked_at"`
}

// Health probes the ledger database and cache and reports per-dispatcher
// queue state.
func (s *Service) Health(ctx context.Context) Health {
	h := Health{
		Healthy:   true,
		Database:  "ok",
		Cache:     "ok",
		CheckedAt: time.Now().UTC(),
	}

	if err := s.ledger.Ping(ctx); err != nil {
		h.Healthy = false
		h.Database = err.Error()
	}
	if s.cache != nil {
		if err := s.cache.Ping(); err != nil {
			h.Healthy = false
			h.Cache = err.Error()
		}
	} else {
		h.Cache = "disabled"
	}

	s.mu.Lock()
	for userID, rt := range s.runtimes {
		dh := DispatcherHealth{
			UserID:     userID,
			QueueDepth: rt.dispatcher.QueueDepth(),
			LastUsed:   rt.dispatcher.LastUsed(),
		}
		if snap, ok := rt.dispatcher.RateLimit(); ok {
			dh.RateLimit = &snap
		}
		h.Dispatchers = append(h.Dispatchers, dh)
	}
	s.mu.Unlock()

	h.ActiveJobs = s.Jobs.ActiveCount()
	return h
}

// refreshHealth is the cron-driven periodic probe.
func (s *Service) refreshHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h := s.Health(ctx)
	if !h.Healthy {
		log.Printf("service: health degraded: database=%s cache=%s", h.Database, h.Cache)
	}
}
