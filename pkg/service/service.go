// Package service wires the whole stack together: one request dispatcher
// per credential (created lazily, evicted after inactivity), event fan-in,
// periodic sweeps, and health aggregation.
package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/recapd-ai/recapd/pkg/apierr"
	"github.com/recapd-ai/recapd/pkg/cache"
	"github.com/recapd-ai/recapd/pkg/config"
	"github.com/recapd-ai/recapd/pkg/costguard"
	"github.com/recapd-ai/recapd/pkg/dispatch"
	"github.com/recapd-ai/recapd/pkg/jobs"
	"github.com/recapd-ai/recapd/pkg/ledger"
	"github.com/recapd-ai/recapd/pkg/models"
	"github.com/recapd-ai/recapd/pkg/openrouter"
	"github.com/recapd-ai/recapd/pkg/ratelimit"
	"github.com/recapd-ai/recapd/pkg/selector"
	"github.com/recapd-ai/recapd/pkg/settings"
	"github.com/recapd-ai/recapd/pkg/summarize"
)

// Transport is the upstream API surface the service consumes.
type Transport interface {
	selector.CatalogClient
	GetModel(ctx context.Context, apiKey, id string) (*models.ModelDescriptor, error)
	ChatCompletion(ctx context.Context, apiKey string, req models.ChatCompletionRequest) (*models.ChatCompletionResponse, *models.RateLimitSnapshot, error)
	ChatCompletionStream(ctx context.Context, apiKey string, req models.ChatCompletionRequest, onDelta func(string)) (*models.ChatCompletionResponse, *models.RateLimitSnapshot, error)
}

var _ Transport = (*openrouter.Client)(nil)

// credentialRuntime is the live per-credential state: the serialized
// dispatcher, its cost guard, and the key it was built with.
type credentialRuntime struct {
	apiKey     string
	guard      *costguard.Guard
	dispatcher *dispatch.Dispatcher
}

// Service is the top-level orchestrator.
type Service struct {
	cfg      *config.Config
	client   Transport
	settings settings.Store
	ledger   ledger.Ledger
	cache    *cache.Cache
	selector *selector.Selector
	events   *models.Events

	Summarizer *summarize.Orchestrator
	Jobs       *jobs.Manager

	cron *cron.Cron

	mu       sync.Mutex
	runtimes map[string]*credentialRuntime
	stopped  bool
}

// New wires a Service. events carries the caller's notification callbacks
// and may be nil.
func New(cfg *config.Config, client Transport, st settings.Store, lg ledger.Ledger, c *cache.Cache, jobStore jobs.Store, events *models.Events) *Service {
	s := &Service{
		cfg:      cfg,
		client:   client,
		settings: st,
		ledger:   lg,
		cache:    c,
		selector: selector.New(client, c, cfg.Selector.DefaultModel, cfg.Selector.CatalogTTL),
		events:   events,
		runtimes: make(map[string]*credentialRuntime),
	}
	s.Summarizer = summarize.New(s, st, lg, s.selector, events)
	s.Jobs = jobs.NewManager(jobStore, s.Summarizer, s.Summarizer.EstimateCost, events, cfg.Service.JobEvictionGrace)
	return s
}

// Start schedules the periodic sweeps. Safe to skip for one-shot use.
func (s *Service) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.cfg.Service.SweepSchedule, s.sweep); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.Service.HealthSchedule, s.refreshHealth); err != nil {
		return fmt.Errorf("schedule health: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the sweeps and every dispatcher.
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	s.mu.Lock()
	runtimes := make([]*credentialRuntime, 0, len(s.runtimes))
	for _, rt := range s.runtimes {
		runtimes = append(runtimes, rt)
	}
	s.runtimes = make(map[string]*credentialRuntime)
	s.mu.Unlock()

	for _, rt := range runtimes {
		rt.dispatcher.Stop()
	}
}

// runtime returns the user's credential runtime, creating it lazily and
// rebuilding it whenever the stored API key has changed.
func (s *Service) runtime(ctx context.Context, userID string) (*credentialRuntime, error) {
	apiKey, err := s.settings.GetAPIKey(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, apierr.New(apierr.CategoryInfrastructure, apierr.ErrEmergencyStop)
	}
	rt, ok := s.runtimes[userID]
	s.mu.Unlock()

	if ok && rt.apiKey == apiKey {
		return rt, nil
	}
	if ok {
		log.Printf("service: credential changed for %s, rebuilding dispatcher", userID)
		rt.dispatcher.Stop()
	}

	st, err := s.settings.GetSettings(ctx, userID)
	if err != nil {
		return nil, apierr.Newf(apierr.CategoryInfrastructure, "resolve settings: %w", err)
	}

	maxPerRequest := st.MaxCostPerRequest
	if maxPerRequest == 0 {
		maxPerRequest = s.cfg.Cost.MaxCostPerRequest
	}
	dailyLimit := st.DailyCostLimit
	if dailyLimit == 0 {
		dailyLimit = s.cfg.Cost.DailyCostLimit
	}

	guard := costguard.New(func(model string) (models.ModelPricing, error) {
		return s.selector.Pricing(context.Background(), apiKey, model)
	}, maxPerRequest, dailyLimit)

	rt = &credentialRuntime{
		apiKey:     apiKey,
		guard:      guard,
		dispatcher: dispatch.New(userID, s.cfg.Dispatch, ratelimit.NewTracker(), guard, s.events),
	}

	s.mu.Lock()
	s.runtimes[userID] = rt
	s.mu.Unlock()
	return rt, nil
}

// Call implements summarize.Caller: authorize cost, then execute through
// the per-credential queue. Returns the response and its actual cost.
func (s *Service) Call(ctx context.Context, userID string, req models.ChatCompletionRequest) (*models.ChatCompletionResponse, float64, error) {
	rt, err := s.runtime(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	est, err := rt.guard.Authorize(req)
	if err != nil {
		return nil, 0, err
	}

	res, err := rt.dispatcher.Do(ctx, func(ctx context.Context) (*dispatch.Result, error) {
		resp, snap, err := s.client.ChatCompletion(ctx, rt.apiKey, req)
		if err != nil {
			return &dispatch.Result{Snapshot: snap}, err
		}
		return &dispatch.Result{
			Response: resp,
			Snapshot: snap,
			Cost:     actualCost(resp, est),
		}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Response, res.Cost, nil
}

// CallStream is Call with incremental delivery: content deltas reach
// onDelta as the provider emits them, through the same queue, retry, and
// cost controls as a plain call.
func (s *Service) CallStream(ctx context.Context, userID string, req models.ChatCompletionRequest, onDelta func(string)) (*models.ChatCompletionResponse, float64, error) {
	rt, err := s.runtime(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	est, err := rt.guard.Authorize(req)
	if err != nil {
		return nil, 0, err
	}

	res, err := rt.dispatcher.Do(ctx, func(ctx context.Context) (*dispatch.Result, error) {
		resp, snap, err := s.client.ChatCompletionStream(ctx, rt.apiKey, req, onDelta)
		if err != nil {
			return &dispatch.Result{Snapshot: snap}, err
		}
		return &dispatch.Result{
			Response: resp,
			Snapshot: snap,
			Cost:     actualCost(resp, est),
		}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Response, res.Cost, nil
}

// actualCost prices the response's reported usage; without usage data the
// estimate stands.
func actualCost(resp *models.ChatCompletionResponse, est models.CostEstimate) float64 {
	if resp.Usage == nil {
		return est.Cost
	}
	return float64(resp.Usage.PromptTokens)*est.PromptPrice + float64(resp.Usage.CompletionTokens)*est.CompletionPrice
}

// Summarize runs one synchronous summarization call.
func (s *Service) Summarize(ctx context.Context, req models.SummaryRequest) (*models.SummaryResponse, error) {
	return s.Summarizer.Summarize(ctx, req)
}

// SummarizeStream is Summarize with per-article delta streaming.
func (s *Service) SummarizeStream(ctx context.Context, req models.SummaryRequest, deltas func(articleID, delta string)) (*models.SummaryResponse, error) {
	return s.Summarizer.SummarizeStream(ctx, req, deltas)
}

// ModelDetail fetches one catalog entry by id.
func (s *Service) ModelDetail(ctx context.Context, userID, id string) (*models.ModelDescriptor, error) {
	apiKey, err := s.settings.GetAPIKey(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.client.GetModel(ctx, apiKey, id)
}

// Recommend returns a ranked model recommendation for a user.
func (s *Service) Recommend(ctx context.Context, userID string, crit selector.Criteria) (*selector.Recommendation, error) {
	apiKey, err := s.settings.GetAPIKey(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.selector.Recommend(ctx, apiKey, crit)
}

// UsageStats returns windowed usage aggregates, cached briefly.
func (s *Service) UsageStats(ctx context.Context, userID, window string) (*models.UsageStats, error) {
	key := "usage_stats:" + userID + ":" + window
	if s.cache != nil {
		var cached models.UsageStats
		if s.cache.Get(key, &cached) {
			return &cached, nil
		}
	}
	stats, err := s.ledger.GetUsageStats(ctx, userID, window)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetWithTTL(key, stats, time.Minute); err != nil {
			log.Printf("service: cache usage stats: %v", err)
		}
	}
	return stats, nil
}

// ClearQueue cancels a user's pending (not yet started) requests.
func (s *Service) ClearQueue(userID string) int {
	s.mu.Lock()
	rt, ok := s.runtimes[userID]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	return rt.dispatcher.ClearQueue()
}

// EmergencyStop broadcasts a stop: every queue is cleared and new work is
// rejected until Resume.
func (s *Service) EmergencyStop(reason string) {
	s.mu.Lock()
	s.stopped = true
	runtimes := make([]*credentialRuntime, 0, len(s.runtimes))
	for _, rt := range s.runtimes {
		runtimes = append(runtimes, rt)
	}
	s.mu.Unlock()

	for _, rt := range runtimes {
		rt.dispatcher.ClearQueue()
	}
	log.Printf("service: emergency stop: %s", reason)
	s.events.EmitEmergencyStop(reason)
}

// Resume lifts an emergency stop.
func (s *Service) Resume() {
	s.mu.Lock()
	s.stopped = false
	s.mu.Unlock()
}

// sweep evicts idle dispatchers, expired cache entries, and settled jobs
// past their grace window.
func (s *Service) sweep() {
	now := time.Now()
	deadline := now.Add(-s.cfg.Service.DispatcherIdleEviction)

	s.mu.Lock()
	var idle []*credentialRuntime
	for userID, rt := range s.runtimes {
		if rt.dispatcher.LastUsed().Before(deadline) && rt.dispatcher.QueueDepth() == 0 {
			delete(s.runtimes, userID)
			idle = append(idle, rt)
		}
	}
	s.mu.Unlock()

	for _, rt := range idle {
		rt.dispatcher.Stop()
	}
	if len(idle) > 0 {
		log.Printf("service: evicted %d idle dispatchers", len(idle))
	}

	if evicted := s.Jobs.Evict(now); evicted > 0 {
		log.Printf("service: evicted %d settled jobs from memory", evicted)
	}

	if s.cache != nil {
		if n, err := s.cache.Cleanup(); err != nil {
			log.Printf("service: cache cleanup: %v", err)
		} else if n > 0 {
			log.Printf("service: cache cleanup removed %d entries", n)
		}
	}
}
