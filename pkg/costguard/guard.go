// Package costguard estimates request cost and enforces per-request and
// rolling daily spend ceilings before a call is allowed to enqueue.
package costguard

import (
	"math"
	"sync"
	"time"

	"github.com/recapd-ai/recapd/pkg/apierr"
	"github.com/recapd-ai/recapd/pkg/models"
)

const (
	// charsPerToken is a fixed character-per-token heuristic, not a real
	// tokenizer. Its inaccuracy is part of the contract.
	charsPerToken = 3.5

	defaultCompletionTokens = 1000
	maxTokensCeiling        = 100000

	// Fallback pricing when the catalog lookup fails.
	fallbackPromptPrice     = 0.000001
	fallbackCompletionPrice = 0.000002
	fallbackPromptTokens    = 1000
)

// PricingLookup resolves a model id to its per-token pricing.
type PricingLookup func(model string) (models.ModelPricing, error)

// Guard enforces spend ceilings for one credential. The daily counter is
// single-writer (the dispatcher's response path); authorization reads
// tolerate eventual consistency.
type Guard struct {
	lookup PricingLookup

	maxCostPerRequest float64
	dailyCostLimit    float64

	mu        sync.Mutex
	dailyUsed float64
	resetDate string // calendar date of last daily reset
}

// New creates a Guard.
func New(lookup PricingLookup, maxCostPerRequest, dailyCostLimit float64) *Guard {
	return &Guard{
		lookup:            lookup,
		maxCostPerRequest: maxCostPerRequest,
		dailyCostLimit:    dailyCostLimit,
		resetDate:         dateString(time.Now()),
	}
}

func dateString(t time.Time) string {
	return t.Format("2006-01-02")
}

// EstimatePromptTokens applies the character-count heuristic to a string.
func EstimatePromptTokens(text string) int {
	return int(math.Ceil(float64(len(text)) / charsPerToken))
}

// Estimate computes a heuristic cost projection for req. A pricing lookup
// failure produces a conservative fallback estimate instead of an error.
func (g *Guard) Estimate(req models.ChatCompletionRequest) models.CostEstimate {
	completion := defaultCompletionTokens
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		completion = *req.MaxTokens
	}

	pricing, err := g.lookup(req.Model)
	if err != nil {
		return models.CostEstimate{
			PromptTokens:     fallbackPromptTokens,
			CompletionTokens: defaultCompletionTokens,
			Cost:             fallbackPromptTokens*fallbackPromptPrice + defaultCompletionTokens*fallbackCompletionPrice,
			PromptPrice:      fallbackPromptPrice,
			CompletionPrice:  fallbackCompletionPrice,
		}
	}

	var chars int
	for _, m := range req.Messages {
		chars += len(m.Content)
	}
	prompt := int(math.Ceil(float64(chars) / charsPerToken))

	return models.CostEstimate{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		Cost:             float64(prompt)*pricing.Prompt + float64(completion)*pricing.Completion,
		PromptPrice:      pricing.Prompt,
		CompletionPrice:  pricing.Completion,
	}
}

// Authorize validates req and checks its estimate against the per-request
// ceiling and the rolling daily ceiling. Returns the estimate on success.
func (g *Guard) Authorize(req models.ChatCompletionRequest) (models.CostEstimate, error) {
	if req.Model == "" {
		return models.CostEstimate{}, apierr.Newf(apierr.CategoryValidation, "%w: missing model", apierr.ErrInvalidRequest)
	}
	if len(req.Messages) == 0 {
		return models.CostEstimate{}, apierr.Newf(apierr.CategoryValidation, "%w: missing messages", apierr.ErrInvalidRequest)
	}
	if req.MaxTokens != nil && *req.MaxTokens > maxTokensCeiling {
		return models.CostEstimate{}, apierr.Newf(apierr.CategoryValidation, "%w: max_tokens %d exceeds ceiling %d", apierr.ErrInvalidRequest, *req.MaxTokens, maxTokensCeiling)
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return models.CostEstimate{}, apierr.Newf(apierr.CategoryValidation, "%w: temperature %v outside [0,2]", apierr.ErrInvalidRequest, *req.Temperature)
	}

	est := g.Estimate(req)

	if g.maxCostPerRequest > 0 && est.Cost > g.maxCostPerRequest {
		return est, apierr.Newf(apierr.CategoryCostLimit, "%w: estimated $%.4f exceeds per-request limit $%.4f", apierr.ErrCostLimit, est.Cost, g.maxCostPerRequest)
	}

	daily := g.DailyUsed()
	if g.dailyCostLimit > 0 && daily+est.Cost > g.dailyCostLimit {
		return est, apierr.Newf(apierr.CategoryCostLimit, "%w: daily spend $%.4f + estimate $%.4f exceeds daily limit $%.4f", apierr.ErrCostLimit, daily, est.Cost, g.dailyCostLimit)
	}

	return est, nil
}

// AddSpend records actual spend from a completed call.
func (g *Guard) AddSpend(cost float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollDay()
	g.dailyUsed += cost
}

// DailyUsed returns spend accumulated since the last calendar-date rollover.
func (g *Guard) DailyUsed() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollDay()
	return g.dailyUsed
}

// DailyLimit returns the configured daily ceiling.
func (g *Guard) DailyLimit() float64 {
	return g.dailyCostLimit
}

// rollDay resets the daily counter when the calendar date has changed.
// Must be called with the lock held.
func (g *Guard) rollDay() {
	today := dateString(time.Now())
	if today != g.resetDate {
		g.dailyUsed = 0
		g.resetDate = today
	}
}
