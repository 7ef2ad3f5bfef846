// Package selector scores catalog models against a task's criteria and
// returns a ranked recommendation with fallbacks.
package selector

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/recapd-ai/recapd/pkg/cache"
	"github.com/recapd-ai/recapd/pkg/models"
)

// CatalogClient lists the upstream model catalog.
type CatalogClient interface {
	ListModels(ctx context.Context, apiKey string) ([]models.ModelDescriptor, error)
}

// Criteria describes the task a model is being picked for.
type Criteria struct {
	// ContentTokens is the task's estimated content length in tokens.
	ContentTokens int
	// Task is the kind of work, e.g. "summarization".
	Task string
	// MaxPromptPrice excludes models whose prompt price exceeds it (0 = no cap).
	MaxPromptPrice float64
}

// Recommendation is the scoring winner plus ranked runners-up.
type Recommendation struct {
	Model          models.ModelDescriptor `json:"model"`
	Score          int                    `json:"score"`
	FallbackModels []string               `json:"fallback_models"`
}

// Selector fetches and scores the model catalog, caching it with a TTL.
type Selector struct {
	client       CatalogClient
	cache        *cache.Cache
	catalogTTL   time.Duration
	defaultModel string
}

// New creates a Selector. cache may be nil to disable catalog caching;
// catalogTTL <= 0 falls back to the cache's default TTL.
func New(client CatalogClient, c *cache.Cache, defaultModel string, catalogTTL time.Duration) *Selector {
	return &Selector{client: client, cache: c, catalogTTL: catalogTTL, defaultModel: defaultModel}
}

// DefaultModel is the hardcoded fallback when no recommendation is possible.
func (s *Selector) DefaultModel() string {
	return s.defaultModel
}

// Catalog returns the model catalog, served from cache when fresh.
func (s *Selector) Catalog(ctx context.Context, apiKey string) ([]models.ModelDescriptor, error) {
	const key = "model_catalog"

	if s.cache != nil {
		var cached []models.ModelDescriptor
		if s.cache.Get(key, &cached) && len(cached) > 0 {
			return cached, nil
		}
	}

	catalog, err := s.client.ListModels(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		var cerr error
		if s.catalogTTL > 0 {
			cerr = s.cache.SetWithTTL(key, catalog, s.catalogTTL)
		} else {
			cerr = s.cache.Set(key, catalog)
		}
		if cerr != nil {
			log.Printf("selector: cache catalog: %v", cerr)
		}
	}
	return catalog, nil
}

// Pricing resolves one model's per-token pricing from the catalog.
func (s *Selector) Pricing(ctx context.Context, apiKey, model string) (models.ModelPricing, error) {
	catalog, err := s.Catalog(ctx, apiKey)
	if err != nil {
		return models.ModelPricing{}, err
	}
	for _, m := range catalog {
		if m.ID == model {
			return m.Pricing, nil
		}
	}
	return models.ModelPricing{}, fmt.Errorf("selector: no pricing for model %s", model)
}

// Recommend scores the catalog against criteria. Returns nil (no error)
// when the catalog is empty or unreachable; the caller falls back to the
// default model.
func (s *Selector) Recommend(ctx context.Context, apiKey string, crit Criteria) (*Recommendation, error) {
	catalog, err := s.Catalog(ctx, apiKey)
	if err != nil {
		log.Printf("selector: catalog unavailable: %v", err)
		return nil, nil
	}

	type scored struct {
		model models.ModelDescriptor
		score int
	}
	var ranked []scored

	for _, m := range catalog {
		if !textCapable(m) {
			continue
		}
		if crit.MaxPromptPrice > 0 && m.Pricing.Prompt > crit.MaxPromptPrice {
			continue
		}
		ranked = append(ranked, scored{model: m, score: Score(m, crit)})
	}
	if len(ranked) == 0 {
		return nil, nil
	}

	// Stable ranking: catalog order breaks ties.
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].score > ranked[j-1].score; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}

	rec := &Recommendation{Model: ranked[0].model, Score: ranked[0].score}
	for _, r := range ranked[1:] {
		if len(rec.FallbackModels) == 3 {
			break
		}
		rec.FallbackModels = append(rec.FallbackModels, r.model.ID)
	}
	return rec, nil
}

// textCapable filters to text or multimodal models.
func textCapable(m models.ModelDescriptor) bool {
	mod := m.Architecture.Modality
	return mod == "" || strings.Contains(mod, "text")
}

// qualityFamilies earn a flat bonus for recognized high-quality names.
var (
	topFamilies = []string{"gpt-4", "claude-3-opus", "claude-3.5-sonnet", "o1"}
	midFamilies = []string{"claude", "gemini", "gpt-3.5", "llama-3"}

	lightweightVariants = []string{"haiku", "mini", "flash", "lite"}
)

// Score computes one model's fit for the criteria.
func Score(m models.ModelDescriptor, crit Criteria) int {
	score := 0

	// Context headroom.
	if crit.ContentTokens > 0 {
		switch {
		case m.ContextLength >= 2*crit.ContentTokens:
			score += 30
		case m.ContextLength >= crit.ContentTokens:
			score += 20
		}
	}

	// Cheaper models score higher, in tiers.
	switch avg := m.Pricing.Average(); {
	case avg <= 0.000002:
		score += 25
	case avg <= 0.00001:
		score += 20
	case avg <= 0.00005:
		score += 15
	}

	// Recognized model families.
	id := strings.ToLower(m.ID)
	if matchesAny(id, topFamilies) {
		score += 20
	} else if matchesAny(id, midFamilies) {
		score += 15
	}

	// Lightweight variants do well on summarization.
	if crit.Task == "summarization" && matchesAny(id, lightweightVariants) {
		score += 10
	}

	return score
}

func matchesAny(id string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(id, p) {
			return true
		}
	}
	return false
}
