package summarize

import (
	"context"

	"github.com/recapd-ai/recapd/pkg/costguard"
	"github.com/recapd-ai/recapd/pkg/models"
)

// Fallback per-token prices when no catalog pricing is reachable, matching
// the cost guard's conservative defaults.
const (
	estimateFallbackPrompt     = 0.000001
	estimateFallbackCompletion = 0.000002
)

// EstimateCost projects the dollar cost of a summarization request with the
// character-count token heuristic and catalog pricing. Lookup failures fall
// back to conservative default prices; the projection never errors.
func (o *Orchestrator) EstimateCost(ctx context.Context, req models.SummaryRequest) float64 {
	model := req.Model
	if model == "" {
		if st, err := o.settings.GetSettings(ctx, req.UserID); err == nil && st.DefaultModel != "" {
			model = st.DefaultModel
		} else {
			model = o.selector.DefaultModel()
		}
	}

	promptPrice := estimateFallbackPrompt
	completionPrice := estimateFallbackCompletion
	if apiKey, err := o.settings.GetAPIKey(ctx, req.UserID); err == nil {
		if pricing, err := o.selector.Pricing(ctx, apiKey, model); err == nil {
			promptPrice = pricing.Prompt
			completionPrice = pricing.Completion
		}
	}

	completion := maxTokensFor(req.Options.Length)
	var cost float64
	for _, a := range req.Articles {
		prompt := costguard.EstimatePromptTokens(a.Content)
		cost += float64(prompt)*promptPrice + float64(completion)*completionPrice
	}
	return cost
}
