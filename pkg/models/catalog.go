package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// ModelPricing holds per-token prices in dollars.
type ModelPricing struct {
	Prompt     float64 `json:"prompt"`
	Completion float64 `json:"completion"`
}

// UnmarshalJSON accepts prices as either JSON numbers or decimal strings,
// since the catalog endpoint serves them as strings.
func (p *ModelPricing) UnmarshalJSON(data []byte) error {
	var raw struct {
		Prompt     json.RawMessage `json:"prompt"`
		Completion json.RawMessage `json:"completion"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var err error
	if p.Prompt, err = parsePrice(raw.Prompt); err != nil {
		return err
	}
	if p.Completion, err = parsePrice(raw.Completion); err != nil {
		return err
	}
	return nil
}

func parsePrice(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return 0, nil
		}
		return strconv.ParseFloat(s, 64)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}

// Average returns the mean of prompt and completion per-token prices.
func (p ModelPricing) Average() float64 {
	return (p.Prompt + p.Completion) / 2
}

// ModelArchitecture describes a model's input/output modality.
type ModelArchitecture struct {
	Modality string `json:"modality"`
}

// ProviderLimits carries limits advertised by the serving provider.
type ProviderLimits struct {
	MaxCompletionTokens int `json:"max_completion_tokens"`
}

// ModelDescriptor is an immutable snapshot of one catalog entry.
type ModelDescriptor struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	ContextLength int               `json:"context_length"`
	Pricing       ModelPricing      `json:"pricing"`
	Architecture  ModelArchitecture `json:"architecture"`
	TopProvider   ProviderLimits    `json:"top_provider"`
}

// RateLimitSnapshot is the most recently observed server-reported quota.
// Process-local; rebuilt from the next response if lost.
type RateLimitSnapshot struct {
	RequestsRemaining int       `json:"requests_remaining"`
	RequestsLimit     int       `json:"requests_limit"`
	TokensRemaining   int       `json:"tokens_remaining"`
	TokensLimit       int       `json:"tokens_limit"`
	ResetTime         time.Time `json:"reset_time"`
}

// CostEstimate is the heuristic cost projection for one request.
type CostEstimate struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	Cost             float64 `json:"cost"`
	PromptPrice      float64 `json:"prompt_price"`
	CompletionPrice  float64 `json:"completion_price"`
}
