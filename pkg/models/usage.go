package models

import "time"

// UsageRecord tracks one completed model call. Append-only.
type UsageRecord struct {
	ID               int64             `json:"id"`
	UserID           string            `json:"user_id"`
	Model            string            `json:"model"`
	PromptTokens     int               `json:"prompt_tokens"`
	CompletionTokens int               `json:"completion_tokens"`
	TotalTokens      int               `json:"total_tokens"`
	Cost             float64           `json:"cost"`
	RequestType      string            `json:"request_type"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// ModelUsage aggregates usage for a single model within a window.
type ModelUsage struct {
	Requests         int     `json:"requests"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost"`
}

// UsageStats aggregates usage over a time window.
type UsageStats struct {
	Window        string                `json:"window"`
	Since         time.Time             `json:"since"`
	TotalRequests int                   `json:"total_requests"`
	TotalTokens   int                   `json:"total_tokens"`
	TotalCost     float64               `json:"total_cost"`
	ByModel       map[string]ModelUsage `json:"by_model"`
}
