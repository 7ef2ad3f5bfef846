package models

import "time"

// Settings is one user's stored configuration.
type Settings struct {
	UserID            string        `json:"user_id"`
	APIKey            string        `json:"api_key,omitempty"`
	DefaultModel      string        `json:"default_model"`
	FallbackModel     string        `json:"fallback_model"`
	FallbackEnabled   bool          `json:"fallback_enabled"`
	MaxCostPerRequest float64       `json:"max_cost_per_request"`
	DailyCostLimit    float64       `json:"daily_cost_limit"`
	MonthlyCostLimit  float64       `json:"monthly_cost_limit"`
	DefaultLength     SummaryLength `json:"default_length"`
	DefaultStyle      SummaryStyle  `json:"default_style"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}
