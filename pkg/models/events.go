package models

import "time"

// RateLimitWarning is emitted when remaining requests drop below the
// low-water mark.
type RateLimitWarning struct {
	UserID   string            `json:"user_id"`
	Snapshot RateLimitSnapshot `json:"snapshot"`
}

// CostAlert is emitted when rolling daily spend passes 90% of the ceiling.
type CostAlert struct {
	UserID     string  `json:"user_id"`
	DailyUsed  float64 `json:"daily_used"`
	DailyLimit float64 `json:"daily_limit"`
}

// ErrorEvent is a classified failure surfaced to collaborators.
type ErrorEvent struct {
	UserID   string `json:"user_id"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

// JobProgressEvent accompanies batch-job progress updates.
type JobProgressEvent struct {
	JobID    string      `json:"job_id"`
	UserID   string      `json:"user_id"`
	Status   JobStatus   `json:"status"`
	Progress JobProgress `json:"progress"`
	At       time.Time   `json:"at"`
}

// Events is the typed notification surface passed down at construction.
// Any callback may be nil; use the emit helpers.
type Events struct {
	OnRateLimitWarning func(RateLimitWarning)
	OnCostAlert        func(CostAlert)
	OnError            func(ErrorEvent)
	OnJobProgress      func(JobProgressEvent)
	OnEmergencyStop    func(reason string)
}

// EmitRateLimitWarning invokes the callback if set.
func (e *Events) EmitRateLimitWarning(w RateLimitWarning) {
	if e != nil && e.OnRateLimitWarning != nil {
		e.OnRateLimitWarning(w)
	}
}

// EmitCostAlert invokes the callback if set.
func (e *Events) EmitCostAlert(a CostAlert) {
	if e != nil && e.OnCostAlert != nil {
		e.OnCostAlert(a)
	}
}

// EmitError invokes the callback if set.
func (e *Events) EmitError(ev ErrorEvent) {
	if e != nil && e.OnError != nil {
		e.OnError(ev)
	}
}

// EmitJobProgress invokes the callback if set.
func (e *Events) EmitJobProgress(ev JobProgressEvent) {
	if e != nil && e.OnJobProgress != nil {
		e.OnJobProgress(ev)
	}
}

// EmitEmergencyStop invokes the callback if set.
func (e *Events) EmitEmergencyStop(reason string) {
	if e != nil && e.OnEmergencyStop != nil {
		e.OnEmergencyStop(reason)
	}
}
