package models

import "time"

// JobStatus is the lifecycle state of a batch job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further status transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// JobProgress tracks batch-job completion. ProcessedItems never decreases.
type JobProgress struct {
	TotalItems     int     `json:"total_items"`
	ProcessedItems int     `json:"processed_items"`
	FailedItems    int     `json:"failed_items"`
	Percentage     float64 `json:"percentage"`
}

// BatchJob is a long-running summarization workload.
type BatchJob struct {
	ID            string           `json:"id"`
	UserID        string           `json:"user_id"`
	Status        JobStatus        `json:"status"`
	JobType       string           `json:"job_type"`
	Input         SummaryRequest   `json:"input"`
	Output        *SummaryResponse `json:"output,omitempty"`
	Progress      JobProgress      `json:"progress"`
	EstimatedCost float64          `json:"estimated_cost"`
	ActualCost    float64          `json:"actual_cost"`
	Error         string           `json:"error,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
}
