// Package jobs creates, persists, and asynchronously advances long-running
// batch summarization jobs.
package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/recapd-ai/recapd/pkg/apierr"
	"github.com/recapd-ai/recapd/pkg/models"
)

// Summarizer performs the batch work with per-item progress reporting.
type Summarizer interface {
	SummarizeWithProgress(ctx context.Context, req models.SummaryRequest, progress func(processed, failed int)) (*models.SummaryResponse, error)
}

// Estimator projects the dollar cost of a request before it runs.
type Estimator func(ctx context.Context, req models.SummaryRequest) float64

// Manager owns the batch-job lifecycle. Active jobs live in an in-memory
// index (authoritative while status is pending or processing); terminal
// jobs are served from durable storage after a grace window.
type Manager struct {
	store     Store
	summarize Summarizer
	estimate  Estimator
	events    *models.Events
	grace     time.Duration

	mu      sync.Mutex
	active  map[string]*models.BatchJob
	cancels map[string]context.CancelFunc
	doneAt  map[string]time.Time
}

// NewManager creates a Manager. estimate may be nil.
func NewManager(store Store, summarize Summarizer, estimate Estimator, events *models.Events, grace time.Duration) *Manager {
	if grace <= 0 {
		grace = 5 * time.Minute
	}
	return &Manager{
		store:     store,
		summarize: summarize,
		estimate:  estimate,
		events:    events,
		grace:     grace,
		active:    make(map[string]*models.BatchJob),
		cancels:   make(map[string]context.CancelFunc),
		doneAt:    make(map[string]time.Time),
	}
}

// Create persists a pending job, registers it in the active index, and
// starts asynchronous processing. Returns the job descriptor immediately.
func (m *Manager) Create(ctx context.Context, req models.SummaryRequest) (*models.BatchJob, error) {
	now := time.Now().UTC()
	job := &models.BatchJob{
		ID:      uuid.NewString(),
		UserID:  req.UserID,
		Status:  models.JobPending,
		JobType: "batch_summarization",
		Input:   req,
		Progress: models.JobProgress{
			TotalItems: len(req.Articles),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if m.estimate != nil {
		job.EstimatedCost = m.estimate(ctx, req)
	}

	if err := m.store.Save(ctx, job); err != nil {
		return nil, apierr.Newf(apierr.CategoryInfrastructure, "persist job: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.active[job.ID] = job
	m.cancels[job.ID] = cancel
	m.mu.Unlock()

	go m.run(runCtx, job.ID)

	return snapshot(job), nil
}

// Status returns the job's current state: the in-memory index first, then
// durable storage.
func (m *Manager) Status(ctx context.Context, id string) (*models.BatchJob, error) {
	m.mu.Lock()
	if job, ok := m.active[id]; ok {
		out := snapshot(job)
		m.mu.Unlock()
		return out, nil
	}
	m.mu.Unlock()
	return m.store.LoadByID(ctx, id)
}

// Cancel signals an explicit cancellation. This is a state transition, not
// a hard abort: a model call already in flight completes on its own.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	job, ok := m.active[id]
	if ok && job.Status.Terminal() {
		m.mu.Unlock()
		return apierr.ErrJobTerminal
	}
	if ok {
		job.Status = models.JobCancelled
		job.UpdatedAt = time.Now().UTC()
		if cancel, ok := m.cancels[id]; ok {
			cancel()
		}
		m.doneAt[id] = time.Now()
		out := snapshot(job)
		m.mu.Unlock()

		m.emitProgress(out)
		return m.store.Save(ctx, out)
	}
	m.mu.Unlock()

	stored, err := m.store.LoadByID(ctx, id)
	if err != nil {
		return err
	}
	if stored.Status.Terminal() {
		return apierr.ErrJobTerminal
	}
	stored.Status = models.JobCancelled
	stored.UpdatedAt = time.Now().UTC()
	return m.store.Save(ctx, stored)
}

// Evict drops terminal jobs from the active index once their grace window
// has elapsed, and returns how many were dropped. Durable storage retains
// them.
func (m *Manager) Evict(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, done := range m.doneAt {
		if now.Sub(done) >= m.grace {
			delete(m.active, id)
			delete(m.cancels, id)
			delete(m.doneAt, id)
			evicted++
		}
	}
	return evicted
}

// ActiveCount returns how many jobs the in-memory index holds.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// run is the asynchronous job runner. It transitions the job to processing,
// performs the work, and finalizes to completed (even on partial failure)
// or failed (only on an unrecoverable infrastructure error).
func (m *Manager) run(ctx context.Context, id string) {
	m.mu.Lock()
	job, ok := m.active[id]
	if !ok || job.Status != models.JobPending {
		m.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	job.Status = models.JobProcessing
	job.StartedAt = &now
	job.UpdatedAt = now
	input := job.Input
	out := snapshot(job)
	m.mu.Unlock()

	m.persist(out)
	m.emitProgress(out)

	resp, err := m.summarize.SummarizeWithProgress(ctx, input, func(processed, failed int) {
		m.updateProgress(id, processed, failed)
	})

	m.mu.Lock()
	job, ok = m.active[id]
	if !ok || job.Status.Terminal() {
		// Cancelled while running; the cancel path already persisted.
		m.mu.Unlock()
		return
	}
	now = time.Now().UTC()
	job.UpdatedAt = now
	job.CompletedAt = &now
	if err != nil {
		job.Status = models.JobFailed
		job.Error = err.Error()
	} else {
		job.Status = models.JobCompleted
		job.Output = resp
		job.ActualCost = resp.BatchMetadata.TotalCost
		job.Progress.ProcessedItems = job.Progress.TotalItems
		job.Progress.FailedItems = resp.BatchMetadata.FailedSummaries
		job.Progress.Percentage = 100
	}
	m.doneAt[id] = time.Now()
	out = snapshot(job)
	m.mu.Unlock()

	m.persist(out)
	m.emitProgress(out)
}

// updateProgress applies a monotonic progress update to an active job.
func (m *Manager) updateProgress(id string, processed, failed int) {
	m.mu.Lock()
	job, ok := m.active[id]
	if !ok || job.Status.Terminal() {
		m.mu.Unlock()
		return
	}
	if processed > job.Progress.ProcessedItems {
		job.Progress.ProcessedItems = processed
	}
	if failed > job.Progress.FailedItems {
		job.Progress.FailedItems = failed
	}
	if job.Progress.TotalItems > 0 {
		job.Progress.Percentage = 100 * float64(job.Progress.ProcessedItems) / float64(job.Progress.TotalItems)
	}
	job.UpdatedAt = time.Now().UTC()
	out := snapshot(job)
	m.mu.Unlock()

	m.persist(out)
	m.emitProgress(out)
}

func (m *Manager) persist(job *models.BatchJob) {
	if err := m.store.Save(context.Background(), job); err != nil {
		log.Printf("jobs: persist %s: %v", job.ID, err)
	}
}

func (m *Manager) emitProgress(job *models.BatchJob) {
	m.events.EmitJobProgress(models.JobProgressEvent{
		JobID:    job.ID,
		UserID:   job.UserID,
		Status:   job.Status,
		Progress: job.Progress,
		At:       time.Now().UTC(),
	})
}

// snapshot copies a job so callers never share the mutable struct.
func snapshot(job *models.BatchJob) *models.BatchJob {
	out := *job
	return &out
}
