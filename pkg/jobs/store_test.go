package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/recapd-ai/recapd/pkg/apierr"
	"github.com/recapd-ai/recapd/pkg/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("NewStore() = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	started := time.Now().UTC().Truncate(time.Second)
	job := &models.BatchJob{
		ID:      "job-1",
		UserID:  "u1",
		Status:  models.JobCompleted,
		JobType: "batch_summarization",
		Input: models.SummaryRequest{
			UserID:   "u1",
			Articles: []models.Article{{ID: "a1", Content: "text"}},
			Strategy: models.StrategyBatched,
		},
		Output: &models.SummaryResponse{
			Model: "m/m",
			Summaries: []models.ArticleSummary{
				{ArticleID: "a1", Summary: "short"},
			},
			BatchMetadata: models.BatchMetadata{SuccessfulSummaries: 1, TotalCost: 0.01},
		},
		Progress:      models.JobProgress{TotalItems: 1, ProcessedItems: 1, Percentage: 100},
		EstimatedCost: 0.02,
		ActualCost:    0.01,
		CreatedAt:     started,
		UpdatedAt:     started,
		StartedAt:     &started,
	}

	if err := store.Save(ctx, job); err != nil {
		t.Fatalf("Save() = %v", err)
	}

	got, err := store.LoadByID(ctx, "job-1")
	if err != nil {
		t.Fatalf("LoadByID() = %v", err)
	}
	if got.Status != models.JobCompleted || got.UserID != "u1" {
		t.Errorf("loaded job = %+v", got)
	}
	if got.Input.Strategy != models.StrategyBatched || len(got.Input.Articles) != 1 {
		t.Errorf("input lost in round trip: %+v", got.Input)
	}
	if got.Output == nil || got.Output.BatchMetadata.SuccessfulSummaries != 1 {
		t.Errorf("output lost in round trip: %+v", got.Output)
	}
	if got.Progress.Percentage != 100 {
		t.Errorf("percentage = %v", got.Progress.Percentage)
	}
	if got.StartedAt == nil {
		t.Error("started_at lost")
	}
	if got.CompletedAt != nil {
		t.Error("completed_at invented")
	}
}

func TestSaveOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := &models.BatchJob{
		ID: "job-1", UserID: "u1", Status: models.JobPending,
		JobType: "batch_summarization", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	if err := store.Save(ctx, job); err != nil {
		t.Fatalf("Save() = %v", err)
	}
	job.Status = models.JobProcessing
	if err := store.Save(ctx, job); err != nil {
		t.Fatalf("second Save() = %v", err)
	}

	got, err := store.LoadByID(ctx, "job-1")
	if err != nil {
		t.Fatalf("LoadByID() = %v", err)
	}
	if got.Status != models.JobProcessing {
		t.Errorf("status = %s, want processing", got.Status)
	}
}

func TestLoadByIDNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LoadByID(context.Background(), "ghost")
	if !errors.Is(err, apierr.ErrJobNotFound) {
		t.Errorf("LoadByID(ghost) = %v, want ErrJobNotFound", err)
	}
}

func TestListByUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, user := range []string{"u1", "u1", "u2"} {
		job := &models.BatchJob{
			ID: string(rune('a' + i)), UserID: user, Status: models.JobCompleted,
			JobType:   "batch_summarization",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Save(ctx, job); err != nil {
			t.Fatalf("Save() = %v", err)
		}
	}

	got, err := store.ListByUser(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("ListByUser() = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListByUser() returned %d jobs, want 2", len(got))
	}
	// Newest first.
	if !got[0].CreatedAt.After(got[1].CreatedAt) {
		t.Errorf("jobs not sorted newest first: %v, %v", got[0].CreatedAt, got[1].CreatedAt)
	}
}
