package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/recapd-ai/recapd/pkg/apierr"
	"github.com/recapd-ai/recapd/pkg/models"
)

// Store persists batch-job rows. Durable storage is the source of truth
// once a job leaves the in-memory active index.
type Store interface {
	Save(ctx context.Context, job *models.BatchJob) error
	LoadByID(ctx context.Context, id string) (*models.BatchJob, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.BatchJob, error)
	Close() error
}

// SQLiteStore implements Store with a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const createJobsTable = `
CREATE TABLE IF NOT EXISTS batch_jobs (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	status TEXT NOT NULL,
	job_type TEXT NOT NULL,
	input TEXT NOT NULL,
	output TEXT,
	total_items INTEGER NOT NULL DEFAULT 0,
	processed_items INTEGER NOT NULL DEFAULT 0,
	failed_items INTEGER NOT NULL DEFAULT 0,
	percentage REAL NOT NULL DEFAULT 0,
	estimated_cost REAL NOT NULL DEFAULT 0,
	actual_cost REAL NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	started_at DATETIME,
	completed_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_jobs_user ON batch_jobs(user_id, created_at);
`

// NewStore creates a SQLiteStore and runs auto-migration.
func NewStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open jobs db: %w", err)
	}

	if _, err := db.Exec(createJobsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate jobs db: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save inserts or replaces one job row.
func (s *SQLiteStore) Save(ctx context.Context, job *models.BatchJob) error {
	input, err := json.Marshal(job.Input)
	if err != nil {
		return fmt.Errorf("marshal job input: %w", err)
	}
	var output sql.NullString
	if job.Output != nil {
		data, err := json.Marshal(job.Output)
		if err != nil {
			return fmt.Errorf("marshal job output: %w", err)
		}
		output = sql.NullString{String: string(data), Valid: true}
	}
	var started, completed sql.NullTime
	if job.StartedAt != nil {
		started = sql.NullTime{Time: *job.StartedAt, Valid: true}
	}
	if job.CompletedAt != nil {
		completed = sql.NullTime{Time: *job.CompletedAt, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO batch_jobs
		 (id, user_id, status, job_type, input, output, total_items, processed_items, failed_items,
		  percentage, estimated_cost, actual_cost, error, created_at, updated_at, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.UserID, job.Status, job.JobType, string(input), output,
		job.Progress.TotalItems, job.Progress.ProcessedItems, job.Progress.FailedItems, job.Progress.Percentage,
		job.EstimatedCost, job.ActualCost, job.Error, job.CreatedAt, job.UpdatedAt, started, completed,
	)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

// LoadByID returns one job, or apierr.ErrJobNotFound.
func (s *SQLiteStore) LoadByID(ctx context.Context, id string) (*models.BatchJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, status, job_type, input, output, total_items, processed_items, failed_items,
		        percentage, estimated_cost, actual_cost, error, created_at, updated_at, started_at, completed_at
		 FROM batch_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", apierr.ErrJobNotFound, id)
	}
	return job, err
}

// ListByUser returns a user's jobs, newest first.
func (s *SQLiteStore) ListByUser(ctx context.Context, userID string, limit int) ([]*models.BatchJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, status, job_type, input, output, total_items, processed_items, failed_items,
		        percentage, estimated_cost, actual_cost, error, created_at, updated_at, started_at, completed_at
		 FROM batch_jobs WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*models.BatchJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*models.BatchJob, error) {
	var job models.BatchJob
	var input string
	var output sql.NullString
	var started, completed sql.NullTime

	err := row.Scan(&job.ID, &job.UserID, &job.Status, &job.JobType, &input, &output,
		&job.Progress.TotalItems, &job.Progress.ProcessedItems, &job.Progress.FailedItems, &job.Progress.Percentage,
		&job.EstimatedCost, &job.ActualCost, &job.Error, &job.CreatedAt, &job.UpdatedAt, &started, &completed)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(input), &job.Input); err != nil {
		return nil, fmt.Errorf("unmarshal job input: %w", err)
	}
	if output.Valid {
		var resp models.SummaryResponse
		if err := json.Unmarshal([]byte(output.String), &resp); err != nil {
			return nil, fmt.Errorf("unmarshal job output: %w", err)
		}
		job.Output = &resp
	}
	if started.Valid {
		t := started.Time
		job.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
