// Package ledger records and aggregates per-call usage in SQLite.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/recapd-ai/recapd/pkg/apierr"
	"github.com/recapd-ai/recapd/pkg/models"
)

// Ledger appends usage records and answers windowed aggregate queries.
type Ledger interface {
	// RecordUsage appends one usage record. Records are never mutated.
	RecordUsage(ctx context.Context, rec models.UsageRecord) error
	// GetUsageStats aggregates usage for a user over a window
	// ("daily", "weekly" or "monthly").
	GetUsageStats(ctx context.Context, userID, window string) (*models.UsageStats, error)
	// CheckUsageLimits returns apierr.ErrUsageLimit when the user's spend
	// has reached either ceiling (0 disables a ceiling).
	CheckUsageLimits(ctx context.Context, userID string, dailyLimit, monthlyLimit float64) error
	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error
	// Close releases resources.
	Close() error
}

// SQLiteLedger implements Ledger with a SQLite database.
type SQLiteLedger struct {
	db *sql.DB
}

const createUsageTable = `
CREATE TABLE IF NOT EXISTS usage_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	model TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	cost REAL NOT NULL,
	request_type TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_usage_user_time ON usage_records(user_id, created_at);
`

// New creates a SQLiteLedger and runs auto-migration.
func New(dbPath string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	if _, err := db.Exec(createUsageTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}

	return &SQLiteLedger{db: db}, nil
}

// RecordUsage appends one usage record.
func (l *SQLiteLedger) RecordUsage(ctx context.Context, rec models.UsageRecord) error {
	meta := "{}"
	if len(rec.Metadata) > 0 {
		data, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal usage metadata: %w", err)
		}
		meta = string(data)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO usage_records (user_id, model, prompt_tokens, completion_tokens, total_tokens, cost, request_type, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.UserID, rec.Model, rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens, rec.Cost, rec.RequestType, meta, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// windowStart maps a window name to its start time.
func windowStart(window string, now time.Time) time.Time {
	switch window {
	case "weekly":
		return now.AddDate(0, 0, -7)
	case "monthly":
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default: // daily
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// GetUsageStats aggregates usage for a user over a window.
func (l *SQLiteLedger) GetUsageStats(ctx context.Context, userID, window string) (*models.UsageStats, error) {
	since := windowStart(window, time.Now().UTC())

	rows, err := l.db.QueryContext(ctx,
		`SELECT model, COUNT(*), COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0),
		        COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost), 0)
		 FROM usage_records WHERE user_id = ? AND created_at >= ?
		 GROUP BY model ORDER BY model`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("usage stats: %w", err)
	}
	defer rows.Close()

	stats := &models.UsageStats{
		Window:  window,
		Since:   since,
		ByModel: make(map[string]models.ModelUsage),
	}
	for rows.Next() {
		var model string
		var mu models.ModelUsage
		if err := rows.Scan(&model, &mu.Requests, &mu.PromptTokens, &mu.CompletionTokens, &mu.TotalTokens, &mu.Cost); err != nil {
			return nil, fmt.Errorf("scan usage stats: %w", err)
		}
		stats.ByModel[model] = mu
		stats.TotalRequests += mu.Requests
		stats.TotalTokens += mu.TotalTokens
		stats.TotalCost += mu.Cost
	}
	return stats, rows.Err()
}

// costSince sums cost for one user since a point in time.
func (l *SQLiteLedger) costSince(ctx context.Context, userID string, since time.Time) (float64, error) {
	var total float64
	err := l.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost), 0) FROM usage_records WHERE user_id = ? AND created_at >= ?`,
		userID, since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum cost: %w", err)
	}
	return total, nil
}

// CheckUsageLimits returns apierr.ErrUsageLimit when either ceiling is hit.
func (l *SQLiteLedger) CheckUsageLimits(ctx context.Context, userID string, dailyLimit, monthlyLimit float64) error {
	now := time.Now().UTC()

	if dailyLimit > 0 {
		spent, err := l.costSince(ctx, userID, windowStart("daily", now))
		if err != nil {
			return err
		}
		if spent >= dailyLimit {
			return fmt.Errorf("%w: daily spend $%.4f >= $%.4f", apierr.ErrUsageLimit, spent, dailyLimit)
		}
	}
	if monthlyLimit > 0 {
		spent, err := l.costSince(ctx, userID, windowStart("monthly", now))
		if err != nil {
			return err
		}
		if spent >= monthlyLimit {
			return fmt.Errorf("%w: monthly spend $%.4f >= $%.4f", apierr.ErrUsageLimit, spent, monthlyLimit)
		}
	}
	return nil
}

// Ping verifies the database is reachable.
func (l *SQLiteLedger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// Close releases the database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
