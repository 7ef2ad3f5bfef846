// Package settings persists per-user configuration: API key, model
// preferences and spend ceilings.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/recapd-ai/recapd/pkg/apierr"
	"github.com/recapd-ai/recapd/pkg/config"
	"github.com/recapd-ai/recapd/pkg/models"
)

// ErrNotFound is returned when a user has no settings row.
var ErrNotFound = errors.New("settings: not found")

// Store exposes settings persistence.
type Store interface {
	GetSettings(ctx context.Context, userID string) (*models.Settings, error)
	SaveSettings(ctx context.Context, s models.Settings) error
	DeleteSettings(ctx context.Context, userID string) error
	// GetAPIKey returns the user's stored API key, or apierr.ErrNoAPIKey
	// when none is configured.
	GetAPIKey(ctx context.Context, userID string) (string, error)
	// CreateDefaultSettings inserts a settings row with configured defaults
	// and returns it. Existing rows are returned unchanged.
	CreateDefaultSettings(ctx context.Context, userID string) (*models.Settings, error)
	Close() error
}

// SQLiteStore implements Store with a SQLite database.
type SQLiteStore struct {
	db       *sql.DB
	defaults config.CostConfig
	model    string
}

const createSettingsTable = `
CREATE TABLE IF NOT EXISTS user_settings (
	user_id TEXT PRIMARY KEY,
	api_key TEXT NOT NULL DEFAULT '',
	default_model TEXT NOT NULL DEFAULT '',
	fallback_model TEXT NOT NULL DEFAULT '',
	fallback_enabled INTEGER NOT NULL DEFAULT 1,
	max_cost_per_request REAL NOT NULL DEFAULT 0,
	daily_cost_limit REAL NOT NULL DEFAULT 0,
	monthly_cost_limit REAL NOT NULL DEFAULT 0,
	default_length TEXT NOT NULL DEFAULT 'medium',
	default_style TEXT NOT NULL DEFAULT 'paragraph',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// New creates a SQLiteStore and runs auto-migration. Cost defaults seed
// rows created by CreateDefaultSettings.
func New(dbPath string, costDefaults config.CostConfig, defaultModel string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open settings db: %w", err)
	}

	if _, err := db.Exec(createSettingsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate settings db: %w", err)
	}

	return &SQLiteStore{db: db, defaults: costDefaults, model: defaultModel}, nil
}

// GetSettings returns one user's settings, or ErrNotFound.
func (s *SQLiteStore) GetSettings(ctx context.Context, userID string) (*models.Settings, error) {
	var out models.Settings
	var fallbackEnabled int
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, api_key, default_model, fallback_model, fallback_enabled,
		        max_cost_per_request, daily_cost_limit, monthly_cost_limit,
		        default_length, default_style, created_at, updated_at
		 FROM user_settings WHERE user_id = ?`,
		userID,
	).Scan(&out.UserID, &out.APIKey, &out.DefaultModel, &out.FallbackModel, &fallbackEnabled,
		&out.MaxCostPerRequest, &out.DailyCostLimit, &out.MonthlyCostLimit,
		&out.DefaultLength, &out.DefaultStyle, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	out.FallbackEnabled = fallbackEnabled != 0
	return &out, nil
}

// SaveSettings inserts or replaces one user's settings.
func (s *SQLiteStore) SaveSettings(ctx context.Context, in models.Settings) error {
	now := time.Now().UTC()
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	in.UpdatedAt = now

	fallbackEnabled := 0
	if in.FallbackEnabled {
		fallbackEnabled = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_settings (user_id, api_key, default_model, fallback_model, fallback_enabled,
		        max_cost_per_request, daily_cost_limit, monthly_cost_limit, default_length, default_style,
		        created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		        api_key = excluded.api_key,
		        default_model = excluded.default_model,
		        fallback_model = excluded.fallback_model,
		        fallback_enabled = excluded.fallback_enabled,
		        max_cost_per_request = excluded.max_cost_per_request,
		        daily_cost_limit = excluded.daily_cost_limit,
		        monthly_cost_limit = excluded.monthly_cost_limit,
		        default_length = excluded.default_length,
		        default_style = excluded.default_style,
		        updated_at = excluded.updated_at`,
		in.UserID, in.APIKey, in.DefaultModel, in.FallbackModel, fallbackEnabled,
		in.MaxCostPerRequest, in.DailyCostLimit, in.MonthlyCostLimit, in.DefaultLength, in.DefaultStyle,
		in.CreatedAt, in.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// DeleteSettings removes one user's settings row.
func (s *SQLiteStore) DeleteSettings(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_settings WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete settings: %w", err)
	}
	return nil
}

// GetAPIKey returns the user's stored API key.
func (s *SQLiteStore) GetAPIKey(ctx context.Context, userID string) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx, `SELECT api_key FROM user_settings WHERE user_id = ?`, userID).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && key == "") {
		return "", fmt.Errorf("%w: user %s", apierr.ErrNoAPIKey, userID)
	}
	if err != nil {
		return "", fmt.Errorf("get api key: %w", err)
	}
	return key, nil
}

// CreateDefaultSettings inserts a row with configured defaults, or returns
// the existing one.
func (s *SQLiteStore) CreateDefaultSettings(ctx context.Context, userID string) (*models.Settings, error) {
	existing, err := s.GetSettings(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	def := models.Settings{
		UserID:            userID,
		DefaultModel:      s.model,
		FallbackEnabled:   true,
		MaxCostPerRequest: s.defaults.MaxCostPerRequest,
		DailyCostLimit:    s.defaults.DailyCostLimit,
		MonthlyCostLimit:  s.defaults.MonthlyCostLimit,
		DefaultLength:     models.LengthMedium,
		DefaultStyle:      models.StyleParagraph,
	}
	if err := s.SaveSettings(ctx, def); err != nil {
		return nil, err
	}
	return s.GetSettings(ctx, userID)
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
