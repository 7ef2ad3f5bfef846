// Package cache is a TTL key-value store backed by SQLite, used for model
// catalogs and usage-stat snapshots.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// Cache stores JSON-encoded values with per-entry expiry.
type Cache struct {
	db     *sql.DB
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	ttl_seconds INTEGER NOT NULL
);
`

// New creates a Cache with the given database path and default TTL.
func New(dbPath string, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Cache{db: db, ttl: ttl}, nil
}

// Get loads a cached value into out. Returns false when missing or expired.
func (c *Cache) Get(key string, out any) bool {
	var value []byte
	var createdAt time.Time
	var ttlSeconds int64

	err := c.db.QueryRow(
		`SELECT value, created_at, ttl_seconds FROM cache_entries WHERE key = ?`,
		key,
	).Scan(&value, &createdAt, &ttlSeconds)
	if err != nil {
		c.misses.Add(1)
		return false
	}

	if time.Since(createdAt) > time.Duration(ttlSeconds)*time.Second {
		c.misses.Add(1)
		return false
	}

	if err := json.Unmarshal(value, out); err != nil {
		c.misses.Add(1)
		return false
	}
	c.hits.Add(1)
	return true
}

// Set stores a value with the default TTL.
func (c *Cache) Set(key string, value any) error {
	return c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value with an explicit TTL.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	_, err = c.db.Exec(
		`INSERT OR REPLACE INTO cache_entries (key, value, created_at, ttl_seconds) VALUES (?, ?, ?, ?)`,
		key, data, time.Now().UTC(), int64(ttl.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Delete removes one entry.
func (c *Cache) Delete(key string) error {
	if _, err := c.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// Cleanup removes expired entries and returns how many were removed.
func (c *Cache) Cleanup() (int64, error) {
	res, err := c.db.Exec(
		`DELETE FROM cache_entries WHERE (julianday('now') - julianday(created_at)) * 86400 > ttl_seconds`,
	)
	if err != nil {
		return 0, fmt.Errorf("cache cleanup: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Stats returns hit/miss counters and the current entry count.
func (c *Cache) Stats() (entries, hits, misses int64, err error) {
	if err = c.db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&entries); err != nil {
		return 0, 0, 0, fmt.Errorf("cache stats: %w", err)
	}
	return entries, c.hits.Load(), c.misses.Load(), nil
}

// Ping verifies the database is reachable.
func (c *Cache) Ping() error {
	return c.db.Ping()
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
