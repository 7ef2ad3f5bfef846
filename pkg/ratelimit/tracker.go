// Package ratelimit tracks server-advertised quota for one credential.
package ratelimit

import (
	"sync"
	"time"

	"github.com/recapd-ai/recapd/pkg/models"
)

// Tracker holds the most recently observed rate-limit snapshot and advises
// the dispatcher when to pause. Mutated only from the dispatcher's own
// response-handling path.
type Tracker struct {
	mu       sync.Mutex
	snap     models.RateLimitSnapshot
	observed bool
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Observe records a snapshot from response headers. Nil snapshots (responses
// without rate-limit headers) are ignored.
func (t *Tracker) Observe(snap *models.RateLimitSnapshot) {
	if snap == nil {
		return
	}
	t.mu.Lock()
	t.snap = *snap
	t.observed = true
	t.mu.Unlock()
}

// Snapshot returns the current observation and whether one exists.
func (t *Tracker) Snapshot() (models.RateLimitSnapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap, t.observed
}

// PauseUntil returns the time the dispatcher should wait for before sending
// the next request, or the zero time when no pause is needed. A pause is
// advised when at most one request remains and the reset is in the future.
func (t *Tracker) PauseUntil(now time.Time) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.observed {
		return time.Time{}
	}
	if t.snap.RequestsRemaining <= 1 && t.snap.ResetTime.After(now) {
		return t.snap.ResetTime
	}
	return time.Time{}
}
