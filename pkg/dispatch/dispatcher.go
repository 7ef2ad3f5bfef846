// Package dispatch serializes outbound requests for one credential: a FIFO
// queue drained by a single worker, rate-limit pauses, bounded retry with
// exponential backoff, and spend accounting on every response.
package dispatch

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/recapd-ai/recapd/pkg/apierr"
	"github.com/recapd-ai/recapd/pkg/config"
	"github.com/recapd-ai/recapd/pkg/costguard"
	"github.com/recapd-ai/recapd/pkg/models"
	"github.com/recapd-ai/recapd/pkg/ratelimit"
)

// Result is the outcome of one executed unit of work. Snapshot and Cost are
// consumed by the dispatcher's response path even when the unit failed.
type Result struct {
	Response *models.ChatCompletionResponse
	Snapshot *models.RateLimitSnapshot
	Cost     float64
}

// Unit is a callable unit of work admitted to the queue.
type Unit func(ctx context.Context) (*Result, error)

type settled struct {
	res *Result
	err error
}

type pendingRequest struct {
	unit Unit
	ch   chan settled
}

// Dispatcher owns the request queue for a single credential. At most one
// request is in flight at a time; queued units complete in submission order.
type Dispatcher struct {
	userID  string
	cfg     config.DispatchConfig
	tracker *ratelimit.Tracker
	guard   *costguard.Guard
	events  *models.Events
	pacer   *rate.Limiter

	mu         sync.Mutex
	queue      []*pendingRequest
	processing bool
	stopped    bool
	lastUsed   time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Dispatcher and starts its tick loop. The loop is kicked
// periodically rather than running continuously, so an empty queue costs
// nothing beyond the tick.
func New(userID string, cfg config.DispatchConfig, tracker *ratelimit.Tracker, guard *costguard.Guard, events *models.Events) *Dispatcher {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.InterRequestDelay <= 0 {
		cfg.InterRequestDelay = 100 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = time.Second
	}
	if cfg.WarnThreshold <= 0 {
		cfg.WarnThreshold = 10
	}
	d := &Dispatcher{
		userID:   userID,
		cfg:      cfg,
		tracker:  tracker,
		guard:    guard,
		events:   events,
		pacer:    rate.NewLimiter(rate.Every(cfg.InterRequestDelay), 1),
		lastUsed: time.Now(),
		done:     make(chan struct{}),
	}
	go d.tickLoop()
	return d
}

// Do enqueues unit and waits for its settled outcome. A queue clear settles
// pending units with apierr.ErrQueueCleared. Cancelling ctx while the unit
// is still queued withdraws it from the queue.
func (d *Dispatcher) Do(ctx context.Context, unit Unit) (*Result, error) {
	p := &pendingRequest{unit: unit, ch: make(chan settled, 1)}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil, apierr.New(apierr.CategoryInfrastructure, apierr.ErrQueueCleared)
	}
	d.queue = append(d.queue, p)
	d.lastUsed = time.Now()
	d.mu.Unlock()

	d.kick()

	select {
	case s := <-p.ch:
		return s.res, s.err
	case <-ctx.Done():
		d.remove(p)
		return nil, ctx.Err()
	}
}

// remove drops a still-queued unit whose caller gave up, so it never
// executes (and never spends) with nobody listening. A unit already handed
// to the drain loop runs to completion; its buffered channel absorbs the
// settled outcome.
func (d *Dispatcher) remove(p *pendingRequest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, q := range d.queue {
		if q == p {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			return
		}
	}
}

// ClearQueue atomically drains the queue, rejecting every pending unit with
// a cancellation error. A unit already executing is unaffected.
func (d *Dispatcher) ClearQueue() int {
	d.mu.Lock()
	cleared := d.queue
	d.queue = nil
	d.mu.Unlock()

	for _, p := range cleared {
		p.ch <- settled{err: apierr.New(apierr.CategoryInfrastructure, apierr.ErrQueueCleared)}
	}
	return len(cleared)
}

// QueueDepth returns the number of not-yet-started units.
func (d *Dispatcher) QueueDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// LastUsed returns the time of the most recent enqueue.
func (d *Dispatcher) LastUsed() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastUsed
}

// RateLimit returns the current rate-limit observation, if any.
func (d *Dispatcher) RateLimit() (models.RateLimitSnapshot, bool) {
	return d.tracker.Snapshot()
}

// Stop halts the tick loop and rejects all pending units. Further enqueues
// fail immediately.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		d.mu.Unlock()
		close(d.done)
		d.ClearQueue()
	})
}

func (d *Dispatcher) tickLoop() {
	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.kick()
		case <-d.done:
			return
		}
	}
}

// kick starts a drain goroutine unless one is already running. The
// processing guard guarantees a single active loop per credential.
func (d *Dispatcher) kick() {
	d.mu.Lock()
	if d.processing || d.stopped || len(d.queue) == 0 {
		d.mu.Unlock()
		return
	}
	d.processing = true
	d.mu.Unlock()
	go d.drain()
}

func (d *Dispatcher) drain() {
	defer func() {
		d.mu.Lock()
		d.processing = false
		d.mu.Unlock()
	}()

	for {
		if until := d.tracker.PauseUntil(time.Now()); !until.IsZero() {
			wait := time.Until(until)
			log.Printf("dispatch[%s]: rate limited, pausing %s until reset", d.userID, wait.Round(time.Millisecond))
			select {
			case <-time.After(wait):
			case <-d.done:
				return
			}
		}

		d.mu.Lock()
		if d.stopped || len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		p := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		res, err := d.executeWithRetry(context.Background(), p.unit, d.cfg.MaxRetries)
		if err != nil {
			d.events.EmitError(models.ErrorEvent{
				UserID:   d.userID,
				Category: string(apierr.CategoryOf(err)),
				Message:  err.Error(),
			})
		}
		// One failed unit never stops the queue.
		p.ch <- settled{res: res, err: err}

		// Small fixed spacing between units, even under the limit.
		_ = d.pacer.Wait(context.Background())
	}
}

// observe feeds a unit's outcome into the rate-limit tracker and the cost
// guard, emitting warnings when thresholds are crossed.
func (d *Dispatcher) observe(res *Result) {
	if res == nil {
		return
	}
	if res.Snapshot != nil {
		d.tracker.Observe(res.Snapshot)
		if res.Snapshot.RequestsRemaining < d.cfg.WarnThreshold {
			d.events.EmitRateLimitWarning(models.RateLimitWarning{
				UserID:   d.userID,
				Snapshot: *res.Snapshot,
			})
		}
	}
	if res.Cost > 0 && d.guard != nil {
		d.guard.AddSpend(res.Cost)
		limit := d.guard.DailyLimit()
		if limit > 0 {
			used := d.guard.DailyUsed()
			if used >= 0.9*limit {
				d.events.EmitCostAlert(models.CostAlert{
					UserID:     d.userID,
					DailyUsed:  used,
					DailyLimit: limit,
				})
			}
		}
	}
}
