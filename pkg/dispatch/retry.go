package dispatch

import (
	"context"
	"time"

	"github.com/recapd-ai/recapd/pkg/apierr"
)

// executeWithRetry runs unit up to maxAttempts times. Terminal failures
// (malformed request, bad credential) abort immediately; everything else
// backs off baseDelay × 2^(attempt-1) between attempts. One success
// short-circuits further retries. After exhaustion the last error
// propagates unchanged in kind.
func (d *Dispatcher) executeWithRetry(ctx context.Context, unit Unit, maxAttempts int) (*Result, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := unit(ctx)
		d.observe(res)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if apierr.IsTerminal(err) {
			return nil, err
		}
		if attempt < maxAttempts {
			delay := d.cfg.BaseRetryDelay * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-d.done:
				return nil, apierr.New(apierr.CategoryInfrastructure, apierr.ErrQueueCleared)
			}
		}
	}
	return nil, lastErr
}
