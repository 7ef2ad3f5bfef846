// Package apierr defines the error taxonomy shared by the dispatch and
// orchestration layers.
package apierr

import (
	"errors"
	"fmt"
)

// Category classifies a failure for retry decisions and event reporting.
type Category string

const (
	CategoryValidation     Category = "validation_error"
	CategoryCostLimit      Category = "cost_limit"
	CategoryRateLimit      Category = "rate_limit"
	CategoryNetwork        Category = "network_error"
	CategoryAPI            Category = "api_error"
	CategoryInfrastructure Category = "infrastructure_error"
)

// Sentinel errors.
var (
	ErrInvalidRequest = errors.New("recapd: invalid request")
	ErrAuthFailed     = errors.New("recapd: authentication failed")
	ErrRateLimited    = errors.New("recapd: rate limited by provider")
	ErrCostLimit      = errors.New("recapd: cost limit exceeded")
	ErrQueueCleared   = errors.New("recapd: request cancelled, queue cleared")
	ErrEmergencyStop  = errors.New("recapd: emergency stop active")
	ErrNoAPIKey       = errors.New("recapd: no API key configured")
	ErrModelNotFound  = errors.New("recapd: model not found")
	ErrJobNotFound    = errors.New("recapd: job not found")
	ErrJobTerminal    = errors.New("recapd: job already in a terminal state")
	ErrUsageLimit     = errors.New("recapd: usage limit exceeded")
)

// Error wraps an underlying failure with its category and HTTP status,
// preserving the kind through retries.
type Error struct {
	Category Category
	Status   int // HTTP status when applicable, else 0
	Err      error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Category, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a category.
func New(cat Category, err error) *Error {
	return &Error{Category: cat, Err: err}
}

// Newf wraps a formatted message with a category.
func Newf(cat Category, format string, args ...any) *Error {
	return &Error{Category: cat, Err: fmt.Errorf(format, args...)}
}

// WithStatus wraps err with a category and HTTP status.
func WithStatus(cat Category, status int, err error) *Error {
	return &Error{Category: cat, Status: status, Err: err}
}

// CategoryOf returns the category of err, or CategoryAPI for unclassified
// errors.
func CategoryOf(err error) Category {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Category
	}
	return CategoryAPI
}

// IsTerminal reports whether retrying cannot fix err: malformed requests,
// bad credentials, and exceeded cost ceilings abort immediately.
func IsTerminal(err error) bool {
	if errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrCostLimit) {
		return true
	}
	var ae *Error
	if errors.As(err, &ae) {
		if ae.Status == 400 || ae.Status == 401 {
			return true
		}
		return ae.Category == CategoryValidation || ae.Category == CategoryCostLimit
	}
	return false
}

// IsRetryable reports whether err warrants another attempt with backoff.
func IsRetryable(err error) bool {
	if IsTerminal(err) {
		return false
	}
	switch CategoryOf(err) {
	case CategoryRateLimit, CategoryNetwork, CategoryAPI:
		return true
	}
	return false
}
