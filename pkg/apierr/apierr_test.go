package apierr

import (
	"errors"
	"fmt"
	"testing"
)

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"wrapped validation", Newf(CategoryValidation, "%w: bad", ErrInvalidRequest), CategoryValidation},
		{"wrapped rate limit", WithStatus(CategoryRateLimit, 429, ErrRateLimited), CategoryRateLimit},
		{"double wrapped", fmt.Errorf("outer: %w", New(CategoryNetwork, errors.New("conn reset"))), CategoryNetwork},
		{"unclassified", errors.New("mystery"), CategoryAPI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategoryOf(tt.err); got != tt.want {
				t.Errorf("CategoryOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"invalid request sentinel", fmt.Errorf("call: %w", ErrInvalidRequest), true},
		{"auth sentinel", ErrAuthFailed, true},
		{"cost limit sentinel", Newf(CategoryCostLimit, "%w: over", ErrCostLimit), true},
		{"status 400", WithStatus(CategoryAPI, 400, errors.New("bad request")), true},
		{"status 401", WithStatus(CategoryAPI, 401, errors.New("unauthorized")), true},
		{"status 429", WithStatus(CategoryRateLimit, 429, ErrRateLimited), false},
		{"status 500", WithStatus(CategoryAPI, 500, errors.New("upstream")), false},
		{"network error", New(CategoryNetwork, errors.New("timeout")), false},
		{"plain error", errors.New("whatever"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTerminal(tt.err); got != tt.want {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(WithStatus(CategoryAPI, 400, errors.New("bad"))) {
		t.Error("400 should not be retryable")
	}
	if !IsRetryable(WithStatus(CategoryRateLimit, 429, ErrRateLimited)) {
		t.Error("429 should be retryable")
	}
	if !IsRetryable(New(CategoryNetwork, errors.New("refused"))) {
		t.Error("network errors should be retryable")
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("root cause")
	err := WithStatus(CategoryAPI, 503, inner)
	if !errors.Is(err, inner) {
		t.Error("wrapped error lost its cause")
	}

	var ae *Error
	if !errors.As(err, &ae) {
		t.Fatal("errors.As failed on *Error")
	}
	if ae.Status != 503 {
		t.Errorf("Status = %d, want 503", ae.Status)
	}
}
