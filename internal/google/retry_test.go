package google

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"postovik/internal/models"

	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
)

func TestRetryPolicy_NextDelay(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries:    3,
		InitialDelay:  2 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // clamped
		{0, 2 * time.Second},  // attempts are 1-based
	}
	for _, tt := range tests {
		if got := policy.NextDelay(tt.attempt); got != tt.want {
			t.Errorf("NextDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetryPolicy_NextDelayZeroValue(t *testing.T) {
	var policy RetryPolicy
	if got := policy.NextDelay(1); got != time.Second {
		t.Errorf("expected 1s fallback, got %v", got)
	}
}

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:    maxRetries,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
	}
}

func TestWithRetry_TransientRecovers(t *testing.T) {
	logger := zerolog.Nop()
	calls := 0
	err := withRetry(context.Background(), &logger, fastPolicy(3), "test", func() error {
		calls++
		if calls < 3 {
			return &googleapi.Error{Code: http.StatusInternalServerError}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	logger := zerolog.Nop()
	calls := 0
	err := withRetry(context.Background(), &logger, fastPolicy(2), "test", func() error {
		calls++
		return &googleapi.Error{Code: http.StatusServiceUnavailable}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	// Initial attempt plus two retries.
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestWithRetry_AuthErrorFailsImmediately(t *testing.T) {
	logger := zerolog.Nop()
	calls := 0
	err := withRetry(context.Background(), &logger, fastPolicy(3), "test", func() error {
		calls++
		return &googleapi.Error{Code: http.StatusUnauthorized}
	})
	if !errors.Is(err, models.ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}
	// Retrying an invalid credential only burns quota.
	if calls != 1 {
		t.Errorf("expected a single call, got %d", calls)
	}
}

func TestWithRetry_ClientErrorFailsImmediately(t *testing.T) {
	logger := zerolog.Nop()
	calls := 0
	err := withRetry(context.Background(), &logger, fastPolicy(3), "test", func() error {
		calls++
		return &googleapi.Error{Code: http.StatusNotFound}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected a single call, got %d", calls)
	}
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	logger := zerolog.Nop()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := withRetry(ctx, &logger, fastPolicy(3), "test", func() error {
		return &googleapi.Error{Code: http.StatusInternalServerError}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context error, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", &googleapi.Error{Code: http.StatusTooManyRequests}, true},
		{"server error", &googleapi.Error{Code: http.StatusInternalServerError}, true},
		{"bad gateway", &googleapi.Error{Code: http.StatusBadGateway}, true},
		{"not found", &googleapi.Error{Code: http.StatusNotFound}, false},
		{"bad request", &googleapi.Error{Code: http.StatusBadRequest}, false},
		{"auth expired", models.ErrAuthExpired, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
