package google

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// RetryPolicy defines exponential backoff parameters for Google API calls.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy matches the quota behavior of the Google APIs: a few
// quick attempts with doubling delays, capped under the handler timeout.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:    3,
	InitialDelay:  2 * time.Second,
	MaxDelay:      30 * time.Second,
	BackoffFactor: 2,
}

// NextDelay returns delay for a given attempt (1-based) with clamping.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}

	delay := float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1))
	d := time.Duration(delay)
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if d <= 0 {
		d = time.Second
	}
	return d
}

// withRetry runs fn, retrying transient API failures per the policy.
// Auth errors and client-side errors fail immediately.
func withRetry(ctx context.Context, logger *zerolog.Logger, policy RetryPolicy, op string, fn func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = wrapAuthError(fn())
		if err == nil {
			return nil
		}
		if !isRetryable(err) || attempt > policy.MaxRetries {
			return err
		}

		delay := policy.NextDelay(attempt)
		logger.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("delay", delay).Msg("transient api error, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
