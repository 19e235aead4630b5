// Package resilience wraps outbound provider calls with retries and a
// circuit breaker. Only transient failures are retried or counted against
// the breaker; input errors pass straight through.
package resilience

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/djc-jpg/travel-planning-agent/core"
)

// RetryConfig tunes the backoff schedule.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Jitter spreads synchronized clients; fraction of the delay (0..1).
	Jitter float64
}

// DefaultRetryConfig matches the provider retry schedule: two retries at
// roughly 200ms and 800ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 4.0,
		Jitter:        0.1,
	}
}

// Retry runs fn until it succeeds, returns a non-retryable error, the
// attempts run out, or the context ends. Retryability is decided by
// core.IsRetryable.
func Retry(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	delay := cfg.InitialDelay
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return deadlineError(err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !core.IsRetryable(lastErr) || attempt == cfg.MaxAttempts {
			break
		}

		sleep := delay
		if cfg.Jitter > 0 {
			sleep += time.Duration(cfg.Jitter * rand.Float64() * float64(delay))
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return deadlineError(ctx.Err())
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	if core.IsRetryable(lastErr) {
		return &core.PlanError{
			Op:      "resilience.Retry",
			Code:    core.TaxonomyCode(lastErr),
			Message: fmt.Sprintf("gave up after %d attempts: %v", cfg.MaxAttempts, lastErr),
			Err:     core.ErrMaxRetriesExceeded,
		}
	}
	return lastErr
}

func deadlineError(err error) error {
	return &core.PlanError{
		Op:      "resilience.Retry",
		Code:    core.CodeDeadlineExceeded,
		Message: err.Error(),
		Err:     core.ErrDeadlineExceeded,
	}
}
