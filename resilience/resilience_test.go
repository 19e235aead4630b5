package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/djc-jpg/travel-planning-agent/core"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return core.ErrProviderUnavailable
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	wantErr := core.ErrInputInvalid
	err := Retry(context.Background(), fastRetry(), func(ctx context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1: input errors must not be retried", calls)
	}
}

func TestRetryExhaustionWrapsMaxRetries(t *testing.T) {
	err := Retry(context.Background(), fastRetry(), func(ctx context.Context) error {
		return core.ErrRateLimited
	})
	if !errors.Is(err, core.ErrMaxRetriesExceeded) {
		t.Fatalf("error = %v, want ErrMaxRetriesExceeded", err)
	}
	if got := core.TaxonomyCode(err); got != core.CodeRateLimited {
		t.Errorf("code = %q, want %q", got, core.CodeRateLimited)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, RetryConfig{MaxAttempts: 5, InitialDelay: 50 * time.Millisecond}, func(ctx context.Context) error {
		calls++
		cancel()
		return core.ErrProviderUnavailable
	})
	if !errors.Is(err, core.ErrDeadlineExceeded) {
		t.Fatalf("error = %v, want deadline mapping", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 after cancellation", calls)
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker("map", BreakerConfig{FailureThreshold: 3, SleepWindow: time.Hour}, nil)

	for i := 0; i < 3; i++ {
		b.Do(context.Background(), func(ctx context.Context) error {
			return core.ErrProviderUnavailable
		})
	}
	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %q, want open after 3 failures", got)
	}

	called := false
	err := b.Do(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, core.ErrCircuitBreakerOpen) {
		t.Errorf("error = %v, want ErrCircuitBreakerOpen", err)
	}
	if called {
		t.Error("open breaker still invoked the function")
	}
}

func TestBreakerIgnoresInputErrors(t *testing.T) {
	b := NewBreaker("llm", BreakerConfig{FailureThreshold: 2, SleepWindow: time.Hour}, nil)

	for i := 0; i < 10; i++ {
		b.Do(context.Background(), func(ctx context.Context) error {
			return core.ErrInputInvalid
		})
	}
	if got := b.State(); got != StateClosed {
		t.Errorf("state = %q, want closed: input errors are not provider failures", got)
	}
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	b := NewBreaker("map", BreakerConfig{FailureThreshold: 3, SleepWindow: time.Hour}, nil)

	fail := func(ctx context.Context) error { return core.ErrProviderUnavailable }
	ok := func(ctx context.Context) error { return nil }

	b.Do(context.Background(), fail)
	b.Do(context.Background(), fail)
	b.Do(context.Background(), ok)
	b.Do(context.Background(), fail)
	b.Do(context.Background(), fail)

	if got := b.State(); got != StateClosed {
		t.Errorf("state = %q, want closed: streak was broken by a success", got)
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	b := NewBreaker("map", BreakerConfig{FailureThreshold: 1, SleepWindow: time.Minute, HalfOpenProbes: 2}, nil)
	base := time.Now()
	b.now = func() time.Time { return base }

	b.Do(context.Background(), func(ctx context.Context) error { return core.ErrProviderUnavailable })
	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %q, want open", got)
	}

	// Sleep window elapses; probes are allowed again.
	b.now = func() time.Time { return base.Add(2 * time.Minute) }
	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("state = %q, want half-open after sleep window", got)
	}

	ok := func(ctx context.Context) error { return nil }
	b.Do(context.Background(), ok)
	b.Do(context.Background(), ok)
	if got := b.State(); got != StateClosed {
		t.Errorf("state = %q, want closed after 2 good probes", got)
	}
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	b := NewBreaker("map", BreakerConfig{FailureThreshold: 1, SleepWindow: time.Minute, HalfOpenProbes: 2}, nil)
	base := time.Now()
	b.now = func() time.Time { return base }

	b.Do(context.Background(), func(ctx context.Context) error { return core.ErrProviderUnavailable })
	b.now = func() time.Time { return base.Add(2 * time.Minute) }
	b.State() // trigger half-open

	b.Do(context.Background(), func(ctx context.Context) error { return core.ErrProviderUnavailable })
	if got := b.State(); got != StateOpen {
		t.Errorf("state = %q, want reopened after failed probe", got)
	}
}

func TestCallStopsRetryingWhenCircuitOpens(t *testing.T) {
	b := NewBreaker("map", BreakerConfig{FailureThreshold: 2, SleepWindow: time.Hour}, nil)

	calls := 0
	err := call(context.Background(), b, RetryConfig{MaxAttempts: 10, InitialDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return core.ErrProviderUnavailable
	})
	if !errors.Is(err, core.ErrCircuitBreakerOpen) {
		t.Fatalf("error = %v, want ErrCircuitBreakerOpen", err)
	}
	// Threshold failures, then the next attempt is rejected without a call.
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}
