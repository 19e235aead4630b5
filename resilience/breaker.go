package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/djc-jpg/travel-planning-agent/core"
)

// Breaker states.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// BreakerConfig tunes one circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive countable failures
	// that opens the circuit.
	FailureThreshold int
	// SleepWindow is how long the circuit stays open before probing.
	SleepWindow time.Duration
	// HalfOpenProbes is how many successful probes close the circuit
	// again. One countable failure while probing reopens it.
	HalfOpenProbes int
}

// DefaultBreakerConfig suits per-provider protection: a handful of failures
// opens, a short sleep, two good probes close.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SleepWindow:      30 * time.Second,
		HalfOpenProbes:   2,
	}
}

// Breaker is a consecutive-failure circuit breaker guarding one provider.
// Context cancellation and input errors never count against it.
type Breaker struct {
	name   string
	cfg    BreakerConfig
	logger core.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     string
	changedAt time.Time
	failures  int
	probeWins int

	rejected uint64
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, cfg BreakerConfig, logger core.Logger) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.SleepWindow <= 0 {
		cfg.SleepWindow = DefaultBreakerConfig().SleepWindow
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = DefaultBreakerConfig().HalfOpenProbes
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Breaker{
		name:      name,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		state:     StateClosed,
		changedAt: time.Now(),
	}
}

// Do runs fn under the breaker. When the circuit is open it fails fast with
// ErrCircuitBreakerOpen without invoking fn.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if !b.allow() {
		return &core.PlanError{
			Op:      "resilience.Breaker",
			Code:    core.CodeProviderUnavailable,
			Message: fmt.Sprintf("%s circuit open", b.name),
			Err:     core.ErrCircuitBreakerOpen,
		}
	}
	err := fn(ctx)
	b.record(err)
	return err
}

// State returns the current state name.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeProbe()
	return b.state
}

// Metrics reports breaker counters for diagnostics.
func (b *Breaker) Metrics() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return map[string]interface{}{
		"name":     b.name,
		"state":    b.state,
		"failures": b.failures,
		"rejected": b.rejected,
	}
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeProbe()
	if b.state == StateOpen {
		b.rejected++
		return false
	}
	return true
}

// maybeProbe moves open -> half-open once the sleep window has elapsed.
// Callers hold the lock.
func (b *Breaker) maybeProbe() {
	if b.state == StateOpen && b.now().Sub(b.changedAt) >= b.cfg.SleepWindow {
		b.transition(StateHalfOpen)
	}
}

func (b *Breaker) record(err error) {
	countable := err != nil && b.counts(err)

	b.mu.Lock()
	defer b.mu.Unlock()

	if !countable {
		if err == nil {
			switch b.state {
			case StateHalfOpen:
				b.probeWins++
				if b.probeWins >= b.cfg.HalfOpenProbes {
					b.transition(StateClosed)
				}
			case StateClosed:
				b.failures = 0
			}
		}
		return
	}

	switch b.state {
	case StateHalfOpen:
		b.transition(StateOpen)
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	}
}

// counts decides which errors push the breaker toward open. Client
// cancellation and malformed input say nothing about provider health.
func (b *Breaker) counts(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, core.ErrInputInvalid) || errors.Is(err, core.ErrMissingFields) {
		return false
	}
	return core.IsRetryable(err) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, core.ErrDeadlineExceeded) ||
		errors.Is(err, core.ErrMaxRetriesExceeded)
}

// transition changes state. Callers hold the lock.
func (b *Breaker) transition(next string) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	b.changedAt = b.now()
	b.failures = 0
	b.probeWins = 0

	b.logger.Info("Circuit breaker state changed", map[string]interface{}{
		"operation": "breaker_transition",
		"name":      b.name,
		"from":      prev,
		"to":        next,
	})
}

// call combines the breaker with the retry schedule: each attempt passes
// through the breaker, so a circuit that opens mid-schedule stops the
// remaining attempts immediately. Provider guards skip this composition
// because their HTTP clients retry internally.
func call(ctx context.Context, b *Breaker, cfg RetryConfig, fn func(context.Context) error) error {
	return Retry(ctx, cfg, func(ctx context.Context) error {
		return b.Do(ctx, fn)
	})
}
