package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/driftline/browserpilot/core"
)

// RetryStrategy is the exponential-backoff-with-jitter formula from
// spec.md §3: delay(attempt) = min(base*2^(attempt-1)*(1+rand*jitter), max).
type RetryStrategy struct {
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64
}

// DefaultToolRetryStrategy matches the tool-executor configuration surface
// defaults (max_attempts 3, base_backoff_ms 500, max_backoff_ms 10000,
// jitter_factor 0.2).
func DefaultToolRetryStrategy() *RetryStrategy {
	return &RetryStrategy{MaxRetries: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second, JitterFactor: 0.2}
}

// DefaultRecoveryRetryStrategy matches the error-recovery configuration
// surface defaults (max_retries 3, base 1s, max 30s, jitter 0.3).
func DefaultRecoveryRetryStrategy() *RetryStrategy {
	return &RetryStrategy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second, JitterFactor: 0.3}
}

// Delay computes the backoff for the given 1-indexed attempt. src supplies
// the jitter's randomness; a nil src makes the call deterministic with
// jitter=0 and reproducible with any fixed-seed source (spec.md §8:
// "Backoff delay with jitter=0 is deterministic").
func (s *RetryStrategy) Delay(attempt int, src rand.Source) time.Duration {
	base := float64(s.BaseDelay) * math.Pow(2, float64(attempt-1))

	jitterMul := 1.0
	if s.JitterFactor > 0 {
		r := 0.0
		if src != nil {
			r = rand.New(src).Float64()
		}
		jitterMul = 1 + r*s.JitterFactor
	}

	d := time.Duration(base * jitterMul)
	if d > s.MaxDelay {
		d = s.MaxDelay
	}
	if d < 0 {
		d = s.MaxDelay
	}
	return d
}

// backOff adapts the strategy to the cenkalti/backoff/v5 BackOff interface
// so callers that want the library's own attempt bookkeeping (rather than
// the spec-exact Delay formula) can use it directly.
func (s *RetryStrategy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.BaseDelay
	b.MaxInterval = s.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = s.JitterFactor
	return b
}

// Sleep waits for d or until ctx is cancelled, whichever comes first.
// Cancellation is reported as ctx.Err(), never silently swallowed — every
// backoff sleep in the module (tool executor, error recovery) is
// cancellation-aware per spec.md §5.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Classify decides, for a single attempt's error, the error kind (for
// per-attempt metadata) and whether the error is terminal (no further
// attempts should be made).
type Classify func(err error) (kind core.ErrorKind, terminal bool)

// AttemptOutcome records what happened on one attempt, building the
// per-attempt metadata required by model.ToolExecutionResult.
type AttemptOutcome struct {
	Attempt  int
	Duration time.Duration
	Kind     core.ErrorKind
}

// Do runs fn under strategy's backoff schedule using
// github.com/cenkalti/backoff/v5 as the attempt driver: terminal errors are
// wrapped with backoff.Permanent so the library stops immediately, and
// transient errors are retried until strategy.MaxRetries attempts have
// been made in total (one attempt when MaxRetries <= 0), with the
// library's own exponential/jittered interval. It returns the
// last value, the full per-attempt history, and the final error (nil on
// success).
func Do[T any](ctx context.Context, strategy *RetryStrategy, classify Classify, fn func(ctx context.Context, attempt int) (T, error)) (T, []AttemptOutcome, error) {
	var outcomes []AttemptOutcome
	attempt := 0

	result, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		started := time.Now()
		v, callErr := fn(ctx, attempt)
		elapsed := time.Since(started)

		if callErr == nil {
			outcomes = append(outcomes, AttemptOutcome{Attempt: attempt, Duration: elapsed, Kind: ""})
			return v, nil
		}

		kind, terminal := classify(callErr)
		outcomes = append(outcomes, AttemptOutcome{Attempt: attempt, Duration: elapsed, Kind: kind})
		if terminal {
			return v, backoff.Permanent(callErr)
		}
		return v, callErr
	},
		backoff.WithBackOff(strategy.backOff()),
		backoff.WithMaxTries(uint(maxTries(strategy.MaxRetries))),
	)

	if err != nil {
		var permErr *backoff.PermanentError
		if errors.As(err, &permErr) {
			err = permErr.Unwrap()
		}
	}
	return result, outcomes, err
}

func maxTries(maxRetries int) int {
	if maxRetries <= 0 {
		return 1
	}
	return maxRetries
}
