// Package resilience provides the per-provider circuit breaker and the
// retry/backoff primitives used by the tool executor, the routing provider,
// and the error recovery service. Adapted from the teacher's resilience
// module: atomic state storage guarded by a transition mutex, a pluggable
// MetricsCollector, and a DefaultErrorClassifier that excludes user/config
// errors from tripping the breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/driftline/browserpilot/core"
)

// CircuitState is the breaker's current disposition toward new requests.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MetricsCollector receives circuit breaker events for external monitoring.
// telemetry.OTel satisfies this via the otelMetrics adapter in that package.
type MetricsCollector interface {
	RecordSuccess(name string)
	RecordFailure(name string, kind core.ErrorKind)
	RecordStateChange(name string, from, to CircuitState)
	RecordRejection(name string)
}

type noopMetrics struct{}

func (noopMetrics) RecordSuccess(string)                       {}
func (noopMetrics) RecordFailure(string, core.ErrorKind)       {}
func (noopMetrics) RecordStateChange(string, CircuitState, CircuitState) {}
func (noopMetrics) RecordRejection(string)                     {}

// ErrorClassifier decides whether err should count toward the consecutive
// failure tally. Configuration/not-found/state errors are the caller's
// fault, not the provider's, and shouldn't trip the breaker.
type ErrorClassifier func(err error) bool

// DefaultErrorClassifier counts everything except client-side mistakes and
// deliberate cancellation.
func DefaultErrorClassifier(err error) bool {
	if err == nil {
		return false
	}
	if core.IsConfigurationError(err) || core.IsNotFound(err) || core.IsStateError(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, core.ErrContextCanceled) {
		return false
	}
	return true
}

// Config controls breaker construction. FailureThreshold and OpenDuration
// are the two knobs named in the configuration surface (spec.md §6):
// failure_threshold (default 5), open_duration_s (default 30).
type Config struct {
	Name             string
	FailureThreshold int
	OpenDuration     time.Duration
	ErrorClassifier  ErrorClassifier
	Logger           core.Logger
	Metrics          MetricsCollector
}

// DefaultConfig returns the configuration-surface defaults.
func DefaultConfig(name string) *Config {
	return &Config{
		Name:             name,
		FailureThreshold: 5,
		OpenDuration:     30 * time.Second,
		ErrorClassifier:  DefaultErrorClassifier,
		Logger:           core.NoOpLogger{},
		Metrics:          noopMetrics{},
	}
}

// Stats is a point-in-time snapshot for monitoring and tests.
type Stats struct {
	Name                string
	State               CircuitState
	ConsecutiveFailures int32
	LastFailureTime     time.Time
	LastFailureKind     core.ErrorKind
	OpenedAt            time.Time
}

// CircuitBreaker is the Closed/Open/HalfOpen state machine from spec.md
// §4.8: consecutive failures drive Open, a single HalfOpen probe decides
// recovery, and a sleep window gates the Open→HalfOpen transition.
type CircuitBreaker struct {
	config *Config

	state          atomic.Value // CircuitState
	stateChangedAt atomic.Value // time.Time

	consecutiveFailures atomic.Int32
	lastFailureTime     atomic.Value // time.Time
	lastFailureKind     atomic.Value // core.ErrorKind

	halfOpenInFlight atomic.Bool

	forceOpen   atomic.Bool
	forceClosed atomic.Bool

	listeners []func(name string, from, to CircuitState)

	mu sync.Mutex
}

// New creates a circuit breaker in the Closed state.
func New(config *Config) (*CircuitBreaker, error) {
	if config == nil {
		return nil, errors.New("resilience: config is required")
	}
	if config.Name == "" {
		return nil, errors.New("resilience: config.Name is required")
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.OpenDuration <= 0 {
		config.OpenDuration = 30 * time.Second
	}
	if config.ErrorClassifier == nil {
		config.ErrorClassifier = DefaultErrorClassifier
	}
	if config.Logger == nil {
		config.Logger = core.NoOpLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = noopMetrics{}
	}

	cb := &CircuitBreaker{config: config}
	cb.state.Store(StateClosed)
	cb.stateChangedAt.Store(time.Now())
	cb.lastFailureKind.Store(core.ErrorKind(""))
	cb.lastFailureTime.Store(time.Time{})
	return cb, nil
}

// IsRequestAllowed reports whether a new request may proceed, performing
// the Open→HalfOpen transition as a side effect when the sleep window has
// elapsed. Exactly one HalfOpen probe is admitted at a time.
func (cb *CircuitBreaker) IsRequestAllowed() bool {
	if cb.forceClosed.Load() {
		return true
	}
	if cb.forceOpen.Load() {
		return false
	}

	switch cb.currentState() {
	case StateClosed:
		return true

	case StateOpen:
		openedAt := cb.stateChangedAt.Load().(time.Time)
		if time.Since(openedAt) < cb.config.OpenDuration {
			return false
		}
		cb.mu.Lock()
		if cb.currentState() == StateOpen {
			cb.transitionLocked(StateHalfOpen)
		}
		cb.mu.Unlock()
		return cb.IsRequestAllowed()

	case StateHalfOpen:
		return cb.halfOpenInFlight.CompareAndSwap(false, true)

	default:
		return false
	}
}

// Execute is a convenience wrapper: it checks IsRequestAllowed, runs fn, and
// records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.IsRequestAllowed() {
		cb.config.Metrics.RecordRejection(cb.config.Name)
		return fmt.Errorf("circuit breaker %q is open: %w", cb.config.Name, core.ErrCircuitBreakerOpen)
	}
	err := fn(ctx)
	if err != nil {
		cb.RecordFailure(err)
	} else {
		cb.RecordSuccess()
	}
	return err
}

// RecordSuccess closes the circuit (from HalfOpen) and resets the failure
// tally.
func (cb *CircuitBreaker) RecordSuccess() {
	if cb.forceOpen.Load() || cb.forceClosed.Load() {
		return
	}
	wasHalfOpen := cb.currentState() == StateHalfOpen
	cb.consecutiveFailures.Store(0)
	cb.config.Metrics.RecordSuccess(cb.config.Name)

	if wasHalfOpen {
		cb.halfOpenInFlight.Store(false)
		cb.mu.Lock()
		cb.transitionLocked(StateClosed)
		cb.mu.Unlock()
	}
}

// RecordFailure records a failure (subject to the configured classifier)
// and transitions Closed→Open once consecutive failures reach the
// threshold, or HalfOpen→Open immediately on the probe's failure.
func (cb *CircuitBreaker) RecordFailure(err error) {
	if cb.forceOpen.Load() || cb.forceClosed.Load() {
		return
	}
	if !cb.config.ErrorClassifier(err) {
		return
	}

	kind := core.KindUnknown
	var fe *core.FrameworkError
	if errors.As(err, &fe) {
		kind = fe.Kind
	}
	cb.lastFailureTime.Store(time.Now())
	cb.lastFailureKind.Store(kind)
	cb.config.Metrics.RecordFailure(cb.config.Name, kind)

	state := cb.currentState()
	if state == StateHalfOpen {
		cb.halfOpenInFlight.Store(false)
		cb.mu.Lock()
		cb.transitionLocked(StateOpen)
		cb.mu.Unlock()
		return
	}

	failures := cb.consecutiveFailures.Add(1)
	if state == StateClosed && int(failures) >= cb.config.FailureThreshold {
		cb.mu.Lock()
		if cb.currentState() == StateClosed {
			cb.transitionLocked(StateOpen)
		}
		cb.mu.Unlock()
	}
}

// Reset returns the breaker to Closed with all counters cleared.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures.Store(0)
	cb.halfOpenInFlight.Store(false)
	cb.transitionLocked(StateClosed)
}

// ForceOpen and ForceClosed are administrative overrides (spec.md §4.8:
// "a reset() is provided for administrative use" — extended here with the
// teacher's force-open/force-closed pair; nothing else in this module
// calls them).
func (cb *CircuitBreaker) ForceOpen() {
	cb.forceOpen.Store(true)
	cb.forceClosed.Store(false)
	cb.mu.Lock()
	if cb.currentState() != StateOpen {
		cb.transitionLocked(StateOpen)
	}
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) ForceClosed() {
	cb.forceClosed.Store(true)
	cb.forceOpen.Store(false)
	cb.mu.Lock()
	if cb.currentState() != StateClosed {
		cb.transitionLocked(StateClosed)
	}
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) ClearForce() {
	cb.forceOpen.Store(false)
	cb.forceClosed.Store(false)
}

// AddStateChangeListener registers a callback invoked (in its own
// goroutine) on every transition.
func (cb *CircuitBreaker) AddStateChangeListener(listener func(name string, from, to CircuitState)) {
	cb.mu.Lock()
	cb.listeners = append(cb.listeners, listener)
	cb.mu.Unlock()
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState { return cb.currentState() }

// Stats returns a snapshot for monitoring/tests.
func (cb *CircuitBreaker) Stats() Stats {
	return Stats{
		Name:                cb.config.Name,
		State:               cb.currentState(),
		ConsecutiveFailures: cb.consecutiveFailures.Load(),
		LastFailureTime:     cb.lastFailureTime.Load().(time.Time),
		LastFailureKind:     cb.lastFailureKind.Load().(core.ErrorKind),
		OpenedAt:            cb.stateChangedAt.Load().(time.Time),
	}
}

func (cb *CircuitBreaker) currentState() CircuitState {
	return cb.state.Load().(CircuitState)
}

// transitionLocked must be called with cb.mu held.
func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	from := cb.currentState()
	if from == to {
		return
	}
	cb.state.Store(to)
	cb.stateChangedAt.Store(time.Now())
	if to == StateHalfOpen {
		cb.halfOpenInFlight.Store(false)
	}

	cb.config.Logger.Info("circuit breaker state changed", map[string]interface{}{
		"name": cb.config.Name,
		"from": from.String(),
		"to":   to.String(),
	})
	cb.config.Metrics.RecordStateChange(cb.config.Name, from, to)

	for _, listener := range cb.listeners {
		go listener(cb.config.Name, from, to)
	}
}
