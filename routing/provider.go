// Package routing implements the Routing Provider (spec.md §4.9): it
// composes N llm.Provider backends, each wrapped in its own circuit
// breaker, and ranks them per-request via a Strategy before cascading on
// failure. Grounded on the teacher's ai.ChainClient — per-attempt clone
// semantics, client-error short-circuit, and failover logging — adapted
// from a fixed try-in-order chain to a per-request re-ranked one.
package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/driftline/browserpilot/core"
	"github.com/driftline/browserpilot/llm"
	"github.com/driftline/browserpilot/model"
	"github.com/driftline/browserpilot/resilience"
)

// backend couples one llm.Provider with the circuit breaker guarding it.
type backend struct {
	provider llm.Provider
	breaker  *resilience.CircuitBreaker
}

// Config configures a Provider instance.
type Config struct {
	Strategy       Strategy
	EnableFallback bool          // spec.md §6 configuration surface: enable_fallback (true)
	RequestTimeout time.Duration // default 60s (spec.md §6 request_timeout_s)
	Logger         core.Logger
	// Metrics, when set, receives every per-backend circuit breaker event
	// (telemetry.OTel.CircuitBreakerMetrics() satisfies this). Defaults to
	// a no-op collector.
	Metrics resilience.MetricsCollector
}

// Provider is the Routing Provider: composes N llm.Provider backends,
// each behind its own circuit breaker, and ranks them per request.
type Provider struct {
	backends []backend
	strategy Strategy
	fallback bool
	timeout  time.Duration
	logger   core.Logger
}

// New composes a Provider over the given llm.Provider backends. Each
// backend is wrapped in its own circuit breaker using the breaker
// defaults, named after the provider.
func New(cfg Config, providers ...llm.Provider) (*Provider, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("routing: at least one provider required")
	}
	if cfg.Strategy == nil {
		return nil, fmt.Errorf("routing: configuration error: no strategy configured")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = llm.RequestTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = core.NoOpLogger{}
	}

	backends := make([]backend, 0, len(providers))
	for _, p := range providers {
		breakerCfg := resilience.DefaultConfig("routing." + p.Name())
		breakerCfg.Logger = logger
		if cfg.Metrics != nil {
			breakerCfg.Metrics = cfg.Metrics
		}
		cb, err := resilience.New(breakerCfg)
		if err != nil {
			return nil, fmt.Errorf("routing: init circuit breaker for %s: %w", p.Name(), err)
		}
		backends = append(backends, backend{provider: p, breaker: cb})
	}

	return &Provider{
		backends: backends,
		strategy: cfg.Strategy,
		fallback: cfg.EnableFallback,
		timeout:  timeout,
		logger:   logger,
	}, nil
}

// eligible filters to backends whose breaker allows requests, scoring
// each via the strategy and excluding ScoreIneligible results.
func (p *Provider) eligible(ctx model.RoutingContext, attempted map[string]bool) []scored {
	var out []scored
	for _, b := range p.backends {
		if attempted[b.provider.Name()] {
			continue
		}
		if !b.breaker.IsRequestAllowed() {
			continue
		}
		score := p.strategy.Score(ctx, candidate{provider: b.provider, caps: b.provider.GetCapabilities()})
		if score == ScoreIneligible {
			continue
		}
		out = append(out, scored{backend: b, score: score})
	}
	return out
}

type scored struct {
	backend backend
	score   float64
}

func bestOf(cands []scored) (backend, bool) {
	if len(cands) == 0 {
		return backend{}, false
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.score > best.score {
			best = c
		}
	}
	return best.backend, true
}

// Complete runs the request through the highest-ranked eligible provider,
// cascading to the next-best on failure while fallback is enabled
// (spec.md §4.9 steps 2-5).
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest, opts RequestOptions) (llm.CompletionResponse, error) {
	routingCtx := DeriveContext(req, opts)
	attempted := make(map[string]bool)
	var lastErr error
	var attemptedNames []string

	for {
		cands := p.eligible(routingCtx, attempted)
		b, ok := bestOf(cands)
		if !ok {
			if lastErr == nil {
				lastErr = fmt.Errorf("no eligible provider for task_type=%s", routingCtx.TaskType)
			}
			return llm.CompletionResponse{}, &core.FrameworkError{
				Op:      "routing.Complete",
				Kind:    core.KindUnknown,
				Message: fmt.Sprintf("all providers failed, attempted: %v", attemptedNames),
				Err:     fmt.Errorf("%w: %w", core.ErrAllProvidersFailed, lastErr),
			}
		}

		attempted[b.provider.Name()] = true
		attemptedNames = append(attemptedNames, b.provider.Name())

		attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
		resp, err := b.provider.Complete(attemptCtx, req)
		cancel()

		if err == nil {
			b.breaker.RecordSuccess()
			return resp, nil
		}

		b.breaker.RecordFailure(err)
		lastErr = err
		p.logger.WarnContext(ctx, "routing provider attempt failed", map[string]interface{}{
			"provider": b.provider.Name(),
			"error":    err.Error(),
		})

		if !p.fallback {
			return llm.CompletionResponse{}, fmt.Errorf("routing: provider %s failed (fallback disabled): %w", b.provider.Name(), err)
		}
	}
}

// StreamComplete runs the request through the highest-ranked eligible
// provider with no mid-stream fallback (spec.md §4.9: "a mid-stream
// failure does not retry to a different provider").
func (p *Provider) StreamComplete(ctx context.Context, req llm.CompletionRequest, opts RequestOptions) (<-chan llm.Chunk, error) {
	routingCtx := DeriveContext(req, opts)
	routingCtx.RequireStreaming = true

	cands := p.eligible(routingCtx, nil)
	b, ok := bestOf(cands)
	if !ok {
		return nil, &core.FrameworkError{
			Op:      "routing.StreamComplete",
			Kind:    core.KindUnknown,
			Message: "no eligible streaming provider",
			Err:     core.ErrAllProvidersFailed,
		}
	}

	ch, err := b.provider.StreamComplete(ctx, req)
	if err != nil {
		b.breaker.RecordFailure(err)
		return nil, fmt.Errorf("routing: provider %s failed to start stream: %w", b.provider.Name(), err)
	}

	out := make(chan llm.Chunk)
	go func() {
		defer close(out)
		var streamErr error
		for chunk := range ch {
			if chunk.Err != nil {
				streamErr = chunk.Err
			}
			out <- chunk
		}
		if streamErr != nil {
			b.breaker.RecordFailure(streamErr)
		} else {
			b.breaker.RecordSuccess()
		}
	}()
	return out, nil
}
