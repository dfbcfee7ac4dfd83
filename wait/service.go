// Package wait implements the Smart Wait Service (spec.md §4.6): a
// condition-polling stability check and a historical-sample-driven
// adaptive timeout, grounded on the teacher resilience module's own
// poll-with-cancellation-aware-sleep idiom (resilience.Sleep).
package wait

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/driftline/browserpilot/browser"
	"github.com/driftline/browserpilot/core"
	"github.com/driftline/browserpilot/model"
	"github.com/driftline/browserpilot/resilience"
	"github.com/driftline/browserpilot/store"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	minTimeout          = 1 * time.Second
	maxTimeout          = 60 * time.Second
	defaultTimeout      = 10 * time.Second
	safetyFactor        = 1.5
	minSamplesForStats  = 10
	maxSamplesPerAction = 100
)

// Service polls page-stability conditions and derives adaptive timeouts
// from per-action historical wait samples.
type Service struct {
	Agent        browser.Agent
	Store        store.WaitSampleStore // optional; nil means in-memory only
	PollInterval time.Duration
	Logger       core.Logger

	mu      sync.RWMutex
	history map[string]*model.HistoricalData
}

var _ interface {
	WaitForStableState(ctx context.Context, maxWait time.Duration) (model.StabilityMetrics, error)
} = (*Service)(nil)

// NewService wires a Smart Wait Service.
func NewService(agent browser.Agent, sampleStore store.WaitSampleStore, logger core.Logger) *Service {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &Service{
		Agent:        agent,
		Store:        sampleStore,
		PollInterval: defaultPollInterval,
		Logger:       logger,
		history:      make(map[string]*model.HistoricalData),
	}
}

// WaitForStableState is the convenience entrypoint recovery.Service's
// WaitForStability action calls: poll the five standard stability
// conditions until all are true or maxWait elapses, never erroring on
// timeout (IsStable=false, TimedOut=true instead).
func (s *Service) WaitForStableState(ctx context.Context, maxWait time.Duration) (model.StabilityMetrics, error) {
	return s.PollConditions(ctx, defaultConditions(), maxWait, true, false)
}

func defaultConditions() []model.WaitCondition {
	return []model.WaitCondition{
		{Kind: model.ConditionDOMStable},
		{Kind: model.ConditionAnimationsComplete},
		{Kind: model.ConditionNetworkIdle},
		{Kind: model.ConditionLoadersHidden},
		{Kind: model.ConditionJavaScriptIdle},
	}
}

// PollConditions is the full `wait_for_stable_state(conditions, max_wait)`
// operation (spec.md §4.6). requireAll selects AND semantics (false for
// OR); throwOnTimeout controls whether a timeout is returned as an error
// or folded into the metrics snapshot (TimedOut=true, IsStable=false).
func (s *Service) PollConditions(ctx context.Context, conditions []model.WaitCondition, maxWait time.Duration, requireAll bool, throwOnTimeout bool) (model.StabilityMetrics, error) {
	interval := s.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	deadline := time.Now().Add(maxWait)

	var prevHTML string
	haveHTML := false
	var metrics model.StabilityMetrics

	for {
		page := s.currentPageState(ctx)

		results := make([]bool, len(conditions))
		for i, cond := range conditions {
			ok, err := s.checkCondition(ctx, cond, page, &prevHTML, &haveHTML)
			if err != nil {
				s.Logger.DebugContext(ctx, "wait condition check failed", map[string]interface{}{
					"condition": string(cond.Kind), "error": err.Error(),
				})
			}
			results[i] = ok
			applyToMetrics(&metrics, cond.Kind, ok, page)
		}
		metrics.StabilityScore = computeScore(metrics)

		if conditionsSatisfied(results, requireAll) {
			metrics.IsStable = true
			metrics.TimedOut = false
			return metrics, nil
		}

		if !time.Now().Before(deadline) {
			metrics.IsStable = false
			metrics.TimedOut = true
			if throwOnTimeout {
				return metrics, fmt.Errorf("wait: stable state not reached within %s", maxWait)
			}
			return metrics, nil
		}

		if err := resilience.Sleep(ctx, interval); err != nil {
			return metrics, err
		}
	}
}

func conditionsSatisfied(results []bool, requireAll bool) bool {
	if len(results) == 0 {
		return true
	}
	for _, r := range results {
		if requireAll && !r {
			return false
		}
		if !requireAll && r {
			return true
		}
	}
	return requireAll
}

func (s *Service) currentPageState(ctx context.Context) model.PageState {
	if s.Agent == nil {
		return model.PageState{}
	}
	page, err := s.Agent.GetPageState(ctx)
	if err != nil {
		return model.PageState{}
	}
	return page
}

// checkCondition evaluates one condition kind. Animations/loaders/JS-idle
// and image/font load counts have no dedicated Browser Agent accessor
// (spec.md §1 excludes the concrete driver), so they're read from
// PageState.Metadata using the condition's own name as the key — the
// contract a real driver fills in, the same way the teacher's capability
// metadata map carries driver-specific hints.
func (s *Service) checkCondition(ctx context.Context, cond model.WaitCondition, page model.PageState, prevHTML *string, haveHTML *bool) (bool, error) {
	switch cond.Kind {
	case model.ConditionCustomPredicate:
		if cond.Predicate == nil {
			return false, fmt.Errorf("wait: custom predicate condition has no Predicate func")
		}
		return cond.Predicate()

	case model.ConditionDOMStable:
		if s.Agent == nil {
			return false, fmt.Errorf("wait: no agent to read page HTML")
		}
		html, err := s.Agent.GetPageHTML(ctx)
		if err != nil {
			return false, err
		}
		stable := *haveHTML && *prevHTML == html
		*prevHTML = html
		*haveHTML = true
		return stable, nil

	case model.ConditionNetworkIdle:
		return page.LoadState == model.LoadStateNetworkIdle, nil

	case model.ConditionPageLoad:
		return page.LoadState == model.LoadStateLoad || page.LoadState == model.LoadStateNetworkIdle, nil

	case model.ConditionDOMContentLoaded:
		return page.LoadState != model.LoadStateLoading && page.LoadState != "", nil

	case model.ConditionAnimationsComplete, model.ConditionJavaScriptIdle, model.ConditionLoadersHidden:
		return metadataFlag(page, string(cond.Kind)), nil

	case model.ConditionImagesLoaded, model.ConditionFontsLoaded:
		loaded, total := metadataCounts(page, string(cond.Kind))
		return total == 0 || loaded >= total, nil

	default:
		return false, fmt.Errorf("wait: unsupported condition kind %q", cond.Kind)
	}
}

func metadataFlag(page model.PageState, key string) bool {
	if page.Metadata == nil {
		return false
	}
	return page.Metadata[key] == "true"
}

func metadataCounts(page model.PageState, key string) (loaded, total int) {
	if page.Metadata == nil {
		return 0, 0
	}
	loaded, _ = strconv.Atoi(page.Metadata[key+"_loaded"])
	total, _ = strconv.Atoi(page.Metadata[key+"_total"])
	return loaded, total
}

func applyToMetrics(m *model.StabilityMetrics, kind model.WaitConditionKind, ok bool, page model.PageState) {
	switch kind {
	case model.ConditionDOMStable:
		m.DOMStable = ok
	case model.ConditionAnimationsComplete:
		m.AnimationsComplete = ok
	case model.ConditionNetworkIdle:
		m.NetworkIdle = ok
	case model.ConditionLoadersHidden:
		m.LoadersHidden = ok
	case model.ConditionJavaScriptIdle:
		m.JavaScriptIdle = ok
	case model.ConditionImagesLoaded:
		m.ImagesLoadedCount, m.ImagesTotalCount = metadataCounts(page, string(kind))
	case model.ConditionFontsLoaded:
		m.FontsLoadedCount, m.FontsTotalCount = metadataCounts(page, string(kind))
	}
}

// computeScore is the weighted average of the normalized boolean/count
// signals in [0,1] (spec.md §4.6).
func computeScore(m model.StabilityMetrics) float64 {
	signals := []float64{
		boolSignal(m.DOMStable),
		boolSignal(m.AnimationsComplete),
		boolSignal(m.NetworkIdle),
		boolSignal(m.LoadersHidden),
		boolSignal(m.JavaScriptIdle),
		ratioSignal(m.ImagesLoadedCount, m.ImagesTotalCount),
		ratioSignal(m.FontsLoadedCount, m.FontsTotalCount),
	}
	var sum float64
	for _, s := range signals {
		sum += s
	}
	return sum / float64(len(signals))
}

func boolSignal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func ratioSignal(loaded, total int) float64 {
	if total <= 0 {
		return 1
	}
	return float64(loaded) / float64(total)
}

// RecordSample appends one observed wait duration for action to both the
// in-memory ring and, if configured, the durable WaitSampleStore.
func (s *Service) RecordSample(ctx context.Context, action string, d time.Duration, success bool) {
	s.mu.Lock()
	hist := s.history[action]
	if hist == nil {
		hist = model.NewHistoricalData(action, maxSamplesPerAction)
	}
	s.history[action] = hist.WithNewSample(d, success)
	s.mu.Unlock()

	if s.Store != nil {
		if err := s.Store.AppendSample(ctx, action, d.Milliseconds(), success); err != nil {
			s.Logger.WarnContext(ctx, "wait sample persist failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (s *Service) historyFor(ctx context.Context, action string) *model.HistoricalData {
	s.mu.RLock()
	hist := s.history[action]
	s.mu.RUnlock()
	if hist != nil {
		return hist
	}

	if s.Store != nil {
		if loaded, err := s.Store.LoadHistory(ctx, action, maxSamplesPerAction); err == nil && loaded != nil {
			s.mu.Lock()
			s.history[action] = loaded
			s.mu.Unlock()
			return loaded
		}
	}

	empty := model.NewHistoricalData(action, maxSamplesPerAction)
	return empty
}

// AdaptiveTimeout is `adaptive_timeout(action)` (spec.md §4.6): derives a
// base duration from historical samples per strategy, multiplies by the
// safety factor, and clamps to [1s, 60s]. Fewer than 10 samples always
// returns the 10s default.
func (s *Service) AdaptiveTimeout(ctx context.Context, action string, strategy model.TimeoutStrategy) time.Duration {
	hist := s.historyFor(ctx, action)
	if len(hist.Samples) < minSamplesForStats {
		return defaultTimeout
	}

	stats := hist.Stats()
	var base time.Duration
	switch strategy {
	case model.TimeoutFixed:
		base = maxSample(hist.Samples)
	case model.TimeoutAdaptive:
		base = stats.Avg + stats.Stddev
	case model.TimeoutPercentile, model.TimeoutExponentialBackoff, model.TimeoutLinearBackoff:
		// Exponential/linear backoff have no attempt-number input at this
		// call site (resilience.RetryStrategy.Delay already owns
		// attempt-indexed backoff); both fall back to the same p95 base as
		// Percentile.
		base = stats.P95
	default:
		base = stats.Avg + stats.Stddev
	}

	d := time.Duration(float64(base) * safetyFactor)
	if d < minTimeout {
		d = minTimeout
	}
	if d > maxTimeout {
		d = maxTimeout
	}
	return d
}

func maxSample(samples []time.Duration) time.Duration {
	var m time.Duration
	for _, s := range samples {
		if s > m {
			m = s
		}
	}
	return m
}
