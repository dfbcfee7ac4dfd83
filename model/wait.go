package model

import (
	"math"
	"sort"
	"time"
)

// WaitConditionKind enumerates the stability conditions Smart Wait polls
// for (spec.md §4.6).
type WaitConditionKind string

const (
	ConditionNetworkIdle        WaitConditionKind = "network_idle"
	ConditionDOMStable          WaitConditionKind = "dom_stable"
	ConditionAnimationsComplete WaitConditionKind = "animations_complete"
	ConditionLoadersHidden      WaitConditionKind = "loaders_hidden"
	ConditionJavaScriptIdle     WaitConditionKind = "javascript_idle"
	ConditionImagesLoaded       WaitConditionKind = "images_loaded"
	ConditionFontsLoaded        WaitConditionKind = "fonts_loaded"
	ConditionCustomPredicate    WaitConditionKind = "custom_predicate"
	ConditionPageLoad           WaitConditionKind = "page_load"
	ConditionDOMContentLoaded   WaitConditionKind = "dom_content_loaded"
)

// WaitCondition is one condition to poll for, optionally backed by a
// caller-supplied predicate for ConditionCustomPredicate.
type WaitCondition struct {
	Kind      WaitConditionKind
	Predicate func() (bool, error)
}

// StabilityMetrics is the final snapshot returned by wait_for_stable_state.
// StabilityScore is a weighted average of the normalized boolean/count
// signals, in [0,1]; the page is stable iff the five booleans are all true.
type StabilityMetrics struct {
	DOMStable             bool    `json:"dom_stable"`
	AnimationsComplete    bool    `json:"animations_complete"`
	NetworkIdle           bool    `json:"network_idle"`
	LoadersHidden         bool    `json:"loaders_hidden"`
	JavaScriptIdle        bool    `json:"javascript_idle"`
	ImagesLoadedCount     int     `json:"images_loaded_count"`
	ImagesTotalCount      int     `json:"images_total_count"`
	FontsLoadedCount      int     `json:"fonts_loaded_count"`
	FontsTotalCount       int     `json:"fonts_total_count"`
	StabilityScore        float64 `json:"stability_score"`
	IsStable              bool    `json:"is_stable"`
	TimedOut              bool    `json:"timed_out"`
}

// IsFullyStable reports whether all five boolean signals hold, the
// definition of "stable" in spec.md §4.6.
func (m StabilityMetrics) IsFullyStable() bool {
	return m.DOMStable && m.AnimationsComplete && m.NetworkIdle && m.LoadersHidden && m.JavaScriptIdle
}

// TimeoutStrategy selects how adaptive_timeout derives its base duration
// from HistoricalData (spec.md §4.6).
type TimeoutStrategy string

const (
	TimeoutFixed             TimeoutStrategy = "fixed"
	TimeoutAdaptive          TimeoutStrategy = "adaptive"
	TimeoutPercentile        TimeoutStrategy = "percentile"
	TimeoutExponentialBackoff TimeoutStrategy = "exponential_backoff"
	TimeoutLinearBackoff     TimeoutStrategy = "linear_backoff"
)

// DerivedStats are the statistics Smart Wait computes over a sample ring.
type DerivedStats struct {
	Avg    time.Duration
	Median time.Duration
	P95    time.Duration
	P99    time.Duration
	Stddev time.Duration
}

// HistoricalData is a bounded, copy-on-write ring of wait-time samples for
// one action name (spec.md §3, §5: "with_new_sample(...) returns a new
// snapshot; readers never block writers").
type HistoricalData struct {
	Action      string
	Samples     []time.Duration // oldest first, len() <= MaxSamples
	MaxSamples  int
	Successes   int
	Attempts    int
}

// NewHistoricalData creates an empty sample ring capped at maxSamples
// (default 100 per spec.md §6 max_samples).
func NewHistoricalData(action string, maxSamples int) *HistoricalData {
	if maxSamples <= 0 {
		maxSamples = 100
	}
	return &HistoricalData{Action: action, MaxSamples: maxSamples}
}

// WithNewSample returns a new HistoricalData snapshot with sample appended
// (evicting the oldest entry once MaxSamples is exceeded) and the
// success/attempt tally updated. The receiver is never mutated.
func (h *HistoricalData) WithNewSample(sample time.Duration, success bool) *HistoricalData {
	samples := make([]time.Duration, 0, len(h.Samples)+1)
	samples = append(samples, h.Samples...)
	samples = append(samples, sample)
	if len(samples) > h.MaxSamples {
		samples = samples[len(samples)-h.MaxSamples:]
	}

	next := &HistoricalData{
		Action:     h.Action,
		Samples:    samples,
		MaxSamples: h.MaxSamples,
		Attempts:   h.Attempts + 1,
		Successes:  h.Successes,
	}
	if success {
		next.Successes++
	}
	return next
}

// SuccessRate is Successes/Attempts, or 0 with zero attempts.
func (h *HistoricalData) SuccessRate() float64 {
	if h.Attempts == 0 {
		return 0
	}
	return float64(h.Successes) / float64(h.Attempts)
}

// Stats computes the derived statistics over the current sample ring.
func (h *HistoricalData) Stats() DerivedStats {
	n := len(h.Samples)
	if n == 0 {
		return DerivedStats{}
	}

	sorted := make([]time.Duration, n)
	copy(sorted, h.Samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, s := range sorted {
		sum += s
	}
	avg := sum / time.Duration(n)

	var variance float64
	for _, s := range sorted {
		d := float64(s - avg)
		variance += d * d
	}
	variance /= float64(n)
	stddev := time.Duration(math.Sqrt(variance))

	return DerivedStats{
		Avg:    avg,
		Median: percentile(sorted, 0.50),
		P95:    percentile(sorted, 0.95),
		P99:    percentile(sorted, 0.99),
		Stddev: stddev,
	}
}

// percentile expects sorted ascending.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
