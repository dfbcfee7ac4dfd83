// Package healing implements the Self-Healing strategy chain (spec.md
// §4.7): given a failing selector, try a declared-priority sequence of
// strategies, each emitting scored candidates, and keep the best one that
// clears the confidence threshold.
package healing

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/driftline/browserpilot/core"
	"github.com/driftline/browserpilot/model"
	"github.com/driftline/browserpilot/store"
)

const confidenceThreshold = 0.75

// strategy is the internal contract each healing technique implements.
// Candidates may return (nil, nil) when the technique simply has nothing
// to offer for this input — that is not an error.
type strategy interface {
	name() model.HealingStrategy
	candidates(ctx context.Context, input Input) ([]model.HealedSelector, error)
}

// Input bundles everything a strategy needs to propose replacement
// selectors for one failing selector.
type Input struct {
	OriginalSelector string
	Page             model.PageState
	ExpectedText     string
	Screenshot       []byte
	Baseline         *model.HealingHistoryRow // most recent prior successful heal that stored a VisualHash, if any
}

// Engine runs the strategy chain concurrently (golang.org/x/sync/errgroup
// bounds the fan-out, mirroring the teacher's parallel-step semaphore
// idiom) and keeps the highest-confidence candidate at or above the
// threshold, breaking ties by declared strategy priority.
type Engine struct {
	strategies []strategy
	priority   map[model.HealingStrategy]int
	Store      store.HealingHistoryStore
	Logger     core.Logger
}

// NewEngine wires a Self-Healing engine with the five strategies from
// spec.md §4.7 in their declared priority order.
func NewEngine(healingStore store.HealingHistoryStore, logger core.Logger) *Engine {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	strategies := []strategy{
		textContentStrategy{},
		ariaLabelStrategy{},
		fuzzyAttributeStrategy{},
		positionStrategy{},
		visualSimilarityStrategy{},
	}
	priority := make(map[model.HealingStrategy]int, len(strategies))
	for i, s := range strategies {
		priority[s.name()] = i
	}
	return &Engine{strategies: strategies, priority: priority, Store: healingStore, Logger: logger}
}

// Heal is the §4.7 public operation. It returns (nil, nil) when no
// candidate clears the confidence threshold — absence of a healing
// candidate is not itself an error condition.
func (e *Engine) Heal(ctx context.Context, originalSelector string, page model.PageState, expectedText string, screenshot []byte) (*model.HealedSelector, error) {
	input := Input{
		OriginalSelector: originalSelector,
		Page:             page,
		ExpectedText:     expectedText,
		Screenshot:       screenshot,
		Baseline:         e.loadBaseline(ctx, originalSelector, page.URL),
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make([][]model.HealedSelector, len(e.strategies))
	for i, strat := range e.strategies {
		i, strat := i, strat
		g.Go(func() error {
			cands, err := strat.candidates(gctx, input)
			if err != nil {
				e.Logger.DebugContext(ctx, "healing strategy failed", map[string]interface{}{
					"strategy": string(strat.name()), "error": err.Error(),
				})
				return nil
			}
			results[i] = cands
			return nil
		})
	}
	_ = g.Wait() // each goroutine logs and swallows its strategy's error and returns nil; this only joins the fan-out

	best := e.pickBest(results)
	e.persist(ctx, originalSelector, page.URL, best)
	return best, nil
}

func (e *Engine) pickBest(results [][]model.HealedSelector) *model.HealedSelector {
	var best *model.HealedSelector
	for _, cands := range results {
		for _, c := range cands {
			if c.Confidence < confidenceThreshold {
				continue
			}
			if best == nil || e.better(c, *best) {
				cc := c
				best = &cc
			}
		}
	}
	return best
}

func (e *Engine) better(a, b model.HealedSelector) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return e.priority[a.Strategy] < e.priority[b.Strategy]
}

func (e *Engine) loadBaseline(ctx context.Context, originalSelector, pageURL string) *model.HealingHistoryRow {
	if e.Store == nil {
		return nil
	}
	rows, err := e.Store.Query(ctx, originalSelector, pageURL)
	if err != nil || len(rows) == 0 {
		return nil
	}
	for _, r := range rows {
		if r.Succeeded && r.VisualHash != "" {
			row := r
			return &row
		}
	}
	return nil
}

func (e *Engine) persist(ctx context.Context, originalSelector, pageURL string, best *model.HealedSelector) {
	if e.Store == nil {
		return
	}
	row := model.HealingHistoryRow{
		OriginalSelector: originalSelector,
		PageURL:          pageURL,
		Succeeded:        best != nil,
		Timestamp:        time.Now(),
	}
	if best != nil {
		row.HealedSelector = best.NewSelector
		row.Strategy = best.Strategy
		row.Confidence = best.Confidence
		if best.Strategy == model.StrategyVisualSimilarity {
			row.VisualHash = best.Reasoning
		}
	}
	if err := e.Store.Append(ctx, row); err != nil {
		e.Logger.WarnContext(ctx, "healing history append failed", map[string]interface{}{"error": err.Error()})
	}
}
