package routing

import (
	"github.com/driftline/browserpilot/llm"
	"github.com/driftline/browserpilot/model"
)

// ScoreIneligible is the sentinel a Strategy returns for a provider that
// fails a hard capability filter (streaming/function-calling mismatch),
// distinguishing "ineligible" from a genuine zero score under
// CostOptimized (spec.md §4.9 step 2, SPEC_FULL.md routing capability
// gating detail).
const ScoreIneligible = -1

// candidate pairs a provider with its capabilities for scoring.
type candidate struct {
	provider llm.Provider
	caps     llm.Capabilities
}

// Strategy ranks eligible providers for a RoutingContext. A return value
// of ScoreIneligible removes the provider from consideration entirely.
type Strategy interface {
	Score(ctx model.RoutingContext, c candidate) float64
}

func hardFilter(ctx model.RoutingContext, c candidate) (float64, bool) {
	if ctx.RequireStreaming && !c.caps.SupportsStreaming {
		return ScoreIneligible, true
	}
	if ctx.RequireFunctionCalling && !c.caps.SupportsFunctionCalling {
		return ScoreIneligible, true
	}
	return 0, false
}

// TaskBased scores providers by a declared base affinity per task type,
// boosted when the provider's context window comfortably covers the
// request's complexity.
type TaskBased struct {
	// Affinity maps provider name -> task type -> base score in [0,1].
	// Providers/task types absent from the map score a neutral 0.5.
	Affinity map[string]map[model.TaskType]float64
}

func (s TaskBased) Score(ctx model.RoutingContext, c candidate) float64 {
	if score, ineligible := hardFilter(ctx, c); ineligible {
		return score
	}

	base := 0.5
	if byTask, ok := s.Affinity[c.provider.Name()]; ok {
		if v, ok := byTask[ctx.TaskType]; ok {
			base = v
		}
	}

	switch ctx.Complexity {
	case model.ComplexityHigh, model.ComplexityExpert:
		if c.caps.MaxContextTokens >= 100000 {
			base += 0.2
		}
	case model.ComplexityLow:
		// no boost; smaller providers are equally eligible for cheap tasks
	}
	if base > 1 {
		base = 1
	}
	return base
}

// CostOptimized weights inverse-cost and reliability, preferring
// zero/low-cost providers for Low complexity and shifting to the
// highest-quality providers for Expert complexity or Critical priority.
type CostOptimized struct {
	// CostPerRequest maps provider name -> an estimated dollar cost for a
	// typical request, used to rank cheapest-first. Providers absent from
	// the map score half their quality rank, with no cost term.
	CostPerRequest map[string]float64
	// QualityRank maps provider name -> a [0,1] quality score. Absent
	// providers default to 0.5.
	QualityRank map[string]float64
}

func (s CostOptimized) Score(ctx model.RoutingContext, c candidate) float64 {
	if score, ineligible := hardFilter(ctx, c); ineligible {
		return score
	}

	quality := 0.5
	if v, ok := s.QualityRank[c.provider.Name()]; ok {
		quality = v
	}

	wantsQuality := ctx.Complexity == model.ComplexityExpert || ctx.Priority == model.PriorityCritical
	if wantsQuality {
		return quality
	}

	cost, known := s.CostPerRequest[c.provider.Name()]
	if !known {
		return quality * 0.5 // unknown cost: rank behind known-cheap providers of similar quality
	}
	inverseCost := 1 / (1 + cost*1000) // cost is a small dollar amount; scale so typical costs spread across (0,1)
	score := 0.6*inverseCost + 0.4*quality
	if score > 1 {
		score = 1
	}
	return score
}
