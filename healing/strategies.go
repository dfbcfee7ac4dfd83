package healing

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/driftline/browserpilot/model"
)

// textContentStrategy matches interactive elements whose visible text
// equals or contains the expected text (spec.md §4.7 "exact text").
type textContentStrategy struct{}

func (textContentStrategy) name() model.HealingStrategy { return model.StrategyTextContent }

func (textContentStrategy) candidates(_ context.Context, in Input) ([]model.HealedSelector, error) {
	target := strings.ToLower(strings.TrimSpace(in.ExpectedText))
	if target == "" {
		return nil, nil
	}

	var out []model.HealedSelector
	for _, el := range in.Page.InteractiveElements {
		if el.Selector == in.OriginalSelector {
			continue
		}
		text := strings.ToLower(strings.TrimSpace(el.Text))
		if text == "" {
			continue
		}

		var score float64
		switch {
		case text == target:
			score = 1.0
		case strings.Contains(text, target) || strings.Contains(target, text):
			score = 0.85
		default:
			continue
		}

		out = append(out, model.HealedSelector{
			NewSelector: el.Selector,
			Strategy:    model.StrategyTextContent,
			Confidence:  score,
			Reasoning:   fmt.Sprintf("text %q matches expected %q", el.Text, in.ExpectedText),
		})
	}
	return out, nil
}

// ariaLabelStrategy looks for the selector's identifying token inside the
// page's accessibility tree and proposes elements whose own selector
// shares that token, standing in for a real ARIA-label/role lookup (the
// concrete driver that would expose structured ARIA attributes is out of
// scope; the accessibility tree string is the nearest available signal).
type ariaLabelStrategy struct{}

func (ariaLabelStrategy) name() model.HealingStrategy { return model.StrategyAriaLabel }

var selectorTokenRe = regexp.MustCompile(`[A-Za-z0-9_-]{3,}`)

func selectorToken(selector string) string {
	tokens := selectorTokenRe.FindAllString(selector, -1)
	best := ""
	for _, t := range tokens {
		if len(t) > len(best) {
			best = t
		}
	}
	return strings.ToLower(best)
}

func (ariaLabelStrategy) candidates(_ context.Context, in Input) ([]model.HealedSelector, error) {
	token := selectorToken(in.OriginalSelector)
	if token == "" || in.Page.AccessibilityTree == "" {
		return nil, nil
	}
	tree := strings.ToLower(in.Page.AccessibilityTree)
	if !strings.Contains(tree, token) {
		return nil, nil
	}

	var out []model.HealedSelector
	for _, el := range in.Page.InteractiveElements {
		if el.Selector == in.OriginalSelector {
			continue
		}
		if strings.Contains(strings.ToLower(el.Selector), token) {
			out = append(out, model.HealedSelector{
				NewSelector: el.Selector,
				Strategy:    model.StrategyAriaLabel,
				Confidence:  0.8,
				Reasoning:   fmt.Sprintf("accessibility tree references token %q shared with selector", token),
			})
		}
	}
	return out, nil
}

// fuzzyAttributeStrategy ranks other elements' selectors by normalized
// Levenshtein distance to the original, the "fuzzy attribute match" tier.
type fuzzyAttributeStrategy struct{}

func (fuzzyAttributeStrategy) name() model.HealingStrategy { return model.StrategyFuzzyAttributes }

func (fuzzyAttributeStrategy) candidates(_ context.Context, in Input) ([]model.HealedSelector, error) {
	if in.OriginalSelector == "" {
		return nil, nil
	}
	var out []model.HealedSelector
	for _, el := range in.Page.InteractiveElements {
		if el.Selector == "" || el.Selector == in.OriginalSelector {
			continue
		}
		score := selectorSimilarity(in.OriginalSelector, el.Selector)
		if score < 0.6 {
			continue
		}
		out = append(out, model.HealedSelector{
			NewSelector: el.Selector,
			Strategy:    model.StrategyFuzzyAttributes,
			Confidence:  score,
			Reasoning:   fmt.Sprintf("selector similarity %.2f to %q", score, in.OriginalSelector),
		})
	}
	return out, nil
}

// selectorSimilarity normalizes Levenshtein edit distance into [0,1].
func selectorSimilarity(a, b string) float64 {
	dist := levenshtein(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(dist)/float64(maxLen)
}

// levenshtein computes edit distance with the standard two-row DP
// table; no ecosystem string-distance library appears anywhere in the
// retrieval pack, so this is a direct stdlib implementation (documented
// in DESIGN.md).
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// positionStrategy anchors on the element still listed under the original
// selector in the current page snapshot and proposes every other element
// whose bounding-box center lies near that anchor, scored by proximity.
// When the original selector is absent from the snapshot it yields no
// candidates (no prior-bounds memory is threaded through Input).
type positionStrategy struct{}

func (positionStrategy) name() model.HealingStrategy { return model.StrategyPosition }

func (positionStrategy) candidates(_ context.Context, in Input) ([]model.HealedSelector, error) {
	var anchor *model.InteractiveElement
	for i, el := range in.Page.InteractiveElements {
		if el.Selector == in.OriginalSelector {
			anchor = &in.Page.InteractiveElements[i]
			break
		}
	}
	if anchor == nil {
		return nil, nil
	}

	ax, ay := centerOf(anchor.Bounds)
	var out []model.HealedSelector
	for _, el := range in.Page.InteractiveElements {
		if el.Selector == in.OriginalSelector {
			continue
		}
		bx, by := centerOf(el.Bounds)
		dist := distance(ax, ay, bx, by)
		score := proximityScore(dist, anchor.Bounds)
		if score < 0.6 {
			continue
		}
		out = append(out, model.HealedSelector{
			NewSelector: el.Selector,
			Strategy:    model.StrategyPosition,
			Confidence:  score,
			Reasoning:   fmt.Sprintf("bounding box within %.0fpx of original position", dist),
		})
	}
	return out, nil
}

func centerOf(b model.Bounds) (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

func distance(x1, y1, x2, y2 float64) float64 {
	dx, dy := x1-x2, y1-y2
	return math.Sqrt(dx*dx + dy*dy)
}

func proximityScore(dist float64, b model.Bounds) float64 {
	scale := b.Width + b.Height
	if scale <= 0 {
		scale = 100
	}
	score := 1 - dist/(scale*2)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
