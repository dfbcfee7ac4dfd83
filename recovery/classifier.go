// Package recovery implements the Error Classifier (pure function) and the
// Error Recovery Service (adaptive, history-informed recovery loop) from
// spec.md §4.4/§4.5, grounded on the teacher resilience module's
// DefaultErrorClassifier keyword-matching idiom (resilience/circuit_breaker.go)
// generalized from a binary "counts as failure" decision to the richer
// kind+confidence+suggested-actions classification the spec requires.
package recovery

import (
	"strings"

	"github.com/driftline/browserpilot/core"
	"github.com/driftline/browserpilot/model"
)

// keywordRule maps a set of case-insensitive substrings found in an error's
// message to a classification. Rules are checked in order; the first match
// wins (spec.md §4.4: "keyword sets per category").
type keywordRule struct {
	kind     core.ErrorKind
	keywords []string
}

var rules = []keywordRule{
	{core.KindSelectorNotFound, []string{"selector not found", "no such element", "not found: selector", "element not found"}},
	{core.KindNavigationTimeout, []string{"navigation timeout", "navigation timed out"}},
	{core.KindElementNotInteractable, []string{"not interactable", "not clickable", "element is not visible", "intercepted"}},
	{core.KindPageCrash, []string{"page crashed", "target crashed", "renderer process"}},
	{core.KindJavaScriptError, []string{"javascript error", "uncaught exception", "script error"}},
	{core.KindPermissionDenied, []string{"permission denied", "not allowed", "blocked by policy"}},
	{core.KindNetworkError, []string{"network", "dns", "connection refused", "econnreset"}},
	{core.KindTimingIssue, []string{"timing", "race", "stale element", "detached from document"}},
	{core.KindInvalidParameters, []string{"invalid parameter", "missing required"}},
	{core.KindCancelled, []string{"context canceled", "context deadline exceeded", "cancelled", "canceled"}},
	{core.KindTransient, []string{"timeout", "temporarily unavailable", "rate limit", "try again"}},
}

// suggestedActions is the fixed kind -> ordered default-action mapping
// (spec.md §4.4, with the per-kind ordering taken from the §7 table).
var suggestedActions = map[core.ErrorKind][]model.RecoveryAction{
	core.KindTransient:              {model.ActionWaitAndRetry},
	core.KindNetworkError:           {model.ActionWaitAndRetry, model.ActionNavigationRetry},
	core.KindTimingIssue:            {model.ActionWaitForStability, model.ActionWaitAndRetry},
	core.KindNavigationTimeout:      {model.ActionNavigationRetry, model.ActionWaitAndRetry},
	core.KindSelectorNotFound:       {model.ActionAlternativeSelector, model.ActionWaitForStability, model.ActionPageRefresh},
	core.KindElementNotInteractable: {model.ActionWaitForStability, model.ActionAlternativeSelector},
	core.KindPageCrash:              {model.ActionRestartContext, model.ActionNavigationRetry},
	core.KindJavaScriptError:        {model.ActionPageRefresh, model.ActionWaitAndRetry},
	core.KindPermissionDenied:       {model.ActionClearCookies, model.ActionPageRefresh},
	core.KindInvalidParameters:      {},
	core.KindCancelled:              {},
	core.KindUnknown:                {model.ActionWaitAndRetry, model.ActionWaitForStability},
}

// confidenceByKind gives each category a fixed confidence within the
// spec's [0.5, 0.95] range; Unknown defaults to exactly 0.5.
var confidenceByKind = map[core.ErrorKind]float64{
	core.KindTransient:              0.7,
	core.KindNetworkError:           0.8,
	core.KindTimingIssue:            0.75,
	core.KindNavigationTimeout:      0.8,
	core.KindSelectorNotFound:       0.85,
	core.KindElementNotInteractable: 0.8,
	core.KindPageCrash:              0.95,
	core.KindJavaScriptError:        0.9,
	core.KindPermissionDenied:       0.9,
	core.KindInvalidParameters:      0.95,
	core.KindCancelled:              0.95,
}

// ClassifyKind returns just the error kind, for callers (the tool
// executor) that only need the transient/terminal distinction and not the
// full classification record.
func ClassifyKind(err error) core.ErrorKind {
	if err == nil {
		return core.KindUnknown
	}
	msg := strings.ToLower(err.Error())
	for _, rule := range rules {
		for _, kw := range rule.keywords {
			if strings.Contains(msg, kw) {
				return rule.kind
			}
		}
	}
	return core.KindUnknown
}

// Classify is the Error Classifier's public operation (spec.md §4.4):
// deterministic, pure, keyword/type matching over the exception's message.
func Classify(err error, context map[string]string) model.ErrorClassification {
	if err == nil {
		return model.ErrorClassification{Kind: core.KindUnknown, Confidence: 0.5, Context: context}
	}

	kind := ClassifyKind(err)
	confidence, ok := confidenceByKind[kind]
	if !ok {
		confidence = 0.5
	}

	actions := suggestedActions[kind]
	// Defensive copy: callers mutate their own slice in recovery.Service
	// without touching the shared default ordering.
	actionsCopy := make([]model.RecoveryAction, len(actions))
	copy(actionsCopy, actions)

	return model.ErrorClassification{
		Kind:             kind,
		Confidence:       confidence,
		OriginalError:    err.Error(),
		SuggestedActions: actionsCopy,
		Context:          context,
	}
}

// ToolRetryable reports whether the Tool Executor (spec.md §4.2, §7) should
// attempt a retry for this kind rather than failing terminally. "conditional"
// kinds in the §7 table (SelectorNotFound, ElementNotInteractable) are
// retryable at the tool layer — whether the retry actually helps is then
// up to error recovery's alternative-selector healing.
func ToolRetryable(kind core.ErrorKind) bool {
	switch kind {
	case core.KindTransient, core.KindNetworkError, core.KindTimingIssue, core.KindNavigationTimeout,
		core.KindSelectorNotFound, core.KindElementNotInteractable:
		return true
	default:
		return false
	}
}
