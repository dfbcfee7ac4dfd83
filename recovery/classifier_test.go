package recovery_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/driftline/browserpilot/core"
	"github.com/driftline/browserpilot/model"
	"github.com/driftline/browserpilot/recovery"
)

func TestClassify_KeywordMatching(t *testing.T) {
	cases := []struct {
		message string
		want    core.ErrorKind
	}{
		{"selector not found: #missing", core.KindSelectorNotFound},
		{"navigation timeout after 30s", core.KindNavigationTimeout},
		{"element is not visible", core.KindElementNotInteractable},
		{"target crashed", core.KindPageCrash},
		{"uncaught exception: TypeError", core.KindJavaScriptError},
		{"permission denied by browser", core.KindPermissionDenied},
		{"connection refused", core.KindNetworkError},
		{"stale element reference", core.KindTimingIssue},
		{"missing required field url", core.KindInvalidParameters},
		{"context canceled", core.KindCancelled},
		{"rate limit exceeded, try again", core.KindTransient},
		{"something entirely unrecognized", core.KindUnknown},
	}

	for _, c := range cases {
		got := recovery.ClassifyKind(errors.New(c.message))
		assert.Equal(t, c.want, got, c.message)
	}
}

// Classifier is deterministic: the same exception classifies the same way
// every time (spec.md §8 round-trip property).
func TestClassify_Deterministic(t *testing.T) {
	err := errors.New("selector not found: #missing")
	first := recovery.Classify(err, nil)
	second := recovery.Classify(err, nil)
	assert.Equal(t, first.Kind, second.Kind)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.SuggestedActions, second.SuggestedActions)
}

func TestClassify_IsRecoverable(t *testing.T) {
	recoverable := recovery.Classify(errors.New("selector not found: #x"), nil)
	assert.True(t, recoverable.IsRecoverable())

	unrecoverable := recovery.Classify(errors.New("context canceled"), nil)
	assert.False(t, unrecoverable.IsRecoverable(), "cancelled has no suggested actions")
}

func TestClassify_NilErrorIsUnknown(t *testing.T) {
	c := recovery.Classify(nil, nil)
	assert.Equal(t, core.KindUnknown, c.Kind)
	assert.Equal(t, 0.5, c.Confidence)
}

func TestToolRetryable(t *testing.T) {
	assert.True(t, recovery.ToolRetryable(core.KindTransient))
	assert.True(t, recovery.ToolRetryable(core.KindSelectorNotFound))
	assert.False(t, recovery.ToolRetryable(core.KindJavaScriptError))
	assert.False(t, recovery.ToolRetryable(core.KindInvalidParameters))
}

func TestClassify_SuggestedActionsOrderForSelectorNotFound(t *testing.T) {
	c := recovery.Classify(errors.New("selector not found: #x"), nil)
	assert.Equal(t, []model.RecoveryAction{
		model.ActionAlternativeSelector,
		model.ActionWaitForStability,
		model.ActionPageRefresh,
	}, c.SuggestedActions)
}
