package model

import (
	"time"

	"github.com/driftline/browserpilot/core"
)

// RecoveryAction is the declared vocabulary of remediation steps the Error
// Classifier suggests and the Error Recovery Service executes (spec.md
// §4.4, §4.5).
type RecoveryAction string

const (
	ActionWaitAndRetry       RecoveryAction = "wait_and_retry"
	ActionPageRefresh        RecoveryAction = "page_refresh"
	ActionWaitForStability   RecoveryAction = "wait_for_stability"
	ActionAlternativeSelector RecoveryAction = "alternative_selector"
	ActionClearCookies       RecoveryAction = "clear_cookies"
	ActionNavigationRetry    RecoveryAction = "navigation_retry"
	ActionRestartContext     RecoveryAction = "restart_context"
	ActionNone               RecoveryAction = "none"
)

// ErrorClassification is the Error Classifier's verdict for one exception
// (spec.md §3). IsRecoverable requires confidence >= 0.5 AND at least one
// suggested action.
type ErrorClassification struct {
	Kind             core.ErrorKind    `json:"kind"`
	Confidence       float64           `json:"confidence"`
	OriginalError    string            `json:"original_error"`
	SuggestedActions []RecoveryAction  `json:"suggested_actions"`
	Context          map[string]string `json:"context,omitempty"`
}

// IsRecoverable implements the spec's definition exactly.
func (c ErrorClassification) IsRecoverable() bool {
	return c.Confidence >= 0.5 && len(c.SuggestedActions) > 0
}

// RecoveryResult is the Error Recovery Service's output for one recover()
// call.
type RecoveryResult struct {
	Success          bool                `json:"success"`
	ActionsAttempted []RecoveryAction    `json:"actions_attempted"`
	AttemptNumber    int                 `json:"attempt_number"`
	Duration         time.Duration       `json:"duration"`
	Classification   ErrorClassification `json:"classification"`
	FinalError       string              `json:"final_error,omitempty"`
	Strategy         string              `json:"strategy,omitempty"`
}

// RecoveryHistoryRow is the persisted shape consumed by
// store.RecoveryHistoryStore (spec.md §6 persisted state). Only Actions
// and ErrorKind are part of the learning contract; the rest is audit
// detail.
type RecoveryHistoryRow struct {
	TaskID        string            `json:"task_id,omitempty"`
	ErrorKind     core.ErrorKind    `json:"error_kind"`
	ExceptionType string            `json:"exception_type"`
	Actions       []RecoveryAction  `json:"actions"`
	Success       bool              `json:"success"`
	Attempts      int               `json:"attempts"`
	DurationMS    int64             `json:"duration_ms"`
	URL           string            `json:"url,omitempty"`
	Action        string            `json:"action,omitempty"`
	Selector      string            `json:"selector,omitempty"`
	Context       map[string]string `json:"context,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}
