// Package core carries the ambient contracts shared by every other package
// in this module: the logging interface, the structured error taxonomy, and
// the small capability/telemetry plumbing everything else is wired against.
package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for comparison with errors.Is(). These are the kinds
// named in the error taxonomy; where one is returned it is wrapped with
// context (a FrameworkError, or fmt.Errorf with %w) rather than bare.
var (
	ErrUnknownTool         = errors.New("unknown tool")
	ErrInvalidParameters   = errors.New("invalid parameters")
	ErrTaskAlreadyExecuting = errors.New("task already executing")
	ErrTaskNotFound        = errors.New("task not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrCircuitBreakerOpen  = errors.New("circuit breaker open")
	ErrAllProvidersFailed  = errors.New("all providers failed")
	ErrMaxRetriesExceeded  = errors.New("maximum retries exceeded")
	ErrContextCanceled     = errors.New("context canceled")
	ErrNoHealingCandidate  = errors.New("no healing candidate met confidence threshold")
	ErrNotRecoverable      = errors.New("error classification is not recoverable")
)

// ErrorKind is the taxonomy from the spec's error-handling design: a
// classification, not a concrete Go type, so it travels cleanly across
// process/persistence boundaries.
type ErrorKind string

const (
	KindTransient             ErrorKind = "transient"
	KindSelectorNotFound      ErrorKind = "selector_not_found"
	KindNavigationTimeout     ErrorKind = "navigation_timeout"
	KindTimingIssue           ErrorKind = "timing_issue"
	KindElementNotInteractable ErrorKind = "element_not_interactable"
	KindNetworkError          ErrorKind = "network_error"
	KindPageCrash             ErrorKind = "page_crash"
	KindJavaScriptError       ErrorKind = "javascript_error"
	KindPermissionDenied      ErrorKind = "permission_denied"
	KindInvalidParameters     ErrorKind = "invalid_parameters"
	KindCancelled             ErrorKind = "cancelled"
	KindUnknown               ErrorKind = "unknown"
)

// FrameworkError provides structured error information with context,
// following the Op/Kind/ID/Message/Err shape so callers can both log a
// rich record and errors.Is/As against the wrapped sentinel.
type FrameworkError struct {
	Op      string
	Kind    ErrorKind
	ID      string
	Message string
	Err     error
}

func (e *FrameworkError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

func (e *FrameworkError) Unwrap() error { return e.Err }

// NewFrameworkError creates a new FrameworkError wrapping err.
func NewFrameworkError(op string, kind ErrorKind, err error) *FrameworkError {
	return &FrameworkError{Op: op, Kind: kind, Err: err}
}

// IsTerminal reports whether a kind never benefits from a tool-level retry
// (see spec.md §7 propagation policy).
func IsTerminal(k ErrorKind) bool {
	switch k {
	case KindInvalidParameters, KindCancelled, KindPageCrash, KindJavaScriptError, KindPermissionDenied, KindUnknown:
		return true
	default:
		return false
	}
}

// IsNotFound reports whether err represents an unknown-tool or
// task-not-found condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownTool) || errors.Is(err, ErrTaskNotFound)
}

// IsConfigurationError reports whether err is a parameter/schema validation error.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidParameters)
}

// IsStateError reports whether err is a task-state-machine violation.
func IsStateError(err error) bool {
	return errors.Is(err, ErrTaskAlreadyExecuting) || errors.Is(err, ErrInvalidStateTransition)
}
