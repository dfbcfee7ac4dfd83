package model

import "time"

// TaskStatus is the Task Executor's state machine (spec.md §4.3). Terminal
// states are Completed, Failed, and Cancelled.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskPlanning  TaskStatus = "planning"
	TaskExecuting TaskStatus = "executing"
	TaskPaused    TaskStatus = "paused"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether status ends the task's lifecycle.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// AgentTask is the natural-language request driving one ExecutePlan call.
type AgentTask struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Prompt  string     `json:"prompt"`
	Status  TaskStatus `json:"status"`
	OwnerID string     `json:"owner_id"`
	Timestamps
}

// ActionType names the kind of browser operation an AgentStep performs; it
// maps deterministically to a tool name via the dispatch table in spec.md
// §6.
type ActionType string

const (
	ActionNavigate        ActionType = "navigate"
	ActionClick           ActionType = "click"
	ActionType_Fill       ActionType = "type"
	ActionSelect          ActionType = "select"
	ActionWaitForElement  ActionType = "wait_for_element"
	ActionScreenshot      ActionType = "screenshot"
	ActionExtractText     ActionType = "extract_text"
	ActionVerify          ActionType = "verify"
)

// ToolName returns the deterministic tool-dispatch name for this action
// type (spec.md §6 dispatch mapping). The second return value is false for
// an unrecognized action type.
func (a ActionType) ToolName() (string, bool) {
	switch a {
	case ActionNavigate:
		return "navigate", true
	case ActionClick:
		return "click", true
	case ActionType_Fill:
		return "type", true
	case ActionSelect:
		return "select_option", true
	case ActionWaitForElement:
		return "wait_for_element", true
	case ActionScreenshot:
		return "take_screenshot", true
	case ActionExtractText:
		return "get_text", true
	case ActionVerify:
		return "verify_element_exists", true
	default:
		return "", false
	}
}

// StepAction is the deterministic, tool-shaped part of an AgentStep: a tool
// name, its parameters, and the optional target/value/timeout shorthand
// fields the planner fills in (the step-to-ToolCall conversion in
// executor.toolCall merges these into ToolCall.Parameters).
type StepAction struct {
	Type      ActionType        `json:"type"`
	Selector  string            `json:"selector,omitempty"`
	Value     string            `json:"value,omitempty"`
	Timeout   time.Duration     `json:"timeout,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
}

// ValidationKind enumerates the declared validation rule categories named
// in spec.md §4.3 step 2f.
type ValidationKind string

const (
	ValidationElementExists  ValidationKind = "element_exists"
	ValidationTextEquals     ValidationKind = "text_equals"
	ValidationTextContains   ValidationKind = "text_contains"
	ValidationPageTitleEquals ValidationKind = "page_title_equals"
	ValidationDataExtracted  ValidationKind = "data_extracted"
)

// ValidationRule is declared on a step and evaluated after the step
// completes; failures are recorded but never fail the step (spec.md §4.3).
type ValidationRule struct {
	Kind     ValidationKind `json:"kind"`
	Selector string         `json:"selector,omitempty"`
	Expected string         `json:"expected,omitempty"`
	Key      string         `json:"key,omitempty"` // for DataExtracted
}

// ValidationResult is the outcome of evaluating one ValidationRule.
type ValidationResult struct {
	Rule    ValidationRule `json:"rule"`
	Passed  bool           `json:"passed"`
	Detail  string         `json:"detail,omitempty"`
}

// AgentStep is one planner-produced instruction: step_number orders
// execution (strictly increasing within a plan), Action names the tool
// call, Optional controls whether a failure stops the plan.
type AgentStep struct {
	StepNumber int              `json:"step_number"`
	Action     StepAction       `json:"action"`
	Reasoning  string           `json:"reasoning,omitempty"`
	Validation []ValidationRule `json:"validation,omitempty"`
	Optional   bool             `json:"optional"`
}

// ExecutionPlan is the planner's output: an ordered sequence of steps for
// one AgentTask. Immutable to the Task Executor except via replanning.
type ExecutionPlan struct {
	ID                string      `json:"id"`
	TaskID            string      `json:"task_id"`
	Steps             []AgentStep `json:"steps"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
	Confidence        float64     `json:"confidence"`
	Alternatives      []*ExecutionPlan `json:"alternatives,omitempty"`
}
