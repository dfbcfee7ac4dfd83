package model

// TaskType classifies the kind of work an LLM request is for, inferred by
// the Routing Provider from keyword detection on the last user message
// (spec.md §4.9 step 1).
type TaskType string

const (
	TaskPlanning       TaskType = "planning"
	TaskCodeGeneration TaskType = "code_generation"
	TaskExtraction     TaskType = "extraction"
	TaskHealing        TaskType = "healing"
	TaskGeneral        TaskType = "general"
)

// ComplexityLevel is a coarse estimate of how demanding a request is,
// used by routing strategies to prefer context-window-adequate or
// higher-quality providers. Not enumerated explicitly in spec.md beyond
// the "Low" and "Expert" extremes it names — the two intermediate tiers
// are a reasonable middle ground and are recorded as an Open Question
// decision in DESIGN.md.
type ComplexityLevel string

const (
	ComplexityLow    ComplexityLevel = "low"
	ComplexityMedium ComplexityLevel = "medium"
	ComplexityHigh   ComplexityLevel = "high"
	ComplexityExpert ComplexityLevel = "expert"
)

// RequestPriority is the caller's urgency/quality hint, consumed by the
// CostOptimized strategy ("shifts to quality models for ... Critical
// priority").
type RequestPriority string

const (
	PriorityNormal   RequestPriority = "normal"
	PriorityCritical RequestPriority = "critical"
)

// RoutingContext is derived once per request (spec.md §4.9 step 1) and
// threaded through every strategy's scoring call.
type RoutingContext struct {
	TaskType              TaskType
	Complexity            ComplexityLevel
	Priority              RequestPriority
	RequireStreaming      bool
	RequireFunctionCalling bool
}
