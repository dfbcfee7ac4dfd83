package routing

import (
	"strings"

	"github.com/driftline/browserpilot/llm"
	"github.com/driftline/browserpilot/model"
)

// DeriveContext infers a RoutingContext from the request (spec.md §4.9
// step 1): task type by keyword detection on the last user message, plus
// the capability gates the request itself declares. Complexity and
// priority are caller-supplied hints (RequestOptions) since nothing in
// the request payload itself signals them.
func DeriveContext(req llm.CompletionRequest, opts RequestOptions) model.RoutingContext {
	return model.RoutingContext{
		TaskType:               deriveTaskType(lastUserMessage(req)),
		Complexity:             orDefaultComplexity(opts.Complexity),
		Priority:               orDefaultPriority(opts.Priority),
		RequireStreaming:       req.Stream,
		RequireFunctionCalling: req.FunctionCalling,
	}
}

// RequestOptions carries the routing hints a request has no other way to
// express (complexity, priority) alongside the request itself.
type RequestOptions struct {
	Complexity model.ComplexityLevel
	Priority   model.RequestPriority
}

func orDefaultComplexity(c model.ComplexityLevel) model.ComplexityLevel {
	if c == "" {
		return model.ComplexityMedium
	}
	return c
}

func orDefaultPriority(p model.RequestPriority) model.RequestPriority {
	if p == "" {
		return model.PriorityNormal
	}
	return p
}

func lastUserMessage(req llm.CompletionRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}

func deriveTaskType(lastUserMessage string) model.TaskType {
	text := strings.ToLower(lastUserMessage)
	switch {
	case containsAny(text, "plan", "steps"):
		return model.TaskPlanning
	case containsAny(text, "code", "implement"):
		return model.TaskCodeGeneration
	case containsAny(text, "extract", "scrape"):
		return model.TaskExtraction
	case containsAny(text, "heal", "fix"):
		return model.TaskHealing
	default:
		return model.TaskGeneral
	}
}

func containsAny(text string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
