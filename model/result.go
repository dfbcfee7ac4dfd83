package model

import (
	"time"

	"github.com/driftline/browserpilot/core"
)

// ToolCall is the unit the Tool Executor consumes: a resolved tool name,
// its parameters, and the correlation id carried through logs/metrics/
// persistence for this one call.
type ToolCall struct {
	ToolName      string            `json:"tool_name"`
	Parameters    map[string]string `json:"parameters"`
	Reasoning     string            `json:"reasoning,omitempty"`
	CorrelationID CorrelationID     `json:"correlation_id"`
}

// AttemptMetadata records the error kind observed on one attempt, part of
// ToolExecutionResult's per-attempt metadata (spec.md §3).
type AttemptMetadata struct {
	Attempt  int           `json:"attempt"`
	Duration time.Duration `json:"duration"`
	Kind     core.ErrorKind `json:"kind,omitempty"`
}

// ToolExecutionResult is the Tool Executor's output for one ToolCall.
type ToolExecutionResult struct {
	Success            bool              `json:"success"`
	Result             interface{}       `json:"result,omitempty"`
	Error              *core.FrameworkError `json:"error,omitempty"`
	AttemptCount       int               `json:"attempt_count"`
	ExecutionDuration  time.Duration     `json:"execution_duration"`
	WasRetried         bool              `json:"was_retried"`
	Attempts           []AttemptMetadata `json:"attempts"`
}

// StepError is the kind+message pair recorded on a failed AgentStepResult.
type StepError struct {
	Kind    core.ErrorKind `json:"kind"`
	Message string         `json:"message"`
}

// AgentStepResult is one step's outcome within an AgentTaskResult.
type AgentStepResult struct {
	StepID            int                `json:"step_id"`
	Success            bool               `json:"success"`
	ExtractedData      map[string]string  `json:"extracted_data,omitempty"`
	Error              *StepError         `json:"error,omitempty"`
	RetryAttempts      int                `json:"retry_attempts"`
	HealingApplied     bool               `json:"healing_applied"`
	DurationMS         int64              `json:"duration_ms"`
	StartedAt          time.Time          `json:"started_at"`
	CompletedAt        time.Time          `json:"completed_at"`
	Screenshot         string             `json:"screenshot,omitempty"`
	ValidationResults  []ValidationResult `json:"validation_results,omitempty"`
}

// Statistics aggregates an AgentTaskResult. Must be well-defined even for
// zero steps (spec.md §4.3: "avg = 0").
type Statistics struct {
	Total             int           `json:"total"`
	Successful        int           `json:"successful"`
	Failed            int           `json:"failed"`
	Retried           int           `json:"retried"`
	Healed            int           `json:"healed"`
	TotalRetries      int           `json:"total_retries"`
	TotalWaitTime     time.Duration `json:"total_wait_time"`
	AverageStepDuration time.Duration `json:"average_step_duration"`
}

// ComputeStatistics derives Statistics from a slice of step results plus
// the total time spent waiting (backoff sleeps, smart-wait polling)
// accumulated independently by the caller.
func ComputeStatistics(results []AgentStepResult, totalWaitTime time.Duration) Statistics {
	stats := Statistics{TotalWaitTime: totalWaitTime}
	stats.Total = len(results)
	if stats.Total == 0 {
		return stats
	}

	var totalDuration time.Duration
	for _, r := range results {
		totalDuration += time.Duration(r.DurationMS) * time.Millisecond
		if r.Success {
			stats.Successful++
		} else {
			stats.Failed++
		}
		if r.RetryAttempts > 0 {
			stats.Retried++
			stats.TotalRetries += r.RetryAttempts
		}
		if r.HealingApplied {
			stats.Healed++
		}
	}
	stats.AverageStepDuration = totalDuration / time.Duration(stats.Total)
	return stats
}

// AgentTaskResult is the Task Executor's final output for one ExecutePlan
// call.
type AgentTaskResult struct {
	TaskID            string            `json:"task_id"`
	Success           bool              `json:"success"`
	Status            TaskStatus        `json:"status"`
	StepResults       []AgentStepResult `json:"step_results"`
	Statistics        Statistics        `json:"statistics"`
	FinalScreenshots  []string          `json:"final_screenshots,omitempty"`
	ErrorMessage      string            `json:"error_message,omitempty"`
	Duration          time.Duration     `json:"duration"`
}
