package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/driftline/browserpilot/browser"
	"github.com/driftline/browserpilot/core"
	"github.com/driftline/browserpilot/model"
	"github.com/driftline/browserpilot/recovery"
	"github.com/driftline/browserpilot/resilience"
)

// ExecutorConfig mirrors the tool-executor configuration surface in
// spec.md §6: max_attempts (3), base_backoff_ms (500), max_backoff_ms
// (10000), jitter_factor (0.2), attempt_timeout_s (30).
type ExecutorConfig struct {
	MaxAttempts      int
	BaseBackoff      time.Duration
	MaxBackoff       time.Duration
	JitterFactor     float64
	AttemptTimeout   time.Duration
}

// DefaultExecutorConfig returns the spec's defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxAttempts:    3,
		BaseBackoff:    500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		JitterFactor:   0.2,
		AttemptTimeout: 30 * time.Second,
	}
}

func (c ExecutorConfig) retryStrategy() *resilience.RetryStrategy {
	return &resilience.RetryStrategy{
		MaxRetries:   c.MaxAttempts,
		BaseDelay:    c.BaseBackoff,
		MaxDelay:     c.MaxBackoff,
		JitterFactor: c.JitterFactor,
	}
}

// Executor runs one ToolCall against a browser.Agent with bounded retries,
// exponential backoff+jitter, per-attempt timeouts, and transient/terminal
// classification (spec.md §4.2).
type Executor struct {
	Registry *Registry
	Agent    browser.Agent
	Config   ExecutorConfig
	Logger   core.Logger
}

// NewExecutor wires a Tool Executor against a registry and browser agent.
func NewExecutor(registry *Registry, agent browser.Agent, cfg ExecutorConfig, logger core.Logger) *Executor {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &Executor{Registry: registry, Agent: agent, Config: cfg, Logger: logger}
}

// Execute runs call to completion per the §4.2 algorithm: validate, then
// attempt dispatch with bounded retries on transient classifications.
func (e *Executor) Execute(ctx context.Context, call model.ToolCall) model.ToolExecutionResult {
	start := time.Now()

	if err := e.Registry.Validate(call); err != nil {
		fe, ok := err.(*core.FrameworkError)
		if !ok {
			fe = core.NewFrameworkError("tools.Execute", core.KindInvalidParameters, err)
		}
		return model.ToolExecutionResult{
			Success:           false,
			Error:             fe,
			AttemptCount:      0,
			ExecutionDuration: time.Since(start),
		}
	}

	classify := func(err error) (core.ErrorKind, bool) {
		if ctx.Err() != nil {
			return core.KindCancelled, true
		}
		kind := recovery.ClassifyKind(err)
		return kind, !recovery.ToolRetryable(kind)
	}

	strategy := e.Config.retryStrategy()

	_, outcomes, err := resilience.Do(ctx, strategy, classify, func(attemptCtx context.Context, attempt int) (interface{}, error) {
		attemptCtx, cancel := context.WithTimeout(attemptCtx, e.Config.AttemptTimeout)
		defer cancel()
		return e.dispatch(attemptCtx, call)
	})

	attempts := make([]model.AttemptMetadata, len(outcomes))
	for i, o := range outcomes {
		attempts[i] = model.AttemptMetadata{Attempt: o.Attempt, Duration: o.Duration, Kind: o.Kind}
	}

	result := model.ToolExecutionResult{
		Success:           err == nil,
		AttemptCount:      len(outcomes),
		ExecutionDuration: time.Since(start),
		WasRetried:        len(outcomes) > 1,
		Attempts:          attempts,
	}
	if err != nil {
		kind := recovery.ClassifyKind(err)
		if ctx.Err() != nil {
			kind = core.KindCancelled
		}
		result.Error = core.NewFrameworkError("tools.Execute", kind, err)
	}

	e.Logger.InfoContext(ctx, "tool call completed", map[string]interface{}{
		"tool":           call.ToolName,
		"success":        result.Success,
		"attempt_count":  result.AttemptCount,
		"correlation_id": string(call.CorrelationID),
	})

	return result
}

// dispatch invokes the Browser Agent capability named by call.ToolName
// (spec.md §4.2b). Unrecognized tool names were already rejected by
// Registry.Validate, so reaching default here indicates a registry/
// dispatch mismatch.
func (e *Executor) dispatch(ctx context.Context, call model.ToolCall) (interface{}, error) {
	p := call.Parameters
	switch call.ToolName {
	case "navigate":
		return nil, e.Agent.Navigate(ctx, p["url"])
	case "click":
		return nil, e.Agent.Click(ctx, p["selector"], 0)
	case "type":
		return nil, e.Agent.Type(ctx, p["selector"], p["text"])
	case "select_option":
		return nil, e.Agent.SelectOption(ctx, p["selector"], p["value"])
	case "wait_for_element":
		timeout, _ := time.ParseDuration(p["timeout_ms"] + "ms")
		return nil, e.Agent.WaitForElement(ctx, p["selector"], timeout)
	case "take_screenshot":
		return e.Agent.TakeScreenshot(ctx)
	case "get_text":
		return e.Agent.GetText(ctx, p["selector"])
	case "verify_element_exists":
		_, err := e.Agent.GetText(ctx, p["selector"])
		return err == nil, err
	default:
		return nil, fmt.Errorf("%s: %w", call.ToolName, core.ErrUnknownTool)
	}
}
