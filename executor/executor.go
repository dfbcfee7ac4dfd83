// Package executor implements the Task Executor (spec.md §4.3): a
// pause/resume/cancel-aware step engine that drives an ExecutionPlan to
// completion against the Tool Executor, collecting per-step results,
// retries, and statistics. Grounded on the teacher's
// orchestration.AIOrchestrator shape (a mutex-guarded registry of
// in-flight executions plus a cancellable per-run context), narrowed from
// the teacher's LLM-routing orchestration loop to the spec's strictly
// sequential, pause/resume-aware step loop.
package executor

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/driftline/browserpilot/browser"
	"github.com/driftline/browserpilot/core"
	"github.com/driftline/browserpilot/model"
	"github.com/driftline/browserpilot/recovery"
	"github.com/driftline/browserpilot/tools"
)

const (
	defaultPausePollInterval = 100 * time.Millisecond
	defaultStepTimeout       = 30 * time.Second
	finalScreenshotTimeout   = 5 * time.Second
)

// taskState is the per-task mutable record the Task Executor owns
// exclusively for the lifetime of one ExecutePlan call (spec.md §3
// Ownership).
type taskState struct {
	status model.TaskStatus
	paused bool
	cancel context.CancelFunc
}

// Executor drives AgentTask execution plans against a tools.Executor,
// optionally escalating step failures to an Error Recovery Service.
// Two maps worth of per-task state (cancellation handles, execution
// status) are guarded by a single mutex, per spec.md §5's "single mutex"
// concurrency model — here folded into one map of small structs rather
// than two parallel maps, since both entries always share a lifetime.
type Executor struct {
	Tools             *tools.Executor
	Recovery          *recovery.Service // optional; nil skips escalation
	Agent             browser.Agent     // optional; used only for final screenshots
	Logger            core.Logger
	PausePollInterval time.Duration

	mu    sync.Mutex
	tasks map[string]*taskState
}

// NewExecutor wires a Task Executor.
func NewExecutor(toolExecutor *tools.Executor, recoveryService *recovery.Service, agent browser.Agent, logger core.Logger) *Executor {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &Executor{
		Tools:             toolExecutor,
		Recovery:          recoveryService,
		Agent:             agent,
		Logger:            logger,
		PausePollInterval: defaultPausePollInterval,
		tasks:             make(map[string]*taskState),
	}
}

func (e *Executor) pollInterval() time.Duration {
	if e.PausePollInterval > 0 {
		return e.PausePollInterval
	}
	return defaultPausePollInterval
}

// GetState reports a task's current status, if it has an in-flight
// ExecutePlan call.
func (e *Executor) GetState(taskID string) (model.TaskStatus, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ts, ok := e.tasks[taskID]
	if !ok {
		return "", false
	}
	return ts.status, true
}

// Pause transitions a task from Executing to Paused. Legal only from
// Executing (spec.md §4.3 invariants).
func (e *Executor) Pause(taskID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ts, ok := e.tasks[taskID]
	if !ok {
		return core.NewFrameworkError("executor.Pause", core.KindUnknown, fmt.Errorf("%s: %w", taskID, core.ErrTaskNotFound))
	}
	if ts.status != model.TaskExecuting {
		return core.NewFrameworkError("executor.Pause", core.KindUnknown, fmt.Errorf("pause from %s: %w", ts.status, core.ErrInvalidStateTransition))
	}
	ts.paused = true
	ts.status = model.TaskPaused
	return nil
}

// Resume transitions a task from Paused back to Executing. Legal only
// from Paused.
func (e *Executor) Resume(taskID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ts, ok := e.tasks[taskID]
	if !ok {
		return core.NewFrameworkError("executor.Resume", core.KindUnknown, fmt.Errorf("%s: %w", taskID, core.ErrTaskNotFound))
	}
	if ts.status != model.TaskPaused {
		return core.NewFrameworkError("executor.Resume", core.KindUnknown, fmt.Errorf("resume from %s: %w", ts.status, core.ErrInvalidStateTransition))
	}
	ts.paused = false
	ts.status = model.TaskExecuting
	return nil
}

// Cancel requests termination of a task's in-flight ExecutePlan call.
// Legal from Executing or Paused (spec.md §4.3 invariants); cancellation
// is never downgraded even if a retry is in-flight (spec.md §7).
func (e *Executor) Cancel(taskID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ts, ok := e.tasks[taskID]
	if !ok {
		return core.NewFrameworkError("executor.Cancel", core.KindUnknown, fmt.Errorf("%s: %w", taskID, core.ErrTaskNotFound))
	}
	if ts.status != model.TaskExecuting && ts.status != model.TaskPaused {
		return core.NewFrameworkError("executor.Cancel", core.KindUnknown, fmt.Errorf("cancel from %s: %w", ts.status, core.ErrInvalidStateTransition))
	}
	ts.paused = false
	if ts.cancel != nil {
		ts.cancel()
	}
	return nil
}

func (e *Executor) register(taskID string, cancel context.CancelFunc) (*taskState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.tasks[taskID]; exists {
		return nil, core.NewFrameworkError("executor.ExecutePlan", core.KindUnknown, fmt.Errorf("%s: %w", taskID, core.ErrTaskAlreadyExecuting))
	}
	ts := &taskState{status: model.TaskExecuting, cancel: cancel}
	e.tasks[taskID] = ts
	return ts, nil
}

func (e *Executor) unregister(taskID string) {
	e.mu.Lock()
	delete(e.tasks, taskID)
	e.mu.Unlock()
}

// waitIfPaused blocks while the task is paused, re-checking both pause
// state and cancellation every pollInterval (spec.md §4.3: "periodic
// cancellation checks (<=100ms granularity)").
func (e *Executor) waitIfPaused(ctx context.Context, taskID string) error {
	ticker := time.NewTicker(e.pollInterval())
	defer ticker.Stop()

	for {
		e.mu.Lock()
		ts, ok := e.tasks[taskID]
		var paused bool
		if ok {
			paused = ts.paused
		}
		e.mu.Unlock()

		if !ok {
			return core.NewFrameworkError("executor.ExecutePlan", core.KindCancelled, fmt.Errorf("%s: %w", taskID, core.ErrTaskNotFound))
		}
		if !paused {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ExecutePlan is the Task Executor's central operation (spec.md §4.3):
// drive plan's steps to completion in ascending step_number order,
// honoring pause/resume/cancel, and return the aggregated
// AgentTaskResult. task.Status is mutated in place to mirror the
// internal state machine; the returned error is non-nil only for
// precondition failures (duplicate execution) that never start a run —
// every run that starts always returns a terminal AgentTaskResult, never
// a bare error (spec.md §8 testable property 2).
func (e *Executor) ExecutePlan(ctx context.Context, task *model.AgentTask, plan *model.ExecutionPlan) (model.AgentTaskResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if _, err := e.register(task.ID, cancel); err != nil {
		return model.AgentTaskResult{}, err
	}
	defer e.unregister(task.ID)

	task.Status = model.TaskExecuting
	task.Touch()

	start := time.Now()
	results := make([]model.AgentStepResult, 0, len(plan.Steps))
	var totalWait time.Duration
	var cancelled bool
	var failedStep *model.AgentStep
	var failedErr *model.StepError

	for i := range plan.Steps {
		step := plan.Steps[i]

		if err := e.waitIfPaused(runCtx, task.ID); err != nil {
			cancelled = true
			break
		}
		if runCtx.Err() != nil {
			cancelled = true
			break
		}

		stepResult, waited := e.executeStep(runCtx, task, step)
		results = append(results, stepResult)
		totalWait += waited

		if !stepResult.Success && runCtx.Err() != nil {
			// The step failed because the run was cancelled; the task ends
			// Cancelled, not Failed.
			cancelled = true
			break
		}
		if !stepResult.Success {
			if !step.Optional {
				s := step
				failedStep = &s
				failedErr = stepResult.Error
				break
			}
			e.Logger.WarnContext(runCtx, "optional step failed, continuing", map[string]interface{}{
				"task_id": task.ID, "step": step.StepNumber,
			})
		}
	}

	taskResult := model.AgentTaskResult{
		TaskID:      task.ID,
		StepResults: results,
		Statistics:  model.ComputeStatistics(results, totalWait),
		Duration:    time.Since(start),
	}

	switch {
	case cancelled:
		taskResult.Status = model.TaskCancelled
		taskResult.Success = false
		taskResult.ErrorMessage = fmt.Sprintf("task cancelled after %d of %d step(s)", len(results), len(plan.Steps))
	case failedStep != nil:
		taskResult.Status = model.TaskFailed
		taskResult.Success = false
		detail := ""
		if failedErr != nil {
			detail = failedErr.Message
		}
		taskResult.ErrorMessage = fmt.Sprintf("step %d failed: %s", failedStep.StepNumber, detail)
		if succeeded := taskResult.Statistics.Successful; succeeded > 0 {
			taskResult.ErrorMessage += fmt.Sprintf(" (partial success: %d of %d step(s) succeeded)", succeeded, len(plan.Steps))
		}
	default:
		// failedStep is nil here, so every non-optional step succeeded;
		// any remaining Statistics.Failed count is optional-step failures,
		// which are non-fatal (spec.md §4.3, S6).
		taskResult.Status = model.TaskCompleted
		taskResult.Success = true
	}

	task.Status = taskResult.Status
	task.Touch()

	taskResult.FinalScreenshots = e.captureFinalScreenshots(ctx)

	e.Logger.InfoContext(ctx, "plan execution finished", map[string]interface{}{
		"task_id": task.ID, "status": string(taskResult.Status), "steps": taskResult.Statistics.Total,
	})

	return taskResult, nil
}

// executeStep converts step to a ToolCall, runs it through the Tool
// Executor under a per-step timeout, and escalates a failure to the
// Error Recovery Service when one is wired in, retrying once more if
// recovery succeeds (spec.md §7: "propagate to Task Executor, which
// may ... pass the exception to Error Recovery when recovery is wired
// in"). The returned duration is the time spent in recovery (sleeps and
// actions), accumulated into the task's total_wait_time statistic.
func (e *Executor) executeStep(ctx context.Context, task *model.AgentTask, step model.AgentStep) (model.AgentStepResult, time.Duration) {
	started := time.Now()
	result := model.AgentStepResult{StepID: step.StepNumber, StartedAt: started}

	timeout := step.Action.Timeout
	if timeout <= 0 {
		timeout = defaultStepTimeout
	}

	call := e.toolCall(step)

	stepCtx, stepCancel := context.WithTimeout(ctx, timeout)
	toolResult := e.Tools.Execute(stepCtx, call)
	stepCancel()

	var waited time.Duration
	healed := false

	if !toolResult.Success && e.Recovery != nil && toolResult.Error != nil {
		recoveryCtx := map[string]string{
			"task_id":  task.ID,
			"selector": call.Parameters["selector"],
		}
		if page, err := e.currentURL(ctx); err == nil {
			recoveryCtx["url"] = page
		}

		recResult := e.Recovery.Recover(ctx, toolResult.Error, recoveryCtx, nil)
		waited += recResult.Duration

		if recResult.Success {
			for _, action := range recResult.ActionsAttempted {
				if action == model.ActionAlternativeSelector {
					healed = true
				}
			}
			if healedSelector := recoveryCtx["selector"]; healedSelector != "" {
				call.Parameters["selector"] = healedSelector
			}

			retryCtx, retryCancel := context.WithTimeout(ctx, timeout)
			toolResult = e.Tools.Execute(retryCtx, call)
			retryCancel()
		}
	}

	result.Success = toolResult.Success
	result.RetryAttempts = toolResult.AttemptCount - 1
	if result.RetryAttempts < 0 {
		result.RetryAttempts = 0
	}
	result.HealingApplied = healed
	result.CompletedAt = time.Now()
	result.DurationMS = result.CompletedAt.Sub(started).Milliseconds()

	if !toolResult.Success {
		kind := core.KindUnknown
		msg := ""
		if toolResult.Error != nil {
			kind = toolResult.Error.Kind
			msg = toolResult.Error.Error()
		}
		result.Error = &model.StepError{Kind: kind, Message: msg}
	} else {
		result.ExtractedData = extractedData(call.ToolName, toolResult.Result)
		if call.ToolName == "take_screenshot" {
			if s, ok := toolResult.Result.(string); ok {
				result.Screenshot = s
			}
		}
	}

	result.ValidationResults = e.runValidations(ctx, step.Validation, result)

	return result, waited
}

// toolCall converts an AgentStep's StepAction into a ToolCall using the
// deterministic action-type -> tool-name mapping (spec.md §6), merging
// the action's target/value/timeout shorthand fields into Parameters
// alongside any explicitly declared Params.
func (e *Executor) toolCall(step model.AgentStep) model.ToolCall {
	toolName, _ := step.Action.Type.ToolName()

	params := make(map[string]string, len(step.Action.Params)+2)
	for k, v := range step.Action.Params {
		params[k] = v
	}

	switch step.Action.Type {
	case model.ActionNavigate:
		if step.Action.Value != "" {
			params["url"] = step.Action.Value
		}
	case model.ActionClick, model.ActionVerify, model.ActionExtractText:
		if step.Action.Selector != "" {
			params["selector"] = step.Action.Selector
		}
	case model.ActionType_Fill:
		if step.Action.Selector != "" {
			params["selector"] = step.Action.Selector
		}
		if step.Action.Value != "" {
			params["text"] = step.Action.Value
		}
	case model.ActionSelect:
		if step.Action.Selector != "" {
			params["selector"] = step.Action.Selector
		}
		if step.Action.Value != "" {
			params["value"] = step.Action.Value
		}
	case model.ActionWaitForElement:
		if step.Action.Selector != "" {
			params["selector"] = step.Action.Selector
		}
		if step.Action.Timeout > 0 {
			params["timeout_ms"] = strconv.FormatInt(step.Action.Timeout.Milliseconds(), 10)
		}
	case model.ActionScreenshot:
		// no parameters
	}

	return model.ToolCall{
		ToolName:      toolName,
		Parameters:    params,
		Reasoning:     step.Reasoning,
		CorrelationID: model.NewCorrelationID(),
	}
}

// extractedData packages a successful tool result's return value under a
// key named after the action it came from, satisfying
// AgentStepResult.ExtractedData and the data_extracted validation rule.
func extractedData(toolName string, value interface{}) map[string]string {
	if value == nil {
		return nil
	}
	switch toolName {
	case "get_text":
		if s, ok := value.(string); ok {
			return map[string]string{"text": s}
		}
	case "verify_element_exists":
		if b, ok := value.(bool); ok {
			return map[string]string{"exists": strconv.FormatBool(b)}
		}
	case "take_screenshot":
		if s, ok := value.(string); ok {
			return map[string]string{"screenshot": s}
		}
	}
	return nil
}

func (e *Executor) currentURL(ctx context.Context) (string, error) {
	if e.Agent == nil {
		return "", fmt.Errorf("executor: no agent configured")
	}
	page, err := e.Agent.GetPageState(ctx)
	if err != nil {
		return "", err
	}
	return page.URL, nil
}

// captureFinalScreenshots best-effort captures the page's final state
// (spec.md §4.3 step 4: "errors here never change the result"). The
// base64 screenshot and the full-page byte capture race concurrently
// under a shared timeout, bounded with errgroup the way the teacher's
// orchestration package bounds its own parallel step fan-out.
func (e *Executor) captureFinalScreenshots(parent context.Context) []string {
	if e.Agent == nil {
		return nil
	}

	shotCtx, cancel := context.WithTimeout(context.Background(), finalScreenshotTimeout)
	defer cancel()

	var mu sync.Mutex
	var shots []string

	g, gctx := errgroup.WithContext(shotCtx)
	g.Go(func() error {
		data, err := e.Agent.TakeScreenshot(gctx)
		if err == nil && data != "" {
			mu.Lock()
			shots = append(shots, data)
			mu.Unlock()
		}
		return nil
	})
	g.Go(func() error {
		raw, err := e.Agent.TakeFullPageScreenshotBytes(gctx)
		if err == nil && len(raw) > 0 {
			mu.Lock()
			shots = append(shots, base64.StdEncoding.EncodeToString(raw))
			mu.Unlock()
		}
		return nil
	})
	_ = g.Wait()

	return shots
}

// runValidations evaluates a step's declared ValidationRules (spec.md
// §4.3 step 2f). Failures are recorded in the returned slice but never
// affect stepResult.Success — the caller already finalized that.
func (e *Executor) runValidations(ctx context.Context, rules []model.ValidationRule, stepResult model.AgentStepResult) []model.ValidationResult {
	if len(rules) == 0 {
		return nil
	}

	out := make([]model.ValidationResult, 0, len(rules))
	for _, rule := range rules {
		out = append(out, e.evaluateRule(ctx, rule, stepResult))
	}
	return out
}

func (e *Executor) evaluateRule(ctx context.Context, rule model.ValidationRule, stepResult model.AgentStepResult) model.ValidationResult {
	res := model.ValidationResult{Rule: rule}

	switch rule.Kind {
	case model.ValidationElementExists:
		if e.Agent == nil {
			res.Detail = "no browser agent configured"
			return res
		}
		_, err := e.Agent.GetText(ctx, rule.Selector)
		res.Passed = err == nil
		if err != nil {
			res.Detail = err.Error()
		}

	case model.ValidationTextEquals, model.ValidationTextContains:
		if e.Agent == nil {
			res.Detail = "no browser agent configured"
			return res
		}
		text, err := e.Agent.GetText(ctx, rule.Selector)
		if err != nil {
			res.Detail = err.Error()
			return res
		}
		if rule.Kind == model.ValidationTextEquals {
			res.Passed = text == rule.Expected
		} else {
			res.Passed = strings.Contains(text, rule.Expected)
		}

	case model.ValidationPageTitleEquals:
		if e.Agent == nil {
			res.Detail = "no browser agent configured"
			return res
		}
		page, err := e.Agent.GetPageState(ctx)
		if err != nil {
			res.Detail = err.Error()
			return res
		}
		res.Passed = page.Title == rule.Expected

	case model.ValidationDataExtracted:
		_, ok := stepResult.ExtractedData[rule.Key]
		res.Passed = ok
		if !ok {
			res.Detail = fmt.Sprintf("key %q not present in extracted data", rule.Key)
		}

	default:
		res.Detail = fmt.Sprintf("unrecognized validation kind %q", rule.Kind)
	}

	return res
}

