package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/driftline/browserpilot/browser"
	"github.com/driftline/browserpilot/core"
	"github.com/driftline/browserpilot/model"
	"github.com/driftline/browserpilot/resilience"
	"github.com/driftline/browserpilot/store"
)

// Stabilizer is the Smart Wait capability the WaitForStability action
// delegates to. Declared here (rather than importing package wait
// directly) so recovery has no hard dependency on wait's internals —
// any type satisfying this signature, including wait.Service, works.
type Stabilizer interface {
	WaitForStableState(ctx context.Context, maxWait time.Duration) (model.StabilityMetrics, error)
}

// Healer is the self-healing capability the AlternativeSelector action
// delegates to, satisfied structurally by healing.Engine.
type Healer interface {
	Heal(ctx context.Context, originalSelector string, page model.PageState, expectedText string, screenshot []byte) (*model.HealedSelector, error)
}

// Service is the Error Recovery Service (spec.md §4.5): classify, build a
// learned-first ordered action list, then try actions one per backoff
// attempt until one succeeds or retries are exhausted.
type Service struct {
	Agent      browser.Agent
	Store      store.RecoveryHistoryStore
	Stabilizer Stabilizer // optional; nil falls back to a fixed 3s sleep
	Healer     Healer     // optional; nil makes AlternativeSelector fail
	Strategy   *resilience.RetryStrategy
	Logger     core.Logger
}

// NewService wires an Error Recovery Service. strategy defaults to
// resilience.DefaultRecoveryRetryStrategy() if nil.
func NewService(agent browser.Agent, recoveryStore store.RecoveryHistoryStore, stabilizer Stabilizer, healer Healer, strategy *resilience.RetryStrategy, logger core.Logger) *Service {
	if strategy == nil {
		strategy = resilience.DefaultRecoveryRetryStrategy()
	}
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &Service{Agent: agent, Store: recoveryStore, Stabilizer: stabilizer, Healer: healer, Strategy: strategy, Logger: logger}
}

// Recover is the public `recover(exception, context, strategy?)` operation.
// recoveryCtx carries recovery-scoped state (at minimum "url" and,
// for selector failures, "selector"); AlternativeSelector mutates
// recoveryCtx["selector"] in place on success so the caller's subsequent
// outer retry of the failing step picks up the healed selector.
func (s *Service) Recover(ctx context.Context, taskErr error, recoveryCtx map[string]string, strategy *resilience.RetryStrategy) model.RecoveryResult {
	start := time.Now()
	if strategy == nil {
		strategy = s.Strategy
	}
	if recoveryCtx == nil {
		recoveryCtx = map[string]string{}
	}

	classification := Classify(taskErr, recoveryCtx)
	if !classification.IsRecoverable() {
		result := model.RecoveryResult{
			Success:        false,
			Classification: classification,
			Duration:       time.Since(start),
			FinalError:     safeErrString(taskErr),
		}
		s.persist(ctx, classification.Kind, taskErr, nil, result, recoveryCtx)
		return result
	}

	actions := s.orderedActions(ctx, classification)

	maxAttempts := strategy.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if len(actions) < maxAttempts {
		maxAttempts = len(actions)
	}

	var attempted []model.RecoveryAction
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := resilience.Sleep(ctx, strategy.Delay(attempt, nil)); err != nil {
			lastErr = err
			break
		}

		action := actions[attempt-1]
		attempted = append(attempted, action)

		if err := s.executeAction(ctx, action, recoveryCtx); err != nil {
			lastErr = err
			s.Logger.DebugContext(ctx, "recovery action failed", map[string]interface{}{
				"action": string(action), "error": err.Error(), "attempt": attempt,
			})
			continue
		}

		result := model.RecoveryResult{
			Success:          true,
			ActionsAttempted: attempted,
			AttemptNumber:    attempt,
			Duration:         time.Since(start),
			Classification:   classification,
		}
		s.persist(ctx, classification.Kind, taskErr, attempted, result, recoveryCtx)
		return result
	}

	result := model.RecoveryResult{
		Success:          false,
		ActionsAttempted: attempted,
		AttemptNumber:    maxAttempts,
		Duration:         time.Since(start),
		Classification:   classification,
		FinalError:       safeErrString(lastErr),
	}
	if result.FinalError == "" {
		result.FinalError = safeErrString(taskErr)
	}
	s.persist(ctx, classification.Kind, taskErr, attempted, result, recoveryCtx)
	return result
}

// orderedActions merges the classifier's default suggestions with the
// top-3 historically most successful sequences for this kind, learned
// actions first (spec.md §4.5 step 2).
func (s *Service) orderedActions(ctx context.Context, classification model.ErrorClassification) []model.RecoveryAction {
	var historical [][]model.RecoveryAction
	if s.Store != nil {
		if rows, err := s.Store.QueryTopK(ctx, classification.Kind, 3); err == nil {
			historical = rows
		} else {
			s.Logger.WarnContext(ctx, "recovery history query failed", map[string]interface{}{"error": err.Error()})
		}
	}

	seen := make(map[model.RecoveryAction]bool)
	var merged []model.RecoveryAction
	for _, seq := range historical {
		for _, a := range seq {
			if a == model.ActionNone || seen[a] {
				continue
			}
			seen[a] = true
			merged = append(merged, a)
		}
	}
	for _, a := range classification.SuggestedActions {
		if a == model.ActionNone || seen[a] {
			continue
		}
		seen[a] = true
		merged = append(merged, a)
	}
	return merged
}

// executeAction runs one recovery action's semantics (spec.md §4.5).
// Every branch returns a plain error on failure; Recover swallows it and
// moves to the next attempt, per "exceptions inside actions never
// propagate out of recover".
func (s *Service) executeAction(ctx context.Context, action model.RecoveryAction, recoveryCtx map[string]string) error {
	switch action {
	case model.ActionWaitAndRetry:
		return resilience.Sleep(ctx, 2*time.Second)

	case model.ActionPageRefresh:
		return s.refreshCurrentPage(ctx, recoveryCtx)

	case model.ActionWaitForStability:
		return s.waitForStability(ctx)

	case model.ActionAlternativeSelector:
		return s.healSelector(ctx, recoveryCtx)

	case model.ActionClearCookies:
		return s.clearCookies(ctx, recoveryCtx)

	case model.ActionNavigationRetry:
		return s.navigationRetry(ctx, recoveryCtx)

	case model.ActionRestartContext:
		return s.restartContext(ctx)

	case model.ActionNone:
		return fmt.Errorf("recovery: action none never succeeds")

	default:
		return fmt.Errorf("recovery: unrecognized action %q", action)
	}
}

func (s *Service) currentURL(ctx context.Context, recoveryCtx map[string]string) (string, error) {
	if u := recoveryCtx["url"]; u != "" {
		return u, nil
	}
	if s.Agent == nil {
		return "", fmt.Errorf("recovery: no url in context and no agent to query")
	}
	page, err := s.Agent.GetPageState(ctx)
	if err != nil {
		return "", fmt.Errorf("recovery: fetch page state: %w", err)
	}
	return page.URL, nil
}

func (s *Service) refreshCurrentPage(ctx context.Context, recoveryCtx map[string]string) error {
	url, err := s.currentURL(ctx, recoveryCtx)
	if err != nil {
		return err
	}
	return s.Agent.Navigate(ctx, url)
}

func (s *Service) navigationRetry(ctx context.Context, recoveryCtx map[string]string) error {
	return s.refreshCurrentPage(ctx, recoveryCtx)
}

func (s *Service) clearCookies(ctx context.Context, recoveryCtx map[string]string) error {
	url, err := s.currentURL(ctx, recoveryCtx)
	if err != nil {
		return err
	}
	if err := s.Agent.Navigate(ctx, "about:blank"); err != nil {
		return err
	}
	return s.Agent.Navigate(ctx, url)
}

func (s *Service) waitForStability(ctx context.Context) error {
	if s.Stabilizer == nil {
		return resilience.Sleep(ctx, 3*time.Second)
	}
	metrics, err := s.Stabilizer.WaitForStableState(ctx, 3*time.Second)
	if err != nil {
		return err
	}
	if !metrics.IsStable {
		return fmt.Errorf("recovery: page did not reach a stable state")
	}
	return nil
}

func (s *Service) healSelector(ctx context.Context, recoveryCtx map[string]string) error {
	if s.Healer == nil {
		return fmt.Errorf("recovery: no healer configured")
	}
	selector := recoveryCtx["selector"]
	if selector == "" {
		return fmt.Errorf("recovery: no failing selector in context")
	}

	var page model.PageState
	if s.Agent != nil {
		if p, err := s.Agent.GetPageState(ctx); err == nil {
			page = p
		}
	}

	healed, err := s.Healer.Heal(ctx, selector, page, recoveryCtx["expected_text"], nil)
	if err != nil {
		return err
	}
	if healed == nil {
		return fmt.Errorf("recovery: no healing candidate met confidence threshold")
	}
	recoveryCtx["selector"] = healed.NewSelector
	return nil
}

func (s *Service) restartContext(ctx context.Context) error {
	if s.Agent == nil {
		return fmt.Errorf("recovery: no agent to restart")
	}
	if err := s.Agent.Dispose(ctx); err != nil {
		return fmt.Errorf("recovery: dispose: %w", err)
	}
	if err := s.Agent.Initialize(ctx); err != nil {
		return fmt.Errorf("recovery: reinitialize: %w", err)
	}
	return nil
}

func (s *Service) persist(ctx context.Context, kind core.ErrorKind, taskErr error, actions []model.RecoveryAction, result model.RecoveryResult, recoveryCtx map[string]string) {
	if s.Store == nil {
		return
	}
	row := model.RecoveryHistoryRow{
		TaskID:        recoveryCtx["task_id"],
		ErrorKind:     kind,
		ExceptionType: fmt.Sprintf("%T", taskErr),
		Actions:       actions,
		Success:       result.Success,
		Attempts:      result.AttemptNumber,
		DurationMS:    result.Duration.Milliseconds(),
		URL:           recoveryCtx["url"],
		Selector:      recoveryCtx["selector"],
		Context:       recoveryCtx,
		Timestamp:     time.Now(),
	}
	if err := s.Store.Append(ctx, row); err != nil {
		s.Logger.WarnContext(ctx, "recovery history append failed", map[string]interface{}{"error": err.Error()})
	}
}

func safeErrString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
