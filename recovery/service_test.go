package recovery_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/browserpilot/browser"
	"github.com/driftline/browserpilot/core"
	"github.com/driftline/browserpilot/model"
	"github.com/driftline/browserpilot/recovery"
	"github.com/driftline/browserpilot/resilience"
	"github.com/driftline/browserpilot/store"
)

type memRecoveryStore struct {
	mu   sync.Mutex
	rows []model.RecoveryHistoryRow
}

func (s *memRecoveryStore) Append(_ context.Context, row model.RecoveryHistoryRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return nil
}

func (s *memRecoveryStore) QueryTopK(_ context.Context, kind core.ErrorKind, k int) ([][]model.RecoveryAction, error) {
	return nil, nil
}

var _ store.RecoveryHistoryStore = (*memRecoveryStore)(nil)

type scriptedHealer struct {
	healed *model.HealedSelector
	err    error
	calls  int
}

func (h *scriptedHealer) Heal(context.Context, string, model.PageState, string, []byte) (*model.HealedSelector, error) {
	h.calls++
	return h.healed, h.err
}

type scriptedStabilizer struct {
	metrics model.StabilityMetrics
	err     error
}

func (s *scriptedStabilizer) WaitForStableState(context.Context, time.Duration) (model.StabilityMetrics, error) {
	return s.metrics, s.err
}

func fastStrategy() *resilience.RetryStrategy {
	return &resilience.RetryStrategy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, JitterFactor: 0}
}

func TestService_Recover_NonRecoverableErrorShortCircuits(t *testing.T) {
	recStore := &memRecoveryStore{}
	svc := recovery.NewService(&browser.NullAgent{}, recStore, nil, nil, fastStrategy(), nil)

	result := svc.Recover(context.Background(), errors.New("invalid parameter: foo"), nil, nil)
	assert.False(t, result.Success)
	assert.Empty(t, result.ActionsAttempted)
	assert.Equal(t, core.KindInvalidParameters, result.Classification.Kind)

	require.Len(t, recStore.rows, 1)
	assert.False(t, recStore.rows[0].Success)
}

func TestService_Recover_AlternativeSelectorSucceedsAndMutatesContext(t *testing.T) {
	recStore := &memRecoveryStore{}
	healer := &scriptedHealer{healed: &model.HealedSelector{NewSelector: "#submit-v2", Strategy: model.StrategyTextContent, Confidence: 0.9}}
	svc := recovery.NewService(&browser.NullAgent{}, recStore, nil, healer, fastStrategy(), nil)

	recoveryCtx := map[string]string{"url": "https://example.com", "selector": "#submit"}
	result := svc.Recover(context.Background(), errors.New("selector not found: #submit"), recoveryCtx, nil)

	require.True(t, result.Success)
	assert.Equal(t, model.ActionAlternativeSelector, result.ActionsAttempted[0])
	assert.Equal(t, "#submit-v2", recoveryCtx["selector"])
	assert.Equal(t, 1, healer.calls)

	require.Len(t, recStore.rows, 1)
	assert.True(t, recStore.rows[0].Success)
	assert.Equal(t, core.KindSelectorNotFound, recStore.rows[0].ErrorKind)
}

func TestService_Recover_FallsThroughToNextActionWhenFirstFails(t *testing.T) {
	recStore := &memRecoveryStore{}
	healer := &scriptedHealer{err: errors.New("no healer match")}
	stabilizer := &scriptedStabilizer{metrics: model.StabilityMetrics{IsStable: true}}
	svc := recovery.NewService(&browser.NullAgent{}, recStore, stabilizer, healer, fastStrategy(), nil)

	recoveryCtx := map[string]string{"url": "https://example.com", "selector": "#submit"}
	result := svc.Recover(context.Background(), errors.New("selector not found: #submit"), recoveryCtx, nil)

	require.True(t, result.Success)
	assert.Equal(t, []model.RecoveryAction{model.ActionAlternativeSelector, model.ActionWaitForStability}, result.ActionsAttempted)
	assert.Equal(t, 2, result.AttemptNumber)
}

type alwaysFailNavigateAgent struct {
	browser.NullAgent
}

func (alwaysFailNavigateAgent) Navigate(context.Context, string) error {
	return errors.New("navigation blocked")
}

func TestService_Recover_ExhaustsActionsAndReportsFailure(t *testing.T) {
	recStore := &memRecoveryStore{}
	healer := &scriptedHealer{err: errors.New("no match")}
	stabilizer := &scriptedStabilizer{err: errors.New("never stabilizes")}
	svc := recovery.NewService(&alwaysFailNavigateAgent{}, recStore, stabilizer, healer, fastStrategy(), nil)

	recoveryCtx := map[string]string{"url": "https://example.com", "selector": "#submit"}
	result := svc.Recover(context.Background(), errors.New("selector not found: #submit"), recoveryCtx, nil)

	assert.False(t, result.Success)
	assert.Equal(t, []model.RecoveryAction{model.ActionAlternativeSelector, model.ActionWaitForStability, model.ActionPageRefresh}, result.ActionsAttempted)
	assert.NotEmpty(t, result.FinalError)

	require.Len(t, recStore.rows, 1)
	assert.False(t, recStore.rows[0].Success)
}

func TestService_Recover_NilStoreSkipsPersistence(t *testing.T) {
	svc := recovery.NewService(&browser.NullAgent{}, nil, nil, nil, fastStrategy(), nil)
	result := svc.Recover(context.Background(), errors.New("invalid parameter: foo"), nil, nil)
	assert.False(t, result.Success)
	assert.Equal(t, core.KindInvalidParameters, result.Classification.Kind)
}

func TestService_Recover_CustomStrategyOverridesDefault(t *testing.T) {
	recStore := &memRecoveryStore{}
	svc := recovery.NewService(&browser.NullAgent{}, recStore, nil, nil, fastStrategy(), nil)

	onlyOneAttempt := &resilience.RetryStrategy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, JitterFactor: 0}
	result := svc.Recover(context.Background(), errors.New("selector not found: #submit"), map[string]string{"url": "https://example.com", "selector": "#submit"}, onlyOneAttempt)

	assert.False(t, result.Success)
	assert.Equal(t, []model.RecoveryAction{model.ActionAlternativeSelector}, result.ActionsAttempted)
}
