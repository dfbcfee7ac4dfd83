package wait_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/browserpilot/browser"
	"github.com/driftline/browserpilot/model"
	"github.com/driftline/browserpilot/wait"
)

// htmlSeqAgent returns a different HTML string for the first N calls to
// GetPageHTML, then a fixed string forever, so DOMStable flips true only
// once the page settles.
type htmlSeqAgent struct {
	browser.NullAgent
	calls      int
	changesFor int
	state      model.PageState
}

func (a *htmlSeqAgent) GetPageHTML(context.Context) (string, error) {
	a.calls++
	if a.calls <= a.changesFor {
		return "version-" + time.Now().String(), nil
	}
	return "stable", nil
}

func (a *htmlSeqAgent) GetPageState(context.Context) (model.PageState, error) {
	return a.state, nil
}

func TestService_WaitForStableState_ReachesStability(t *testing.T) {
	agent := &htmlSeqAgent{
		changesFor: 1,
		state:      model.PageState{LoadState: model.LoadStateNetworkIdle, Metadata: map[string]string{
			"animations_complete": "true",
			"loaders_hidden":      "true",
			"javascript_idle":     "true",
		}},
	}
	svc := wait.NewService(agent, nil, nil)
	svc.PollInterval = time.Millisecond

	metrics, err := svc.WaitForStableState(context.Background(), 2*time.Second)
	require.NoError(t, err)
	assert.True(t, metrics.IsStable)
	assert.False(t, metrics.TimedOut)
	assert.True(t, metrics.IsFullyStable())
	assert.Equal(t, float64(1), metrics.StabilityScore)
}

func TestService_PollConditions_TimesOutWithoutError(t *testing.T) {
	agent := &htmlSeqAgent{changesFor: 1_000_000}
	svc := wait.NewService(agent, nil, nil)
	svc.PollInterval = time.Millisecond

	metrics, err := svc.PollConditions(context.Background(), []model.WaitCondition{
		{Kind: model.ConditionDOMStable},
	}, 20*time.Millisecond, true, false)

	require.NoError(t, err)
	assert.False(t, metrics.IsStable)
	assert.True(t, metrics.TimedOut)
}

func TestService_PollConditions_TimesOutWithError(t *testing.T) {
	agent := &htmlSeqAgent{changesFor: 1_000_000}
	svc := wait.NewService(agent, nil, nil)
	svc.PollInterval = time.Millisecond

	_, err := svc.PollConditions(context.Background(), []model.WaitCondition{
		{Kind: model.ConditionDOMStable},
	}, 20*time.Millisecond, true, true)

	assert.Error(t, err)
}

func TestService_PollConditions_CustomPredicate(t *testing.T) {
	calls := 0
	svc := wait.NewService(&browser.NullAgent{}, nil, nil)
	svc.PollInterval = time.Millisecond

	metrics, err := svc.PollConditions(context.Background(), []model.WaitCondition{
		{Kind: model.ConditionCustomPredicate, Predicate: func() (bool, error) {
			calls++
			return calls >= 3, nil
		}},
	}, time.Second, true, true)

	require.NoError(t, err)
	assert.True(t, metrics.IsStable)
	assert.GreaterOrEqual(t, calls, 3)
}

func TestService_PollConditions_RequireAnyUsesOrSemantics(t *testing.T) {
	svc := wait.NewService(&browser.NullAgent{}, nil, nil)
	svc.PollInterval = time.Millisecond

	metrics, err := svc.PollConditions(context.Background(), []model.WaitCondition{
		{Kind: model.ConditionDOMStable},
		{Kind: model.ConditionCustomPredicate, Predicate: func() (bool, error) { return true, nil }},
	}, time.Second, false, true)

	require.NoError(t, err)
	assert.True(t, metrics.IsStable)
}

func TestService_AdaptiveTimeout_DefaultsBelowMinimumSamples(t *testing.T) {
	svc := wait.NewService(&browser.NullAgent{}, nil, nil)

	for i := 0; i < 5; i++ {
		svc.RecordSample(context.Background(), "click", 50*time.Millisecond, true)
	}

	d := svc.AdaptiveTimeout(context.Background(), "click", model.TimeoutAdaptive)
	assert.Equal(t, 10*time.Second, d)
}

func TestService_AdaptiveTimeout_ClampsToBoundsOnceSufficientSamples(t *testing.T) {
	svc := wait.NewService(&browser.NullAgent{}, nil, nil)

	for i := 0; i < 20; i++ {
		svc.RecordSample(context.Background(), "navigate", 100*time.Millisecond, true)
	}

	d := svc.AdaptiveTimeout(context.Background(), "navigate", model.TimeoutAdaptive)
	assert.GreaterOrEqual(t, d, time.Second)
	assert.LessOrEqual(t, d, 60*time.Second)

	for i := 0; i < 20; i++ {
		svc.RecordSample(context.Background(), "slow-action", time.Minute, true)
	}
	d = svc.AdaptiveTimeout(context.Background(), "slow-action", model.TimeoutAdaptive)
	assert.Equal(t, 60*time.Second, d)
}

func TestService_AdaptiveTimeout_UnknownActionUsesDefault(t *testing.T) {
	svc := wait.NewService(&browser.NullAgent{}, nil, nil)
	d := svc.AdaptiveTimeout(context.Background(), "never-seen", model.TimeoutFixed)
	assert.Equal(t, 10*time.Second, d)
}
