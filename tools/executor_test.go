package tools_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/browserpilot/browser"
	"github.com/driftline/browserpilot/core"
	"github.com/driftline/browserpilot/model"
	"github.com/driftline/browserpilot/tools"
)

type countingAgent struct {
	browser.NullAgent
	fail  int
	calls int
	err   error
}

func (a *countingAgent) Navigate(ctx context.Context, url string) error {
	a.calls++
	if a.calls <= a.fail {
		return a.err
	}
	return nil
}

func fastConfig() tools.ExecutorConfig {
	cfg := tools.DefaultExecutorConfig()
	cfg.BaseBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	return cfg
}

func TestExecutor_UnknownToolIsTerminal(t *testing.T) {
	exec := tools.NewExecutor(tools.NewRegistry(), &countingAgent{}, fastConfig(), nil)
	result := exec.Execute(context.Background(), model.ToolCall{ToolName: "nonexistent"})

	assert.False(t, result.Success)
	assert.Equal(t, 0, result.AttemptCount)
	require.NotNil(t, result.Error)
	assert.Equal(t, core.KindInvalidParameters, result.Error.Kind)
}

func TestExecutor_MissingRequiredParamIsTerminal(t *testing.T) {
	exec := tools.NewExecutor(tools.DefaultRegistry(), &countingAgent{}, fastConfig(), nil)
	result := exec.Execute(context.Background(), model.ToolCall{ToolName: "navigate", Parameters: map[string]string{}})

	assert.False(t, result.Success)
	assert.Equal(t, 0, result.AttemptCount)
}

func TestExecutor_RetriesTransientThenSucceeds(t *testing.T) {
	agent := &countingAgent{fail: 1, err: fmt.Errorf("network blip")}
	exec := tools.NewExecutor(tools.DefaultRegistry(), agent, fastConfig(), nil)

	result := exec.Execute(context.Background(), model.ToolCall{ToolName: "navigate", Parameters: map[string]string{"url": "https://example.com"}})

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.AttemptCount)
	assert.True(t, result.WasRetried)
}

func TestExecutor_TerminalErrorNeverRetries(t *testing.T) {
	agent := &countingAgent{fail: 10, err: fmt.Errorf("javascript error: uncaught exception")}
	exec := tools.NewExecutor(tools.DefaultRegistry(), agent, fastConfig(), nil)

	result := exec.Execute(context.Background(), model.ToolCall{ToolName: "navigate", Parameters: map[string]string{"url": "https://example.com"}})

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.AttemptCount)
	assert.False(t, result.WasRetried)
}

// Boundary: max_attempts = 1 means no retry ever occurs.
func TestExecutor_MaxAttemptsOneNeverRetries(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 1
	agent := &countingAgent{fail: 10, err: fmt.Errorf("network blip")}
	exec := tools.NewExecutor(tools.DefaultRegistry(), agent, cfg, nil)

	result := exec.Execute(context.Background(), model.ToolCall{ToolName: "navigate", Parameters: map[string]string{"url": "https://example.com"}})

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.AttemptCount)
	assert.False(t, result.WasRetried)
}

func TestExecutor_AttemptsExhaustedReturnsFailure(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 3
	agent := &countingAgent{fail: 10, err: fmt.Errorf("network blip")}
	exec := tools.NewExecutor(tools.DefaultRegistry(), agent, cfg, nil)

	result := exec.Execute(context.Background(), model.ToolCall{ToolName: "navigate", Parameters: map[string]string{"url": "https://example.com"}})

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.AttemptCount)
	assert.True(t, result.WasRetried)
	assert.GreaterOrEqual(t, result.ExecutionDuration, time.Duration(0))
}

func TestRegistry_ValidateUnknownTool(t *testing.T) {
	r := tools.NewRegistry()
	err := r.Validate(model.ToolCall{ToolName: "nope"})
	require.Error(t, err)
}

func TestRegistry_ValidateMissingFields(t *testing.T) {
	r := tools.DefaultRegistry()
	err := r.Validate(model.ToolCall{ToolName: "type", Parameters: map[string]string{"selector": "#x"}})
	require.Error(t, err)
}

func TestRegistry_ValidateOK(t *testing.T) {
	r := tools.DefaultRegistry()
	err := r.Validate(model.ToolCall{ToolName: "type", Parameters: map[string]string{"selector": "#x", "text": "hi"}})
	require.NoError(t, err)
}
