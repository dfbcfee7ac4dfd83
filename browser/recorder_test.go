package browser_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/browserpilot/browser"
	"github.com/driftline/browserpilot/core"
	"github.com/driftline/browserpilot/model"
)

type capturedCall struct {
	level  string
	msg    string
	fields map[string]interface{}
}

type capturingLogger struct {
	core.NoOpLogger
	calls []capturedCall
}

func (c *capturingLogger) DebugContext(_ context.Context, msg string, fields map[string]interface{}) {
	c.calls = append(c.calls, capturedCall{level: "debug", msg: msg, fields: fields})
}

func (c *capturingLogger) ErrorContext(_ context.Context, msg string, fields map[string]interface{}) {
	c.calls = append(c.calls, capturedCall{level: "error", msg: msg, fields: fields})
}

type failingAgent struct {
	browser.NullAgent
	clickErr error
}

func (f failingAgent) Click(context.Context, string, int) error {
	return f.clickErr
}

func TestRecorder_Navigate_LogsSuccessWithURL(t *testing.T) {
	log := &capturingLogger{}
	r := browser.NewRecorder(&browser.NullAgent{}, log)

	err := r.Navigate(context.Background(), "https://example.com")
	require.NoError(t, err)

	require.Len(t, log.calls, 1)
	assert.Equal(t, "debug", log.calls[0].level)
	assert.Equal(t, "navigate", log.calls[0].fields["op"])
	assert.Equal(t, "https://example.com", log.calls[0].fields["url"])
}

func TestRecorder_Click_LogsErrorWhenAgentFails(t *testing.T) {
	log := &capturingLogger{}
	agent := failingAgent{clickErr: errors.New("element not interactable")}
	r := browser.NewRecorder(agent, log)

	err := r.Click(context.Background(), "#submit", 2)
	require.Error(t, err)

	require.Len(t, log.calls, 1)
	assert.Equal(t, "error", log.calls[0].level)
	assert.Equal(t, "click", log.calls[0].fields["op"])
	assert.Equal(t, "#submit", log.calls[0].fields["selector"])
	assert.Equal(t, "element not interactable", log.calls[0].fields["error"])
}

func TestRecorder_WaitForElement_IncludesTimeoutMilliseconds(t *testing.T) {
	log := &capturingLogger{}
	r := browser.NewRecorder(&browser.NullAgent{}, log)

	require.NoError(t, r.WaitForElement(context.Background(), "#ready", 2*time.Second))

	require.Len(t, log.calls, 1)
	assert.Equal(t, int64(2000), log.calls[0].fields["timeout_ms"])
}

func TestRecorder_GetPageState_LogsURLFromResult(t *testing.T) {
	log := &capturingLogger{}
	agent := &browser.NullAgent{PageState: model.PageState{URL: "https://example.com/dashboard"}}
	r := browser.NewRecorder(agent, log)

	state, err := r.GetPageState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/dashboard", state.URL)

	require.Len(t, log.calls, 1)
	assert.Equal(t, "https://example.com/dashboard", log.calls[0].fields["url"])
}

func TestRecorder_New_DefaultsNilLoggerToNoOp(t *testing.T) {
	r := browser.NewRecorder(&browser.NullAgent{}, nil)
	assert.NotPanics(t, func() {
		_ = r.Navigate(context.Background(), "https://example.com")
	})
}

func TestRecorder_Dispose_PropagatesUnderlyingError(t *testing.T) {
	log := &capturingLogger{}
	r := browser.NewRecorder(disposeFailingAgent{}, log)

	err := r.Dispose(context.Background())
	require.Error(t, err)
	assert.Equal(t, "dispose", log.calls[0].fields["op"])
}

type disposeFailingAgent struct {
	browser.NullAgent
}

func (disposeFailingAgent) Dispose(context.Context) error {
	return errors.New("driver shutdown failed")
}
