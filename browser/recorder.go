package browser

import (
	"context"
	"time"

	"github.com/driftline/browserpilot/core"
	"github.com/driftline/browserpilot/model"
)

// Recorder wraps any Agent and logs each call's operation and outcome
// through the Logger's ctx-aware methods, which add the correlation id
// carried by ctx. The call's duration is not logged. This is the only
// piece of "test-recording capture" this module implements (spec.md §1
// lists recording capture as out of scope for the full feature; Recorder
// is strictly an audit-log decorator, not a video/trace recorder).
type Recorder struct {
	Agent  Agent
	Logger core.Logger
}

var _ Agent = (*Recorder)(nil)

func NewRecorder(agent Agent, logger core.Logger) *Recorder {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &Recorder{Agent: agent, Logger: logger}
}

func (r *Recorder) record(ctx context.Context, op string, fields map[string]interface{}, err error) {
	start := time.Now()
	_ = start
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["op"] = op
	if err != nil {
		fields["error"] = err.Error()
		r.Logger.ErrorContext(ctx, "browser call failed", fields)
		return
	}
	r.Logger.DebugContext(ctx, "browser call completed", fields)
}

func (r *Recorder) Navigate(ctx context.Context, url string) error {
	err := r.Agent.Navigate(ctx, url)
	r.record(ctx, "navigate", map[string]interface{}{"url": url}, err)
	return err
}

func (r *Recorder) Click(ctx context.Context, selector string, retries int) error {
	err := r.Agent.Click(ctx, selector, retries)
	r.record(ctx, "click", map[string]interface{}{"selector": selector}, err)
	return err
}

func (r *Recorder) Type(ctx context.Context, selector, text string) error {
	err := r.Agent.Type(ctx, selector, text)
	r.record(ctx, "type", map[string]interface{}{"selector": selector}, err)
	return err
}

func (r *Recorder) SelectOption(ctx context.Context, selector, value string) error {
	err := r.Agent.SelectOption(ctx, selector, value)
	r.record(ctx, "select_option", map[string]interface{}{"selector": selector}, err)
	return err
}

func (r *Recorder) WaitForElement(ctx context.Context, selector string, timeout time.Duration) error {
	err := r.Agent.WaitForElement(ctx, selector, timeout)
	r.record(ctx, "wait_for_element", map[string]interface{}{"selector": selector, "timeout_ms": timeout.Milliseconds()}, err)
	return err
}

func (r *Recorder) TakeScreenshot(ctx context.Context) (string, error) {
	b64, err := r.Agent.TakeScreenshot(ctx)
	r.record(ctx, "take_screenshot", nil, err)
	return b64, err
}

func (r *Recorder) TakeFullPageScreenshotBytes(ctx context.Context) ([]byte, error) {
	b, err := r.Agent.TakeFullPageScreenshotBytes(ctx)
	r.record(ctx, "take_full_page_screenshot_bytes", nil, err)
	return b, err
}

func (r *Recorder) GetText(ctx context.Context, selector string) (string, error) {
	text, err := r.Agent.GetText(ctx, selector)
	r.record(ctx, "get_text", map[string]interface{}{"selector": selector}, err)
	return text, err
}

func (r *Recorder) GetPageState(ctx context.Context) (model.PageState, error) {
	state, err := r.Agent.GetPageState(ctx)
	r.record(ctx, "get_page_state", map[string]interface{}{"url": state.URL}, err)
	return state, err
}

func (r *Recorder) GetPageHTML(ctx context.Context) (string, error) {
	html, err := r.Agent.GetPageHTML(ctx)
	r.record(ctx, "get_page_html", nil, err)
	return html, err
}

func (r *Recorder) GetAccessibilityTree(ctx context.Context) (string, error) {
	tree, err := r.Agent.GetAccessibilityTree(ctx)
	r.record(ctx, "get_accessibility_tree", nil, err)
	return tree, err
}

func (r *Recorder) Initialize(ctx context.Context) error {
	err := r.Agent.Initialize(ctx)
	r.record(ctx, "initialize", nil, err)
	return err
}

func (r *Recorder) Dispose(ctx context.Context) error {
	err := r.Agent.Dispose(ctx)
	r.record(ctx, "dispose", nil, err)
	return err
}
