// Package browser declares the Browser Agent capability the tool executor
// dispatches against (spec.md §6), plus two concrete implementations: a
// NullAgent for tests and a Recorder decorator that logs every call with
// its correlation id, grounded on the teacher's telemetry-wrapped-provider
// idiom (ai/chain_client.go wraps each provider call with span/metric
// instrumentation; Recorder does the same for browser calls).
package browser

import (
	"context"
	"time"

	"github.com/driftline/browserpilot/model"
)

// Agent is the capability a live browser driver must satisfy. This module
// never implements a real driver (spec.md §1 Non-goals: "defining the
// browser driver itself") — only the interface and test doubles.
type Agent interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string, retries int) error
	Type(ctx context.Context, selector, text string) error
	SelectOption(ctx context.Context, selector, value string) error
	WaitForElement(ctx context.Context, selector string, timeout time.Duration) error
	TakeScreenshot(ctx context.Context) (string, error)       // base64
	TakeFullPageScreenshotBytes(ctx context.Context) ([]byte, error)
	GetText(ctx context.Context, selector string) (string, error)
	GetPageState(ctx context.Context) (model.PageState, error)
	GetPageHTML(ctx context.Context) (string, error)
	GetAccessibilityTree(ctx context.Context) (string, error)

	Initialize(ctx context.Context) error
	Dispose(ctx context.Context) error
}
