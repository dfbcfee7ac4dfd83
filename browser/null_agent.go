package browser

import (
	"context"
	"time"

	"github.com/driftline/browserpilot/model"
)

// NullAgent is a no-op Agent: every call succeeds immediately with empty
// results. Used by executor/tools tests that exercise control flow without
// a real driver.
type NullAgent struct {
	PageState model.PageState
}

var _ Agent = (*NullAgent)(nil)

func (NullAgent) Navigate(context.Context, string) error                      { return nil }
func (NullAgent) Click(context.Context, string, int) error                    { return nil }
func (NullAgent) Type(context.Context, string, string) error                  { return nil }
func (NullAgent) SelectOption(context.Context, string, string) error          { return nil }
func (NullAgent) WaitForElement(context.Context, string, time.Duration) error { return nil }
func (NullAgent) TakeScreenshot(context.Context) (string, error)              { return "", nil }
func (NullAgent) TakeFullPageScreenshotBytes(context.Context) ([]byte, error)  { return nil, nil }
func (NullAgent) GetText(context.Context, string) (string, error)             { return "", nil }
func (n NullAgent) GetPageState(context.Context) (model.PageState, error)     { return n.PageState, nil }
func (NullAgent) GetPageHTML(context.Context) (string, error)                 { return "", nil }
func (NullAgent) GetAccessibilityTree(context.Context) (string, error)        { return "", nil }
func (NullAgent) Initialize(context.Context) error                           { return nil }
func (NullAgent) Dispose(context.Context) error                              { return nil }
