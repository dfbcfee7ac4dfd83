package routing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/browserpilot/llm"
	"github.com/driftline/browserpilot/llm/providers/mock"
	"github.com/driftline/browserpilot/routing"
)

// S7 — circuit breaker opens then fallback succeeds: provider A fails
// five times (tripping the default threshold-5 breaker), the sixth request
// finds A's breaker open and is served by B.
func TestProvider_CircuitBreakerOpensThenRoutesToB(t *testing.T) {
	a := mock.New("A", "should not be used")
	a.Err = errors.New("boom")
	b := mock.New("B", "from B")

	p, err := routing.New(routing.Config{
		Strategy:       routing.TaskBased{},
		EnableFallback: false,
		RequestTimeout: time.Second,
	}, a, b)
	require.NoError(t, err)

	// routing.New gives every backend a breaker with the default threshold
	// (5) and offers no per-backend override, so A is driven through five
	// failing calls.
	req := llm.CompletionRequest{Messages: []llm.Message{{Role: "user", Content: "please plan the steps"}}}

	for i := 0; i < 5; i++ {
		_, err := p.Complete(context.Background(), req, routing.RequestOptions{})
		require.Error(t, err)
	}
	assert.Equal(t, 5, a.CallCount)
	assert.Equal(t, 0, b.CallCount)

	// A's breaker is now open; the next call must be served by B.
	resp, err := p.Complete(context.Background(), req, routing.RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "from B", resp.Choices[0].Content)
	assert.Equal(t, 5, a.CallCount, "A must not be retried once its breaker is open")
	assert.Equal(t, 1, b.CallCount)
}

func TestProvider_AllProvidersFailed(t *testing.T) {
	a := mock.New("A")
	a.Err = errors.New("boom")

	p, err := routing.New(routing.Config{
		Strategy:       routing.TaskBased{},
		EnableFallback: true,
		RequestTimeout: time.Second,
	}, a)
	require.NoError(t, err)

	req := llm.CompletionRequest{Messages: []llm.Message{{Role: "user", Content: "hello"}}}
	_, err = p.Complete(context.Background(), req, routing.RequestOptions{})
	require.Error(t, err)
}

func TestProvider_HardCapabilityFilterExcludesNonStreamingProvider(t *testing.T) {
	noStream := mock.New("no-stream", "x")
	noStream.Capabilities.SupportsStreaming = false
	streaming := mock.New("streaming", "from streaming")

	p, err := routing.New(routing.Config{
		Strategy:       routing.TaskBased{},
		EnableFallback: true,
		RequestTimeout: time.Second,
	}, noStream, streaming)
	require.NoError(t, err)

	req := llm.CompletionRequest{Stream: true, Messages: []llm.Message{{Role: "user", Content: "hello"}}}
	resp, err := p.Complete(context.Background(), req, routing.RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "from streaming", resp.Choices[0].Content)
	assert.Equal(t, 0, noStream.CallCount)
}
