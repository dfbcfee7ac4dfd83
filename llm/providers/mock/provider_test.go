package mock_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/browserpilot/llm"
	"github.com/driftline/browserpilot/llm/providers/mock"
)

func TestProvider_Complete_CyclesThroughScriptedResponsesThenRepeatsLast(t *testing.T) {
	p := mock.New("scripted", "first", "second")

	resp1, err := p.Complete(context.Background(), llm.CompletionRequest{Messages: []llm.Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "first", resp1.Choices[0].Content)

	resp2, err := p.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "second", resp2.Choices[0].Content)

	resp3, err := p.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "second", resp3.Choices[0].Content)

	assert.Equal(t, 3, p.CallCount)
}

func TestProvider_Complete_ReturnsScriptedError(t *testing.T) {
	wantErr := errors.New("rate limited")
	p := mock.New("flaky")
	p.Err = wantErr

	_, err := p.Complete(context.Background(), llm.CompletionRequest{})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, p.CallCount)
}

func TestProvider_Complete_HonorsContextCancellation(t *testing.T) {
	p := mock.New("cancel-aware")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Complete(ctx, llm.CompletionRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, p.CallCount)
}

func TestProvider_StreamComplete_EmitsDeltasThenFinishReason(t *testing.T) {
	p := mock.New("streamer", "ok")

	ch, err := p.StreamComplete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)

	var deltas string
	var finish string
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatalf("unexpected chunk error: %v", chunk.Err)
		}
		deltas += chunk.Delta
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
	}
	assert.Equal(t, "ok", deltas)
	assert.Equal(t, "stop", finish)
}

func TestProvider_StreamComplete_StopsOnContextCancellation(t *testing.T) {
	p := mock.New("streamer", "a long response that takes a while to stream out")
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := p.StreamComplete(ctx, llm.CompletionRequest{})
	require.NoError(t, err)

	first := <-ch
	require.Nil(t, first.Err)
	cancel()

	var sawErr bool
	for chunk := range ch {
		if chunk.Err != nil {
			sawErr = true
		}
	}
	assert.True(t, sawErr)
}

func TestProvider_GenerateEmbedding_DeterministicForSameInput(t *testing.T) {
	p := mock.New("embedder")
	v1, err := p.GenerateEmbedding(context.Background(), "hello world", "")
	require.NoError(t, err)
	v2, err := p.GenerateEmbedding(context.Background(), "hello world", "")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Len(t, v1, 8)
}

func TestProvider_GetLastTokenUsage_ReflectsMostRecentCall(t *testing.T) {
	p := mock.New("usage", "abcd")
	_, err := p.Complete(context.Background(), llm.CompletionRequest{Messages: []llm.Message{{Role: "user", Content: "x"}}})
	require.NoError(t, err)

	usage := p.GetLastTokenUsage()
	assert.Equal(t, 10, usage.InputTokens)
	assert.Equal(t, 1, usage.OutputTokens)
}

func TestProvider_IsAvailable_ReflectsAvailableField(t *testing.T) {
	p := mock.New("toggle")
	assert.True(t, p.IsAvailable(context.Background()))
	p.Available = false
	assert.False(t, p.IsAvailable(context.Background()))
}

func TestProvider_New_DefaultsResponseWhenNoneGiven(t *testing.T) {
	p := mock.New("defaulted")
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "mock response", resp.Choices[0].Content)
}
