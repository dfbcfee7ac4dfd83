package anthropic_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/browserpilot/llm"
	"github.com/driftline/browserpilot/llm/providers/anthropic"
)

func TestProvider_Complete_ParsesTextContentAndUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropic.APIVersion, r.Header.Get("anthropic-version"))

		fmt.Fprint(w, `{
			"id": "msg_123",
			"content": [{"type": "text", "text": "hello there"}],
			"model": "claude-3-5-sonnet-20241022",
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 4}
		}`)
	}))
	defer srv.Close()

	p := anthropic.New("test-key", srv.URL, "", nil)
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "hello there", resp.Choices[0].Content)
	assert.Equal(t, "end_turn", resp.Choices[0].FinishReason)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 4, resp.Usage.OutputTokens)
	assert.Greater(t, resp.Usage.CostUSD, 0.0)

	usage := p.GetLastTokenUsage()
	assert.Equal(t, 12, usage.InputTokens)
}

func TestProvider_Complete_FoldsSystemRoleMessageOutOfBand(t *testing.T) {
	var gotSystem string
	var gotMessageCount int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotSystem, _ = body["system"].(string)
		if msgs, ok := body["messages"].([]interface{}); ok {
			gotMessageCount = len(msgs)
		}
		fmt.Fprint(w, `{"id":"m1","content":[{"type":"text","text":"ok"}],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`)
	}))
	defer srv.Close()

	p := anthropic.New("k", srv.URL, "", nil)
	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "be concise"},
			{Role: "user", Content: "hi"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "be concise", gotSystem)
	assert.Equal(t, 1, gotMessageCount)
}

func TestProvider_Complete_MapsAPIErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"type":"rate_limit_error","message":"slow down"}}`)
	}))
	defer srv.Close()

	p := anthropic.New("k", srv.URL, "", nil)
	_, err := p.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit_error")
	assert.Contains(t, err.Error(), "slow down")
}

func TestProvider_Complete_MissingAPIKeyErrorsWithoutRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	p := anthropic.New("", srv.URL, "", nil)
	_, err := p.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.False(t, called)
}

func TestProvider_StreamComplete_EmitsDeltaChunksThenFinishReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		events := []string{
			`data: {"type":"message_start","message":{"model":"claude-3-5-sonnet-20241022","usage":{"input_tokens":5,"output_tokens":0}}}`,
			`data: {"type":"content_block_delta","delta":{"text":"hi"}}`,
			`data: {"type":"content_block_delta","delta":{"text":" there"}}`,
			`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":2}}`,
			`data: {"type":"message_stop"}`,
		}
		for _, e := range events {
			fmt.Fprintln(w, e)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	defer srv.Close()

	p := anthropic.New("k", srv.URL, "", nil)
	ch, err := p.StreamComplete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)

	var text, finish string
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		text += chunk.Delta
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
	}
	assert.Equal(t, "hi there", text)
	assert.Equal(t, "end_turn", finish)

	usage := p.GetLastTokenUsage()
	assert.Equal(t, 5, usage.InputTokens)
	assert.Equal(t, 2, usage.OutputTokens)
}

func TestProvider_GenerateEmbedding_Unsupported(t *testing.T) {
	p := anthropic.New("k", "", "", nil)
	_, err := p.GenerateEmbedding(context.Background(), "text", "")
	assert.Error(t, err)
}

func TestProvider_IsAvailable_ReflectsAPIKeyPresence(t *testing.T) {
	assert.True(t, anthropic.New("k", "", "", nil).IsAvailable(context.Background()))
	assert.False(t, anthropic.New("", "", "", nil).IsAvailable(context.Background()))
}

func TestProvider_GetCapabilities_NoEmbeddingSupport(t *testing.T) {
	caps := anthropic.New("k", "", "", nil).GetCapabilities()
	assert.False(t, caps.SupportsEmbeddings)
	assert.True(t, caps.SupportsStreaming)
}
