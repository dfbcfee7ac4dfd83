// Package llm declares the LLM Provider capability (spec.md §6) consumed
// by the Routing Provider, plus the shared request/response/chunk types.
// Grounded on the teacher's ai.ChainClient/core.AIClient split: a small
// capability interface every concrete backend implements, instrumented
// uniformly by a wrapping decorator rather than duplicated per backend.
package llm

import (
	"context"
	"time"
)

// Message is one turn in a chat-style completion request.
type Message struct {
	Role    string `json:"role"` // "system" | "user" | "assistant"
	Content string `json:"content"`
}

// CompletionRequest is the input to Complete/StreamComplete.
type CompletionRequest struct {
	Messages         []Message `json:"messages"`
	Model            string    `json:"model,omitempty"`
	MaxTokens        int       `json:"max_tokens,omitempty"`
	Temperature      float32   `json:"temperature,omitempty"`
	Stream           bool      `json:"stream,omitempty"`
	FunctionCalling  bool      `json:"function_calling,omitempty"`
	RequiredVision   bool      `json:"required_vision,omitempty"`
}

// Choice is one candidate completion.
type Choice struct {
	Index        int    `json:"index"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// TokenUsage reports the cost of one request.
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// CompletionResponse is Complete's output.
type CompletionResponse struct {
	ID      string     `json:"id"`
	Choices []Choice   `json:"choices"`
	Usage   TokenUsage `json:"usage"`
}

// Chunk is one piece of a streamed completion.
type Chunk struct {
	Delta        string `json:"delta"`
	FinishReason string `json:"finish_reason,omitempty"`
	Err          error  `json:"-"`
}

// Capabilities reports what a provider backend supports, consumed by
// Routing Provider's hard-filter gating (spec.md §4.9 step 2).
type Capabilities struct {
	SupportsStreaming       bool `json:"supports_streaming"`
	SupportsFunctionCalling bool `json:"supports_function_calling"`
	SupportsVision          bool `json:"supports_vision"`
	SupportsEmbeddings      bool `json:"supports_embeddings"`
	MaxContextTokens        int  `json:"max_context_tokens"`
	MaxOutputTokens         int  `json:"max_output_tokens"`
}

// Provider is the LLM Provider capability (spec.md §6). StreamComplete
// returns a receive-only channel that the caller ranges over; backpressure
// comes from the channel being unbuffered (spec.md §5: "no internal
// buffering beyond a single chunk") — the backend blocks on send until
// the caller pulls the next chunk.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	StreamComplete(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)
	GenerateEmbedding(ctx context.Context, text string, model string) ([]float64, error)
	IsAvailable(ctx context.Context) bool
	GetCapabilities() Capabilities
	GetLastTokenUsage() TokenUsage
}

// RequestTimeout is the default per-request timeout Routing Provider
// applies around a single provider call (spec.md §6 configuration
// surface: request_timeout_s 60).
const RequestTimeout = 60 * time.Second
