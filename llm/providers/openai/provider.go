// Package openai implements llm.Provider on top of
// github.com/sashabaranov/go-openai, grounded on the pack's own
// OpenAIClient.Generate pattern (services/llm/openai_llm.go): a thin
// wrapper constructing openai.ChatCompletionRequest from the caller's
// messages and mapping the SDK response/errors back to this module's
// types.
package openai

import (
	"context"
	"fmt"
	"sync"

	sdk "github.com/sashabaranov/go-openai"

	"github.com/driftline/browserpilot/core"
	"github.com/driftline/browserpilot/llm"
)

// Provider wraps an *openai.Client behind the llm.Provider capability.
type Provider struct {
	api    *sdk.Client
	model  string
	logger core.Logger

	mu        sync.Mutex
	lastUsage llm.TokenUsage
}

var _ llm.Provider = (*Provider)(nil)

// New builds a Provider for the given API key and default chat model.
// A custom base URL (Azure OpenAI, self-hosted gateways) can be supplied
// via baseURL; an empty string uses the SDK's default.
func New(apiKey, model, baseURL string, logger core.Logger) *Provider {
	cfg := sdk.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Provider{
		api:    sdk.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) toRequest(req llm.CompletionRequest) sdk.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}
	messages := make([]sdk.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, sdk.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return sdk.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
}

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	resp, err := p.api.CreateChatCompletion(ctx, p.toRequest(req))
	if err != nil {
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "openai completion failed", map[string]interface{}{"error": err.Error()})
		}
		return llm.CompletionResponse{}, fmt.Errorf("openai: create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llm.CompletionResponse{}, fmt.Errorf("openai: no choices returned")
	}

	choices := make([]llm.Choice, 0, len(resp.Choices))
	for _, c := range resp.Choices {
		choices = append(choices, llm.Choice{
			Index:        c.Index,
			Content:      c.Message.Content,
			FinishReason: string(c.FinishReason),
		})
	}
	usage := llm.TokenUsage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		CostUSD:      estimateCost(resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
	}

	p.mu.Lock()
	p.lastUsage = usage
	p.mu.Unlock()

	return llm.CompletionResponse{ID: resp.ID, Choices: choices, Usage: usage}, nil
}

func (p *Provider) StreamComplete(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	sreq := p.toRequest(req)
	sreq.Stream = true
	stream, err := p.api.CreateChatCompletionStream(ctx, sreq)
	if err != nil {
		return nil, fmt.Errorf("openai: create chat completion stream: %w", err)
	}

	ch := make(chan llm.Chunk)
	go func() {
		defer close(ch)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if err != nil {
				if err.Error() != "EOF" {
					ch <- llm.Chunk{Err: err}
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			choice := resp.Choices[0]
			select {
			case <-ctx.Done():
				ch <- llm.Chunk{Err: ctx.Err()}
				return
			case ch <- llm.Chunk{Delta: choice.Delta.Content, FinishReason: string(choice.FinishReason)}:
			}
		}
	}()
	return ch, nil
}

func (p *Provider) GenerateEmbedding(ctx context.Context, text string, model string) ([]float64, error) {
	if model == "" {
		model = "text-embedding-3-small"
	}
	resp, err := p.api.CreateEmbeddings(ctx, sdk.EmbeddingRequestStrings{
		Input: []string{text},
		Model: sdk.EmbeddingModel(model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai: create embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai: no embedding returned")
	}
	out := make([]float64, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		out[i] = float64(v)
	}
	return out, nil
}

func (p *Provider) IsAvailable(ctx context.Context) bool {
	_, err := p.api.ListModels(ctx)
	return err == nil
}

func (p *Provider) GetCapabilities() llm.Capabilities {
	return llm.Capabilities{
		SupportsStreaming:       true,
		SupportsFunctionCalling: true,
		SupportsVision:          true,
		SupportsEmbeddings:      true,
		MaxContextTokens:        128000,
		MaxOutputTokens:         16384,
	}
}

func (p *Provider) GetLastTokenUsage() llm.TokenUsage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastUsage
}

// estimateCost applies rough per-1K-token pricing for cost-aware routing
// (spec.md §4.9 CostOptimized strategy). Prices are approximate and only
// need to be directionally correct for ranking providers against each
// other, not exact billing.
func estimateCost(model string, inputTokens, outputTokens int) float64 {
	inRate, outRate := 0.0005, 0.0015
	switch {
	case len(model) >= 5 && model[:5] == "gpt-4":
		inRate, outRate = 0.005, 0.015
	}
	return float64(inputTokens)/1000*inRate + float64(outputTokens)/1000*outRate
}
