// Package mock implements a deterministic, scriptable llm.Provider for
// tests and local development, grounded on the teacher's
// ai/providers/mock.Client (a configurable response queue plus call
// counters, never auto-registered/auto-detected in production).
package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/driftline/browserpilot/llm"
)

// Provider returns scripted responses in order, recording every call for
// test assertions.
type Provider struct {
	mu sync.Mutex

	NameTag      string
	Responses    []string
	Err          error
	Available    bool
	Capabilities llm.Capabilities

	CallCount  int
	LastPrompt string
	lastUsage  llm.TokenUsage
}

var _ llm.Provider = (*Provider)(nil)

// New creates a mock provider that returns responses in order, cycling
// back to the last entry once exhausted.
func New(name string, responses ...string) *Provider {
	if len(responses) == 0 {
		responses = []string{"mock response"}
	}
	return &Provider{
		NameTag:   name,
		Responses: responses,
		Available: true,
		Capabilities: llm.Capabilities{
			SupportsStreaming:       true,
			SupportsFunctionCalling: true,
			SupportsEmbeddings:      true,
			MaxContextTokens:        8192,
			MaxOutputTokens:         2048,
		},
	}
}

func (p *Provider) Name() string { return p.NameTag }

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return llm.CompletionResponse{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCount++
	if len(req.Messages) > 0 {
		p.LastPrompt = req.Messages[len(req.Messages)-1].Content
	}

	if p.Err != nil {
		return llm.CompletionResponse{}, p.Err
	}
	if len(p.Responses) == 0 {
		return llm.CompletionResponse{}, errors.New("mock: no more scripted responses")
	}

	idx := p.CallCount - 1
	if idx >= len(p.Responses) {
		idx = len(p.Responses) - 1
	}
	content := p.Responses[idx]

	p.lastUsage = llm.TokenUsage{InputTokens: len(req.Messages) * 10, OutputTokens: len(content) / 4}
	return llm.CompletionResponse{
		ID:      fmt.Sprintf("%s-%d", p.NameTag, p.CallCount),
		Choices: []llm.Choice{{Index: 0, Content: content, FinishReason: "stop"}},
		Usage:   p.lastUsage,
	}, nil
}

func (p *Provider) StreamComplete(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.Chunk)
	go func() {
		defer close(ch)
		content := resp.Choices[0].Content
		for _, r := range content {
			select {
			case <-ctx.Done():
				ch <- llm.Chunk{Err: ctx.Err()}
				return
			case ch <- llm.Chunk{Delta: string(r)}:
			}
		}
		ch <- llm.Chunk{FinishReason: "stop"}
	}()
	return ch, nil
}

func (p *Provider) GenerateEmbedding(ctx context.Context, text string, model string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float64, 8)
	for i := range vec {
		vec[i] = float64((len(text)+i)%97) / 97
	}
	return vec, nil
}

func (p *Provider) IsAvailable(ctx context.Context) bool { return p.Available }

func (p *Provider) GetCapabilities() llm.Capabilities { return p.Capabilities }

func (p *Provider) GetLastTokenUsage() llm.TokenUsage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastUsage
}
