// Package anthropic implements llm.Provider against Anthropic's native
// Messages API. No Anthropic Go SDK appears anywhere in the retrieval
// pack; this is a direct port of the teacher's own hand-rolled
// net/http client (ai/providers/anthropic/client.go) — same endpoint,
// headers, and SSE parsing — adapted to this module's Provider shape
// instead of the teacher's single-shot core.AIClient.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/driftline/browserpilot/core"
	"github.com/driftline/browserpilot/llm"
)

const (
	DefaultBaseURL = "https://api.anthropic.com/v1"
	APIVersion     = "2023-06-01"
)

// Provider wraps Anthropic's Messages API behind llm.Provider.
type Provider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     core.Logger

	mu        sync.Mutex
	lastUsage llm.TokenUsage
}

var _ llm.Provider = (*Provider)(nil)

func New(apiKey, baseURL, model string, logger core.Logger) *Provider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = "claude-3-5-sonnet-20241022"
	}
	return &Provider{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (p *Provider) Name() string { return "anthropic" }

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature,omitempty"`
	System      string        `json:"system,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireResponse struct {
	ID         string            `json:"id"`
	Content    []wireContentItem `json:"content"`
	Model      string            `json:"model"`
	StopReason string            `json:"stop_reason"`
	Usage      wireUsage         `json:"usage"`
}

type wireContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type wireErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// toWireRequest folds the request's system-role message (if any) into the
// Anthropic "system" field, since the native Messages API carries system
// prompts out-of-band rather than as a "system"-role message.
func (p *Provider) toWireRequest(req llm.CompletionRequest, stream bool) wireRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	var system string
	messages := make([]wireMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		messages = append(messages, wireMessage{Role: m.Role, Content: m.Content})
	}

	return wireRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		System:      system,
		Stream:      stream,
	}
}

func (p *Provider) do(ctx context.Context, body wireRequest) (*http.Response, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("anthropic: API key not configured")
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", APIVersion)
	if body.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	return p.httpClient.Do(httpReq)
}

func (p *Provider) handleError(statusCode int, body []byte) error {
	var wireErr wireErrorResponse
	if err := json.Unmarshal(body, &wireErr); err == nil && wireErr.Error.Message != "" {
		return fmt.Errorf("anthropic: %s (status %d): %s", wireErr.Error.Type, statusCode, wireErr.Error.Message)
	}
	return fmt.Errorf("anthropic: request failed with status %d", statusCode)
}

func (p *Provider) logError(ctx context.Context, op string, err error) {
	if p.logger == nil {
		return
	}
	p.logger.ErrorContext(ctx, op, map[string]interface{}{"provider": "anthropic", "error": err.Error()})
}

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	resp, err := p.do(ctx, p.toWireRequest(req, false))
	if err != nil {
		p.logError(ctx, "anthropic request failed", err)
		return llm.CompletionResponse{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.CompletionResponse{}, fmt.Errorf("anthropic: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := p.handleError(resp.StatusCode, body)
		p.logError(ctx, "anthropic API error", apiErr)
		return llm.CompletionResponse{}, apiErr
	}

	var wireResp wireResponse
	if err := json.Unmarshal(body, &wireResp); err != nil {
		return llm.CompletionResponse{}, fmt.Errorf("anthropic: parse response: %w", err)
	}

	var content strings.Builder
	for _, item := range wireResp.Content {
		if item.Type == "text" {
			content.WriteString(item.Text)
		}
	}
	if content.Len() == 0 {
		return llm.CompletionResponse{}, fmt.Errorf("anthropic: no text content in response")
	}

	usage := llm.TokenUsage{
		InputTokens:  wireResp.Usage.InputTokens,
		OutputTokens: wireResp.Usage.OutputTokens,
		CostUSD:      estimateCost(wireResp.Usage.InputTokens, wireResp.Usage.OutputTokens),
	}
	p.mu.Lock()
	p.lastUsage = usage
	p.mu.Unlock()

	return llm.CompletionResponse{
		ID:      wireResp.ID,
		Choices: []llm.Choice{{Index: 0, Content: content.String(), FinishReason: wireResp.StopReason}},
		Usage:   usage,
	}, nil
}

type sseEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Model string    `json:"model"`
		Usage wireUsage `json:"usage"`
	} `json:"message"`
	Delta *struct {
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage *wireUsage `json:"usage"`
}

func (p *Provider) StreamComplete(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	resp, err := p.do(ctx, p.toWireRequest(req, true))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, p.handleError(resp.StatusCode, body)
	}

	ch := make(chan llm.Chunk)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		reader := bufio.NewReader(resp.Body)
		var model string
		var inputTokens, outputTokens int

		for {
			select {
			case <-ctx.Done():
				ch <- llm.Chunk{Err: ctx.Err()}
				return
			default:
			}

			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					ch <- llm.Chunk{Err: fmt.Errorf("anthropic: read stream: %w", err)}
				}
				return
			}
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "event: ") || !strings.HasPrefix(line, "data: ") {
				continue
			}

			var event sseEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
				continue
			}

			switch event.Type {
			case "message_start":
				if event.Message != nil {
					model = event.Message.Model
					inputTokens = event.Message.Usage.InputTokens
				}
			case "content_block_delta":
				if event.Delta != nil && event.Delta.Text != "" {
					select {
					case <-ctx.Done():
						ch <- llm.Chunk{Err: ctx.Err()}
						return
					case ch <- llm.Chunk{Delta: event.Delta.Text}:
					}
				}
			case "message_delta":
				if event.Usage != nil {
					outputTokens = event.Usage.OutputTokens
				}
				if event.Delta != nil && event.Delta.StopReason != "" {
					p.mu.Lock()
					p.lastUsage = llm.TokenUsage{
						InputTokens:  inputTokens,
						OutputTokens: outputTokens,
						CostUSD:      estimateCost(inputTokens, outputTokens),
					}
					p.mu.Unlock()
					ch <- llm.Chunk{FinishReason: event.Delta.StopReason}
				}
			case "message_stop":
				_ = model
				return
			}
		}
	}()
	return ch, nil
}

// GenerateEmbedding is not offered by Anthropic's API.
func (p *Provider) GenerateEmbedding(ctx context.Context, text string, model string) ([]float64, error) {
	return nil, fmt.Errorf("anthropic: embeddings not supported")
}

func (p *Provider) IsAvailable(ctx context.Context) bool {
	return p.apiKey != ""
}

func (p *Provider) GetCapabilities() llm.Capabilities {
	return llm.Capabilities{
		SupportsStreaming:       true,
		SupportsFunctionCalling: true,
		SupportsVision:          true,
		SupportsEmbeddings:      false,
		MaxContextTokens:        200000,
		MaxOutputTokens:         8192,
	}
}

func (p *Provider) GetLastTokenUsage() llm.TokenUsage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastUsage
}

func estimateCost(inputTokens, outputTokens int) float64 {
	const inRate, outRate = 0.003, 0.015
	return float64(inputTokens)/1000*inRate + float64(outputTokens)/1000*outRate
}
