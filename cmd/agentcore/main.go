// Command agentcore wires every package in this module together and runs
// one demo AgentTask end to end: Tool Registry, Tool Executor, Error
// Recovery (backed by Smart Wait and Self-Healing), the Routing Provider
// over LLM backends, and the Task Executor driving all of it. Grounded on
// the teacher's examples/agent-example/main.go wiring style (flags ->
// core.NewFramework(...) -> framework.Run), narrowed here to plain
// constructor wiring since this module exposes no HTTP surface (spec.md
// §1 Non-goals: "HTTP/SignalR endpoints").
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/driftline/browserpilot/browser"
	"github.com/driftline/browserpilot/core"
	"github.com/driftline/browserpilot/executor"
	"github.com/driftline/browserpilot/healing"
	"github.com/driftline/browserpilot/llm"
	"github.com/driftline/browserpilot/llm/providers/anthropic"
	"github.com/driftline/browserpilot/llm/providers/mock"
	"github.com/driftline/browserpilot/llm/providers/openai"
	"github.com/driftline/browserpilot/logger"
	"github.com/driftline/browserpilot/model"
	"github.com/driftline/browserpilot/recovery"
	"github.com/driftline/browserpilot/resilience"
	"github.com/driftline/browserpilot/routing"
	"github.com/driftline/browserpilot/store"
	"github.com/driftline/browserpilot/telemetry"
	"github.com/driftline/browserpilot/tools"
	"github.com/driftline/browserpilot/wait"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file overlaying the configuration surface defaults")
	url := flag.String("url", "https://example.com", "URL the demo plan navigates to")
	flag.Parse()

	cfg := core.DefaultConfig()
	if *configPath != "" {
		loaded, err := core.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("agentcore: load config: %v", err)
		}
		cfg = loaded
	}

	log_ := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		Format:    logger.Format(cfg.Logging.Format),
		Component: "agentcore",
	})

	otelTel := telemetry.New("browserpilot/agentcore")

	sqliteStore, err := store.Open(cfg.Store.SQLitePath)
	if err != nil {
		log.Fatalf("agentcore: open store: %v", err)
	}
	defer sqliteStore.Close()

	agent := browser.NewRecorder(&browser.NullAgent{}, log_.WithComponent("browser"))

	toolExecutor := tools.NewExecutor(tools.DefaultRegistry(), agent, tools.ExecutorConfig{
		MaxAttempts:    cfg.ToolExecutor.MaxAttempts,
		BaseBackoff:    time.Duration(cfg.ToolExecutor.BaseBackoffMS) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.ToolExecutor.MaxBackoffMS) * time.Millisecond,
		JitterFactor:   cfg.ToolExecutor.JitterFactor,
		AttemptTimeout: cfg.ToolExecutor.AttemptTimeout(),
	}, log_.WithComponent("tools"))

	waitService := wait.NewService(agent, sqliteStore.Wait(), log_.WithComponent("wait"))
	healingEngine := healing.NewEngine(sqliteStore.Healing(), log_.WithComponent("healing"))

	recoveryStrategy := &resilience.RetryStrategy{
		MaxRetries:   cfg.ErrorRecovery.MaxRetries,
		BaseDelay:    durationFromSeconds(cfg.ErrorRecovery.BaseS),
		MaxDelay:     durationFromSeconds(cfg.ErrorRecovery.MaxS),
		JitterFactor: cfg.ErrorRecovery.Jitter,
	}
	recoveryService := recovery.NewService(agent, sqliteStore.RecoveryHistory(), waitService, healingEngine, recoveryStrategy, log_.WithComponent("recovery"))

	taskExecutor := executor.NewExecutor(toolExecutor, recoveryService, agent, log_.WithComponent("executor"))
	taskExecutor.PausePollInterval = cfg.TaskExecutor.PausePollInterval()

	llmProvider, err := buildRoutingProvider(cfg, otelTel, log_.WithComponent("routing"))
	if err != nil {
		log.Fatalf("agentcore: build routing provider: %v", err)
	}

	ctx := context.Background()
	demoPlanAndLLM(ctx, taskExecutor, llmProvider, *url, log_)
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// buildRoutingProvider wires an LLM Routing Provider. Real OpenAI/Anthropic
// backends are used when their API key env vars are set; otherwise the
// demo falls back to scripted mock providers so the binary runs without
// network credentials.
func buildRoutingProvider(cfg core.Config, tel *telemetry.OTel, log_ core.Logger) (*routing.Provider, error) {
	var providers []llm.Provider

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		providers = append(providers, openai.New(key, "gpt-4o-mini", "", log_))
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		providers = append(providers, anthropic.New(key, "", "claude-3-5-sonnet-20241022", log_))
	}
	if len(providers) == 0 {
		providers = append(providers, mock.New("demo-mock", "Navigate to the target page, then confirm the page title."))
	}

	var strategy routing.Strategy
	switch cfg.Routing.Strategy {
	case "CostOptimized":
		strategy = routing.CostOptimized{}
	default:
		strategy = routing.TaskBased{}
	}

	return routing.New(routing.Config{
		Strategy:       strategy,
		EnableFallback: cfg.Routing.EnableFallback,
		RequestTimeout: cfg.Routing.RequestTimeout(),
		Logger:         log_,
		Metrics:        tel.CircuitBreakerMetrics(),
	}, providers...)
}

// demoPlanAndLLM asks the routing provider for a one-line plan rationale,
// then drives a small fixed ExecutionPlan through the Task Executor and
// prints the resulting AgentTaskResult as JSON.
func demoPlanAndLLM(ctx context.Context, taskExecutor *executor.Executor, llmProvider *routing.Provider, targetURL string, log_ core.Logger) {
	resp, err := llmProvider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: fmt.Sprintf("Plan the steps to verify the page at %s loaded correctly.", targetURL)}},
	}, routing.RequestOptions{Complexity: model.ComplexityLow, Priority: model.PriorityNormal})
	if err != nil {
		log_.WarnContext(ctx, "routing provider unavailable, continuing with the fixed demo plan", map[string]interface{}{"error": err.Error()})
	} else {
		log_.InfoContext(ctx, "routing provider responded", map[string]interface{}{"content": resp.Choices[0].Content})
	}

	task := &model.AgentTask{
		ID:     uuid.NewString(),
		Name:   "demo-navigate-and-verify",
		Prompt: fmt.Sprintf("Navigate to %s and confirm the page title is non-empty.", targetURL),
		Status: model.TaskPending,
	}
	task.Touch()

	plan := &model.ExecutionPlan{
		ID:     uuid.NewString(),
		TaskID: task.ID,
		Steps: []model.AgentStep{
			{StepNumber: 1, Action: model.StepAction{Type: model.ActionNavigate, Params: map[string]string{"url": targetURL}}},
			{StepNumber: 2, Action: model.StepAction{Type: model.ActionScreenshot}},
			{
				StepNumber: 3,
				Action:     model.StepAction{Type: model.ActionVerify, Selector: "body"},
				Validation: []model.ValidationRule{{Kind: model.ValidationElementExists, Selector: "body"}},
			},
		},
		Confidence: 0.9,
	}

	result, err := taskExecutor.ExecutePlan(ctx, task, plan)
	if err != nil {
		log.Fatalf("agentcore: execute plan: %v", err)
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
}
