package core

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the configuration surface recognized by the core (spec.md §6):
// every tunable the Tool Executor, Task Executor, Smart Wait Service,
// Circuit Breaker, Routing Provider, and Error Recovery Service accept.
// DefaultConfig supplies the documented defaults; a zero-value Config
// carries none of them. Grounded on
// ilkoid-poncho-ai's pkg/config.AppConfig: a root struct mirroring the
// on-disk YAML layout one-to-one, loaded with env-var expansion.
type Config struct {
	ToolExecutor  ToolExecutorConfig  `yaml:"tool_executor"`
	TaskExecutor  TaskExecutorConfig  `yaml:"task_executor"`
	SmartWait     SmartWaitConfig     `yaml:"smart_wait"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Routing       RoutingConfig       `yaml:"routing"`
	ErrorRecovery ErrorRecoveryConfig `yaml:"error_recovery"`
	Logging       LoggingConfig       `yaml:"logging"`
	Store         StoreConfig         `yaml:"store"`
}

type ToolExecutorConfig struct {
	MaxAttempts     int     `yaml:"max_attempts"`
	BaseBackoffMS   int     `yaml:"base_backoff_ms"`
	MaxBackoffMS    int     `yaml:"max_backoff_ms"`
	JitterFactor    float64 `yaml:"jitter_factor"`
	AttemptTimeoutS int     `yaml:"attempt_timeout_s"`
}

type TaskExecutorConfig struct {
	PausePollIntervalMS int `yaml:"pause_poll_interval_ms"`
}

type SmartWaitConfig struct {
	DefaultTimeoutMS      int     `yaml:"default_timeout_ms"`
	MinTimeoutMS          int     `yaml:"min_timeout_ms"`
	MaxTimeoutMS          int     `yaml:"max_timeout_ms"`
	SafetyMultiplier      float64 `yaml:"safety_multiplier"`
	MaxSamples            int     `yaml:"max_samples"`
	MinSamplesForSufficient int   `yaml:"min_samples_for_sufficient"`
}

type CircuitBreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	OpenDurationS    int `yaml:"open_duration_s"`
}

type RoutingConfig struct {
	EnableFallback bool   `yaml:"enable_fallback"`
	RequestTimeoutS int   `yaml:"request_timeout_s"`
	MaxRetries      int   `yaml:"max_retries"`
	Strategy        string `yaml:"strategy"` // "TaskBased" | "CostOptimized"
}

type ErrorRecoveryConfig struct {
	MaxRetries int     `yaml:"max_retries"`
	BaseS      float64 `yaml:"base_s"`
	MaxS       float64 `yaml:"max_s"`
	Jitter     float64 `yaml:"jitter"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type StoreConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// DefaultConfig returns the configuration surface's documented defaults
// (spec.md §6: "all have defaults").
func DefaultConfig() Config {
	return Config{
		ToolExecutor: ToolExecutorConfig{
			MaxAttempts:     3,
			BaseBackoffMS:   500,
			MaxBackoffMS:    10000,
			JitterFactor:    0.2,
			AttemptTimeoutS: 30,
		},
		TaskExecutor: TaskExecutorConfig{
			PausePollIntervalMS: 100,
		},
		SmartWait: SmartWaitConfig{
			DefaultTimeoutMS:        10000,
			MinTimeoutMS:            1000,
			MaxTimeoutMS:            60000,
			SafetyMultiplier:        1.5,
			MaxSamples:              100,
			MinSamplesForSufficient: 10,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			OpenDurationS:    30,
		},
		Routing: RoutingConfig{
			EnableFallback:  true,
			RequestTimeoutS: 60,
			MaxRetries:      3,
			Strategy:        "TaskBased",
		},
		ErrorRecovery: ErrorRecoveryConfig{
			MaxRetries: 3,
			BaseS:      1,
			MaxS:       30,
			Jitter:     0.3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			SQLitePath: "browserpilot.db",
		},
	}
}

// LoadConfig reads a YAML file at path, expands ${VAR}/$VAR references
// against the process environment, and overlays the result onto
// DefaultConfig() so a partial file only needs to name the fields it
// overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("core: read config %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(raw))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("core: parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c ToolExecutorConfig) AttemptTimeout() time.Duration {
	return time.Duration(c.AttemptTimeoutS) * time.Second
}

func (c TaskExecutorConfig) PausePollInterval() time.Duration {
	return time.Duration(c.PausePollIntervalMS) * time.Millisecond
}

func (c CircuitBreakerConfig) OpenDuration() time.Duration {
	return time.Duration(c.OpenDurationS) * time.Second
}

func (c RoutingConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutS) * time.Second
}
