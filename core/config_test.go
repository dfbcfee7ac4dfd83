package core_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/browserpilot/core"
)

func TestDefaultConfig_MatchesDocumentedDefaults(t *testing.T) {
	cfg := core.DefaultConfig()

	assert.Equal(t, 3, cfg.ToolExecutor.MaxAttempts)
	assert.Equal(t, 500, cfg.ToolExecutor.BaseBackoffMS)
	assert.Equal(t, 10000, cfg.ToolExecutor.MaxBackoffMS)
	assert.Equal(t, 0.2, cfg.ToolExecutor.JitterFactor)
	assert.Equal(t, 30, cfg.ToolExecutor.AttemptTimeoutS)

	assert.Equal(t, 100, cfg.TaskExecutor.PausePollIntervalMS)

	assert.Equal(t, 10000, cfg.SmartWait.DefaultTimeoutMS)
	assert.Equal(t, 1000, cfg.SmartWait.MinTimeoutMS)
	assert.Equal(t, 60000, cfg.SmartWait.MaxTimeoutMS)
	assert.Equal(t, 1.5, cfg.SmartWait.SafetyMultiplier)
	assert.Equal(t, 100, cfg.SmartWait.MaxSamples)
	assert.Equal(t, 10, cfg.SmartWait.MinSamplesForSufficient)

	assert.Equal(t, 5, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 30, cfg.CircuitBreaker.OpenDurationS)

	assert.True(t, cfg.Routing.EnableFallback)
	assert.Equal(t, 60, cfg.Routing.RequestTimeoutS)
	assert.Equal(t, "TaskBased", cfg.Routing.Strategy)

	assert.Equal(t, 3, cfg.ErrorRecovery.MaxRetries)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "browserpilot.db", cfg.Store.SQLitePath)
}

func TestLoadConfig_OverlaysPartialFileOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
routing:
  strategy: CostOptimized
  enable_fallback: false
logging:
  level: debug
`), 0o644))

	cfg, err := core.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "CostOptimized", cfg.Routing.Strategy)
	assert.False(t, cfg.Routing.EnableFallback)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched sections keep their defaults.
	assert.Equal(t, 3, cfg.ToolExecutor.MaxAttempts)
	assert.Equal(t, 60, cfg.Routing.RequestTimeoutS)
}

func TestLoadConfig_ExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("BROWSERPILOT_DB_PATH", "/tmp/custom.db")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  sqlite_path: ${BROWSERPILOT_DB_PATH}
`), 0o644))

	cfg, err := core.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", cfg.Store.SQLitePath)
}

func TestLoadConfig_MissingFileReturnsError(t *testing.T) {
	_, err := core.LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestConfig_DurationHelpers(t *testing.T) {
	cfg := core.DefaultConfig()
	assert.Equal(t, 30_000_000_000.0, float64(cfg.ToolExecutor.AttemptTimeout()))
	assert.Equal(t, 100_000_000.0, float64(cfg.TaskExecutor.PausePollInterval()))
	assert.Equal(t, 30_000_000_000.0, float64(cfg.CircuitBreaker.OpenDuration()))
	assert.Equal(t, 60_000_000_000.0, float64(cfg.Routing.RequestTimeout()))
}
