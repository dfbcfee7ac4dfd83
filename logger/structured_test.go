package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/browserpilot/logger"
)

func TestStructured_New_DefaultsToInfoLevelJSONStderr(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.Config{Output: &buf})

	l.Debug("should be suppressed", nil)
	assert.Empty(t, buf.String())

	l.Info("hello", nil)
	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "hello", record["msg"])
	assert.Equal(t, "info", record["level"])
}

func TestStructured_DebugLevel_EmitsDebugRecords(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.Config{Output: &buf, Level: "debug"})

	l.Debug("low level detail", map[string]interface{}{"attempt": 2})

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "debug", record["level"])
	assert.Equal(t, float64(2), record["attempt"])
}

func TestStructured_WithComponent_TagsSubsequentRecords(t *testing.T) {
	var buf bytes.Buffer
	base := logger.New(logger.Config{Output: &buf})
	child := base.WithComponent("tool/navigate")

	child.Info("ready", nil)

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "tool/navigate", record["component"])
}

func TestStructured_WithFields_MergesPersistentFieldsIntoEveryRecord(t *testing.T) {
	var buf bytes.Buffer
	base := logger.New(logger.Config{Output: &buf})
	child := base.WithFields(map[string]interface{}{"task_id": "t-1"})

	child.Warn("retrying", map[string]interface{}{"attempt": 1})

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "t-1", record["task_id"])
	assert.Equal(t, float64(1), record["attempt"])
}

func TestStructured_InfoContext_AttachesCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.Config{Output: &buf})
	ctx := logger.WithCorrelationID(context.Background(), "corr-123")

	l.InfoContext(ctx, "processed", nil)

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "corr-123", record["correlation_id"])
}

func TestStructured_InfoContext_OmitsCorrelationIDWhenAbsent(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.Config{Output: &buf})

	l.InfoContext(context.Background(), "processed", nil)

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	_, present := record["correlation_id"]
	assert.False(t, present)
}

func TestCorrelationID_ReturnsEmptyStringWhenNotSet(t *testing.T) {
	assert.Equal(t, "", logger.CorrelationID(context.Background()))
}

func TestStructured_TextFormat_RendersKeyValueLine(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.Config{Output: &buf, Format: logger.FormatText, Component: "executor"})

	l.Error("boom", map[string]interface{}{"selector": "#submit"})

	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "[error]"))
	assert.Contains(t, line, "component=executor")
	assert.Contains(t, line, "selector=#submit")
	assert.Contains(t, line, "msg=boom")
}

func TestStructured_WarnLevel_SuppressesDebugAndInfo(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.Config{Output: &buf, Level: "warn"})

	l.Debug("d", nil)
	l.Info("i", nil)
	assert.Empty(t, buf.String())

	l.Warn("w", nil)
	assert.Contains(t, buf.String(), `"level":"warn"`)
}
