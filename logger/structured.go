// Package logger provides the structured logging implementation used across
// the module: leveled, field-based, JSON or text output, with a
// per-component child-logger pattern so different subsystems (tool
// executor, circuit breaker, task executor, ...) can be filtered
// independently in aggregated logs.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/driftline/browserpilot/core"
)

// Level is the minimum severity that will be emitted.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func parseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format selects the output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config controls construction of a Structured logger.
type Config struct {
	Level     string
	Format    Format
	Output    io.Writer
	Component string
}

// correlationKey is the context key used to carry a correlation id through
// logs, metrics, and persistence (see spec.md glossary: "Correlation id").
type correlationKey struct{}

// WithCorrelationID returns a context carrying id for ContextXxx log calls
// and for any component that reads it back out via CorrelationID(ctx).
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID extracts a correlation id previously attached with
// WithCorrelationID, or "" if none is present.
func CorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationKey{}).(string)
	return v
}

// Structured is the production Logger implementation.
type Structured struct {
	level     Level
	format    Format
	out       io.Writer
	component string
	fields    map[string]interface{}
	mu        *sync.Mutex
}

var _ core.ComponentLogger = (*Structured)(nil)

// New builds a Structured logger from Config, filling in defaults
// (info level, JSON format, stderr) for zero-valued fields.
func New(cfg Config) *Structured {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	return &Structured{
		level:     parseLevel(cfg.Level),
		format:    cfg.Format,
		out:       cfg.Output,
		component: cfg.Component,
		fields:    map[string]interface{}{},
		mu:        &sync.Mutex{},
	}
}

// WithComponent returns a child logger tagging every record with component,
// following the framework convention ("tool/<name>", "agent/<name>",
// "framework/resilience", ...).
func (s *Structured) WithComponent(component string) core.Logger {
	clone := *s
	clone.component = component
	return &clone
}

// WithFields returns a child logger carrying additional persistent fields.
func (s *Structured) WithFields(fields map[string]interface{}) *Structured {
	clone := *s
	merged := make(map[string]interface{}, len(s.fields)+len(fields))
	for k, v := range s.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	clone.fields = merged
	return &clone
}

func (s *Structured) Debug(msg string, fields map[string]interface{}) {
	s.log(LevelDebug, "debug", msg, fields)
}
func (s *Structured) Info(msg string, fields map[string]interface{}) {
	s.log(LevelInfo, "info", msg, fields)
}
func (s *Structured) Warn(msg string, fields map[string]interface{}) {
	s.log(LevelWarn, "warn", msg, fields)
}
func (s *Structured) Error(msg string, fields map[string]interface{}) {
	s.log(LevelError, "error", msg, fields)
}

func (s *Structured) DebugContext(ctx context.Context, msg string, fields map[string]interface{}) {
	s.logContext(ctx, LevelDebug, "debug", msg, fields)
}
func (s *Structured) InfoContext(ctx context.Context, msg string, fields map[string]interface{}) {
	s.logContext(ctx, LevelInfo, "info", msg, fields)
}
func (s *Structured) WarnContext(ctx context.Context, msg string, fields map[string]interface{}) {
	s.logContext(ctx, LevelWarn, "warn", msg, fields)
}
func (s *Structured) ErrorContext(ctx context.Context, msg string, fields map[string]interface{}) {
	s.logContext(ctx, LevelError, "error", msg, fields)
}

func (s *Structured) logContext(ctx context.Context, lvl Level, lvlName, msg string, fields map[string]interface{}) {
	if cid := CorrelationID(ctx); cid != "" {
		merged := make(map[string]interface{}, len(fields)+1)
		for k, v := range fields {
			merged[k] = v
		}
		merged["correlation_id"] = cid
		fields = merged
	}
	s.log(lvl, lvlName, msg, fields)
}

func (s *Structured) log(lvl Level, lvlName, msg string, fields map[string]interface{}) {
	if lvl < s.level {
		return
	}

	record := make(map[string]interface{}, len(s.fields)+len(fields)+4)
	for k, v := range s.fields {
		record[k] = v
	}
	for k, v := range fields {
		record[k] = v
	}
	record["level"] = lvlName
	record["msg"] = msg
	record["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	if s.component != "" {
		record["component"] = s.component
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == FormatJSON {
		enc := json.NewEncoder(s.out)
		_ = enc.Encode(record)
		return
	}

	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	line := fmt.Sprintf("[%s]", lvlName)
	for _, k := range keys {
		if k == "level" {
			continue
		}
		line += fmt.Sprintf(" %s=%v", k, record[k])
	}
	fmt.Fprintln(s.out, line)
}
