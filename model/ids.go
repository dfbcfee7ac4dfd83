// Package model holds the shared data types that flow between the task
// executor, tool executor, recovery, smart-wait, and self-healing packages.
// These are plain structs with JSON tags (for log fields and sqlite rows);
// no behavior beyond small derived helpers lives here.
package model

import (
	"time"

	"github.com/google/uuid"
)

// CorrelationID is the caller-supplied opaque id propagated through logs,
// metrics, and persistence for a single logical operation (spec.md
// glossary: "Correlation id").
type CorrelationID string

// NewCorrelationID mints a fresh random correlation id.
func NewCorrelationID() CorrelationID {
	return CorrelationID(uuid.NewString())
}

// Timestamps is embedded by the top-level entities that need created/
// updated bookkeeping (AgentTask).
type Timestamps struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Touch refreshes UpdatedAt, setting CreatedAt on first use.
func (t *Timestamps) Touch() {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
}
