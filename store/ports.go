// Package store implements the two thin persistence ports named in
// spec.md §9 (RecoveryHistoryStore, HealingHistoryStore) plus a
// smart-wait sample store, backed by an embedded sqlite database —
// grounded on ilkoid-poncho-ai's sqlite-backed persistence layer
// (pkg/s3storage's sibling store in that repo uses the same
// mattn/go-sqlite3 driver for local state).
package store

import (
	"context"

	"github.com/driftline/browserpilot/core"
	"github.com/driftline/browserpilot/model"
)

// RecoveryHistoryStore persists recovery outcomes and serves the
// learned-ordering query the Error Recovery Service uses to bias its
// action list (spec.md §4.5 step 2).
type RecoveryHistoryStore interface {
	Append(ctx context.Context, row model.RecoveryHistoryRow) error
	// QueryTopK returns the action sequences of the k most recent
	// successful recoveries recorded for kind, newest first. Rows are not
	// grouped or ranked by success count, so one sequence can appear more
	// than once.
	QueryTopK(ctx context.Context, kind core.ErrorKind, k int) ([][]model.RecoveryAction, error)
}

// HealingHistoryStore persists selector-healing attempts, keyed by
// (original_selector, page_url), and serves the lookup the healing engine
// uses to find its visual-similarity baseline (spec.md §4.7).
type HealingHistoryStore interface {
	Append(ctx context.Context, row model.HealingHistoryRow) error
	Query(ctx context.Context, originalSelector, pageURL string) ([]model.HealingHistoryRow, error)
}

// WaitSampleStore persists per-action wait-time samples durably, backing
// wait.Service's in-memory HistoricalData cache on restart (spec.md §6:
// "Smart-wait sample store: per-action ring buffer").
type WaitSampleStore interface {
	AppendSample(ctx context.Context, action string, ms int64, success bool) error
	LoadHistory(ctx context.Context, action string, maxSamples int) (*model.HistoricalData, error)
}
