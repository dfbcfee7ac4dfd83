// SQLiteStore backs the three persistence ports (RecoveryHistoryStore,
// HealingHistoryStore, WaitSampleStore) with a single embedded sqlite
// database, grounded on ilkoid-poncho-ai's DatabaseSource pattern
// (pkg/prompts/sources/database_source.go): a thin *sql.DB wrapper with a
// fixed table name and parameterized queries; a lookup with no matching
// rows returns an empty result, not an error.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/driftline/browserpilot/core"
	"github.com/driftline/browserpilot/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS recovery_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT,
	error_kind TEXT NOT NULL,
	exception_type TEXT,
	actions TEXT NOT NULL,
	success INTEGER NOT NULL,
	attempts INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	url TEXT,
	action TEXT,
	selector TEXT,
	context TEXT,
	timestamp DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recovery_history_kind ON recovery_history(error_kind, success);

CREATE TABLE IF NOT EXISTS healing_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	original_selector TEXT NOT NULL,
	page_url TEXT NOT NULL,
	healed_selector TEXT NOT NULL,
	strategy TEXT NOT NULL,
	confidence REAL NOT NULL,
	succeeded INTEGER NOT NULL,
	visual_hash TEXT,
	timestamp DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_healing_history_selector ON healing_history(original_selector, page_url);

CREATE TABLE IF NOT EXISTS wait_samples (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	action TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	success INTEGER NOT NULL,
	timestamp DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_wait_samples_action ON wait_samples(action, id);
`

// SQLiteStore opens one sqlite database shared by the three persistence
// ports, mirroring the way the teacher pack's DatabaseSource holds a
// single *sql.DB plus a fixed table name rather than one connection per
// concern. Go forbids two methods named Append with different parameter
// types on one receiver, so each port is exposed through its own thin
// view (RecoveryHistory, Healing, Wait) backed by the shared *sql.DB.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and applies
// the schema. path may be ":memory:" for ephemeral/test use.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecoveryHistory returns the RecoveryHistoryStore view over this database.
func (s *SQLiteStore) RecoveryHistory() RecoveryHistoryStore { return sqliteRecoveryHistory{s.db} }

// Healing returns the HealingHistoryStore view over this database.
func (s *SQLiteStore) Healing() HealingHistoryStore { return sqliteHealingHistory{s.db} }

// Wait returns the WaitSampleStore view over this database.
func (s *SQLiteStore) Wait() WaitSampleStore { return sqliteWaitSamples{s.db} }

type sqliteRecoveryHistory struct{ db *sql.DB }
type sqliteHealingHistory struct{ db *sql.DB }
type sqliteWaitSamples struct{ db *sql.DB }

var (
	_ RecoveryHistoryStore = sqliteRecoveryHistory{}
	_ HealingHistoryStore  = sqliteHealingHistory{}
	_ WaitSampleStore      = sqliteWaitSamples{}
)

// Append persists one recovery outcome row.
func (s sqliteRecoveryHistory) Append(ctx context.Context, row model.RecoveryHistoryRow) error {
	actionsJSON, err := json.Marshal(row.Actions)
	if err != nil {
		return fmt.Errorf("store: marshal actions: %w", err)
	}
	contextJSON, err := json.Marshal(row.Context)
	if err != nil {
		return fmt.Errorf("store: marshal context: %w", err)
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO recovery_history
			(task_id, error_kind, exception_type, actions, success, attempts, duration_ms, url, action, selector, context, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.TaskID, string(row.ErrorKind), row.ExceptionType, string(actionsJSON),
		row.Success, row.Attempts, row.DurationMS, row.URL, row.Action, row.Selector,
		string(contextJSON), row.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("store: insert recovery_history: %w", err)
	}
	return nil
}

// QueryTopK returns the action sequences of the k most recent successful
// recoveries for kind, newest first; identical sequences are neither
// merged nor counted (spec.md §4.5
// step 2: bias the action ordering toward what has worked before).
func (s sqliteRecoveryHistory) QueryTopK(ctx context.Context, kind core.ErrorKind, k int) ([][]model.RecoveryAction, error) {
	if k <= 0 {
		k = 3
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT actions FROM recovery_history
		WHERE error_kind = ? AND success = 1
		ORDER BY timestamp DESC
		LIMIT ?`,
		string(kind), k,
	)
	if err != nil {
		return nil, fmt.Errorf("store: query recovery_history: %w", err)
	}
	defer rows.Close()

	var out [][]model.RecoveryAction
	for rows.Next() {
		var actionsJSON string
		if err := rows.Scan(&actionsJSON); err != nil {
			return nil, fmt.Errorf("store: scan recovery_history: %w", err)
		}
		var actions []model.RecoveryAction
		if err := json.Unmarshal([]byte(actionsJSON), &actions); err != nil {
			return nil, fmt.Errorf("store: unmarshal actions: %w", err)
		}
		out = append(out, actions)
	}
	return out, rows.Err()
}

// Append persists one selector-healing attempt.
func (s sqliteHealingHistory) Append(ctx context.Context, row model.HealingHistoryRow) error {
	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO healing_history
			(original_selector, page_url, healed_selector, strategy, confidence, succeeded, visual_hash, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.OriginalSelector, row.PageURL, row.HealedSelector, string(row.Strategy),
		row.Confidence, row.Succeeded, row.VisualHash, row.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("store: insert healing_history: %w", err)
	}
	return nil
}

// Query returns prior healing attempts for (originalSelector, pageURL),
// most recent first.
func (s sqliteHealingHistory) Query(ctx context.Context, originalSelector, pageURL string) ([]model.HealingHistoryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT original_selector, page_url, healed_selector, strategy, confidence, succeeded, visual_hash, timestamp
		FROM healing_history
		WHERE original_selector = ? AND page_url = ?
		ORDER BY timestamp DESC`,
		originalSelector, pageURL,
	)
	if err != nil {
		return nil, fmt.Errorf("store: query healing_history: %w", err)
	}
	defer rows.Close()

	var out []model.HealingHistoryRow
	for rows.Next() {
		var row model.HealingHistoryRow
		var strategy string
		var visualHash sql.NullString
		if err := rows.Scan(&row.OriginalSelector, &row.PageURL, &row.HealedSelector, &strategy,
			&row.Confidence, &row.Succeeded, &visualHash, &row.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scan healing_history: %w", err)
		}
		row.Strategy = model.HealingStrategy(strategy)
		row.VisualHash = visualHash.String
		out = append(out, row)
	}
	return out, rows.Err()
}

// AppendSample persists one wait-time sample for action.
func (s sqliteWaitSamples) AppendSample(ctx context.Context, action string, ms int64, success bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wait_samples (action, duration_ms, success, timestamp)
		VALUES (?, ?, ?, ?)`,
		action, ms, success, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("store: insert wait_samples: %w", err)
	}
	return nil
}

// LoadHistory reconstructs a model.HistoricalData for action from the most
// recent maxSamples rows, oldest-first (matching HistoricalData's ring
// ordering).
func (s sqliteWaitSamples) LoadHistory(ctx context.Context, action string, maxSamples int) (*model.HistoricalData, error) {
	if maxSamples <= 0 {
		maxSamples = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT duration_ms, success FROM wait_samples
		WHERE action = ?
		ORDER BY id DESC
		LIMIT ?`,
		action, maxSamples,
	)
	if err != nil {
		return nil, fmt.Errorf("store: query wait_samples: %w", err)
	}
	defer rows.Close()

	type sample struct {
		ms      int64
		success bool
	}
	var samples []sample
	for rows.Next() {
		var sm sample
		if err := rows.Scan(&sm.ms, &sm.success); err != nil {
			return nil, fmt.Errorf("store: scan wait_samples: %w", err)
		}
		samples = append(samples, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hist := model.NewHistoricalData(action, maxSamples)
	for i := len(samples) - 1; i >= 0; i-- {
		hist = hist.WithNewSample(time.Duration(samples[i].ms)*time.Millisecond, samples[i].success)
	}
	return hist, nil
}
