package planstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps order lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// maxStoredErrorLen caps error text persisted on plans and events.
const maxStoredErrorLen = 500

// maxPromptLen bounds the prompt stored on an adjustment event, matching
// the idea bound applied at plan creation.
const maxPromptLen = 2000

// Store manages the plan tree in SQLite.
type Store struct {
	DBPath string
	db     *sql.DB
}

// Open opens or creates the plan database.
func Open(path string) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve plan db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure plan db dir: %w", err)
	}

	// The pragma rides on the DSN so every pooled connection enforces
	// foreign keys, not just the one that ran the schema.
	db, err := sql.Open("sqlite", "file:"+absPath+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open plan db: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{
		DBPath: absPath,
		db:     db,
	}

	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) ensureSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS plans (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	idea TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	generation_error TEXT NOT NULL DEFAULT '',
	research_json TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_plans_user_updated ON plans(user_id, updated_at);

CREATE TABLE IF NOT EXISTS outcomes (
	id TEXT PRIMARY KEY,
	plan_id TEXT NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	position INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outcomes_plan_position ON outcomes(plan_id, position);

CREATE TABLE IF NOT EXISTS deliverables (
	id TEXT PRIMARY KEY,
	outcome_id TEXT NOT NULL REFERENCES outcomes(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	done_when TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	position INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deliverables_outcome_position ON deliverables(outcome_id, position);

CREATE TABLE IF NOT EXISTS actions (
	id TEXT PRIMARY KEY,
	deliverable_id TEXT NOT NULL REFERENCES deliverables(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	status TEXT NOT NULL,
	position INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_actions_deliverable_position ON actions(deliverable_id, position);

CREATE TABLE IF NOT EXISTS adjustment_events (
	id TEXT PRIMARY KEY,
	plan_id TEXT NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
	prompt TEXT NOT NULL,
	thread_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	applied_at TEXT,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_plan_created ON adjustment_events(plan_id, created_at);

CREATE TABLE IF NOT EXISTS threads (
	plan_id TEXT PRIMARY KEY REFERENCES plans(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL,
	handle TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("create plan schema: %w", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx so ownership walks and
// fetches run inside or outside a transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// inTx runs fn in a transaction. Foreign keys are already on for the
// connection via the DSN pragma.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		// Older rows may carry second precision.
		t, _ = time.Parse(time.RFC3339, value)
	}
	return t
}

func encodeResearch(snippets []string) (any, error) {
	if len(snippets) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(snippets)
	if err != nil {
		return nil, fmt.Errorf("marshal research: %w", err)
	}
	return string(data), nil
}

func decodeResearch(raw sql.NullString) []string {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var snippets []string
	if err := json.Unmarshal([]byte(raw.String), &snippets); err != nil {
		return nil
	}
	return snippets
}

func capErrorText(msg string) string {
	if len(msg) > maxStoredErrorLen {
		return msg[:maxStoredErrorLen]
	}
	return msg
}
