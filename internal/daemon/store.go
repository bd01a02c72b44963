// Package daemon runs AI generation and adjustment as background jobs: a
// SQLite-backed queue with lease-based claiming, a poll loop, and a reaper
// that re-queues work whose lease expired.
package daemon

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Job types handled by the daemon.
const (
	JobPlanGenerate = "plan_generate"
	JobPlanAdjust   = "plan_adjust"
)

// Store manages the job queue in SQLite.
type Store struct {
	DBPath string
	db     *sql.DB
}

// Job represents a queued or running background unit of work.
type Job struct {
	ID             string
	Type           string
	PlanID         string
	Status         string
	ScheduledAt    time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time
	PayloadJSON    string
	ResultJSON     string
	LeaseOwner     string
	LeaseExpiresAt *time.Time
	Attempts       int
}

// Payload is the job body for plan generation and adjustment.
type Payload struct {
	PlanID      string `json:"plan_id"`
	UserID      string `json:"user_id"`
	Instruction string `json:"instruction,omitempty"`
}

// Open opens or creates the job queue database.
func Open(path string) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve jobs db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure jobs db dir: %w", err)
	}

	db, err := sql.Open("sqlite", absPath)
	if err != nil {
		return nil, fmt.Errorf("open jobs db: %w", err)
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
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	plan_id TEXT NOT NULL,
	status TEXT NOT NULL,
	scheduled_at TEXT NOT NULL,
	started_at TEXT,
	finished_at TEXT,
	payload_json TEXT,
	result_json TEXT,
	lease_owner TEXT,
	lease_expires_at TEXT,
	attempts INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_jobs_status_scheduled ON jobs(status, scheduled_at);
CREATE INDEX IF NOT EXISTS idx_jobs_plan_type ON jobs(plan_id, type);
`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("create jobs schema: %w", err)
	}
	return nil
}

// EnqueueUnique enqueues a job unless an active (queued or running) job of
// the same type already exists for the plan. Returns (jobID, created, error).
func (s *Store) EnqueueUnique(jobType string, payload Payload) (string, bool, error) {
	if payload.PlanID == "" {
		return "", false, fmt.Errorf("payload plan_id is required")
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", false, fmt.Errorf("marshal payload: %w", err)
	}

	var existingID string
	err = s.db.QueryRow(`
		SELECT id FROM jobs
		WHERE type = ? AND plan_id = ? AND status IN ('queued', 'running')
		LIMIT 1
	`, jobType, payload.PlanID).Scan(&existingID)
	if err == nil {
		return existingID, false, nil
	}
	if err != sql.ErrNoRows {
		return "", false, fmt.Errorf("check existing job: %w", err)
	}

	jobID := uuid.NewString()
	scheduledAt := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.Exec(`
		INSERT INTO jobs (id, type, plan_id, status, scheduled_at, payload_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, jobID, jobType, payload.PlanID, "queued", scheduledAt, string(payloadJSON))
	if err != nil {
		return "", false, fmt.Errorf("insert job: %w", err)
	}

	return jobID, true, nil
}

// ClaimNext atomically claims the next queued job that is ready to run.
func (s *Store) ClaimNext(now time.Time, leaseOwner string, leaseFor time.Duration) (*Job, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	nowStr := now.UTC().Format(time.RFC3339)
	leaseExpiresAt := now.Add(leaseFor).UTC().Format(time.RFC3339)

	var jobID string
	err = tx.QueryRow(`
		SELECT id FROM jobs
		WHERE status = 'queued' AND scheduled_at <= ?
		ORDER BY scheduled_at ASC
		LIMIT 1
	`, nowStr).Scan(&jobID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find next job: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE jobs
		SET status = 'running',
		    started_at = ?,
		    lease_owner = ?,
		    lease_expires_at = ?,
		    attempts = attempts + 1
		WHERE id = ?
	`, nowStr, leaseOwner, leaseExpiresAt, jobID)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return s.GetJob(jobID)
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(jobID string) (*Job, error) {
	row := s.db.QueryRow(`
		SELECT id, type, plan_id, status, scheduled_at, started_at, finished_at,
		       payload_json, result_json, lease_owner, lease_expires_at, attempts
		FROM jobs
		WHERE id = ?
	`, jobID)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Succeed marks a job as succeeded.
func (s *Store) Succeed(jobID string, result any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	finishedAt := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.Exec(`
		UPDATE jobs
		SET status = 'succeeded',
		    finished_at = ?,
		    result_json = ?
		WHERE id = ?
	`, finishedAt, string(resultJSON), jobID)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// Fail marks a job as failed.
func (s *Store) Fail(jobID string, jobErr error) error {
	result := map[string]string{
		"error": jobErr.Error(),
	}
	resultJSON, _ := json.Marshal(result)

	finishedAt := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`
		UPDATE jobs
		SET status = 'failed',
		    finished_at = ?,
		    result_json = ?
		WHERE id = ?
	`, finishedAt, string(resultJSON), jobID)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// ListJobs returns up to limit jobs, most recently scheduled first.
func (s *Store) ListJobs(limit int) ([]Job, error) {
	rows, err := s.db.Query(`
		SELECT id, type, plan_id, status, scheduled_at, started_at, finished_at,
		       payload_json, result_json, lease_owner, lease_expires_at, attempts
		FROM jobs
		ORDER BY scheduled_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var scheduledAt string
	var startedAt, finishedAt, leaseExpiresAt sql.NullString
	var payloadJSON, resultJSON, leaseOwner sql.NullString

	err := row.Scan(
		&job.ID, &job.Type, &job.PlanID, &job.Status, &scheduledAt,
		&startedAt, &finishedAt, &payloadJSON, &resultJSON,
		&leaseOwner, &leaseExpiresAt, &job.Attempts,
	)
	if err != nil {
		return nil, err
	}

	job.ScheduledAt, _ = time.Parse(time.RFC3339, scheduledAt)
	if startedAt.Valid {
		t, _ := time.Parse(time.RFC3339, startedAt.String)
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t, _ := time.Parse(time.RFC3339, finishedAt.String)
		job.FinishedAt = &t
	}
	if leaseExpiresAt.Valid {
		t, _ := time.Parse(time.RFC3339, leaseExpiresAt.String)
		job.LeaseExpiresAt = &t
	}
	if payloadJSON.Valid {
		job.PayloadJSON = payloadJSON.String
	}
	if resultJSON.Valid {
		job.ResultJSON = resultJSON.String
	}
	if leaseOwner.Valid {
		job.LeaseOwner = leaseOwner.String
	}

	return &job, nil
}
