package daemon

import (
	"fmt"
	"time"
)

// maxAttempts bounds how often an expired-lease job is re-queued before it
// is failed for good.
const maxAttempts = 3

// ReapExpired re-queues running jobs whose lease expired and fails those
// that already burned their attempts. A model call with no timeout can hang
// a job forever; the lease puts a visible ceiling on how long a job may hold
// "running" before another worker may pick it up.
func (s *Store) ReapExpired(now time.Time) (requeued, failed int, err error) {
	nowStr := now.UTC().Format(time.RFC3339)

	rows, err := s.db.Query(`
		SELECT id, attempts FROM jobs
		WHERE status = 'running' AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?
	`, nowStr)
	if err != nil {
		return 0, 0, fmt.Errorf("query expired jobs: %w", err)
	}

	type expired struct {
		id       string
		attempts int
	}
	var expiredJobs []expired
	for rows.Next() {
		var e expired
		if err := rows.Scan(&e.id, &e.attempts); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("scan expired job: %w", err)
		}
		expiredJobs = append(expiredJobs, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, 0, fmt.Errorf("iterate expired jobs: %w", err)
	}
	rows.Close()

	for _, e := range expiredJobs {
		if e.attempts >= maxAttempts {
			if err := s.Fail(e.id, fmt.Errorf("lease expired after %d attempts", e.attempts)); err != nil {
				return requeued, failed, err
			}
			failed++
			continue
		}
		_, err := s.db.Exec(`
			UPDATE jobs
			SET status = 'queued', lease_owner = NULL, lease_expires_at = NULL
			WHERE id = ? AND status = 'running'
		`, e.id)
		if err != nil {
			return requeued, failed, fmt.Errorf("requeue job %s: %w", e.id, err)
		}
		requeued++
	}

	return requeued, failed, nil
}
