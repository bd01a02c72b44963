package planstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ThreadFor returns the plan's conversation thread handle, creating one via
// create on first use. The mapping is persisted before the handle is
// returned, so at most one thread ever exists per plan and later calls reuse
// it instead of replaying plan history to the model.
func (s *Store) ThreadFor(ctx context.Context, planID, userID string, create func(ctx context.Context) (string, error)) (string, error) {
	if _, err := resolvePlan(ctx, s.db, planID, userID); err != nil {
		return "", err
	}

	var handle string
	err := s.db.QueryRowContext(ctx,
		"SELECT handle FROM threads WHERE plan_id = ?", planID,
	).Scan(&handle)
	if err == nil {
		return handle, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("get thread: %w", err)
	}

	handle, err = create(ctx)
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}

	nowStr := formatTime(time.Now().UTC())
	// INSERT OR IGNORE keeps the one-thread-per-plan guarantee if two
	// creations race; the stored handle wins.
	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO threads (plan_id, user_id, handle, created_at)
		VALUES (?, ?, ?, ?)
	`, planID, userID, handle, nowStr)
	if err != nil {
		return "", fmt.Errorf("insert thread: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT handle FROM threads WHERE plan_id = ?", planID,
	).Scan(&handle)
	if err != nil {
		return "", fmt.Errorf("reread thread: %w", err)
	}
	return handle, nil
}
