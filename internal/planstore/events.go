package planstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"planloom/internal/draft"
)

// The adjustment audit log is append-only. An event is created pending
// before the model is invoked; it moves to applied or error exactly once.
// The terminal guard lives in the UPDATE's WHERE clause so a lost race
// surfaces as ErrEventTerminal instead of a silent overwrite.

// BeginEvent records a pending generation/adjustment attempt.
func (s *Store) BeginEvent(ctx context.Context, planID, userID, prompt, threadID string) (*AdjustmentEvent, error) {
	if _, err := resolvePlan(ctx, s.db, planID, userID); err != nil {
		return nil, err
	}
	if len(prompt) > maxPromptLen {
		return nil, draft.ValidationErrors{{
			Field:   "prompt",
			Message: fmt.Sprintf("exceeds %d characters", maxPromptLen),
		}}
	}

	now := time.Now().UTC()
	nowStr := formatTime(now)
	event := &AdjustmentEvent{
		ID:        uuid.NewString(),
		PlanID:    planID,
		Prompt:    prompt,
		ThreadID:  threadID,
		Status:    EventPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO adjustment_events (id, plan_id, prompt, thread_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.ID, planID, prompt, threadID, string(EventPending), nowStr, nowStr)
	if err != nil {
		return nil, fmt.Errorf("insert adjustment event: %w", err)
	}
	return event, nil
}

// MarkEventApplied transitions a pending event to applied, recording the
// outcome summary and elapsed latency.
func (s *Store) MarkEventApplied(ctx context.Context, eventID, summary string, latency time.Duration) error {
	now := time.Now().UTC()
	nowStr := formatTime(now)
	res, err := s.db.ExecContext(ctx, `
		UPDATE adjustment_events
		SET status = ?, summary = ?, applied_at = ?, latency_ms = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(EventApplied), summary, nowStr, latency.Milliseconds(), nowStr, eventID, string(EventPending))
	if err != nil {
		return fmt.Errorf("apply adjustment event: %w", err)
	}
	return checkEventTransition(ctx, s.db, res, eventID)
}

// MarkEventError transitions a pending event to error with a capped message.
func (s *Store) MarkEventError(ctx context.Context, eventID, msg string) error {
	nowStr := formatTime(time.Now().UTC())
	res, err := s.db.ExecContext(ctx, `
		UPDATE adjustment_events
		SET status = ?, error = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(EventError), capErrorText(msg), nowStr, eventID, string(EventPending))
	if err != nil {
		return fmt.Errorf("fail adjustment event: %w", err)
	}
	return checkEventTransition(ctx, s.db, res, eventID)
}

func checkEventTransition(ctx context.Context, q querier, res sql.Result, eventID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("adjustment event rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var exists int
	err = q.QueryRowContext(ctx, "SELECT COUNT(1) FROM adjustment_events WHERE id = ?", eventID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check adjustment event: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("adjustment event not found: %s", eventID)
	}
	return ErrEventTerminal
}

// ListEvents returns the plan's adjustment history, newest first.
func (s *Store) ListEvents(ctx context.Context, planID, userID string, limit int) ([]AdjustmentEvent, error) {
	if _, err := resolvePlan(ctx, s.db, planID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, plan_id, prompt, thread_id, status, summary, error, applied_at, latency_ms, created_at, updated_at
		FROM adjustment_events
		WHERE plan_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, planID, limit)
	if err != nil {
		return nil, fmt.Errorf("query adjustment events: %w", err)
	}
	defer rows.Close()

	var events []AdjustmentEvent
	for rows.Next() {
		var e AdjustmentEvent
		var status, createdAt, updatedAt string
		var appliedAt sql.NullString
		err := rows.Scan(
			&e.ID, &e.PlanID, &e.Prompt, &e.ThreadID, &status,
			&e.Summary, &e.Error, &appliedAt, &e.LatencyMS, &createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan adjustment event: %w", err)
		}
		e.Status = EventStatus(status)
		if appliedAt.Valid {
			t := parseTime(appliedAt.String)
			e.AppliedAt = &t
		}
		e.CreatedAt = parseTime(createdAt)
		e.UpdatedAt = parseTime(updatedAt)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate adjustment events: %w", err)
	}
	return events, nil
}
