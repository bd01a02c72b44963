package planstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OutcomeUpdate carries optional field changes for an outcome.
type OutcomeUpdate struct {
	Title   *string
	Summary *string
}

// AddOutcome appends an outcome to the plan's sibling set.
func (s *Store) AddOutcome(ctx context.Context, planID, userID, title, summary string) (*Outcome, error) {
	if title == "" {
		return nil, fmt.Errorf("outcome title is required")
	}

	var outcome *Outcome
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := resolvePlan(ctx, tx, planID, userID); err != nil {
			return err
		}
		position, err := nextPosition(ctx, tx, outcomeSet, planID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		nowStr := formatTime(now)
		outcome = &Outcome{
			ID:        uuid.NewString(),
			PlanID:    planID,
			Title:     title,
			Summary:   summary,
			Status:    StatusTodo,
			Position:  position,
			CreatedAt: now,
			UpdatedAt: now,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO outcomes (id, plan_id, title, summary, status, position, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, outcome.ID, planID, title, summary, string(StatusTodo), position, nowStr, nowStr)
		if err != nil {
			return fmt.Errorf("insert outcome: %w", err)
		}
		return touchPlan(ctx, tx, planID, nowStr)
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// UpdateOutcome patches the outcome's mutable fields.
func (s *Store) UpdateOutcome(ctx context.Context, outcomeID, userID string, upd OutcomeUpdate) (*Outcome, error) {
	var outcome *Outcome
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		chain, err := resolveOutcome(ctx, tx, outcomeID, userID)
		if err != nil {
			return err
		}
		outcome = chain.Outcome
		if upd.Title != nil {
			outcome.Title = *upd.Title
		}
		if upd.Summary != nil {
			outcome.Summary = *upd.Summary
		}
		if outcome.Title == "" {
			return fmt.Errorf("outcome title is required")
		}

		nowStr := formatTime(time.Now().UTC())
		_, err = tx.ExecContext(ctx, `
			UPDATE outcomes SET title = ?, summary = ?, updated_at = ? WHERE id = ?
		`, outcome.Title, outcome.Summary, nowStr, outcomeID)
		if err != nil {
			return fmt.Errorf("update outcome: %w", err)
		}
		outcome.UpdatedAt = parseTime(nowStr)
		return touchPlan(ctx, tx, chain.Plan.ID, nowStr)
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// SetOutcomeStatus updates the outcome's status. Marking an outcome done
// forces every descendant deliverable and action to done with the same
// timestamp.
func (s *Store) SetOutcomeStatus(ctx context.Context, outcomeID, userID string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status: %s", status)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		chain, err := resolveOutcome(ctx, tx, outcomeID, userID)
		if err != nil {
			return err
		}

		nowStr := formatTime(time.Now().UTC())
		_, err = tx.ExecContext(ctx, `
			UPDATE outcomes SET status = ?, updated_at = ? WHERE id = ?
		`, string(status), nowStr, outcomeID)
		if err != nil {
			return fmt.Errorf("update outcome status: %w", err)
		}
		if status == StatusDone {
			if err := cascadeOutcomeDone(ctx, tx, outcomeID, nowStr); err != nil {
				return err
			}
		}
		return touchPlan(ctx, tx, chain.Plan.ID, nowStr)
	})
}

// DeleteOutcome removes the outcome and its whole subtree, children first,
// then compacts the plan's remaining outcomes.
func (s *Store) DeleteOutcome(ctx context.Context, outcomeID, userID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		chain, err := resolveOutcome(ctx, tx, outcomeID, userID)
		if err != nil {
			return err
		}
		if err := deleteOutcomeSubtree(ctx, tx, outcomeID); err != nil {
			return err
		}
		nowStr := formatTime(time.Now().UTC())
		if err := compactSiblings(ctx, tx, outcomeSet, chain.Plan.ID, nowStr); err != nil {
			return err
		}
		return touchPlan(ctx, tx, chain.Plan.ID, nowStr)
	})
}

// ListOutcomes returns the plan's outcomes ordered by position.
func (s *Store) ListOutcomes(ctx context.Context, planID, userID string) ([]Outcome, error) {
	if _, err := resolvePlan(ctx, s.db, planID, userID); err != nil {
		return nil, err
	}
	return listOutcomes(ctx, s.db, planID)
}

func listOutcomes(ctx context.Context, q querier, planID string) ([]Outcome, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, plan_id, title, summary, status, position, created_at, updated_at
		FROM outcomes
		WHERE plan_id = ?
		ORDER BY position ASC
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var o Outcome
		var status, createdAt, updatedAt string
		if err := rows.Scan(&o.ID, &o.PlanID, &o.Title, &o.Summary, &status, &o.Position, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Status = Status(status)
		o.CreatedAt = parseTime(createdAt)
		o.UpdatedAt = parseTime(updatedAt)
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return outcomes, nil
}
