package planstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AddAction appends an action to the deliverable's sibling set.
func (s *Store) AddAction(ctx context.Context, deliverableID, userID, title string) (*Action, error) {
	if title == "" {
		return nil, fmt.Errorf("action title is required")
	}

	var action *Action
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		chain, err := resolveDeliverable(ctx, tx, deliverableID, userID)
		if err != nil {
			return err
		}
		position, err := nextPosition(ctx, tx, actionSet, deliverableID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		nowStr := formatTime(now)
		action = &Action{
			ID:            uuid.NewString(),
			DeliverableID: deliverableID,
			Title:         title,
			Status:        StatusTodo,
			Position:      position,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO actions (id, deliverable_id, title, status, position, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, action.ID, deliverableID, title, string(StatusTodo), position, nowStr, nowStr)
		if err != nil {
			return fmt.Errorf("insert action: %w", err)
		}
		return touchPlan(ctx, tx, chain.Plan.ID, nowStr)
	})
	if err != nil {
		return nil, err
	}
	return action, nil
}

// UpdateAction retitles the action.
func (s *Store) UpdateAction(ctx context.Context, actionID, userID, title string) (*Action, error) {
	if title == "" {
		return nil, fmt.Errorf("action title is required")
	}

	var action *Action
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		chain, err := resolveAction(ctx, tx, actionID, userID)
		if err != nil {
			return err
		}
		action = chain.Action

		nowStr := formatTime(time.Now().UTC())
		_, err = tx.ExecContext(ctx, `
			UPDATE actions SET title = ?, updated_at = ? WHERE id = ?
		`, title, nowStr, actionID)
		if err != nil {
			return fmt.Errorf("update action: %w", err)
		}
		action.Title = title
		action.UpdatedAt = parseTime(nowStr)
		return touchPlan(ctx, tx, chain.Plan.ID, nowStr)
	})
	if err != nil {
		return nil, err
	}
	return action, nil
}

// SetActionStatus updates the action's status.
func (s *Store) SetActionStatus(ctx context.Context, actionID, userID string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status: %s", status)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		chain, err := resolveAction(ctx, tx, actionID, userID)
		if err != nil {
			return err
		}
		nowStr := formatTime(time.Now().UTC())
		_, err = tx.ExecContext(ctx, `
			UPDATE actions SET status = ?, updated_at = ? WHERE id = ?
		`, string(status), nowStr, actionID)
		if err != nil {
			return fmt.Errorf("update action status: %w", err)
		}
		return touchPlan(ctx, tx, chain.Plan.ID, nowStr)
	})
}

// DeleteAction removes the action and compacts its siblings.
func (s *Store) DeleteAction(ctx context.Context, actionID, userID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		chain, err := resolveAction(ctx, tx, actionID, userID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM actions WHERE id = ?", actionID); err != nil {
			return fmt.Errorf("delete action: %w", err)
		}
		nowStr := formatTime(time.Now().UTC())
		if err := compactSiblings(ctx, tx, actionSet, chain.Deliverable.ID, nowStr); err != nil {
			return err
		}
		return touchPlan(ctx, tx, chain.Plan.ID, nowStr)
	})
}

// ListActions returns the deliverable's actions ordered by position.
func (s *Store) ListActions(ctx context.Context, deliverableID, userID string) ([]Action, error) {
	if _, err := resolveDeliverable(ctx, s.db, deliverableID, userID); err != nil {
		return nil, err
	}
	return listActions(ctx, s.db, deliverableID)
}

func listActions(ctx context.Context, q querier, deliverableID string) ([]Action, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, deliverable_id, title, status, position, created_at, updated_at
		FROM actions
		WHERE deliverable_id = ?
		ORDER BY position ASC
	`, deliverableID)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var actions []Action
	for rows.Next() {
		var a Action
		var status, createdAt, updatedAt string
		if err := rows.Scan(&a.ID, &a.DeliverableID, &a.Title, &status, &a.Position, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		a.Status = Status(status)
		a.CreatedAt = parseTime(createdAt)
		a.UpdatedAt = parseTime(updatedAt)
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return actions, nil
}
