package planstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeliverableUpdate carries optional field changes for a deliverable.
type DeliverableUpdate struct {
	Title    *string
	DoneWhen *string
	Notes    *string
}

// AddDeliverable appends a deliverable to the outcome's sibling set.
func (s *Store) AddDeliverable(ctx context.Context, outcomeID, userID, title, doneWhen, notes string) (*Deliverable, error) {
	if title == "" {
		return nil, fmt.Errorf("deliverable title is required")
	}
	if doneWhen == "" {
		return nil, fmt.Errorf("deliverable done_when is required")
	}

	var deliverable *Deliverable
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		chain, err := resolveOutcome(ctx, tx, outcomeID, userID)
		if err != nil {
			return err
		}
		position, err := nextPosition(ctx, tx, deliverableSet, outcomeID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		nowStr := formatTime(now)
		deliverable = &Deliverable{
			ID:        uuid.NewString(),
			OutcomeID: outcomeID,
			Title:     title,
			DoneWhen:  doneWhen,
			Notes:     notes,
			Status:    StatusTodo,
			Position:  position,
			CreatedAt: now,
			UpdatedAt: now,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO deliverables (id, outcome_id, title, done_when, notes, status, position, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, deliverable.ID, outcomeID, title, doneWhen, notes, string(StatusTodo), position, nowStr, nowStr)
		if err != nil {
			return fmt.Errorf("insert deliverable: %w", err)
		}
		return touchPlan(ctx, tx, chain.Plan.ID, nowStr)
	})
	if err != nil {
		return nil, err
	}
	return deliverable, nil
}

// UpdateDeliverable patches the deliverable's mutable fields.
func (s *Store) UpdateDeliverable(ctx context.Context, deliverableID, userID string, upd DeliverableUpdate) (*Deliverable, error) {
	var deliverable *Deliverable
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		chain, err := resolveDeliverable(ctx, tx, deliverableID, userID)
		if err != nil {
			return err
		}
		deliverable = chain.Deliverable
		if upd.Title != nil {
			deliverable.Title = *upd.Title
		}
		if upd.DoneWhen != nil {
			deliverable.DoneWhen = *upd.DoneWhen
		}
		if upd.Notes != nil {
			deliverable.Notes = *upd.Notes
		}
		if deliverable.Title == "" {
			return fmt.Errorf("deliverable title is required")
		}
		if deliverable.DoneWhen == "" {
			return fmt.Errorf("deliverable done_when is required")
		}

		nowStr := formatTime(time.Now().UTC())
		_, err = tx.ExecContext(ctx, `
			UPDATE deliverables SET title = ?, done_when = ?, notes = ?, updated_at = ? WHERE id = ?
		`, deliverable.Title, deliverable.DoneWhen, deliverable.Notes, nowStr, deliverableID)
		if err != nil {
			return fmt.Errorf("update deliverable: %w", err)
		}
		deliverable.UpdatedAt = parseTime(nowStr)
		return touchPlan(ctx, tx, chain.Plan.ID, nowStr)
	})
	if err != nil {
		return nil, err
	}
	return deliverable, nil
}

// SetDeliverableStatus updates the deliverable's status.
func (s *Store) SetDeliverableStatus(ctx context.Context, deliverableID, userID string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status: %s", status)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		chain, err := resolveDeliverable(ctx, tx, deliverableID, userID)
		if err != nil {
			return err
		}
		nowStr := formatTime(time.Now().UTC())
		_, err = tx.ExecContext(ctx, `
			UPDATE deliverables SET status = ?, updated_at = ? WHERE id = ?
		`, string(status), nowStr, deliverableID)
		if err != nil {
			return fmt.Errorf("update deliverable status: %w", err)
		}
		if status == StatusDone {
			_, err = tx.ExecContext(ctx, `
				UPDATE actions SET status = 'done', updated_at = ?
				WHERE status != 'done' AND deliverable_id = ?
			`, nowStr, deliverableID)
			if err != nil {
				return fmt.Errorf("cascade actions done: %w", err)
			}
		}
		return touchPlan(ctx, tx, chain.Plan.ID, nowStr)
	})
}

// DeleteDeliverable removes the deliverable and its actions, children first,
// then compacts the outcome's remaining deliverables.
func (s *Store) DeleteDeliverable(ctx context.Context, deliverableID, userID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		chain, err := resolveDeliverable(ctx, tx, deliverableID, userID)
		if err != nil {
			return err
		}
		if err := deleteDeliverableSubtree(ctx, tx, deliverableID); err != nil {
			return err
		}
		nowStr := formatTime(time.Now().UTC())
		if err := compactSiblings(ctx, tx, deliverableSet, chain.Outcome.ID, nowStr); err != nil {
			return err
		}
		return touchPlan(ctx, tx, chain.Plan.ID, nowStr)
	})
}

// ListDeliverables returns the outcome's deliverables ordered by position.
func (s *Store) ListDeliverables(ctx context.Context, outcomeID, userID string) ([]Deliverable, error) {
	if _, err := resolveOutcome(ctx, s.db, outcomeID, userID); err != nil {
		return nil, err
	}
	return listDeliverables(ctx, s.db, outcomeID)
}

func listDeliverables(ctx context.Context, q querier, outcomeID string) ([]Deliverable, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, outcome_id, title, done_when, notes, status, position, created_at, updated_at
		FROM deliverables
		WHERE outcome_id = ?
		ORDER BY position ASC
	`, outcomeID)
	if err != nil {
		return nil, fmt.Errorf("query deliverables: %w", err)
	}
	defer rows.Close()

	var deliverables []Deliverable
	for rows.Next() {
		var d Deliverable
		var status, createdAt, updatedAt string
		if err := rows.Scan(&d.ID, &d.OutcomeID, &d.Title, &d.DoneWhen, &d.Notes, &status, &d.Position, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan deliverable: %w", err)
		}
		d.Status = Status(status)
		d.CreatedAt = parseTime(createdAt)
		d.UpdatedAt = parseTime(updatedAt)
		deliverables = append(deliverables, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliverables: %w", err)
	}
	return deliverables, nil
}
