package planstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"planloom/internal/draft"
)

// ReplaceOptions configures a full-tree replace.
type ReplaceOptions struct {
	// Adjusting asserts the draft's idea against the plan's stored idea.
	// Initial generation skips the check; the shell's idea is the draft's
	// origin.
	Adjusting bool
	// Bounds overrides the draft schema limits; zero fields keep defaults.
	Bounds draft.Bounds
}

// ReplaceTree destroys the plan's entire descendant subtree and rebuilds it
// from the draft in one transaction. Drafts carry no stable node identity
// across regenerations, so no diffing is attempted: positions come from the
// draft's array order and every inserted node shares one timestamp. The
// draft is re-validated here regardless of what the caller already checked,
// since proposals can reach this boundary directly.
func (s *Store) ReplaceTree(ctx context.Context, planID, userID string, d draft.Draft, opts ReplaceOptions) error {
	if err := draft.Validate(&d, opts.Bounds); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		plan, err := resolvePlan(ctx, tx, planID, userID)
		if err != nil {
			return err
		}
		if opts.Adjusting && d.Idea != plan.Idea {
			return ErrIdeaMismatch
		}

		if err := deletePlanSubtree(ctx, tx, planID); err != nil {
			return err
		}

		nowStr := formatTime(time.Now().UTC())
		for oi, o := range d.Outcomes {
			outcomeID := uuid.NewString()
			_, err := tx.ExecContext(ctx, `
				INSERT INTO outcomes (id, plan_id, title, summary, status, position, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, outcomeID, planID, o.Title, o.Summary, o.Status, oi, nowStr, nowStr)
			if err != nil {
				return fmt.Errorf("insert outcome %d: %w", oi, err)
			}

			for di, dl := range o.Deliverables {
				deliverableID := uuid.NewString()
				_, err := tx.ExecContext(ctx, `
					INSERT INTO deliverables (id, outcome_id, title, done_when, notes, status, position, created_at, updated_at)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				`, deliverableID, outcomeID, dl.Title, dl.DoneWhen, dl.Notes, dl.Status, di, nowStr, nowStr)
				if err != nil {
					return fmt.Errorf("insert deliverable %d.%d: %w", oi, di, err)
				}

				for ai, a := range dl.Actions {
					_, err := tx.ExecContext(ctx, `
						INSERT INTO actions (id, deliverable_id, title, status, position, created_at, updated_at)
						VALUES (?, ?, ?, ?, ?, ?, ?)
					`, uuid.NewString(), deliverableID, a.Title, a.Status, ai, nowStr, nowStr)
					if err != nil {
						return fmt.Errorf("insert action %d.%d.%d: %w", oi, di, ai, err)
					}
				}
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE plans
			SET title = ?, summary = ?, status = ?, generation_error = '', updated_at = ?
			WHERE id = ?
		`, d.Title, d.Summary, string(PlanReady), nowStr, planID)
		if err != nil {
			return fmt.Errorf("%w: patch plan after subtree rebuild: %v", ErrPartialApply, err)
		}
		return nil
	})
}
