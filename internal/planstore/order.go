package planstore

import (
	"context"
	"fmt"
)

// Sibling ordering: positions within a sibling set are a dense 0..n-1
// permutation at rest. Appends take max+1 so a prior gap never forces a
// renumbering; deletes compact by patching only the rows whose index and
// stored position differ.

// siblingSet identifies one level of the hierarchy for the shared ordering
// and cascade helpers. Table and column names are fixed constants, never
// caller input.
type siblingSet struct {
	table     string
	parentCol string
}

var (
	outcomeSet     = siblingSet{table: "outcomes", parentCol: "plan_id"}
	deliverableSet = siblingSet{table: "deliverables", parentCol: "outcome_id"}
	actionSet      = siblingSet{table: "actions", parentCol: "deliverable_id"}
)

// nextPosition returns max(position)+1 among the parent's children, or 0.
func nextPosition(ctx context.Context, q querier, set siblingSet, parentID string) (int, error) {
	query := fmt.Sprintf(
		"SELECT COALESCE(MAX(position) + 1, 0) FROM %s WHERE %s = ?",
		set.table, set.parentCol,
	)
	var next int
	if err := q.QueryRowContext(ctx, query, parentID).Scan(&next); err != nil {
		return 0, fmt.Errorf("next position in %s: %w", set.table, err)
	}
	return next, nil
}

// compactSiblings restores dense 0..n-1 positions after a removal, writing
// only rows whose stored position differs from their index.
func compactSiblings(ctx context.Context, q querier, set siblingSet, parentID, now string) error {
	query := fmt.Sprintf(
		"SELECT id, position FROM %s WHERE %s = ? ORDER BY position ASC",
		set.table, set.parentCol,
	)
	rows, err := q.QueryContext(ctx, query, parentID)
	if err != nil {
		return fmt.Errorf("list %s for compaction: %w", set.table, err)
	}

	type sibling struct {
		id       string
		position int
	}
	var siblings []sibling
	for rows.Next() {
		var sib sibling
		if err := rows.Scan(&sib.id, &sib.position); err != nil {
			rows.Close()
			return fmt.Errorf("scan %s sibling: %w", set.table, err)
		}
		siblings = append(siblings, sib)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate %s siblings: %w", set.table, err)
	}
	rows.Close()

	update := fmt.Sprintf("UPDATE %s SET position = ?, updated_at = ? WHERE id = ?", set.table)
	for idx, sib := range siblings {
		if sib.position == idx {
			continue
		}
		if _, err := q.ExecContext(ctx, update, idx, now, sib.id); err != nil {
			return fmt.Errorf("compact %s position: %w", set.table, err)
		}
	}
	return nil
}

// Subtree deletes always remove children before parents so no row ever
// references a deleted parent mid-operation.

func deleteDeliverableSubtree(ctx context.Context, q querier, deliverableID string) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM actions WHERE deliverable_id = ?", deliverableID); err != nil {
		return fmt.Errorf("delete actions: %w", err)
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM deliverables WHERE id = ?", deliverableID); err != nil {
		return fmt.Errorf("delete deliverable: %w", err)
	}
	return nil
}

func deleteOutcomeSubtree(ctx context.Context, q querier, outcomeID string) error {
	_, err := q.ExecContext(ctx, `
		DELETE FROM actions WHERE deliverable_id IN (
			SELECT id FROM deliverables WHERE outcome_id = ?
		)
	`, outcomeID)
	if err != nil {
		return fmt.Errorf("delete actions: %w", err)
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM deliverables WHERE outcome_id = ?", outcomeID); err != nil {
		return fmt.Errorf("delete deliverables: %w", err)
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM outcomes WHERE id = ?", outcomeID); err != nil {
		return fmt.Errorf("delete outcome: %w", err)
	}
	return nil
}

func deletePlanSubtree(ctx context.Context, q querier, planID string) error {
	_, err := q.ExecContext(ctx, `
		DELETE FROM actions WHERE deliverable_id IN (
			SELECT d.id FROM deliverables d
			JOIN outcomes o ON o.id = d.outcome_id
			WHERE o.plan_id = ?
		)
	`, planID)
	if err != nil {
		return fmt.Errorf("delete actions: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		DELETE FROM deliverables WHERE outcome_id IN (
			SELECT id FROM outcomes WHERE plan_id = ?
		)
	`, planID)
	if err != nil {
		return fmt.Errorf("delete deliverables: %w", err)
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM outcomes WHERE plan_id = ?", planID); err != nil {
		return fmt.Errorf("delete outcomes: %w", err)
	}
	return nil
}

// cascadeOutcomeDone force-sets every non-done descendant of the outcome to
// done with one shared timestamp. Bounded by the subtree size.
func cascadeOutcomeDone(ctx context.Context, q querier, outcomeID, now string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE actions SET status = 'done', updated_at = ?
		WHERE status != 'done' AND deliverable_id IN (
			SELECT id FROM deliverables WHERE outcome_id = ?
		)
	`, now, outcomeID)
	if err != nil {
		return fmt.Errorf("cascade actions done: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		UPDATE deliverables SET status = 'done', updated_at = ?
		WHERE status != 'done' AND outcome_id = ?
	`, now, outcomeID)
	if err != nil {
		return fmt.Errorf("cascade deliverables done: %w", err)
	}
	return nil
}
