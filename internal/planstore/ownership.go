package planstore

import (
	"context"
	"database/sql"
	"fmt"
)

// Ownership verification walks a node's parent links up to its plan, one
// fetch per level. Missing ancestors fail with a level-specific not-found;
// an owner mismatch is only reported once the plan itself is known, so a
// foreign caller learns nothing about intermediate levels. The walk has no
// side effects.

// ResolvePlan verifies that userID owns planID and returns the plan.
func (s *Store) ResolvePlan(ctx context.Context, planID, userID string) (*Plan, error) {
	return resolvePlan(ctx, s.db, planID, userID)
}

// ResolveOutcome walks outcome -> plan and returns the fetched chain.
func (s *Store) ResolveOutcome(ctx context.Context, outcomeID, userID string) (*Chain, error) {
	return resolveOutcome(ctx, s.db, outcomeID, userID)
}

// ResolveDeliverable walks deliverable -> outcome -> plan.
func (s *Store) ResolveDeliverable(ctx context.Context, deliverableID, userID string) (*Chain, error) {
	return resolveDeliverable(ctx, s.db, deliverableID, userID)
}

// ResolveAction walks action -> deliverable -> outcome -> plan.
func (s *Store) ResolveAction(ctx context.Context, actionID, userID string) (*Chain, error) {
	return resolveAction(ctx, s.db, actionID, userID)
}

func resolvePlan(ctx context.Context, q querier, planID, userID string) (*Plan, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	plan, err := getPlan(ctx, q, planID)
	if err != nil {
		return nil, err
	}
	if plan.UserID != userID {
		return nil, ErrAccessDenied
	}
	return plan, nil
}

func resolveOutcome(ctx context.Context, q querier, outcomeID, userID string) (*Chain, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	outcome, err := getOutcome(ctx, q, outcomeID)
	if err != nil {
		return nil, err
	}
	plan, err := resolvePlan(ctx, q, outcome.PlanID, userID)
	if err != nil {
		return nil, err
	}
	return &Chain{Plan: plan, Outcome: outcome}, nil
}

func resolveDeliverable(ctx context.Context, q querier, deliverableID, userID string) (*Chain, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	deliverable, err := getDeliverable(ctx, q, deliverableID)
	if err != nil {
		return nil, err
	}
	chain, err := resolveOutcome(ctx, q, deliverable.OutcomeID, userID)
	if err != nil {
		return nil, err
	}
	chain.Deliverable = deliverable
	return chain, nil
}

func resolveAction(ctx context.Context, q querier, actionID, userID string) (*Chain, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	action, err := getAction(ctx, q, actionID)
	if err != nil {
		return nil, err
	}
	chain, err := resolveDeliverable(ctx, q, action.DeliverableID, userID)
	if err != nil {
		return nil, err
	}
	chain.Action = action
	return chain, nil
}

func getOutcome(ctx context.Context, q querier, outcomeID string) (*Outcome, error) {
	var o Outcome
	var status, createdAt, updatedAt string
	err := q.QueryRowContext(ctx, `
		SELECT id, plan_id, title, summary, status, position, created_at, updated_at
		FROM outcomes WHERE id = ?
	`, outcomeID).Scan(&o.ID, &o.PlanID, &o.Title, &o.Summary, &status, &o.Position, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, notFound(LevelOutcome, outcomeID)
	}
	if err != nil {
		return nil, fmt.Errorf("get outcome: %w", err)
	}
	o.Status = Status(status)
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)
	return &o, nil
}

func getDeliverable(ctx context.Context, q querier, deliverableID string) (*Deliverable, error) {
	var d Deliverable
	var status, createdAt, updatedAt string
	err := q.QueryRowContext(ctx, `
		SELECT id, outcome_id, title, done_when, notes, status, position, created_at, updated_at
		FROM deliverables WHERE id = ?
	`, deliverableID).Scan(&d.ID, &d.OutcomeID, &d.Title, &d.DoneWhen, &d.Notes, &status, &d.Position, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, notFound(LevelDeliverable, deliverableID)
	}
	if err != nil {
		return nil, fmt.Errorf("get deliverable: %w", err)
	}
	d.Status = Status(status)
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

func getAction(ctx context.Context, q querier, actionID string) (*Action, error) {
	var a Action
	var status, createdAt, updatedAt string
	err := q.QueryRowContext(ctx, `
		SELECT id, deliverable_id, title, status, position, created_at, updated_at
		FROM actions WHERE id = ?
	`, actionID).Scan(&a.ID, &a.DeliverableID, &a.Title, &status, &a.Position, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, notFound(LevelAction, actionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get action: %w", err)
	}
	a.Status = Status(status)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}
