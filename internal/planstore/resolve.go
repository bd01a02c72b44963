package planstore

import (
	"context"
	"fmt"
)

// PendingDeliverable pairs the next actionable deliverable with its
// remaining (non-done) actions.
type PendingDeliverable struct {
	Deliverable Deliverable
	Actions     []Action
}

// PendingWork is the "what to do next" view: the first incomplete outcome,
// its first incomplete deliverable with the deliverable's remaining actions,
// and a line-oriented summary of the same.
type PendingWork struct {
	Done         bool
	Plan         *Plan
	Outcome      *Outcome
	Deliverables []PendingDeliverable
	SummaryLines []string
}

// DeliverableDetail is a deliverable with all its actions.
type DeliverableDetail struct {
	Deliverable Deliverable
	Actions     []Action
}

// OutcomeDetail is an outcome with all its deliverables.
type OutcomeDetail struct {
	Outcome      Outcome
	Deliverables []DeliverableDetail
}

// PlanDetail is the full nested tree, stored order preserved.
type PlanDetail struct {
	Plan     Plan
	Outcomes []OutcomeDetail
}

// ResolvePendingWork locates the next actionable step by a bounded greedy
// descent: first non-done outcome, then its first non-done deliverable, then
// that deliverable's non-done actions. It never mutates order or status.
func (s *Store) ResolvePendingWork(ctx context.Context, planID, userID string) (*PendingWork, error) {
	plan, err := resolvePlan(ctx, s.db, planID, userID)
	if err != nil {
		return nil, err
	}

	outcomes, err := listOutcomes(ctx, s.db, planID)
	if err != nil {
		return nil, err
	}

	var outcome *Outcome
	for i := range outcomes {
		if outcomes[i].Status != StatusDone {
			outcome = &outcomes[i]
			break
		}
	}
	if outcome == nil {
		return &PendingWork{
			Done: true,
			Plan: plan,
			SummaryLines: []string{
				fmt.Sprintf("Plan: %s", plan.Title),
				"All outcomes are done.",
			},
		}, nil
	}

	deliverables, err := listDeliverables(ctx, s.db, outcome.ID)
	if err != nil {
		return nil, err
	}

	var deliverable *Deliverable
	for i := range deliverables {
		if deliverables[i].Status != StatusDone {
			deliverable = &deliverables[i]
			break
		}
	}
	if deliverable == nil {
		return &PendingWork{
			Done:    false,
			Plan:    plan,
			Outcome: outcome,
			SummaryLines: []string{
				fmt.Sprintf("Plan: %s", plan.Title),
				fmt.Sprintf("Outcome: %s", outcome.Title),
				"No actionable deliverable; every deliverable here is done but the outcome is not marked done.",
			},
		}, nil
	}

	actions, err := listActions(ctx, s.db, deliverable.ID)
	if err != nil {
		return nil, err
	}
	var remaining []Action
	for _, a := range actions {
		if a.Status != StatusDone {
			remaining = append(remaining, a)
		}
	}

	pending := &PendingWork{
		Done:    false,
		Plan:    plan,
		Outcome: outcome,
		Deliverables: []PendingDeliverable{
			{Deliverable: *deliverable, Actions: remaining},
		},
	}

	lines := []string{
		fmt.Sprintf("Plan: %s", plan.Title),
		fmt.Sprintf("Outcome: %s", outcome.Title),
		fmt.Sprintf("Deliverable: %s", deliverable.Title),
		fmt.Sprintf("Done when: %s", deliverable.DoneWhen),
	}
	if deliverable.Notes != "" {
		lines = append(lines, fmt.Sprintf("Notes: %s", deliverable.Notes))
	}
	if len(remaining) == 0 {
		lines = append(lines, "No remaining actions; check the done-when criterion.")
	} else {
		lines = append(lines, "Next actions:")
		for _, a := range remaining {
			lines = append(lines, fmt.Sprintf("  [%s] %s", a.Status, a.Title))
		}
	}
	pending.SummaryLines = lines

	return pending, nil
}

// ResolvePlanDetails returns the whole tree, depth first, every level in
// stored order, with no filtering. Pure read.
func (s *Store) ResolvePlanDetails(ctx context.Context, planID, userID string) (*PlanDetail, error) {
	plan, err := resolvePlan(ctx, s.db, planID, userID)
	if err != nil {
		return nil, err
	}

	outcomes, err := listOutcomes(ctx, s.db, planID)
	if err != nil {
		return nil, err
	}

	detail := &PlanDetail{Plan: *plan}
	for _, o := range outcomes {
		od := OutcomeDetail{Outcome: o}
		deliverables, err := listDeliverables(ctx, s.db, o.ID)
		if err != nil {
			return nil, err
		}
		for _, d := range deliverables {
			actions, err := listActions(ctx, s.db, d.ID)
			if err != nil {
				return nil, err
			}
			od.Deliverables = append(od.Deliverables, DeliverableDetail{
				Deliverable: d,
				Actions:     actions,
			})
		}
		detail.Outcomes = append(detail.Outcomes, od)
	}
	return detail, nil
}
