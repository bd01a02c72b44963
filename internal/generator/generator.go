// Package generator orchestrates AI plan generation and adjustment: audit
// event first, then thread, model call, draft validation, and full-tree
// replace, recording every outcome on the audit log and the plan itself.
package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"planloom/internal/adapters"
	"planloom/internal/draft"
	"planloom/internal/notify"
	"planloom/internal/planstore"
)

// Generator runs the generation/adjustment pipeline against a store and a
// model adapter.
type Generator struct {
	Store    *planstore.Store
	Adapter  adapters.ModelAdapter
	Bounds   draft.Bounds
	Logger   *zap.Logger
	Notifier *notify.Notifier
}

// New returns a Generator with a no-op logger unless one is supplied.
func New(store *planstore.Store, adapter adapters.ModelAdapter) *Generator {
	return &Generator{
		Store:   store,
		Adapter: adapter,
		Logger:  zap.NewNop(),
	}
}

func (g *Generator) logger() *zap.Logger {
	if g.Logger == nil {
		return zap.NewNop()
	}
	return g.Logger
}

// Generate populates a plan shell from its idea. The plan must already
// exist (created by the fast synchronous step); this is the deferred unit
// that talks to the model.
func (g *Generator) Generate(ctx context.Context, planID, userID string) error {
	return g.run(ctx, planID, userID, "")
}

// Adjust revises an existing plan according to the instruction. The model
// re-emits the complete structure; application replaces the whole subtree
// and is guarded by the stored-idea consistency check.
func (g *Generator) Adjust(ctx context.Context, planID, userID, instruction string) error {
	if strings.TrimSpace(instruction) == "" {
		return fmt.Errorf("adjustment instruction is required")
	}
	return g.run(ctx, planID, userID, instruction)
}

func (g *Generator) run(ctx context.Context, planID, userID, instruction string) error {
	log := g.logger().With(zap.String("plan_id", planID))
	adjusting := instruction != ""

	plan, err := g.Store.GetPlan(ctx, planID, userID)
	if err != nil {
		return err
	}

	// Research step: only for fresh generations still in the scraping state.
	if !adjusting && plan.Status == planstore.PlanScraping {
		if err := g.research(ctx, plan, userID); err != nil {
			// Research is best effort; generation proceeds without snippets.
			log.Warn("research step failed", zap.Error(err))
			if err := g.Store.MarkGenerating(ctx, planID, userID); err != nil {
				return err
			}
		}
		plan, err = g.Store.GetPlan(ctx, planID, userID)
		if err != nil {
			return err
		}
	}

	threadID, err := g.Store.ThreadFor(ctx, planID, userID, g.Adapter.NewThread)
	if err != nil {
		return fmt.Errorf("resolve thread: %w", err)
	}

	prompt := instruction
	if prompt == "" {
		prompt = plan.Idea
	}

	// The pending event is written before the model is invoked so a stuck
	// call is visible as a pending event with no terminal transition.
	event, err := g.Store.BeginEvent(ctx, planID, userID, prompt, threadID)
	if err != nil {
		return fmt.Errorf("begin adjustment event: %w", err)
	}

	started := time.Now()
	err = g.apply(ctx, plan, userID, threadID, instruction)
	if err != nil {
		if markErr := g.Store.MarkEventError(ctx, event.ID, err.Error()); markErr != nil {
			log.Warn("record event error", zap.Error(markErr))
		}
		if markErr := g.Store.MarkError(ctx, planID, userID, err.Error()); markErr != nil {
			log.Warn("record plan error", zap.Error(markErr))
		}
		title, message := notify.FormatPlanFailed(plan.Idea, err.Error())
		_ = g.Notifier.Send(title, message)
		// The audit write never swallows the failure.
		return err
	}

	latency := time.Since(started)
	summary := fmt.Sprintf("%s via %s", verb(adjusting), g.Adapter.Name())
	// The applied transition must land even if the refresh read below
	// fails, or the event would sit pending forever.
	if err := g.Store.MarkEventApplied(ctx, event.ID, summary, latency); err != nil {
		return fmt.Errorf("record applied event: %w", err)
	}

	log.Info("plan tree replaced",
		zap.Bool("adjusting", adjusting),
		zap.Duration("latency", latency),
	)

	updated, err := g.Store.GetPlan(ctx, planID, userID)
	if err != nil {
		// The tree is applied and audited; the refresh only feeds
		// notifications, which are best effort.
		log.Warn("refresh plan after apply", zap.Error(err))
		return nil
	}

	if adjusting {
		title, message := notify.FormatAdjustmentApplied(updated.Title)
		_ = g.Notifier.Send(title, message)
	} else {
		detail, derr := g.Store.ResolvePlanDetails(ctx, planID, userID)
		outcomes := 0
		if derr == nil {
			outcomes = len(detail.Outcomes)
		}
		title, message := notify.FormatPlanReady(updated.Title, outcomes)
		_ = g.Notifier.Send(title, message)
	}
	return nil
}

func (g *Generator) apply(ctx context.Context, plan *planstore.Plan, userID, threadID, instruction string) error {
	raw, err := g.Adapter.GeneratePlan(ctx, adapters.Request{
		ThreadID:    threadID,
		Idea:        plan.Idea,
		Instruction: instruction,
		Research:    plan.Research,
	})
	if err != nil {
		return fmt.Errorf("model call: %w: %w", planstore.ErrUpstream, err)
	}

	d, err := draft.Parse(raw, g.Bounds)
	if err != nil {
		return fmt.Errorf("parse draft: %w", err)
	}
	// The model is asked to echo the idea verbatim; a fresh generation pins
	// it here so the adjustment consistency check has a trusted base.
	if instruction == "" {
		d.Idea = plan.Idea
	}

	if err := g.Store.ReplaceTree(ctx, plan.ID, userID, d, planstore.ReplaceOptions{
		Adjusting: instruction != "",
		Bounds:    g.Bounds,
	}); err != nil {
		return fmt.Errorf("replace tree: %w", err)
	}
	return nil
}

func (g *Generator) research(ctx context.Context, plan *planstore.Plan, userID string) error {
	researcher, ok := g.Adapter.(adapters.Researcher)
	if !ok {
		return g.Store.SetResearch(ctx, plan.ID, userID, nil)
	}
	snippets, err := researcher.Research(ctx, plan.Idea)
	if err != nil {
		return fmt.Errorf("research: %w", err)
	}
	return g.Store.SetResearch(ctx, plan.ID, userID, snippets)
}

func verb(adjusting bool) string {
	if adjusting {
		return "plan adjusted"
	}
	return "plan generated"
}
