package planstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"planloom/internal/draft"
)

// CreateShell inserts an empty plan owned by userID. The subtree is populated
// later by a background generation; the shell starts in the scraping state
// when research snippets still need gathering, otherwise generating.
func (s *Store) CreateShell(ctx context.Context, userID, idea string, needsResearch bool) (*Plan, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	idea = strings.TrimSpace(idea)
	if idea == "" {
		return nil, fmt.Errorf("idea is required")
	}
	// An overlong idea would pass the insert but fail every later draft
	// validation against the pinned idea, so it is rejected here.
	if max := draft.DefaultBounds().MaxIdeaLen; len(idea) > max {
		return nil, draft.ValidationErrors{{
			Field:   "idea",
			Message: fmt.Sprintf("exceeds %d characters", max),
		}}
	}

	status := PlanGenerating
	if needsResearch {
		status = PlanScraping
	}

	now := time.Now().UTC()
	plan := &Plan{
		ID:        uuid.NewString(),
		UserID:    userID,
		Idea:      idea,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plans (id, user_id, idea, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, plan.ID, plan.UserID, plan.Idea, string(plan.Status), formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("insert plan: %w", err)
	}

	return plan, nil
}

// GetPlan returns the plan after verifying ownership.
func (s *Store) GetPlan(ctx context.Context, planID, userID string) (*Plan, error) {
	return resolvePlan(ctx, s.db, planID, userID)
}

// ListRecentPlans returns the user's plans, newest first by updated_at.
func (s *Store) ListRecentPlans(ctx context.Context, userID string, limit int) ([]Plan, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, idea, title, summary, status, generation_error, research_json, created_at, updated_at
		FROM plans
		WHERE user_id = ?
		ORDER BY updated_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer rows.Close()

	var plans []Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}
	return plans, nil
}

// SetResearch stores gathered research snippets and moves a scraping plan to
// generating.
func (s *Store) SetResearch(ctx context.Context, planID, userID string, snippets []string) error {
	if _, err := resolvePlan(ctx, s.db, planID, userID); err != nil {
		return err
	}
	encoded, err := encodeResearch(snippets)
	if err != nil {
		return err
	}
	now := formatTime(time.Now().UTC())
	_, err = s.db.ExecContext(ctx, `
		UPDATE plans
		SET research_json = ?,
		    status = CASE WHEN status = 'scraping' THEN 'generating' ELSE status END,
		    updated_at = ?
		WHERE id = ?
	`, encoded, now, planID)
	if err != nil {
		return fmt.Errorf("set research: %w", err)
	}
	return nil
}

// MarkGenerating moves the plan into the generating state.
func (s *Store) MarkGenerating(ctx context.Context, planID, userID string) error {
	return s.setPlanStatus(ctx, planID, userID, PlanGenerating, "")
}

// MarkError records a generation failure on the plan. The message is capped
// before storage.
func (s *Store) MarkError(ctx context.Context, planID, userID, msg string) error {
	return s.setPlanStatus(ctx, planID, userID, PlanError, capErrorText(msg))
}

func (s *Store) setPlanStatus(ctx context.Context, planID, userID string, status PlanStatus, genErr string) error {
	if _, err := resolvePlan(ctx, s.db, planID, userID); err != nil {
		return err
	}
	now := formatTime(time.Now().UTC())
	_, err := s.db.ExecContext(ctx, `
		UPDATE plans SET status = ?, generation_error = ?, updated_at = ? WHERE id = ?
	`, string(status), genErr, now, planID)
	if err != nil {
		return fmt.Errorf("update plan status: %w", err)
	}
	return nil
}

// DeletePlan destroys the plan and every descendant, thread, and adjustment
// event in one cascading delete.
func (s *Store) DeletePlan(ctx context.Context, planID, userID string) error {
	if _, err := resolvePlan(ctx, s.db, planID, userID); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM plans WHERE id = ?", planID); err != nil {
			return fmt.Errorf("delete plan: %w", err)
		}
		return nil
	})
}

// touchPlan bumps the plan's updated_at after any descendant mutation so the
// plan timestamp stays at or above every descendant's.
func touchPlan(ctx context.Context, q querier, planID, now string) error {
	if _, err := q.ExecContext(ctx, "UPDATE plans SET updated_at = ? WHERE id = ?", now, planID); err != nil {
		return fmt.Errorf("touch plan: %w", err)
	}
	return nil
}

func getPlan(ctx context.Context, q querier, planID string) (*Plan, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, user_id, idea, title, summary, status, generation_error, research_json, created_at, updated_at
		FROM plans
		WHERE id = ?
	`, planID)
	plan, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, notFound(LevelPlan, planID)
	}
	if err != nil {
		return nil, err
	}
	return plan, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*Plan, error) {
	var plan Plan
	var status, createdAt, updatedAt string
	var research sql.NullString

	err := row.Scan(
		&plan.ID, &plan.UserID, &plan.Idea, &plan.Title, &plan.Summary,
		&status, &plan.GenerationError, &research, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan plan: %w", err)
	}

	plan.Status = PlanStatus(status)
	plan.Research = decodeResearch(research)
	plan.CreatedAt = parseTime(createdAt)
	plan.UpdatedAt = parseTime(updatedAt)
	return &plan, nil
}
