package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"planloom/internal/draft"
)

// MockAdapter is a deterministic, offline adapter used for end-to-end
// testing of the generation pipeline.
type MockAdapter struct {
	// Fail makes every GeneratePlan call return this error.
	Fail error
	// Draft overrides the generated draft when set.
	Draft *draft.Draft
}

func (a *MockAdapter) Name() string {
	return "mock"
}

func (a *MockAdapter) NewThread(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "mock-thread-" + uuid.NewString(), nil
}

func (a *MockAdapter) GeneratePlan(ctx context.Context, req Request) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.Fail != nil {
		return nil, a.Fail
	}
	if req.Idea == "" {
		return nil, errors.New("idea is required")
	}

	d := a.Draft
	if d == nil {
		d = defaultMockDraft(req.Idea)
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal mock draft: %w", err)
	}
	return data, nil
}

func (a *MockAdapter) Research(ctx context.Context, idea string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("mock research snippet for: %s", idea)}, nil
}

func defaultMockDraft(idea string) *draft.Draft {
	return &draft.Draft{
		Idea:    idea,
		Title:   fmt.Sprintf("Plan for: %s", truncate(idea, 150)),
		Summary: "Deterministic mock plan (no model invoked).",
		Outcomes: []draft.Outcome{
			{
				Title:   "First milestone",
				Summary: "Initial shape of the work.",
				Status:  "todo",
				Deliverables: []draft.Deliverable{
					{
						Title:    "Working skeleton",
						DoneWhen: "A minimal end-to-end path exists.",
						Status:   "todo",
						Actions: []draft.Action{
							{Title: "Sketch the approach", Status: "todo"},
							{Title: "Build the smallest useful slice", Status: "todo"},
						},
					},
				},
			},
		},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
