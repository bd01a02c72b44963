package generator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planloom/internal/adapters"
	"planloom/internal/draft"
	"planloom/internal/planstore"
)

const testUser = "alice"

func newTestGenerator(t *testing.T, adapter adapters.ModelAdapter) (*Generator, *planstore.Store) {
	t.Helper()
	store, err := planstore.Open(filepath.Join(t.TempDir(), "plans.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store, adapter), store
}

func TestGeneratePopulatesShell(t *testing.T) {
	gen, store := newTestGenerator(t, &adapters.MockAdapter{})
	ctx := context.Background()

	plan, err := store.CreateShell(ctx, testUser, "learn woodworking", false)
	require.NoError(t, err)

	require.NoError(t, gen.Generate(ctx, plan.ID, testUser))

	detail, err := store.ResolvePlanDetails(ctx, plan.ID, testUser)
	require.NoError(t, err)
	assert.Equal(t, planstore.PlanReady, detail.Plan.Status)
	assert.NotEmpty(t, detail.Plan.Title)
	require.NotEmpty(t, detail.Outcomes)
	require.NotEmpty(t, detail.Outcomes[0].Deliverables)
	require.NotEmpty(t, detail.Outcomes[0].Deliverables[0].Actions)

	events, err := store.ListEvents(ctx, plan.ID, testUser, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, planstore.EventApplied, events[0].Status)
	assert.Equal(t, "plan generated via mock", events[0].Summary)
	assert.Equal(t, plan.Idea, events[0].Prompt)
}

func TestGenerateRunsResearchForScrapingPlan(t *testing.T) {
	gen, store := newTestGenerator(t, &adapters.MockAdapter{})
	ctx := context.Background()

	plan, err := store.CreateShell(ctx, testUser, "open a bakery", true)
	require.NoError(t, err)

	require.NoError(t, gen.Generate(ctx, plan.ID, testUser))

	updated, err := store.GetPlan(ctx, plan.ID, testUser)
	require.NoError(t, err)
	assert.Equal(t, planstore.PlanReady, updated.Status)
	require.Len(t, updated.Research, 1)
	assert.Contains(t, updated.Research[0], "open a bakery")
}

func TestGenerateModelFailureRecordsError(t *testing.T) {
	modelErr := errors.New("upstream quota exceeded")
	gen, store := newTestGenerator(t, &adapters.MockAdapter{Fail: modelErr})
	ctx := context.Background()

	plan, err := store.CreateShell(ctx, testUser, "learn woodworking", false)
	require.NoError(t, err)

	err = gen.Generate(ctx, plan.ID, testUser)
	require.ErrorIs(t, err, modelErr)
	require.ErrorIs(t, err, planstore.ErrUpstream)

	updated, err := store.GetPlan(ctx, plan.ID, testUser)
	require.NoError(t, err)
	assert.Equal(t, planstore.PlanError, updated.Status)
	assert.Contains(t, updated.GenerationError, "upstream quota exceeded")

	events, err := store.ListEvents(ctx, plan.ID, testUser, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, planstore.EventError, events[0].Status)
	assert.Contains(t, events[0].Error, "upstream quota exceeded")
}

func TestGenerateInvalidDraftRecordsError(t *testing.T) {
	bad := &draft.Draft{Idea: "learn woodworking", Title: "No outcomes"}
	gen, store := newTestGenerator(t, &adapters.MockAdapter{Draft: bad})
	ctx := context.Background()

	plan, err := store.CreateShell(ctx, testUser, "learn woodworking", false)
	require.NoError(t, err)

	err = gen.Generate(ctx, plan.ID, testUser)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse draft")

	updated, err := store.GetPlan(ctx, plan.ID, testUser)
	require.NoError(t, err)
	assert.Equal(t, planstore.PlanError, updated.Status)
}

func TestAdjustReplacesTreeAndAppendsEvent(t *testing.T) {
	gen, store := newTestGenerator(t, &adapters.MockAdapter{})
	ctx := context.Background()

	plan, err := store.CreateShell(ctx, testUser, "learn woodworking", false)
	require.NoError(t, err)
	require.NoError(t, gen.Generate(ctx, plan.ID, testUser))

	require.NoError(t, gen.Adjust(ctx, plan.ID, testUser, "add a safety outcome"))

	events, err := store.ListEvents(ctx, plan.ID, testUser, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "add a safety outcome", events[0].Prompt)
	assert.Equal(t, "plan adjusted via mock", events[0].Summary)

	// Every run leaves its event terminal; nothing stays pending.
	for _, e := range events {
		assert.Equal(t, planstore.EventApplied, e.Status)
	}

	// Both runs share one conversation handle.
	assert.Equal(t, events[0].ThreadID, events[1].ThreadID)
}

func TestAdjustRejectsIdeaDrift(t *testing.T) {
	drifted := &draft.Draft{
		Idea:    "a different idea entirely",
		Title:   "Wrong plan",
		Summary: "",
		Outcomes: []draft.Outcome{{
			Title:  "Anything",
			Status: "todo",
			Deliverables: []draft.Deliverable{{
				Title:    "Anything",
				DoneWhen: "Never.",
				Status:   "todo",
				Actions:  []draft.Action{{Title: "Anything", Status: "todo"}},
			}},
		}},
	}

	gen, store := newTestGenerator(t, &adapters.MockAdapter{})
	ctx := context.Background()

	plan, err := store.CreateShell(ctx, testUser, "learn woodworking", false)
	require.NoError(t, err)
	require.NoError(t, gen.Generate(ctx, plan.ID, testUser))

	gen.Adapter = &adapters.MockAdapter{Draft: drifted}
	err = gen.Adjust(ctx, plan.ID, testUser, "swap the idea")
	require.ErrorIs(t, err, planstore.ErrIdeaMismatch)

	// The existing tree survives the rejected adjustment.
	detail, err := store.ResolvePlanDetails(ctx, plan.ID, testUser)
	require.NoError(t, err)
	assert.NotEmpty(t, detail.Outcomes)
}

func TestAdjustRequiresInstruction(t *testing.T) {
	gen, _ := newTestGenerator(t, &adapters.MockAdapter{})
	err := gen.Adjust(context.Background(), "some-plan", testUser, "   ")
	assert.Error(t, err)
}

func TestGenerateUnknownPlan(t *testing.T) {
	gen, _ := newTestGenerator(t, &adapters.MockAdapter{})
	err := gen.Generate(context.Background(), "no-such-plan", testUser)
	assert.True(t, planstore.IsNotFound(err))
}
