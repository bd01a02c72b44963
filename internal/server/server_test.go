package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planloom/internal/draft"
	"planloom/internal/planstore"
	"planloom/internal/secrets"
)

type serverFixture struct {
	srv   *httptest.Server
	store *planstore.Store
	key   string
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	dir := t.TempDir()

	store, err := planstore.Open(filepath.Join(dir, "plans.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sec := secrets.NewStore(filepath.Join(dir, "secrets"))
	key, err := sec.IssueIntegrationKey("alice")
	require.NoError(t, err)

	srv := httptest.NewServer(New(store, sec, nil).Handler())
	t.Cleanup(srv.Close)

	return &serverFixture{srv: srv, store: store, key: key}
}

func (f *serverFixture) get(t *testing.T, path, bearer string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.srv.URL+path, nil)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func (f *serverFixture) seedPlan(t *testing.T, userID string) string {
	t.Helper()
	ctx := context.Background()

	plan, err := f.store.CreateShell(ctx, userID, "learn woodworking", false)
	require.NoError(t, err)

	d := draft.Draft{
		Idea:    plan.Idea,
		Title:   "Learn woodworking",
		Summary: "From hand tools up.",
		Outcomes: []draft.Outcome{{
			Title:  "Master hand tool basics",
			Status: "todo",
			Deliverables: []draft.Deliverable{{
				Title:    "A square-edged board",
				DoneWhen: "Four faces planed square.",
				Status:   "todo",
				Actions: []draft.Action{
					{Title: "Sharpen the plane iron", Status: "todo"},
				},
			}},
		}},
	}
	require.NoError(t, f.store.ReplaceTree(ctx, plan.ID, userID, d, planstore.ReplaceOptions{}))
	return plan.ID
}

func TestAuthRejectsMissingAndBogusCredentials(t *testing.T) {
	f := newServerFixture(t)

	resp, body := f.get(t, "/v1/plans", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "missing bearer credential", body["error"])

	resp, body = f.get(t, "/v1/plans", "pl_forged")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid bearer credential", body["error"])
}

func TestListPlansReturnsOwnedPlansOnly(t *testing.T) {
	f := newServerFixture(t)
	planID := f.seedPlan(t, "alice")
	f.seedPlan(t, "someone-else")

	resp, body := f.get(t, "/v1/plans", f.key)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	plans, ok := body["plans"].([]any)
	require.True(t, ok)
	require.Len(t, plans, 1)
	first := plans[0].(map[string]any)
	assert.Equal(t, planID, first["id"])
	assert.Equal(t, "ready", first["status"])
}

func TestPlanDetailsReturnsFullTree(t *testing.T) {
	f := newServerFixture(t)
	planID := f.seedPlan(t, "alice")

	resp, body := f.get(t, "/v1/plans/"+planID, f.key)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	outcomes, ok := body["outcomes"].([]any)
	require.True(t, ok)
	require.Len(t, outcomes, 1)

	outcome := outcomes[0].(map[string]any)
	assert.Equal(t, float64(0), outcome["order"])
	deliverables := outcome["deliverables"].([]any)
	require.Len(t, deliverables, 1)
	deliverable := deliverables[0].(map[string]any)
	assert.Equal(t, "Four faces planed square.", deliverable["done_when"])
	require.Len(t, deliverable["actions"].([]any), 1)
}

func TestPendingWorkEndpoint(t *testing.T) {
	f := newServerFixture(t)
	planID := f.seedPlan(t, "alice")

	resp, body := f.get(t, "/v1/plans/"+planID+"/pending", f.key)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, false, body["done"])
	lines, ok := body["summary_lines"].([]any)
	require.True(t, ok)
	assert.Equal(t, "Plan: Learn woodworking", lines[0])
}

func TestMalformedPlanIDIsBadRequest(t *testing.T) {
	f := newServerFixture(t)

	resp, body := f.get(t, "/v1/plans/not-a-uuid", f.key)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "malformed plan id", body["error"])
}

func TestForeignPlanReadsAsNotFound(t *testing.T) {
	f := newServerFixture(t)
	foreignID := f.seedPlan(t, "someone-else")

	resp, body := f.get(t, "/v1/plans/"+foreignID, f.key)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "plan not found", body["error"])

	resp, _ = f.get(t, "/v1/plans/"+foreignID+"/pending", f.key)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUnknownPlanIsNotFound(t *testing.T) {
	f := newServerFixture(t)

	resp, body := f.get(t, "/v1/plans/00000000-0000-0000-0000-000000000000", f.key)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "plan not found", body["error"])
}
