package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planloom/internal/adapters"
	"planloom/internal/generator"
	"planloom/internal/planstore"
)

func newTestQueue(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "jobs.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnqueueUniqueDeduplicatesActiveJobs(t *testing.T) {
	s := newTestQueue(t)
	payload := Payload{PlanID: "plan-1", UserID: "alice"}

	first, created, err := s.EnqueueUnique(JobPlanGenerate, payload)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := s.EnqueueUnique(JobPlanGenerate, payload)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, second)

	// A different job type for the same plan is its own slot.
	_, created, err = s.EnqueueUnique(JobPlanAdjust, Payload{
		PlanID:      "plan-1",
		UserID:      "alice",
		Instruction: "tighten it up",
	})
	require.NoError(t, err)
	assert.True(t, created)

	// Once the job finishes, the slot reopens.
	require.NoError(t, s.Succeed(first, nil))
	third, created, err := s.EnqueueUnique(JobPlanGenerate, payload)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first, third)
}

func TestEnqueueUniqueRequiresPlanID(t *testing.T) {
	s := newTestQueue(t)
	_, _, err := s.EnqueueUnique(JobPlanGenerate, Payload{UserID: "alice"})
	assert.Error(t, err)
}

func TestClaimNextLeasesOldestQueuedJob(t *testing.T) {
	s := newTestQueue(t)
	now := time.Now()

	firstID, _, err := s.EnqueueUnique(JobPlanGenerate, Payload{PlanID: "plan-1", UserID: "alice"})
	require.NoError(t, err)
	_, _, err = s.EnqueueUnique(JobPlanGenerate, Payload{PlanID: "plan-2", UserID: "alice"})
	require.NoError(t, err)

	job, err := s.ClaimNext(now.Add(time.Second), "worker-1", 5*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, firstID, job.ID)
	assert.Equal(t, "running", job.Status)
	assert.Equal(t, "worker-1", job.LeaseOwner)
	assert.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.LeaseExpiresAt)

	// The claimed job is invisible to further claims; the second one isn't.
	next, err := s.ClaimNext(now.Add(time.Second), "worker-2", 5*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "plan-2", next.PlanID)

	// An empty queue yields nil without error.
	none, err := s.ClaimNext(now.Add(time.Second), "worker-1", 5*time.Minute)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSucceedAndFailRecordResults(t *testing.T) {
	s := newTestQueue(t)

	jobID, _, err := s.EnqueueUnique(JobPlanGenerate, Payload{PlanID: "plan-1", UserID: "alice"})
	require.NoError(t, err)
	_, err = s.ClaimNext(time.Now().Add(time.Second), "worker-1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.Succeed(jobID, map[string]string{"plan_id": "plan-1"}))
	job, err := s.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", job.Status)
	assert.Contains(t, job.ResultJSON, "plan-1")
	require.NotNil(t, job.FinishedAt)

	failID, _, err := s.EnqueueUnique(JobPlanAdjust, Payload{PlanID: "plan-1", UserID: "alice", Instruction: "x"})
	require.NoError(t, err)
	require.NoError(t, s.Fail(failID, errors.New("model unavailable")))
	failed, err := s.GetJob(failID)
	require.NoError(t, err)
	assert.Equal(t, "failed", failed.Status)
	assert.Contains(t, failed.ResultJSON, "model unavailable")
}

func TestReapExpiredRequeuesThenFails(t *testing.T) {
	s := newTestQueue(t)
	now := time.Now()

	jobID, _, err := s.EnqueueUnique(JobPlanGenerate, Payload{PlanID: "plan-1", UserID: "alice"})
	require.NoError(t, err)

	// Claim with a short lease, then reap well past its expiry.
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		job, err := s.ClaimNext(now.Add(time.Second), "worker-1", time.Millisecond)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, attempt, job.Attempts)

		requeued, failed, err := s.ReapExpired(now.Add(time.Hour))
		require.NoError(t, err)
		if attempt < maxAttempts {
			assert.Equal(t, 1, requeued)
			assert.Equal(t, 0, failed)
		} else {
			assert.Equal(t, 0, requeued)
			assert.Equal(t, 1, failed)
		}
	}

	job, err := s.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, "failed", job.Status)
	assert.Contains(t, job.ResultJSON, "lease expired")
}

func TestReapExpiredLeavesLiveLeasesAlone(t *testing.T) {
	s := newTestQueue(t)
	now := time.Now()

	_, _, err := s.EnqueueUnique(JobPlanGenerate, Payload{PlanID: "plan-1", UserID: "alice"})
	require.NoError(t, err)
	job, err := s.ClaimNext(now.Add(time.Second), "worker-1", time.Hour)
	require.NoError(t, err)
	require.NotNil(t, job)

	requeued, failed, err := s.ReapExpired(now.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, requeued)
	assert.Zero(t, failed)
}

func TestDefaultHandlersRunGeneration(t *testing.T) {
	planStore, err := planstore.Open(filepath.Join(t.TempDir(), "plans.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = planStore.Close() })

	ctx := context.Background()
	plan, err := planStore.CreateShell(ctx, "alice", "learn woodworking", false)
	require.NoError(t, err)

	queue := newTestQueue(t)
	_, _, err = queue.EnqueueUnique(JobPlanGenerate, Payload{PlanID: plan.ID, UserID: "alice"})
	require.NoError(t, err)

	job, err := queue.ClaimNext(time.Now().Add(time.Second), "worker-1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)

	gen := generator.New(planStore, &adapters.MockAdapter{})
	handlers := DefaultHandlers(gen)
	result, err := handlers[JobPlanGenerate](ctx, job)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"plan_id": plan.ID}, result)

	updated, err := planStore.GetPlan(ctx, plan.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, planstore.PlanReady, updated.Status)
}

func TestParsePayloadRejectsIncompleteBody(t *testing.T) {
	_, err := parsePayload(&Job{ID: "j1"})
	assert.Error(t, err)

	_, err = parsePayload(&Job{ID: "j1", PayloadJSON: `{"plan_id":"p"}`})
	assert.Error(t, err)

	payload, err := parsePayload(&Job{ID: "j1", PayloadJSON: `{"plan_id":"p","user_id":"u"}`})
	require.NoError(t, err)
	assert.Equal(t, "p", payload.PlanID)
}
