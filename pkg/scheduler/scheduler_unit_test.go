package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cuemby/dockschedule/pkg/controlapi"
	"github.com/cuemby/dockschedule/pkg/storage"
	"github.com/cuemby/dockschedule/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleRunJobMessageEnqueuesRecord(t *testing.T) {
	s, _ := newTestScheduler(t)

	body, err := json.Marshal(controlapi.RunJobRequest{
		Name:      "manual-run",
		Kind:      "shell",
		RunTarget: "deploy.sh",
		Args:      []string{"--env", "prod"},
	})
	require.NoError(t, err)

	s.handleRunJobMessage(body)

	select {
	case record := <-s.publishCh:
		assert.Equal(t, "manual-run", record.Name)
		assert.Equal(t, types.KindShell, record.Kind)
		assert.Equal(t, "deploy.sh", record.RunTarget)
	default:
		t.Fatal("expected a job record on publishCh")
	}
}

func TestHandleRunJobMessageDropsMalformedPayload(t *testing.T) {
	s, _ := newTestScheduler(t)
	s.handleRunJobMessage([]byte("not json"))

	select {
	case <-s.publishCh:
		t.Fatal("malformed payload should not enqueue anything")
	default:
	}
}

func TestDrainControlMessagesRunsJobAndReloadsOnUpdate(t *testing.T) {
	s, store := newTestScheduler(t)
	messages := make(chan controlapi.Message, 8)

	ctx := context.Background()
	require.NoError(t, store.InsertOne(ctx, "crons", &types.CronSpec{
		ID:        "a",
		Frequency: types.FrequencySecond,
		Interval:  1,
		Disabled:  false,
	}))

	body, err := json.Marshal(controlapi.RunJobRequest{Kind: "shell", RunTarget: "x.sh"})
	require.NoError(t, err)
	messages <- controlapi.Message{Kind: controlapi.KindRunJob, Payload: body}
	messages <- controlapi.Message{Kind: controlapi.KindJobUpdate}

	s.drainFrom(ctx, messages)

	select {
	case <-s.publishCh:
	default:
		t.Fatal("expected the run-job message to enqueue a publish")
	}
	assert.Equal(t, 1, s.evaluator.Len())
}

func TestDrainControlMessagesNoOpWhenControlAPINil(t *testing.T) {
	s, _ := newTestScheduler(t)
	s.drainControlMessages(context.Background()) // must not panic
}

func TestRedeliveryScanResendsStalePendingJob(t *testing.T) {
	s, store := newTestScheduler(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.InsertOne(ctx, "jobs", &types.JobRecord{
		ID:        "done-1",
		State:     types.JobCompleted,
		Scheduled: now,
	}))
	require.NoError(t, store.InsertOne(ctx, "jobs", &types.JobRecord{
		ID:            "stuck-1",
		State:         types.JobPending,
		Scheduled:     now.Add(-time.Hour),
		ResendAttempt: 0,
		Resent:        now.Add(-time.Hour),
	}))

	s.redeliveryScan(ctx)

	select {
	case id := <-s.resendCh:
		assert.Equal(t, "stuck-1", id)
	default:
		t.Fatal("expected the stuck pending job to be resent")
	}

	var updated []types.JobRecord
	require.NoError(t, store.FindAll(ctx, "jobs", storage.Filter{"id": "stuck-1"}, &updated))
	require.Len(t, updated, 1)
	assert.Equal(t, 1, updated[0].ResendAttempt)
}

func TestRedeliveryScanSkipsJobsNotYetDueForRetry(t *testing.T) {
	s, store := newTestScheduler(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.InsertOne(ctx, "jobs", &types.JobRecord{
		ID:        "done-1",
		State:     types.JobCompleted,
		Scheduled: now,
	}))
	require.NoError(t, store.InsertOne(ctx, "jobs", &types.JobRecord{
		ID:            "recent-1",
		State:         types.JobPending,
		Scheduled:     now.Add(-time.Hour),
		ResendAttempt: 0,
		Resent:        now, // resent just now, not yet due for another attempt
	}))

	s.redeliveryScan(ctx)

	select {
	case id := <-s.resendCh:
		t.Fatalf("did not expect a resend, got %s", id)
	default:
	}
}

func TestRedeliveryScanGivesUpAfterMaxAttempts(t *testing.T) {
	s, store := newTestScheduler(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.InsertOne(ctx, "jobs", &types.JobRecord{
		ID:        "done-1",
		State:     types.JobCompleted,
		Scheduled: now,
	}))
	require.NoError(t, store.InsertOne(ctx, "jobs", &types.JobRecord{
		ID:            "exhausted-1",
		State:         types.JobPending,
		Scheduled:     now.Add(-time.Hour),
		ResendAttempt: maxResendAttempts,
		Resent:        now.Add(-time.Hour),
	}))

	s.redeliveryScan(ctx)

	select {
	case id := <-s.resendCh:
		t.Fatalf("did not expect a resend past the attempt ceiling, got %s", id)
	default:
	}
}

func TestRedeliveryScanNoOpWithoutCompletedJobs(t *testing.T) {
	s, store := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, store.InsertOne(ctx, "jobs", &types.JobRecord{
		ID:        "pending-1",
		State:     types.JobPending,
		Scheduled: time.Now().Add(-time.Hour),
	}))

	s.redeliveryScan(ctx) // nothing completed yet, nothing to compare against

	select {
	case id := <-s.resendCh:
		t.Fatalf("did not expect a resend, got %s", id)
	default:
	}
}
