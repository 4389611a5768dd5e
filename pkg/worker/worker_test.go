package worker

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cuemby/dockschedule/pkg/config"
	"github.com/cuemby/dockschedule/pkg/runner"
	"github.com/cuemby/dockschedule/pkg/storage"
	"github.com/cuemby/dockschedule/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMember(t *testing.T, store storage.Store, r runner.Runner) *member {
	t.Helper()
	return &member{
		id:     "test0001",
		store:  store,
		runner: r,
		logger: zerolog.Nop(),
		playbooks: config.PlaybookConfig{
			PlaybookRoot: "/playbooks",
			ScriptRoot:   "/scripts",
			ScratchRoot:  "/scratch",
		},
	}
}

func TestInferKindPrefersExplicitKind(t *testing.T) {
	assert.Equal(t, types.KindShell, inferKind(types.KindShell, "whatever.py"))
}

func TestInferKindFromSuffix(t *testing.T) {
	cases := map[string]types.JobKind{
		"a.py":   types.KindPython,
		"a.sh":   types.KindShell,
		"a.php":  types.KindPHP,
		"a.js":   types.KindNode,
		"a.yml":  types.KindOrch,
		"a.yaml": types.KindOrch,
	}
	for target, want := range cases {
		assert.Equal(t, want, inferKind("", target), target)
	}
}

func TestInferKindUnknownSuffixLeavesKindUnchanged(t *testing.T) {
	assert.Equal(t, types.JobKind(""), inferKind("", "a.exe"))
}

func TestSelectPlaybookOrchUsesRunTargetDirectly(t *testing.T) {
	m := newTestMember(t, nil, nil)
	playbook, extraVars := m.selectPlaybook(types.KindOrch, "noop.yml", nil)
	assert.Equal(t, filepath.Join("/playbooks", "noop.yml"), playbook)
	assert.Empty(t, extraVars)
}

func TestSelectPlaybookGenericKindUsesScriptRunner(t *testing.T) {
	m := newTestMember(t, nil, nil)
	playbook, extraVars := m.selectPlaybook(types.KindShell, "backup.sh", []string{"--full"})
	assert.Equal(t, filepath.Join("/playbooks", "run_job_script.yml"), playbook)
	assert.Equal(t, "backup.sh", extraVars["script_file"])
	assert.Equal(t, "shell", extraVars["script_type"])
	assert.Equal(t, []string{"--full"}, extraVars["script_args"])
}

func TestHandleDeliveryTombstonesMissingJob(t *testing.T) {
	store := storage.NewFakeStore()
	m := newTestMember(t, store, runner.NewFakeRunner())

	acked := false
	m.handleDelivery("missing-job", func() error { acked = true; return nil }, func(bool) error { return nil })
	assert.True(t, acked)
}

func TestHandleDeliverySuppressesDuplicate(t *testing.T) {
	store := storage.NewFakeStore()
	require.NoError(t, store.InsertOne(context.Background(), "jobs", &types.JobRecord{
		ID:    "j1",
		State: types.JobRunning,
	}))
	m := newTestMember(t, store, runner.NewFakeRunner())

	acked := false
	m.handleDelivery("j1", func() error { acked = true; return nil }, func(bool) error { return nil })
	assert.True(t, acked)

	var records []types.JobRecord
	require.NoError(t, store.FindAll(context.Background(), "jobs", storage.Filter{"id": "j1"}, &records))
	require.Len(t, records, 1)
	assert.Equal(t, types.JobRunning, records[0].State) // unchanged
}

func TestHandleDeliveryRunsPendingJobToCompletion(t *testing.T) {
	store := storage.NewFakeStore()
	ctx := context.Background()
	require.NoError(t, store.InsertOne(ctx, "jobs", &types.JobRecord{
		ID:        "j1",
		Kind:      types.KindShell,
		RunTarget: "backup.sh",
		State:     types.JobPending,
	}))

	fr := runner.NewFakeRunner()
	expectedPlaybook := filepath.Join("/playbooks", "run_job_script.yml")
	fr.Script[expectedPlaybook] = runner.Result{RC: 0, Tasks: []types.TaskOutcome{{Task: "run", Host: "localhost", RC: 0}}}

	m := newTestMember(t, store, fr)

	acked := false
	m.handleDelivery("j1", func() error { acked = true; return nil }, func(bool) error { return nil })
	assert.True(t, acked)

	var records []types.JobRecord
	require.NoError(t, store.FindAll(ctx, "jobs", storage.Filter{"id": "j1"}, &records))
	require.Len(t, records, 1)
	record := records[0]
	assert.Equal(t, types.JobCompleted, record.State)
	require.NotNil(t, record.Result)
	assert.True(t, *record.Result)
	require.Len(t, record.Tasks, 1)
	assert.Equal(t, "test0001", record.WorkerID)
	assert.False(t, record.Start.IsZero())
	assert.False(t, record.End.IsZero())
}

func TestHandleDeliveryRecordsExecutionFailure(t *testing.T) {
	store := storage.NewFakeStore()
	ctx := context.Background()
	require.NoError(t, store.InsertOne(ctx, "jobs", &types.JobRecord{
		ID:        "j1",
		Kind:      types.KindShell,
		RunTarget: "backup.sh",
		State:     types.JobPending,
	}))

	fr := runner.NewFakeRunner()
	expectedPlaybook := filepath.Join("/playbooks", "run_job_script.yml")
	fr.Script[expectedPlaybook] = runner.Result{RC: 1, Errors: []string{"task failed"}}

	m := newTestMember(t, store, fr)
	m.handleDelivery("j1", func() error { return nil }, func(bool) error { return nil })

	var records []types.JobRecord
	require.NoError(t, store.FindAll(ctx, "jobs", storage.Filter{"id": "j1"}, &records))
	require.Len(t, records, 1)
	record := records[0]
	assert.Equal(t, types.JobCompleted, record.State)
	require.NotNil(t, record.Result)
	assert.False(t, *record.Result)
	assert.Contains(t, record.Errors, "task failed")
}
