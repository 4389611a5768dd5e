package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/dockschedule/pkg/storage"
	"github.com/cuemby/dockschedule/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) (*Scheduler, storage.Store) {
	t.Helper()
	store := storage.NewFakeStore()
	s := New(Config{}, store, nil, nil, nil)
	return s, store
}

func TestNewAppliesDefaults(t *testing.T) {
	s, _ := newTestScheduler(t)
	assert.Equal(t, 3, s.cfg.PublisherPoolSize)
	assert.Equal(t, time.Second, s.cfg.TickInterval)
	assert.Equal(t, 60, s.cfg.RedeliveryScanEvery)
}

func TestOnFireEnqueuesJobRecordFromSpec(t *testing.T) {
	s, _ := newTestScheduler(t)

	spec := types.CronSpec{
		ID:        "cron-1",
		Name:      "nightly-backup",
		Kind:      types.KindShell,
		RunTarget: "backup.sh",
		Args:      []string{"--full"},
	}
	s.onFire(spec)

	select {
	case record := <-s.publishCh:
		assert.Equal(t, "cron-1", record.CronID)
		assert.Equal(t, "nightly-backup", record.Name)
		assert.Equal(t, types.KindShell, record.Kind)
		assert.Equal(t, "backup.sh", record.RunTarget)
	default:
		t.Fatal("expected a job record on publishCh")
	}
}

func TestOnFireDropsFireWhenQueueFull(t *testing.T) {
	s, _ := newTestScheduler(t)
	s.publishCh = make(chan types.JobRecord) // unbuffered, nothing draining it

	s.onFire(types.CronSpec{ID: "cron-1"})
	// must not block; nothing to assert beyond returning promptly
}

func TestLoadEnabledCronSpecsFiltersDisabled(t *testing.T) {
	s, store := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, store.InsertOne(ctx, "crons", &types.CronSpec{ID: "a", Disabled: false}))
	require.NoError(t, store.InsertOne(ctx, "crons", &types.CronSpec{ID: "b", Disabled: true}))

	specs, err := s.loadEnabledCronSpecs(ctx)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "a", specs[0].ID)
}

func TestStopBeforeStartIsSafe(t *testing.T) {
	s, _ := newTestScheduler(t)
	s.Stop(context.Background())
}

func TestShortIDIsEightCharacters(t *testing.T) {
	assert.Len(t, shortID(), 8)
}

func TestStartAndStopDrivesTickLoopWithoutControlAPIOrBroker(t *testing.T) {
	s, store := newTestScheduler(t)
	s.cfg.PublisherPoolSize = 0 // no publisher pool members to start: no broker dependency
	s.cfg.TickInterval = 10 * time.Millisecond

	ctx := context.Background()
	require.NoError(t, store.InsertOne(ctx, "crons", &types.CronSpec{
		ID:        "cron-1",
		Frequency: types.FrequencySecond,
		Interval:  1,
	}))

	require.NoError(t, s.Start(ctx))
	// An Interval-1 second spec first fires one second after Reload.
	time.Sleep(1500 * time.Millisecond)

	select {
	case record := <-s.publishCh:
		assert.Equal(t, "cron-1", record.CronID)
	default:
		t.Fatal("expected the tick loop to have fired the loaded cron spec")
	}

	s.Stop(context.Background())
}
