package cron

import (
	"testing"
	"time"

	"github.com/cuemby/dockschedule/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateExactlyOneOfIntervalAt(t *testing.T) {
	base := types.CronSpec{ID: "c1", Frequency: types.FrequencySecond}
	assert.Error(t, Validate(base))

	base.Interval = 5
	base.At = ":30"
	assert.Error(t, Validate(base))
}

func TestValidateAtForbiddenWithSecond(t *testing.T) {
	spec := types.CronSpec{ID: "c1", Frequency: types.FrequencySecond, At: ":30"}
	assert.Error(t, Validate(spec))
}

func TestValidateAtGrammar(t *testing.T) {
	cases := []struct {
		name string
		freq types.Frequency
		at   string
		ok   bool
	}{
		{"minute ok", types.FrequencyMinute, ":05", true},
		{"minute bad no colon", types.FrequencyMinute, "05", false},
		{"minute bad too long", types.FrequencyMinute, ":005", false},
		{"hour colon mm", types.FrequencyHour, ":30", true},
		{"hour mm:ss", types.FrequencyHour, "30:15", true},
		{"hour bad shape", types.FrequencyHour, "30", false},
		{"day hh:mm", types.FrequencyDay, "03:15", true},
		{"day hh:mm:ss", types.FrequencyDay, "03:15:45", true},
		{"day bad shape", types.FrequencyDay, "3:15", false},
		{"day hour out of range still admitted", types.FrequencyDay, "25:00", true},
		{"hour minute out of range still admitted", types.FrequencyHour, "99:99", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := types.CronSpec{ID: "c1", Frequency: tc.freq, At: tc.at, Timezone: "UTC"}
			err := Validate(spec)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateUnknownTimezone(t *testing.T) {
	spec := types.CronSpec{ID: "c1", Frequency: types.FrequencySecond, Interval: 1, Timezone: "Nowhere/Imaginary"}
	assert.Error(t, Validate(spec))
}

func TestReloadSkipsInvalidSpecs(t *testing.T) {
	e := NewEvaluator(zerolog.Nop())
	e.Reload([]types.CronSpec{
		{ID: "bad", Frequency: types.FrequencySecond, At: ":30"}, // at forbidden with second
		{ID: "good", Frequency: types.FrequencySecond, Interval: 1},
	})
	require.Equal(t, 1, e.Len())
}

func TestReloadIsIdempotent(t *testing.T) {
	e := NewEvaluator(zerolog.Nop())
	specs := []types.CronSpec{{ID: "c1", Frequency: types.FrequencySecond, Interval: 5}}
	e.Reload(specs)
	first := e.Len()
	e.Reload(specs)
	assert.Equal(t, first, e.Len())
}

func TestTickFiresDueIntervalSpec(t *testing.T) {
	e := NewEvaluator(zerolog.Nop())
	e.Reload([]types.CronSpec{{ID: "c1", Frequency: types.FrequencySecond, Interval: 5}})

	now := time.Now()
	var fired []string
	e.Tick(now, func(spec types.CronSpec) { fired = append(fired, spec.ID) })
	assert.Empty(t, fired, "should not fire immediately after reload")

	e.Tick(now.Add(6*time.Second), func(spec types.CronSpec) { fired = append(fired, spec.ID) })
	assert.Equal(t, []string{"c1"}, fired)
}

func TestTickCoalescesMissedFirings(t *testing.T) {
	e := NewEvaluator(zerolog.Nop())
	e.Reload([]types.CronSpec{{ID: "c1", Frequency: types.FrequencyMinute, Interval: 5}})

	now := time.Now()
	var fireCount int
	// Simulate the process having been down for an hour: a single Tick
	// call long after the last computed fire time must fire exactly once.
	e.Tick(now.Add(time.Hour), func(spec types.CronSpec) { fireCount++ })
	assert.Equal(t, 1, fireCount)
}

func TestTickAtMinuteGrammar(t *testing.T) {
	e := NewEvaluator(zerolog.Nop())
	e.Reload([]types.CronSpec{{ID: "c1", Frequency: types.FrequencyMinute, At: ":30", Timezone: "UTC"}})

	// Reload computes the first fire time from the wall clock; it must
	// land on second 30 of a minute. Ticking at the start of that minute
	// must not fire, ticking at :30 must.
	e.mu.Lock()
	next := e.entries["c1"].next
	e.mu.Unlock()
	require.Equal(t, 30, next.UTC().Second())

	var fired bool
	e.Tick(next.Add(-30*time.Second), func(spec types.CronSpec) { fired = true })
	assert.False(t, fired)

	e.Tick(next, func(spec types.CronSpec) { fired = true })
	assert.True(t, fired)
}

func TestReloadForgetsRemovedSpecs(t *testing.T) {
	e := NewEvaluator(zerolog.Nop())
	e.Reload([]types.CronSpec{{ID: "c1", Frequency: types.FrequencySecond, Interval: 1}})
	require.Equal(t, 1, e.Len())

	e.Reload(nil)
	assert.Equal(t, 0, e.Len())
}

func TestComputeNextDayBoundaryRollsToTomorrow(t *testing.T) {
	spec := types.CronSpec{Frequency: types.FrequencyDay, At: "01:00:00"}
	from := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	next, err := computeNext(spec, from, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC), next)
}

func TestComputeNextDayBoundaryAcceptsOutOfRangeHourAndNormalizes(t *testing.T) {
	// "25:00" passes admission (shape-only grammar) and time.Date rolls
	// the overflow hour into the following day.
	spec := types.CronSpec{Frequency: types.FrequencyDay, At: "25:00"}
	from := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	next, err := computeNext(spec, from, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC), next)
}
