package cron

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/dockschedule/pkg/types"
	"github.com/rs/zerolog"
)

// FireFunc is invoked once per due spec, in spec ID order, on whatever
// goroutine calls Tick. It must not block for long; hand off real work
// through the publisher pool instead.
type FireFunc func(spec types.CronSpec)

type entry struct {
	spec types.CronSpec
	loc  *time.Location
	next time.Time
}

// Evaluator computes fire times for a set of enabled CronSpecs. It owns
// no goroutines and no timers; Tick must be called at least once a
// second by the owner.
type Evaluator struct {
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// NewEvaluator returns an Evaluator with no installed specs.
func NewEvaluator(logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		logger:  logger.With().Str("component", "cron").Logger(),
		entries: make(map[string]*entry),
	}
}

// Reload atomically replaces the active schedule with specs. Specs
// that fail validation are skipped with a logged warning rather than
// aborting the whole reload; next-fire times are computed fresh from
// now, so pending fire times for removed or replaced specs are
// forgotten. In-flight jobs already dispatched are unaffected.
func (e *Evaluator) Reload(specs []types.CronSpec) {
	now := time.Now()
	next := make(map[string]*entry, len(specs))

	for _, s := range specs {
		if s.Disabled {
			continue
		}
		if err := Validate(s); err != nil {
			e.logger.Warn().Str("cron_id", s.ID).Err(err).Msg("skipping invalid cron spec on reload")
			continue
		}

		loc, err := loadLocation(s.Timezone)
		if err != nil {
			e.logger.Warn().Str("cron_id", s.ID).Err(err).Msg("skipping cron spec with unknown timezone")
			continue
		}

		nt, err := computeNext(s, now, loc)
		if err != nil {
			e.logger.Warn().Str("cron_id", s.ID).Err(err).Msg("skipping cron spec, cannot compute next fire time")
			continue
		}

		next[s.ID] = &entry{spec: s, loc: loc, next: nt}
	}

	e.mu.Lock()
	e.entries = next
	e.mu.Unlock()
}

// Tick advances the evaluator to now and fires every spec whose next
// fire time is not after now. Each due spec's next fire time is
// recomputed from now itself, so a window missed entirely (e.g. the
// process was down) produces exactly one firing on return, never a
// backlog of catch-up firings.
func (e *Evaluator) Tick(now time.Time, fire FireFunc) {
	e.mu.Lock()
	var due []*entry
	for _, en := range e.entries {
		if !en.next.After(now) {
			due = append(due, en)
		}
	}
	for _, en := range due {
		if nt, err := computeNext(en.spec, now, en.loc); err == nil {
			en.next = nt
		} else {
			en.next = now.Add(time.Second)
		}
	}
	e.mu.Unlock()

	if len(due) == 0 {
		return
	}

	sort.Slice(due, func(i, j int) bool { return due[i].spec.ID < due[j].spec.ID })
	for _, en := range due {
		fire(en.spec)
	}
}

// Len reports the number of enabled specs currently installed.
func (e *Evaluator) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

func loadLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}

func computeNext(spec types.CronSpec, from time.Time, loc *time.Location) (time.Time, error) {
	switch spec.Frequency {
	case types.FrequencySecond:
		n := spec.Interval
		if n <= 0 {
			n = 1
		}
		return from.Add(time.Duration(n) * time.Second), nil

	case types.FrequencyMinute:
		if spec.At != "" {
			sec, err := parseAtMinute(spec.At)
			if err != nil {
				return time.Time{}, err
			}
			return nextMinuteBoundary(from, loc, sec), nil
		}
		n := spec.Interval
		if n <= 0 {
			n = 1
		}
		return from.Add(time.Duration(n) * time.Minute), nil

	case types.FrequencyHour:
		if spec.At != "" {
			min, sec, err := parseAtHour(spec.At)
			if err != nil {
				return time.Time{}, err
			}
			return nextHourBoundary(from, loc, min, sec), nil
		}
		n := spec.Interval
		if n <= 0 {
			n = 1
		}
		return from.Add(time.Duration(n) * time.Hour), nil

	case types.FrequencyDay:
		if spec.At != "" {
			hh, mm, ss, err := parseAtDay(spec.At)
			if err != nil {
				return time.Time{}, err
			}
			return nextDayBoundary(from, loc, hh, mm, ss), nil
		}
		n := spec.Interval
		if n <= 0 {
			n = 1
		}
		return from.AddDate(0, 0, n), nil

	default:
		return time.Time{}, fmt.Errorf("cron: unknown frequency %q", spec.Frequency)
	}
}

func nextMinuteBoundary(from time.Time, loc *time.Location, sec int) time.Time {
	lt := from.In(loc)
	candidate := time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), lt.Minute(), sec, 0, loc)
	if !candidate.After(from) {
		candidate = candidate.Add(time.Minute)
	}
	return candidate
}

func nextHourBoundary(from time.Time, loc *time.Location, min, sec int) time.Time {
	lt := from.In(loc)
	candidate := time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), min, sec, 0, loc)
	if !candidate.After(from) {
		candidate = candidate.Add(time.Hour)
	}
	return candidate
}

func nextDayBoundary(from time.Time, loc *time.Location, hh, mm, ss int) time.Time {
	lt := from.In(loc)
	candidate := time.Date(lt.Year(), lt.Month(), lt.Day(), hh, mm, ss, 0, loc)
	if !candidate.After(from) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// parseAtMinute parses the ":SS" grammar required for frequency=minute.
// Admission only checks shape (two digits after the colon), not range:
// a value like ":99" is accepted here and normalized by time.Date when
// the next boundary is computed.
func parseAtMinute(at string) (int, error) {
	if len(at) != 3 || at[0] != ':' {
		return 0, fmt.Errorf("cron: minute 'at' must be \":SS\", got %q", at)
	}
	sec, err := strconv.Atoi(at[1:])
	if err != nil || sec < 0 {
		return 0, fmt.Errorf("cron: invalid seconds in %q", at)
	}
	return sec, nil
}

// parseAtHour parses the ":MM" or "MM:SS" grammar required for
// frequency=hour. Admission only checks shape, not range: "99:99" is
// accepted here and normalized by time.Date when the next boundary is
// computed.
func parseAtHour(at string) (minute, second int, err error) {
	switch len(at) {
	case 3:
		if at[0] != ':' {
			return 0, 0, fmt.Errorf("cron: hour 'at' of length 3 must be \":MM\", got %q", at)
		}
		minute, err = strconv.Atoi(at[1:])
		if err != nil {
			return 0, 0, fmt.Errorf("cron: invalid minutes in %q", at)
		}
		second = 0
	case 5:
		parts := strings.Split(at, ":")
		if len(parts) != 2 || at[2] != ':' {
			return 0, 0, fmt.Errorf("cron: hour 'at' of length 5 must be \"MM:SS\", got %q", at)
		}
		minute, err = strconv.Atoi(parts[0])
		if err != nil {
			return 0, 0, fmt.Errorf("cron: invalid minutes in %q", at)
		}
		second, err = strconv.Atoi(parts[1])
		if err != nil {
			return 0, 0, fmt.Errorf("cron: invalid seconds in %q", at)
		}
	default:
		return 0, 0, fmt.Errorf("cron: hour 'at' must be \":MM\" or \"MM:SS\", got %q", at)
	}
	if minute < 0 || second < 0 {
		return 0, 0, fmt.Errorf("cron: minute/second must not be negative in %q", at)
	}
	return minute, second, nil
}

// parseAtDay parses the "HH:MM" or "HH:MM:SS" grammar required for
// frequency=day. Admission only checks shape (fixed digit counts), not
// range: "25:00" is accepted here — time.Date normalizes an hour past
// 23 by rolling into the following day when the next boundary is
// computed.
func parseAtDay(at string) (hour, minute, second int, err error) {
	parts := strings.Split(at, ":")
	switch len(parts) {
	case 2:
		if len(at) != 5 || at[2] != ':' {
			return 0, 0, 0, fmt.Errorf("cron: day 'at' of shape HH:MM must be 5 chars, got %q", at)
		}
	case 3:
		if len(at) != 8 || at[2] != ':' || at[5] != ':' {
			return 0, 0, 0, fmt.Errorf("cron: day 'at' of shape HH:MM:SS must be 8 chars, got %q", at)
		}
	default:
		return 0, 0, 0, fmt.Errorf("cron: day 'at' must be \"HH:MM\" or \"HH:MM:SS\", got %q", at)
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("cron: invalid hour in %q", at)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("cron: invalid minute in %q", at)
	}
	if len(parts) == 3 {
		second, err = strconv.Atoi(parts[2])
		if err != nil {
			return 0, 0, 0, fmt.Errorf("cron: invalid second in %q", at)
		}
	}
	if hour < 0 || minute < 0 || second < 0 {
		return 0, 0, 0, fmt.Errorf("cron: hour/minute/second must not be negative in %q", at)
	}
	return hour, minute, second, nil
}

// Validate checks a CronSpec's scheduling fields against the grammar
// and invariants required at admission: exactly one of interval/at,
// "at" forbidden with frequency=second, "at" shape matching its
// frequency, and a resolvable timezone. It does not check RunTarget,
// Kind, or other non-scheduling fields. Grammar is shape-only: values
// out of their normal range ("25:00", ":99") pass admission and are
// resolved by time.Date's own overflow normalization when the next
// fire time is computed.
func Validate(spec types.CronSpec) error {
	hasInterval := spec.Interval > 0
	hasAt := spec.At != ""

	if hasInterval == hasAt {
		return fmt.Errorf("cron: exactly one of interval or at must be set")
	}

	if spec.Frequency == types.FrequencySecond && hasAt {
		return fmt.Errorf("cron: at is forbidden with frequency=second")
	}

	if hasAt {
		switch spec.Frequency {
		case types.FrequencyMinute:
			if _, err := parseAtMinute(spec.At); err != nil {
				return err
			}
		case types.FrequencyHour:
			if _, _, err := parseAtHour(spec.At); err != nil {
				return err
			}
		case types.FrequencyDay:
			if _, _, _, err := parseAtDay(spec.At); err != nil {
				return err
			}
		}
	}

	switch spec.Frequency {
	case types.FrequencySecond, types.FrequencyMinute, types.FrequencyHour, types.FrequencyDay:
	default:
		return fmt.Errorf("cron: unknown frequency %q", spec.Frequency)
	}

	if _, err := loadLocation(spec.Timezone); err != nil {
		return fmt.Errorf("cron: unknown timezone %q: %w", spec.Timezone, err)
	}

	return nil
}
