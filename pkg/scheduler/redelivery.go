package scheduler

import (
	"context"
	"time"

	"github.com/cuemby/dockschedule/pkg/metrics"
	"github.com/cuemby/dockschedule/pkg/storage"
	"github.com/cuemby/dockschedule/pkg/types"
)

const maxResendAttempts = 4

// redeliveryScan resends jobs that look stuck: records still pending
// whose scheduled time is older than the most recently completed job,
// meaning at least one worker has drained the queue since they were
// published and they were never picked up. Resend backs off linearly
// by attempt count and gives up once the next attempt would reach
// maxResendAttempts, so a job is resent at most three times.
func (s *Scheduler) redeliveryScan(ctx context.Context) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RedeliveryScanDuration)

	var completed []types.JobRecord
	if err := s.store.FindAll(ctx, "jobs", storage.Filter{"state": types.JobCompleted}, &completed); err != nil {
		s.logger.Error().Err(err).Msg("redelivery scan: failed to load completed jobs")
		return
	}
	if len(completed) == 0 {
		return
	}

	latest := completed[0].Scheduled
	for _, c := range completed[1:] {
		if c.Scheduled.After(latest) {
			latest = c.Scheduled
		}
	}

	var pending []types.JobRecord
	if err := s.store.FindAll(ctx, "jobs", storage.Filter{"state": types.JobPending}, &pending); err != nil {
		s.logger.Error().Err(err).Msg("redelivery scan: failed to load pending jobs")
		return
	}

	now := time.Now()
	for _, p := range pending {
		if !p.Scheduled.Before(latest) {
			continue
		}

		attempt := p.ResendAttempt + 1
		if attempt >= maxResendAttempts {
			s.logger.Warn().Str("job_id", p.ID).Int("attempt", attempt).Msg("redelivery scan: giving up on stuck job")
			continue
		}
		if !p.Resent.Before(now.Add(-time.Duration(attempt) * time.Minute)) {
			continue
		}

		patch := storage.Patch{"$set": storage.Patch{"resendAttempt": attempt, "resent": now}}
		if err := s.store.UpdateOne(ctx, "jobs", storage.Filter{"id": p.ID}, patch, false); err != nil {
			s.logger.Error().Err(err).Str("job_id", p.ID).Msg("redelivery scan: failed to record resend attempt")
			continue
		}

		select {
		case s.resendCh <- p.ID:
		default:
			s.logger.Warn().Str("job_id", p.ID).Msg("redelivery scan: resend queue full")
		}
	}
}
