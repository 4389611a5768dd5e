package scheduler

import (
	"context"
	"time"

	"github.com/cuemby/dockschedule/pkg/broker"
	"github.com/cuemby/dockschedule/pkg/metrics"
	"github.com/cuemby/dockschedule/pkg/storage"
	"github.com/cuemby/dockschedule/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// publisherMember is one publisher pool worker: its own store
// connection, its own broker client, keyed by a short random id.
type publisherMember struct {
	id     string
	store  storage.Store
	broker *broker.Client
	logger zerolog.Logger
}

func (s *Scheduler) runPublisher(m *publisherMember) {
	defer s.wg.Done()
	defer m.broker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case record := <-s.publishCh:
			s.publish(context.Background(), m, record)
		case id := <-s.resendCh:
			if !m.broker.Send(context.Background(), []byte(id), id) {
				m.logger.Warn().Str("job_id", id).Msg("redelivery resend publish failed")
			}
		}
	}
}

// publish is the publish path: assign an id, populate the pending
// defaults, insert the record, and send its id to the broker.
// Publisher-confirm failure is logged but not fatal; the record stays
// pending and the redelivery scan will pick it up.
func (s *Scheduler) publish(ctx context.Context, m *publisherMember, record types.JobRecord) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PublishDuration)

	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	now := time.Now()
	record.Scheduled = now
	record.ExpiryTime = now.AddDate(0, 0, 7)
	record.State = types.JobPending
	record.Result = nil
	if record.Errors == nil {
		record.Errors = []string{}
	}
	if record.Tasks == nil {
		record.Tasks = []types.TaskOutcome{}
	}
	record.ResendAttempt = 0
	record.Resent = now

	if err := m.store.InsertOne(ctx, "jobs", &record); err != nil {
		m.logger.Error().Err(err).Str("job_id", record.ID).Msg("failed to insert job record")
		return
	}

	if record.CronID != "" {
		lastFired := storage.Patch{"$set": storage.Patch{"lastFired": now}}
		if err := m.store.UpdateOne(ctx, "crons", storage.Filter{"id": record.CronID}, lastFired, false); err != nil {
			m.logger.Warn().Err(err).Str("cron_id", record.CronID).Msg("failed to record cron last-fired time")
		}
	}

	if !m.broker.Send(ctx, []byte(record.ID), record.ID) {
		m.logger.Warn().Str("job_id", record.ID).Msg("publish confirm failed, relying on redelivery scan")
	}
}
