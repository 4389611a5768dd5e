package scheduler

import (
	"context"
	"encoding/json"

	"github.com/cuemby/dockschedule/pkg/controlapi"
	"github.com/cuemby/dockschedule/pkg/types"
)

// drainControlMessages empties the Control API's message channel.
// run_job messages enqueue an immediate publish; if at least one
// job_update message was seen, cron specs are reloaded once after the
// drain completes rather than once per message.
func (s *Scheduler) drainControlMessages(ctx context.Context) {
	if s.controlAPI == nil {
		return
	}
	s.drainFrom(ctx, s.controlAPI.Messages())
}

// drainFrom is the drain loop split out from drainControlMessages so
// tests can feed it a channel without a live Control API server.
func (s *Scheduler) drainFrom(ctx context.Context, messages <-chan controlapi.Message) {
	sawJobUpdate := false

	for {
		select {
		case msg := <-messages:
			switch msg.Kind {
			case controlapi.KindRunJob:
				s.handleRunJobMessage(msg.Payload)
			case controlapi.KindJobUpdate:
				sawJobUpdate = true
			}
		default:
			if sawJobUpdate {
				s.reloadCronSpecs(ctx)
			}
			return
		}
	}
}

func (s *Scheduler) handleRunJobMessage(payload []byte) {
	var req controlapi.RunJobRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.logger.Error().Err(err).Msg("dropping malformed run-job message")
		return
	}

	record := types.JobRecord{
		Name:          req.Name,
		Kind:          types.JobKind(req.Kind),
		RunTarget:     req.RunTarget,
		Args:          req.Args,
		HostInventory: types.InventoryBinding(req.HostInventory),
		ExtraVars:     req.ExtraVars,
	}

	select {
	case s.publishCh <- record:
	default:
		s.logger.Warn().Str("name", req.Name).Msg("publish queue full, dropping ad-hoc run-job")
	}
}

func (s *Scheduler) reloadCronSpecs(ctx context.Context) {
	specs, err := s.loadEnabledCronSpecs(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to reload cron specs")
		return
	}
	s.evaluator.Reload(specs)
}
