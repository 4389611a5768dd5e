package worker

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/dockschedule/pkg/broker"
	"github.com/cuemby/dockschedule/pkg/config"
	"github.com/cuemby/dockschedule/pkg/log"
	"github.com/cuemby/dockschedule/pkg/metrics"
	"github.com/cuemby/dockschedule/pkg/runner"
	"github.com/cuemby/dockschedule/pkg/storage"
	"github.com/cuemby/dockschedule/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config tunes the worker pool size.
type Config struct {
	PoolSize int
}

// StoreFactory builds a Store connection for one pool member, keyed by
// its short client id.
type StoreFactory func(clientID string) storage.Store

// BrokerFactory builds a Broker Client for one pool member, keyed by
// its short client id. The returned client must not yet be started.
type BrokerFactory func(clientID string) *broker.Client

// Pool is the C6 worker service: W independent threads, each owning
// its own store connection and broker client.
type Pool struct {
	cfg Config

	storeFactory  StoreFactory
	brokerFactory BrokerFactory
	runner        runner.Runner
	playbooks     config.PlaybookConfig

	mu      sync.Mutex
	members []*member
}

// New builds a Pool. Start spawns cfg.PoolSize members (default 3).
func New(cfg Config, storeFactory StoreFactory, brokerFactory BrokerFactory, r runner.Runner, playbooks config.PlaybookConfig) *Pool {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 3
	}
	return &Pool{
		cfg:           cfg,
		storeFactory:  storeFactory,
		brokerFactory: brokerFactory,
		runner:        r,
		playbooks:     playbooks,
	}
}

// member is one worker thread: its own store connection, its own
// broker client, keyed by a short random id.
type member struct {
	id        string
	store     storage.Store
	broker    *broker.Client
	runner    runner.Runner
	playbooks config.PlaybookConfig
	logger    zerolog.Logger
}

// Start spawns the pool. Each member opens its own store and broker
// connection, declares the shared queue (idempotent), and registers
// its delivery handler.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < p.cfg.PoolSize; i++ {
		id := shortID()
		m := &member{
			id:        id,
			store:     p.storeFactory(id),
			broker:    p.brokerFactory(id),
			runner:    p.runner,
			playbooks: p.playbooks,
			logger:    log.WithClientID(id),
		}

		if err := m.broker.Start(ctx); err != nil {
			return err
		}
		if err := m.broker.Consume(m.handleDelivery); err != nil {
			return err
		}

		p.members = append(p.members, m)
	}

	return nil
}

// Stop signals every member to stop consuming. In-flight job
// executions are not cancelled; each member's broker client joins
// once its current delivery handler returns.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, m := range p.members {
		m.broker.Stop()
	}
}

// handleDelivery is the broker.MessageHandler for one member. It runs
// synchronously to completion, including the job itself, before
// acking — the broker's own connection loop will not dispatch another
// delivery to this member until this call returns.
func (m *member) handleDelivery(jobID string, ack func() error, nack func(requeue bool) error) {
	ctx := context.Background()
	logger := m.logger.With().Str("job_id", jobID).Logger()

	var stateCheck types.JobRecord
	err := m.store.FindOne(ctx, "jobs", storage.Filter{"id": jobID}, storage.Projection{"state": 1}, &stateCheck)
	switch {
	case errors.Is(err, storage.ErrUnavailable):
		logger.Warn().Msg("store unavailable, requeueing delivery")
		_ = nack(true)
		return
	case err != nil:
		logger.Warn().Err(err).Msg("job record missing, dropping delivery")
		_ = ack()
		return
	}

	if stateCheck.State != types.JobPending {
		logger.Info().Str("state", string(stateCheck.State)).Msg("duplicate delivery, already handled")
		_ = ack()
		return
	}

	var record types.JobRecord
	if err := m.store.FindOne(ctx, "jobs", storage.Filter{"id": jobID}, nil, &record); err != nil {
		logger.Warn().Err(err).Msg("failed to load job record, requeueing")
		_ = nack(true)
		return
	}

	now := time.Now()
	record.State = types.JobRunning
	record.Start = now
	record.WorkerID = m.id

	runningPatch := storage.Patch{"$set": storage.Patch{
		"state":    types.JobRunning,
		"start":    now,
		"workerId": m.id,
	}}
	if err := m.store.UpdateOne(ctx, "jobs", storage.Filter{"id": jobID}, runningPatch, false); err != nil {
		logger.Error().Err(err).Msg("failed to persist running transition, requeueing")
		_ = nack(true)
		return
	}

	m.execute(ctx, &record)

	finalPatch := storage.Patch{"$set": storage.Patch{
		"state":      record.State,
		"end":        record.End,
		"result":     record.Result,
		"errors":     record.Errors,
		"tasks":      record.Tasks,
		"durationMs": record.DurationMs,
	}}
	if err := m.store.UpdateOne(ctx, "jobs", storage.Filter{"id": jobID}, finalPatch, false); err != nil {
		logger.Error().Err(err).Msg("failed to persist completed job record")
	}

	_ = ack()
}

// execute runs one job via the runner and fills in record's terminal
// fields. It never returns an error: a runner failure is recorded on
// the JobRecord itself (ExecutionFailure, not retried here).
func (m *member) execute(ctx context.Context, record *types.JobRecord) {
	kind := inferKind(record.Kind, record.RunTarget)
	playbook, extraVars := m.selectPlaybook(kind, record.RunTarget, record.Args)
	for k, v := range record.ExtraVars {
		extraVars[k] = v
	}

	req := runner.Request{
		Playbook:   playbook,
		Inventory:  record.HostInventory,
		ScratchDir: filepath.Join(m.playbooks.ScratchRoot, record.ID),
		ExtraVars:  extraVars,
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.JobExecutionDuration, string(kind))

	result, err := m.runner.Run(ctx, req)

	now := time.Now()
	record.End = now
	record.DurationMs = now.Sub(record.Start).Milliseconds()
	record.State = types.JobCompleted

	if err != nil {
		failed := false
		record.Result = &failed
		record.Errors = append(record.Errors, err.Error())
		return
	}

	record.Tasks = append(record.Tasks, result.Tasks...)
	record.Errors = append(record.Errors, result.Errors...)
	ok := result.RC == 0
	record.Result = &ok
}

// selectPlaybook implements the kind/orch branch spec.md §4.6
// describes: an orchestration job runs its own named playbook; every
// other kind runs the generic script-runner playbook parameterized by
// extraVars.
func (m *member) selectPlaybook(kind types.JobKind, runTarget string, args []string) (string, map[string]any) {
	if kind == types.KindOrch {
		return filepath.Join(m.playbooks.PlaybookRoot, runTarget), map[string]any{}
	}

	return filepath.Join(m.playbooks.PlaybookRoot, "run_job_script.yml"), map[string]any{
		"script_root": m.playbooks.ScriptRoot,
		"script_file": runTarget,
		"script_type": string(kind),
		"script_args": args,
	}
}

// inferKind returns kind as-is if it is one of the five known kinds;
// otherwise it infers one from runTarget's suffix. An unresolvable
// suffix leaves kind unchanged, which selectPlaybook then treats as a
// generic script kind.
func inferKind(kind types.JobKind, runTarget string) types.JobKind {
	switch kind {
	case types.KindPython, types.KindShell, types.KindOrch, types.KindPHP, types.KindNode:
		return kind
	}

	switch strings.ToLower(filepath.Ext(runTarget)) {
	case ".py":
		return types.KindPython
	case ".sh":
		return types.KindShell
	case ".php":
		return types.KindPHP
	case ".js":
		return types.KindNode
	case ".yml", ".yaml":
		return types.KindOrch
	default:
		return kind
	}
}

func shortID() string {
	return uuid.New().String()[:8]
}
