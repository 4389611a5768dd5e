package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/dockschedule/pkg/broker"
	"github.com/cuemby/dockschedule/pkg/controlapi"
	"github.com/cuemby/dockschedule/pkg/cron"
	"github.com/cuemby/dockschedule/pkg/log"
	"github.com/cuemby/dockschedule/pkg/storage"
	"github.com/cuemby/dockschedule/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config tunes the tick cadence and publisher pool size; it mirrors
// config.SchedulerConfig without importing the config package
// directly, so callers can wire defaults without pulling in YAML.
type Config struct {
	PublisherPoolSize   int
	TickInterval        time.Duration
	RedeliveryScanEvery int
}

// StoreFactory builds a Store connection for one publisher pool
// member, keyed by its short client id.
type StoreFactory func(clientID string) storage.Store

// BrokerFactory builds a Broker Client for one publisher pool member,
// keyed by its short client id. The returned client must not yet be
// started; the Scheduler calls Start.
type BrokerFactory func(clientID string) *broker.Client

// Scheduler is the C5 service. It is constructed once per process;
// New does not start anything.
type Scheduler struct {
	cfg Config

	store      storage.Store
	controlAPI *controlapi.Server
	evaluator  *cron.Evaluator
	logger     zerolog.Logger

	storeFactory  StoreFactory
	brokerFactory BrokerFactory

	publishCh chan types.JobRecord
	resendCh  chan string

	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	iteration int
}

// New builds a Scheduler. store is used for the scheduler's own reads
// (cron spec reloads, redelivery scan); storeFactory/brokerFactory
// build the per-pool-member connections.
func New(cfg Config, store storage.Store, controlAPI *controlapi.Server, storeFactory StoreFactory, brokerFactory BrokerFactory) *Scheduler {
	if cfg.PublisherPoolSize <= 0 {
		cfg.PublisherPoolSize = 3
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.RedeliveryScanEvery <= 0 {
		cfg.RedeliveryScanEvery = 60
	}

	return &Scheduler{
		cfg:           cfg,
		store:         store,
		controlAPI:    controlAPI,
		evaluator:     cron.NewEvaluator(log.WithComponent("cron")),
		logger:        log.WithComponent("scheduler"),
		storeFactory:  storeFactory,
		brokerFactory: brokerFactory,
		publishCh:     make(chan types.JobRecord, 256),
		resendCh:      make(chan string, 256),
		stopCh:        make(chan struct{}),
	}
}

// Start brings up the Control API, the publisher pool, loads the
// enabled cron specs, and launches the tick loop. It blocks only long
// enough to do that initial setup.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.controlAPI != nil {
		if err := s.controlAPI.Start(); err != nil {
			return err
		}
	}

	for i := 0; i < s.cfg.PublisherPoolSize; i++ {
		id := shortID()
		member := &publisherMember{
			id:     id,
			store:  s.storeFactory(id),
			broker: s.brokerFactory(id),
			logger: log.WithClientID(id),
		}
		if err := member.broker.Start(ctx); err != nil {
			s.logger.Error().Err(err).Str("client_id", id).Msg("publisher pool member failed to start broker client")
			continue
		}

		s.wg.Add(1)
		go s.runPublisher(member)
	}

	specs, err := s.loadEnabledCronSpecs(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load cron specs at startup")
	} else {
		s.evaluator.Reload(specs)
	}

	s.wg.Add(1)
	go s.loop(ctx)

	return nil
}

// Stop signals the tick loop and publisher pool to exit and waits for
// them to join.
func (s *Scheduler) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()

	if s.controlAPI != nil {
		_ = s.controlAPI.Stop(ctx)
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.evaluator.Tick(now, s.onFire)
	s.drainControlMessages(ctx)

	s.iteration++
	if s.iteration%s.cfg.RedeliveryScanEvery == 0 {
		s.redeliveryScan(ctx)
	}
}

// onFire is the Evaluator's callback. It must not block meaningfully;
// the publish itself happens on a publisher pool worker.
func (s *Scheduler) onFire(spec types.CronSpec) {
	record := types.JobRecord{
		CronID:        spec.ID,
		Name:          spec.Name,
		Kind:          spec.Kind,
		RunTarget:     spec.RunTarget,
		Args:          spec.Args,
		HostInventory: spec.HostInventory,
		ExtraVars:     spec.ExtraVars,
	}

	select {
	case s.publishCh <- record:
	default:
		s.logger.Warn().Str("cron_id", spec.ID).Msg("publish queue full, dropping fire")
	}
}

func (s *Scheduler) loadEnabledCronSpecs(ctx context.Context) ([]types.CronSpec, error) {
	var specs []types.CronSpec
	err := s.store.FindAll(ctx, "crons", storage.Filter{"disabled": false}, &specs)
	return specs, err
}

func shortID() string {
	return uuid.New().String()[:8]
}
