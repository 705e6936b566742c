package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainwatch-io/chainwatch/internal/client"
	"github.com/chainwatch-io/chainwatch/internal/config"
	"github.com/chainwatch-io/chainwatch/internal/filter"
	"github.com/chainwatch-io/chainwatch/internal/metrics"
	"github.com/chainwatch-io/chainwatch/internal/models"
	"github.com/chainwatch-io/chainwatch/internal/storage"
	"github.com/chainwatch-io/chainwatch/internal/trigger"
)

const (
	defaultWorkers     = 4
	defaultBlockBuffer = 32
)

// queuedBlock is one block handed from a network tick to the worker pool.
type queuedBlock struct {
	network  models.Network
	block    models.Block
	monitors []models.Monitor
}

// Service runs the block pipeline: cron-scheduled per-network ticks feed a
// bounded block channel, a worker pool filters blocks, and a trigger
// handler fans matches out. One Service instance owns all networks.
type Service struct {
	cfg      *config.Service
	pool     *client.Pool
	filter   *filter.Service
	triggers *trigger.Service
	store    storage.BlockStorage
	tracker  *Tracker
	metrics  *metrics.Metrics
	logger   *zap.Logger

	workers     int
	blockCh     chan queuedBlock
	processedCh chan models.ProcessedBlock

	schedMu sync.Mutex
	sched   gocron.Scheduler
	jobs    map[string]scheduledJob
}

// scheduledJob remembers the cron expression a job was created with so a
// reload can detect schedule changes.
type scheduledJob struct {
	id   uuid.UUID
	cron string
}

// Options tunes the pipeline. Zero values select defaults.
type Options struct {
	Workers     int
	BlockBuffer int
}

// NewService wires the pipeline. metrics may be nil.
func NewService(cfg *config.Service, pool *client.Pool, filterSvc *filter.Service, triggerSvc *trigger.Service, store storage.BlockStorage, m *metrics.Metrics, opts Options, logger *zap.Logger) *Service {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	buffer := opts.BlockBuffer
	if buffer <= 0 {
		buffer = defaultBlockBuffer
	}
	return &Service{
		cfg:         cfg,
		pool:        pool,
		filter:      filterSvc,
		triggers:    triggerSvc,
		store:       store,
		tracker:     NewTracker(store, logger),
		metrics:     m,
		logger:      logger.Named("watcher"),
		workers:     workers,
		blockCh:     make(chan queuedBlock, buffer),
		processedCh: make(chan models.ProcessedBlock, buffer),
		jobs:        make(map[string]scheduledJob),
	}
}

// Tracker exposes the gap tracker, used by the bootstrap wiring for metric
// hookup.
func (s *Service) Tracker() *Tracker { return s.tracker }

// Run starts the scheduler, workers, and trigger handler, then blocks until
// ctx is cancelled. In-flight work is abandoned cooperatively on shutdown.
func (s *Service) Run(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	s.schedMu.Lock()
	s.sched = sched
	s.schedMu.Unlock()

	if err := s.scheduleNetworks(ctx, s.cfg.Snapshot()); err != nil {
		return err
	}
	s.cfg.OnReload(func(snap *config.Snapshot) {
		if err := s.scheduleNetworks(ctx, snap); err != nil {
			s.logger.Error("rescheduling after reload failed", zap.Error(err))
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.workerLoop(ctx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.triggerLoop(ctx)
	}()

	sched.Start()
	<-ctx.Done()

	if err := sched.Shutdown(); err != nil {
		s.logger.Warn("scheduler shutdown", zap.Error(err))
	}
	wg.Wait()
	return ctx.Err()
}

// scheduleNetworks reconciles cron jobs with the snapshot's active
// networks: new networks get jobs, removed networks lose them, changed
// schedules are replaced.
func (s *Service) scheduleNetworks(ctx context.Context, snap *config.Snapshot) error {
	s.schedMu.Lock()
	defer s.schedMu.Unlock()

	active := make(map[string]models.Network)
	for _, n := range snap.ActiveNetworks() {
		active[n.Slug] = n
	}

	for slug, job := range s.jobs {
		network, ok := active[slug]
		if ok && network.CronSchedule == job.cron {
			continue
		}
		if err := s.sched.RemoveJob(job.id); err != nil {
			s.logger.Warn("removing job", zap.String("network", slug), zap.Error(err))
		}
		delete(s.jobs, slug)
		if !ok {
			s.logger.Info("network unscheduled", zap.String("network", slug))
		}
	}

	for slug, network := range active {
		if _, ok := s.jobs[slug]; ok {
			continue
		}
		network := network
		job, err := s.sched.NewJob(
			gocron.CronJob(network.CronSchedule, true),
			gocron.NewTask(func() { s.tick(ctx, network.Slug) }),
			gocron.WithName(slug),
		)
		if err != nil {
			return fmt.Errorf("scheduling network %q: %w", slug, err)
		}
		s.jobs[slug] = scheduledJob{id: job.ID(), cron: network.CronSchedule}
		s.logger.Info("network scheduled",
			zap.String("network", slug),
			zap.String("cron", network.CronSchedule))
	}
	return nil
}

// tick runs one poll cycle for a network: compute the confirmed range,
// fetch it, enqueue the blocks, then advance the high-water mark. A storage
// failure on the final save aborts the tick; the next tick retries the same
// range.
func (s *Service) tick(ctx context.Context, slug string) {
	started := time.Now()
	snap := s.cfg.Snapshot()
	network, ok := snap.Networks[slug]
	if !ok {
		return
	}
	monitors := snap.MonitorsForNetwork(slug)
	if len(monitors) == 0 {
		return
	}
	logger := s.logger.With(zap.String("network", slug))

	latest, fetch, err := s.chainAccess(ctx, &network)
	if err != nil {
		logger.Error("tick aborted, no chain access", zap.Error(err))
		return
	}

	confirmed := latest
	if network.ConfirmationBlocks >= confirmed {
		logger.Debug("no confirmed blocks yet", zap.Uint64("latest", latest))
		return
	}
	confirmed -= network.ConfirmationBlocks

	last, haveLast, err := s.store.GetLastProcessedBlock(ctx, slug)
	if err != nil {
		logger.Error("tick aborted, cannot read last processed block", zap.Error(err))
		return
	}

	start, end, clamped, ok := tickRange(last, haveLast, confirmed, network.MaxPastBlocks)
	if clamped {
		logger.Warn("range clamped by max_past_blocks, older missed blocks dropped",
			zap.Uint64("start", start),
			zap.Uint64("end", end))
	}
	if !ok {
		return
	}

	blocks, err := fetch(start, end)
	if err != nil {
		logger.Error("tick aborted, fetching blocks failed",
			zap.Uint64("start", start),
			zap.Uint64("end", end),
			zap.Error(err))
		return
	}
	if network.ShouldStoreBlocks() {
		if err := s.store.DeleteBlocks(ctx, slug); err != nil {
			logger.Warn("clearing previous block payloads failed", zap.Error(err))
		}
		if err := s.store.SaveBlocks(ctx, slug, blocks); err != nil {
			logger.Error("storing block payloads failed", zap.Error(err))
		}
	}

	for _, b := range blocks {
		select {
		case <-ctx.Done():
			return
		case s.blockCh <- queuedBlock{network: network, block: b, monitors: monitors}:
		}
	}

	if err := s.store.SaveLastProcessedBlock(ctx, slug, end); err != nil {
		logger.Error("saving last processed block failed, tick will retry", zap.Error(err))
		return
	}
	s.metrics.LastProcessedBlock(slug, end)
	s.metrics.ObserveTick(slug, time.Since(started))
	logger.Debug("tick complete",
		zap.Uint64("start", start),
		zap.Uint64("end", end),
		zap.Int("blocks", len(blocks)))
}

// tickRange computes the inclusive block range for one tick. Without a
// stored high-water mark only the single confirmed block is processed. A
// max_past_blocks window clamps the start upward, dropping older blocks.
func tickRange(last uint64, haveLast bool, confirmed uint64, maxPast *uint64) (start, end uint64, clamped, ok bool) {
	if !haveLast {
		last = confirmed - 1
	}
	start, end = last+1, confirmed
	if maxPast != nil && *maxPast > 0 && start <= end && end-start+1 > *maxPast {
		start = end - *maxPast + 1
		clamped = true
	}
	return start, end, clamped, start <= end
}

// chainAccess resolves the network's client and returns the latest height
// plus a range fetcher. Unsupported chain types return an error so the tick
// skips.
func (s *Service) chainAccess(ctx context.Context, network *models.Network) (uint64, func(start, end uint64) ([]models.Block, error), error) {
	switch network.Type {
	case models.NetworkEVM:
		c, err := s.pool.EVMClientFor(ctx, network)
		if err != nil {
			return 0, nil, err
		}
		latest, err := c.GetLatestBlockNumber(ctx)
		if err != nil {
			return 0, nil, err
		}
		return latest, func(start, end uint64) ([]models.Block, error) {
			return c.GetBlocks(ctx, start, end)
		}, nil
	case models.NetworkStellar:
		c, err := s.pool.StellarClientFor(ctx, network)
		if err != nil {
			return 0, nil, err
		}
		latest, err := c.GetLatestLedgerNumber(ctx)
		if err != nil {
			return 0, nil, err
		}
		return latest, func(start, end uint64) ([]models.Block, error) {
			return c.GetBlocks(ctx, start, end)
		}, nil
	default:
		return 0, nil, fmt.Errorf("chain type %s is not supported yet", network.Type)
	}
}

// workerLoop pulls blocks off the channel and processes them until ctx is
// cancelled.
func (s *Service) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case qb := <-s.blockCh:
			s.processBlock(ctx, qb)
		}
	}
}

// processBlock filters one block and emits the result. A shutdown during
// filtering discards the partial result without emitting.
func (s *Service) processBlock(ctx context.Context, qb queuedBlock) {
	clients := filter.ChainClients{}
	if qb.network.Type == models.NetworkEVM {
		c, err := s.pool.EVMClientFor(ctx, &qb.network)
		if err != nil {
			s.logger.Error("skipping block, no client",
				zap.String("network", qb.network.Slug),
				zap.Error(err))
			return
		}
		clients.EVM = c
	}

	matches, err := s.filter.FilterBlock(ctx, clients, &qb.network, qb.block, qb.monitors)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.logger.Error("filtering block failed",
			zap.String("network", qb.network.Slug),
			zap.Uint64("block", qb.block.Number()),
			zap.Error(err))
		return
	}

	s.tracker.RecordBlock(ctx, &qb.network, qb.block.Number())
	s.metrics.BlockProcessed(qb.network.Slug)
	s.metrics.MatchesFound(qb.network.Slug, len(matches))

	processed := models.ProcessedBlock{
		BlockNumber: qb.block.Number(),
		NetworkSlug: qb.network.Slug,
		Results:     matches,
	}
	select {
	case <-ctx.Done():
	case s.processedCh <- processed:
	}
}

// triggerLoop fans processed blocks out to their triggers. Each processed
// block gets its own dispatch goroutine; triggers within one match run
// sequentially.
func (s *Service) triggerLoop(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case processed := <-s.processedCh:
			if len(processed.Results) == 0 {
				continue
			}
			triggers := s.cfg.Snapshot().Triggers
			wg.Add(1)
			go func() {
				defer wg.Done()
				for _, match := range processed.Results {
					s.triggers.Dispatch(ctx, triggers, match)
				}
			}()
		}
	}
}
