// Package bootstrap wires the configuration service, storage backend,
// client pool, filter engine, trigger dispatcher, watcher pipeline, and
// metrics server into one runnable application. It also hosts the one-shot
// monitor execution path the CLI exposes.
package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chainwatch-io/chainwatch/internal/client"
	"github.com/chainwatch-io/chainwatch/internal/config"
	"github.com/chainwatch-io/chainwatch/internal/filter"
	"github.com/chainwatch-io/chainwatch/internal/metrics"
	"github.com/chainwatch-io/chainwatch/internal/models"
	"github.com/chainwatch-io/chainwatch/internal/storage"
	"github.com/chainwatch-io/chainwatch/internal/trigger"
	"github.com/chainwatch-io/chainwatch/internal/watcher"
)

// Storage backend names accepted by Options.StorageBackend.
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// Options selects the configuration root, storage backend, and pipeline
// tuning for one App.
type Options struct {
	ConfigRoot     string
	StorageBackend string
	StoragePath    string

	// MetricsAddr enables the metrics server when non-empty.
	MetricsAddr string

	Workers     int
	BlockBuffer int
}

// App holds the wired services. Build one with New, then Run it.
type App struct {
	cfg      *config.Service
	pool     *client.Pool
	filter   *filter.Service
	triggers *trigger.Service
	store    storage.BlockStorage
	metrics  *metrics.Metrics
	watcher  *watcher.Service
	logger   *zap.Logger

	metricsAddr string
}

// New loads the configuration and builds every service. A configuration or
// storage failure here is fatal; nothing has started yet.
func New(opts Options, logger *zap.Logger) (*App, error) {
	cfgSvc, err := config.NewService(opts.ConfigRoot, logger)
	if err != nil {
		return nil, err
	}

	store, err := buildStorage(opts, logger)
	if err != nil {
		return nil, err
	}

	pool := client.NewPool(logger)
	filterSvc := filter.NewService(logger)
	triggerSvc := trigger.NewService(logger)

	var m *metrics.Metrics
	if opts.MetricsAddr != "" {
		m = metrics.New()
	}
	triggerSvc.OnError(m.TriggerError)

	watchSvc := watcher.NewService(cfgSvc, pool, filterSvc, triggerSvc, store, m, watcher.Options{
		Workers:     opts.Workers,
		BlockBuffer: opts.BlockBuffer,
	}, logger)
	watchSvc.Tracker().OnMissed(func(slug string, _ uint64) { m.MissedBlock(slug) })

	return &App{
		cfg:         cfgSvc,
		pool:        pool,
		filter:      filterSvc,
		triggers:    triggerSvc,
		store:       store,
		metrics:     m,
		watcher:     watchSvc,
		logger:      logger,
		metricsAddr: opts.MetricsAddr,
	}, nil
}

func buildStorage(opts Options, logger *zap.Logger) (storage.BlockStorage, error) {
	switch opts.StorageBackend {
	case StorageFile, "":
		return storage.NewFileStorage(opts.StoragePath, logger)
	case StorageSQLite:
		return storage.NewSQLiteStorage(opts.StoragePath, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.StorageBackend)
	}
}

// Run starts the pipeline, the configuration watcher, and the metrics
// server, then blocks until ctx is cancelled. A clean shutdown returns nil.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.watcher.Run(ctx) })
	g.Go(func() error { return a.cfg.Watch(ctx) })
	if a.metricsAddr != "" {
		g.Go(func() error { return a.metrics.Serve(ctx, a.metricsAddr, a.logger) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ExecuteRequest names the monitor and block for a one-shot evaluation.
type ExecuteRequest struct {
	MonitorName string

	// NetworkSlug may be empty when the monitor targets a single network.
	NetworkSlug string

	// Block is the block or ledger number to evaluate. Nil selects the
	// latest confirmed block.
	Block *uint64
}

// ExecuteMonitor evaluates one monitor against one block and writes the
// matches as a JSON array to out. The monitor's paused flag is ignored;
// this path exists precisely to test monitors outside the pipeline.
func (a *App) ExecuteMonitor(ctx context.Context, req ExecuteRequest, out io.Writer) error {
	snap := a.cfg.Snapshot()
	monitor, ok := snap.Monitors[req.MonitorName]
	if !ok {
		return fmt.Errorf("monitor %q not found", req.MonitorName)
	}

	slug := req.NetworkSlug
	if slug == "" {
		if len(monitor.Networks) != 1 {
			return fmt.Errorf("monitor %q targets %d networks, pass --network", req.MonitorName, len(monitor.Networks))
		}
		slug = monitor.Networks[0]
	}
	network, ok := snap.Networks[slug]
	if !ok {
		return fmt.Errorf("network %q not found", slug)
	}

	latest, fetch, clients, err := a.chainAccess(ctx, &network)
	if err != nil {
		return err
	}

	number := latest
	if req.Block != nil {
		number = *req.Block
	} else if network.ConfirmationBlocks < number {
		number -= network.ConfirmationBlocks
	}

	blocks, err := fetch(number, number)
	if err != nil {
		return fmt.Errorf("fetching block %d: %w", number, err)
	}

	matches := make([]models.MonitorMatch, 0)
	for _, b := range blocks {
		found, err := a.filter.FilterBlock(ctx, clients, &network, b, []models.Monitor{monitor})
		if err != nil {
			return err
		}
		matches = append(matches, found...)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(matches)
}

func (a *App) chainAccess(ctx context.Context, network *models.Network) (uint64, func(start, end uint64) ([]models.Block, error), filter.ChainClients, error) {
	var clients filter.ChainClients
	switch network.Type {
	case models.NetworkEVM:
		c, err := a.pool.EVMClientFor(ctx, network)
		if err != nil {
			return 0, nil, clients, err
		}
		clients.EVM = c
		latest, err := c.GetLatestBlockNumber(ctx)
		if err != nil {
			return 0, nil, clients, err
		}
		return latest, func(start, end uint64) ([]models.Block, error) {
			return c.GetBlocks(ctx, start, end)
		}, clients, nil
	case models.NetworkStellar:
		c, err := a.pool.StellarClientFor(ctx, network)
		if err != nil {
			return 0, nil, clients, err
		}
		latest, err := c.GetLatestLedgerNumber(ctx)
		if err != nil {
			return 0, nil, clients, err
		}
		return latest, func(start, end uint64) ([]models.Block, error) {
			return c.GetBlocks(ctx, start, end)
		}, clients, nil
	default:
		return 0, nil, clients, fmt.Errorf("chain type %s is not supported yet", network.Type)
	}
}
