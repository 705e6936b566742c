// Package watcher drives the block pipeline: per-network cron scheduling,
// block fetching, the worker pool that filters blocks, gap tracking, and
// the trigger handler that fans matches out to their sinks.
package watcher

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/chainwatch-io/chainwatch/internal/models"
	"github.com/chainwatch-io/chainwatch/internal/storage"
)

// trackerHistorySize is the per-network window of recorded block numbers.
const trackerHistorySize = 64

// Tracker detects missed and out-of-order blocks per network. Calls are
// serialized by an internal lock, so interleaved workers are safe.
type Tracker struct {
	mu      sync.Mutex
	history map[string][]uint64
	size    int

	storage storage.BlockStorage
	logger  *zap.Logger

	// onMissed, when set, observes every missed block number. Used by the
	// watcher to surface gap counts in metrics.
	onMissed func(networkSlug string, number uint64)
}

// NewTracker creates a tracker. storage may be nil; missed numbers are then
// only logged.
func NewTracker(store storage.BlockStorage, logger *zap.Logger) *Tracker {
	return &Tracker{
		history: make(map[string][]uint64),
		size:    trackerHistorySize,
		storage: store,
		logger:  logger.Named("tracker"),
	}
}

// OnMissed registers an observer for missed block numbers. Must be set
// before the pipeline starts.
func (t *Tracker) OnMissed(fn func(networkSlug string, number uint64)) {
	t.onMissed = fn
}

// RecordBlock records one processed block number. A gap against the
// previously recorded number emits one missed-block event per skipped
// height; a number at or below the previous one is reported as
// out-of-order.
func (t *Tracker) RecordBlock(ctx context.Context, network *models.Network, number uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	hist := t.history[network.Slug]
	if len(hist) > 0 {
		last := hist[len(hist)-1]
		switch {
		case number > last+1:
			for missed := last + 1; missed < number; missed++ {
				t.emitMissed(ctx, network, missed)
			}
		case number <= last:
			t.logger.Warn("out-of-order block",
				zap.String("network", network.Slug),
				zap.Uint64("block", number),
				zap.Uint64("last_recorded", last))
		}
	}

	hist = append(hist, number)
	if len(hist) > t.size {
		hist = hist[len(hist)-t.size:]
	}
	t.history[network.Slug] = hist
}

// LastRecorded returns the most recent recorded number for the network.
func (t *Tracker) LastRecorded(networkSlug string) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	hist := t.history[networkSlug]
	if len(hist) == 0 {
		return 0, false
	}
	return hist[len(hist)-1], true
}

func (t *Tracker) emitMissed(ctx context.Context, network *models.Network, number uint64) {
	t.logger.Warn("missed block",
		zap.String("network", network.Slug),
		zap.Uint64("block", number))
	if t.onMissed != nil {
		t.onMissed(network.Slug, number)
	}
	if t.storage != nil && network.ShouldStoreBlocks() {
		if err := t.storage.SaveMissedBlock(ctx, network.Slug, number); err != nil {
			t.logger.Error("persisting missed block failed",
				zap.String("network", network.Slug),
				zap.Uint64("block", number),
				zap.Error(err))
		}
	}
}
