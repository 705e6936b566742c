// Package storage persists block processing state per network: the last
// processed block number, an append-only record of missed blocks, and
// optionally the full block payloads. Two backends exist: flat files and
// SQLite.
package storage

import (
	"context"
	"errors"

	"github.com/chainwatch-io/chainwatch/internal/models"
)

// ErrStorage wraps backend failures.
var ErrStorage = errors.New("storage error")

// BlockStorage is the persistence surface the watcher depends on. All
// implementations are safe for concurrent use across network goroutines;
// callers serialize per network slug.
type BlockStorage interface {
	// GetLastProcessedBlock returns the stored block number for the network
	// and whether one has ever been stored.
	GetLastProcessedBlock(ctx context.Context, networkSlug string) (uint64, bool, error)

	// SaveLastProcessedBlock records the highest processed block number.
	SaveLastProcessedBlock(ctx context.Context, networkSlug string, number uint64) error

	// SaveMissedBlock appends a block number to the network's missed record.
	SaveMissedBlock(ctx context.Context, networkSlug string, number uint64) error

	// SaveBlocks stores full block payloads for the network.
	SaveBlocks(ctx context.Context, networkSlug string, blocks []models.Block) error

	// DeleteBlocks removes all stored block payloads for the network. The
	// last-processed number and the missed record are kept.
	DeleteBlocks(ctx context.Context, networkSlug string) error
}
