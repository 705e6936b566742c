package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chainwatch-io/chainwatch/internal/models"
)

// FileStorage keeps block state as flat files under a single directory:
//
//	{slug}_last_block.txt      last processed block number
//	{slug}_missed_blocks.txt   one missed block number per line, append-only
//	{slug}_blocks_{ts}.json    full block payloads, one file per save
//
// Writes to the last-block file go through a temp file and rename so a
// crash mid-write never leaves a torn value.
type FileStorage struct {
	dir    string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewFileStorage creates the directory if needed and returns the store.
func NewFileStorage(dir string, logger *zap.Logger) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", ErrStorage, dir, err)
	}
	return &FileStorage{dir: dir, logger: logger.Named("file_storage")}, nil
}

func (s *FileStorage) lastBlockPath(slug string) string {
	return filepath.Join(s.dir, slug+"_last_block.txt")
}

func (s *FileStorage) missedBlocksPath(slug string) string {
	return filepath.Join(s.dir, slug+"_missed_blocks.txt")
}

// GetLastProcessedBlock reads the stored number; a missing file means the
// network has never been processed.
func (s *FileStorage) GetLastProcessedBlock(_ context.Context, networkSlug string) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.lastBlockPath(networkSlug))
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: reading last block for %q: %v", ErrStorage, networkSlug, err)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: corrupt last block for %q: %v", ErrStorage, networkSlug, err)
	}
	return n, true, nil
}

// SaveLastProcessedBlock writes the number atomically via temp file and
// rename.
func (s *FileStorage) SaveLastProcessedBlock(_ context.Context, networkSlug string, number uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.lastBlockPath(networkSlug)
	tmp, err := os.CreateTemp(s.dir, networkSlug+"_last_block_*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file for %q: %v", ErrStorage, networkSlug, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(strconv.FormatUint(number, 10)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: writing last block for %q: %v", ErrStorage, networkSlug, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: closing temp file for %q: %v", ErrStorage, networkSlug, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: renaming last block for %q: %v", ErrStorage, networkSlug, err)
	}
	return nil
}

// SaveMissedBlock appends one line to the network's missed-blocks file.
func (s *FileStorage) SaveMissedBlock(_ context.Context, networkSlug string, number uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.missedBlocksPath(networkSlug), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: opening missed blocks for %q: %v", ErrStorage, networkSlug, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%d\n", number); err != nil {
		return fmt.Errorf("%w: appending missed block for %q: %v", ErrStorage, networkSlug, err)
	}
	return nil
}

// SaveBlocks writes the payloads to a timestamped JSON file.
func (s *FileStorage) SaveBlocks(_ context.Context, networkSlug string, blocks []models.Block) error {
	if len(blocks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(blocks)
	if err != nil {
		return fmt.Errorf("%w: encoding blocks for %q: %v", ErrStorage, networkSlug, err)
	}
	name := fmt.Sprintf("%s_blocks_%d.json", networkSlug, time.Now().UnixMilli())
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("%w: writing blocks for %q: %v", ErrStorage, networkSlug, err)
	}
	return nil
}

// DeleteBlocks removes every stored payload file for the network.
func (s *FileStorage) DeleteBlocks(_ context.Context, networkSlug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pattern := filepath.Join(s.dir, networkSlug+"_blocks_*.json")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("%w: globbing blocks for %q: %v", ErrStorage, networkSlug, err)
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("%w: removing %s: %v", ErrStorage, p, err)
		}
	}
	s.logger.Debug("deleted stored blocks",
		zap.String("network", networkSlug),
		zap.Int("files", len(paths)))
	return nil
}
