package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDebounce coalesces bursts of filesystem events into one reload, so
// an editor writing several files triggers a single snapshot swap.
const reloadDebounce = time.Second

// Service owns the active configuration snapshot and hot-reloads it when
// files under the root change. Readers call Snapshot and get an immutable
// view; a failed reload keeps the previous snapshot active.
type Service struct {
	root    string
	current atomic.Pointer[Snapshot]
	logger  *zap.Logger

	// onReload, when set, is called after each successful snapshot swap.
	onReload func(*Snapshot)
}

// NewService loads the initial snapshot from root. Load failure at startup
// is fatal to the caller.
func NewService(root string, logger *zap.Logger) (*Service, error) {
	snap, err := Load(root)
	if err != nil {
		return nil, err
	}
	s := &Service{root: root, logger: logger.Named("config")}
	s.current.Store(snap)
	return s, nil
}

// Snapshot returns the active configuration.
func (s *Service) Snapshot() *Snapshot {
	return s.current.Load()
}

// OnReload registers a callback invoked after each successful hot reload.
// Must be called before Watch.
func (s *Service) OnReload(fn func(*Snapshot)) {
	s.onReload = fn
}

// Watch blocks until ctx is done, reloading the snapshot on file changes
// under the three configuration directories. Events are debounced; reload
// errors are logged and the active snapshot stays unchanged.
func (s *Service) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: creating watcher: %v", ErrLoad, err)
	}
	defer watcher.Close()

	for _, sub := range []string{"networks", "monitors", "triggers"} {
		dir := filepath.Join(s.root, sub)
		if err := watcher.Add(dir); err != nil {
			s.logger.Warn("not watching config directory",
				zap.String("dir", dir),
				zap.Error(err))
		}
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				timerC = timer.C
			} else {
				timer.Reset(reloadDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("config watcher error", zap.Error(err))
		case <-timerC:
			timer = nil
			timerC = nil
			s.reload()
		}
	}
}

func (s *Service) reload() {
	snap, err := Load(s.root)
	if err != nil {
		s.logger.Error("config reload failed, keeping previous snapshot", zap.Error(err))
		return
	}
	s.current.Store(snap)
	s.logger.Info("configuration reloaded",
		zap.Int("networks", len(snap.Networks)),
		zap.Int("monitors", len(snap.Monitors)),
		zap.Int("triggers", len(snap.Triggers)))
	if s.onReload != nil {
		s.onReload(snap)
	}
}
