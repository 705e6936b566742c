package watcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainwatch-io/chainwatch/internal/filter"
	"github.com/chainwatch-io/chainwatch/internal/models"
)

// recordingStorage captures calls; all reads report no stored state.
type recordingStorage struct {
	mu     sync.Mutex
	missed map[string][]uint64
	last   map[string]uint64
	saved  map[string]int
}

func newRecordingStorage() *recordingStorage {
	return &recordingStorage{
		missed: make(map[string][]uint64),
		last:   make(map[string]uint64),
		saved:  make(map[string]int),
	}
}

func (s *recordingStorage) GetLastProcessedBlock(_ context.Context, slug string) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.last[slug]
	return n, ok, nil
}

func (s *recordingStorage) SaveLastProcessedBlock(_ context.Context, slug string, number uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[slug] = number
	return nil
}

func (s *recordingStorage) SaveMissedBlock(_ context.Context, slug string, number uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missed[slug] = append(s.missed[slug], number)
	return nil
}

func (s *recordingStorage) SaveBlocks(_ context.Context, slug string, blocks []models.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[slug] += len(blocks)
	return nil
}

func (s *recordingStorage) DeleteBlocks(_ context.Context, slug string) error { return nil }

func (s *recordingStorage) missedFor(slug string) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.missed[slug]...)
}

func storingNetwork(slug string) *models.Network {
	store := true
	return &models.Network{
		Slug:        slug,
		Type:        models.NetworkStellar,
		StoreBlocks: &store,
	}
}

func TestTrackerEmitsOneEventPerMissedBlock(t *testing.T) {
	store := newRecordingStorage()
	tr := NewTracker(store, zap.NewNop())

	var observed []uint64
	tr.OnMissed(func(_ string, n uint64) { observed = append(observed, n) })

	net := storingNetwork("stellar_mainnet")
	ctx := context.Background()
	tr.RecordBlock(ctx, net, 100)
	tr.RecordBlock(ctx, net, 103)

	assert.Equal(t, []uint64{101, 102}, observed)
	assert.Equal(t, []uint64{101, 102}, store.missedFor("stellar_mainnet"))

	last, ok := tr.LastRecorded("stellar_mainnet")
	require.True(t, ok)
	assert.Equal(t, uint64(103), last)
}

func TestTrackerSkipsPersistenceWhenStoreBlocksOff(t *testing.T) {
	store := newRecordingStorage()
	tr := NewTracker(store, zap.NewNop())

	net := &models.Network{Slug: "eth", Type: models.NetworkEVM}
	ctx := context.Background()
	tr.RecordBlock(ctx, net, 10)
	tr.RecordBlock(ctx, net, 12)

	assert.Empty(t, store.missedFor("eth"))
}

func TestTrackerOutOfOrderDoesNotEmitMissed(t *testing.T) {
	tr := NewTracker(nil, zap.NewNop())
	var observed []uint64
	tr.OnMissed(func(_ string, n uint64) { observed = append(observed, n) })

	net := storingNetwork("stellar_mainnet")
	ctx := context.Background()
	tr.RecordBlock(ctx, net, 100)
	tr.RecordBlock(ctx, net, 99)
	tr.RecordBlock(ctx, net, 100)

	assert.Empty(t, observed)
}

func TestTrackerHistoryIsBounded(t *testing.T) {
	tr := NewTracker(nil, zap.NewNop())
	net := storingNetwork("stellar_mainnet")
	ctx := context.Background()
	for n := uint64(1); n <= 200; n++ {
		tr.RecordBlock(ctx, net, n)
	}

	assert.Len(t, tr.history["stellar_mainnet"], trackerHistorySize)
	last, ok := tr.LastRecorded("stellar_mainnet")
	require.True(t, ok)
	assert.Equal(t, uint64(200), last)
}

func TestTrackerNetworksAreIndependent(t *testing.T) {
	tr := NewTracker(nil, zap.NewNop())
	var observed []uint64
	tr.OnMissed(func(_ string, n uint64) { observed = append(observed, n) })

	ctx := context.Background()
	tr.RecordBlock(ctx, storingNetwork("a"), 100)
	tr.RecordBlock(ctx, storingNetwork("b"), 500)
	tr.RecordBlock(ctx, storingNetwork("a"), 101)

	assert.Empty(t, observed)
}

func TestTickRange(t *testing.T) {
	window := uint64(5)
	tests := []struct {
		name      string
		last      uint64
		haveLast  bool
		confirmed uint64
		maxPast   *uint64
		start     uint64
		end       uint64
		clamped   bool
		ok        bool
	}{
		{name: "no history processes only confirmed", confirmed: 100, start: 100, end: 100, ok: true},
		{name: "resumes after last", last: 95, haveLast: true, confirmed: 100, start: 96, end: 100, ok: true},
		{name: "caught up", last: 100, haveLast: true, confirmed: 100, ok: false, start: 101, end: 100},
		{name: "clamped by max_past_blocks", last: 50, haveLast: true, confirmed: 100, maxPast: &window, start: 96, end: 100, clamped: true, ok: true},
		{name: "window wider than range", last: 98, haveLast: true, confirmed: 100, maxPast: &window, start: 99, end: 100, ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, clamped, ok := tickRange(tt.last, tt.haveLast, tt.confirmed, tt.maxPast)
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
			assert.Equal(t, tt.clamped, clamped)
		})
	}
}

func TestProcessBlockDiscardsResultOnShutdown(t *testing.T) {
	s := &Service{
		filter:      filter.NewService(zap.NewNop()),
		tracker:     NewTracker(nil, zap.NewNop()),
		logger:      zap.NewNop(),
		processedCh: make(chan models.ProcessedBlock, 1),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	qb := queuedBlock{
		network: *storingNetwork("stellar_mainnet"),
		block: models.Block{Stellar: &models.StellarLedgerData{
			Ledger: models.StellarLedger{Sequence: 42},
		}},
		monitors: []models.Monitor{{Name: "m"}},
	}
	s.processBlock(ctx, qb)

	select {
	case processed := <-s.processedCh:
		t.Fatalf("unexpected result emitted for block %d", processed.BlockNumber)
	default:
	}
	_, recorded := s.tracker.LastRecorded("stellar_mainnet")
	assert.False(t, recorded)
}

func TestProcessBlockEmitsMatches(t *testing.T) {
	s := &Service{
		filter:      filter.NewService(zap.NewNop()),
		tracker:     NewTracker(nil, zap.NewNop()),
		logger:      zap.NewNop(),
		processedCh: make(chan models.ProcessedBlock, 1),
	}

	qb := queuedBlock{
		network: *storingNetwork("stellar_mainnet"),
		block: models.Block{Stellar: &models.StellarLedgerData{
			Ledger: models.StellarLedger{Sequence: 42},
		}},
		monitors: []models.Monitor{{Name: "m"}},
	}
	s.processBlock(context.Background(), qb)

	select {
	case processed := <-s.processedCh:
		assert.Equal(t, uint64(42), processed.BlockNumber)
		assert.Equal(t, "stellar_mainnet", processed.NetworkSlug)
	case <-time.After(time.Second):
		t.Fatal("no processed block emitted")
	}
	last, recorded := s.tracker.LastRecorded("stellar_mainnet")
	require.True(t, recorded)
	assert.Equal(t, uint64(42), last)
}
