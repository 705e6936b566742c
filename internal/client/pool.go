package client

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/chainwatch-io/chainwatch/internal/models"
)

// Factory builds a chain client for a network. The returned value is cached
// by the pool for the process lifetime.
type Factory func(ctx context.Context, network *models.Network) (any, error)

// poolEntry defers factory execution so a slow construction only blocks
// callers waiting for the same network, not the whole per-type map.
type poolEntry struct {
	once   sync.Once
	client any
	err    error
}

// clientStorage is the per-chain-type map of slug -> shared client.
type clientStorage struct {
	mu      sync.RWMutex
	entries map[string]*poolEntry
}

// Pool is the type-erased client registry keyed by chain type and network
// slug. Clients are created lazily on first use and shared by all callers.
type Pool struct {
	mu       sync.RWMutex
	storages map[models.NetworkType]*clientStorage
	logger   *zap.Logger
}

// NewPool creates an empty pool.
func NewPool(logger *zap.Logger) *Pool {
	return &Pool{
		storages: make(map[models.NetworkType]*clientStorage),
		logger:   logger.Named("client_pool"),
	}
}

// GetOrCreate returns the cached client for (chainType, network.Slug),
// invoking factory to build it on first use. Concurrent callers for the
// same network share one factory invocation; a factory error is cached so
// the next tick re-resolves through a fresh entry.
func (p *Pool) GetOrCreate(ctx context.Context, chainType models.NetworkType, network *models.Network, factory Factory) (any, error) {
	storage := p.storageFor(chainType)

	storage.mu.RLock()
	entry, ok := storage.entries[network.Slug]
	storage.mu.RUnlock()

	if !ok {
		storage.mu.Lock()
		entry, ok = storage.entries[network.Slug]
		if !ok {
			entry = &poolEntry{}
			storage.entries[network.Slug] = entry
		}
		storage.mu.Unlock()
	}

	entry.once.Do(func() {
		entry.client, entry.err = factory(ctx, network)
		if entry.err != nil {
			// Drop the failed entry so a later call can retry construction.
			storage.mu.Lock()
			delete(storage.entries, network.Slug)
			storage.mu.Unlock()
		}
	})

	if entry.err != nil {
		return nil, fmt.Errorf("%w: creating %s client for %q: %v", ErrClientPool, chainType, network.Slug, entry.err)
	}
	return entry.client, nil
}

func (p *Pool) storageFor(chainType models.NetworkType) *clientStorage {
	p.mu.RLock()
	s, ok := p.storages[chainType]
	p.mu.RUnlock()
	if ok {
		return s
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok = p.storages[chainType]; ok {
		return s
	}
	s = &clientStorage{entries: make(map[string]*poolEntry)}
	p.storages[chainType] = s
	return s
}

// EVMClientFor returns the shared EVMClient for the network, creating it on
// first use.
func (p *Pool) EVMClientFor(ctx context.Context, network *models.Network) (*EVMClient, error) {
	v, err := p.GetOrCreate(ctx, models.NetworkEVM, network, func(ctx context.Context, n *models.Network) (any, error) {
		return NewEVMClient(ctx, n, p.logger)
	})
	if err != nil {
		return nil, err
	}
	c, ok := v.(*EVMClient)
	if !ok {
		return nil, fmt.Errorf("%w: cached client for %q is not an EVM client", ErrClientPool, network.Slug)
	}
	return c, nil
}

// StellarClientFor returns the shared StellarClient for the network,
// creating it on first use.
func (p *Pool) StellarClientFor(ctx context.Context, network *models.Network) (*StellarClient, error) {
	v, err := p.GetOrCreate(ctx, models.NetworkStellar, network, func(ctx context.Context, n *models.Network) (any, error) {
		return NewStellarClient(ctx, n, p.logger)
	})
	if err != nil {
		return nil, err
	}
	c, ok := v.(*StellarClient)
	if !ok {
		return nil, fmt.Errorf("%w: cached client for %q is not a Stellar client", ErrClientPool, network.Slug)
	}
	return c, nil
}
