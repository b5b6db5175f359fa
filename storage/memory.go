package storage

import (
	"sort"
	"sync"

	"github.com/No-Gas-Labs/sui-flash-loan-dapp/native/flashpool"
)

// MemoryPoolStore keeps pools in process memory. It backs tests and the
// node's dry-run overlay, where mutations must never reach committed state.
type MemoryPoolStore struct {
	mu    sync.RWMutex
	pools map[string]*flashpool.Pool
}

// NewMemoryPoolStore returns an empty in-memory store.
func NewMemoryPoolStore() *MemoryPoolStore {
	return &MemoryPoolStore{pools: make(map[string]*flashpool.Pool)}
}

// Seed inserts a deep copy of the pool, used to stage dry-run overlays.
func (s *MemoryPoolStore) Seed(pool *flashpool.Pool) {
	if pool == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[pool.ID] = pool.Clone()
}

// GetPool implements PoolStore.
func (s *MemoryPoolStore) GetPool(id string) (*flashpool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool, ok := s.pools[id]
	if !ok {
		return nil, nil
	}
	return pool, nil
}

// PutPool implements PoolStore.
func (s *MemoryPoolStore) PutPool(id string, pool *flashpool.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[id] = pool
	return nil
}

// ListPools implements PoolStore. Pools are returned in id order so callers
// observe a stable listing.
func (s *MemoryPoolStore) ListPools() ([]*flashpool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pools := make([]*flashpool.Pool, 0, len(s.pools))
	for _, pool := range s.pools {
		pools = append(pools, pool)
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].ID < pools[j].ID })
	return pools, nil
}

// Close implements PoolStore.
func (s *MemoryPoolStore) Close() error { return nil }
