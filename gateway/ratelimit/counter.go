package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"
)

// CounterStore is the narrow interface over the shared fixed-window counters.
// Incr adds one to the counter at key and returns the new value; the first
// increment in a window fixes the expiry at now+ttl. The interface is small
// so multiple gateway instances can point it at an external counter service
// instead of process memory.
type CounterStore interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
}

type windowCounter struct {
	count     int64
	expiresAt time.Time
}

// MemoryCounterStore keeps fixed-window counters in process memory. It is
// correct for a single gateway instance; horizontally scaled deployments
// substitute a shared store behind the same interface.
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
	clockNow func() time.Time
}

// NewMemoryCounterStore builds an empty in-memory counter store.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		counters: make(map[string]*windowCounter),
		clockNow: time.Now,
	}
}

// Incr implements CounterStore.
func (s *MemoryCounterStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	key = strings.TrimSpace(key)
	now := s.clockNow()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpired(now)

	entry, ok := s.counters[key]
	if !ok || !entry.expiresAt.After(now) {
		entry = &windowCounter{expiresAt: now.Add(ttl)}
		s.counters[key] = entry
	}
	entry.count++
	return entry.count, nil
}

// Get implements CounterStore.
func (s *MemoryCounterStore) Get(_ context.Context, key string) (int64, error) {
	key = strings.TrimSpace(key)
	now := s.clockNow()

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.counters[key]
	if !ok || !entry.expiresAt.After(now) {
		return 0, nil
	}
	return entry.count, nil
}

// evictExpired drops dead windows so the map does not grow without bound.
// Called with the mutex held.
func (s *MemoryCounterStore) evictExpired(now time.Time) {
	if len(s.counters) < 1024 {
		return
	}
	for key, entry := range s.counters {
		if !entry.expiresAt.After(now) {
			delete(s.counters, key)
		}
	}
}
