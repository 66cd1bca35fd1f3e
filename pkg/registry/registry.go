package registry

import (
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

// Registry is a bounded, sharded key/value store with age-based eviction.
// It replaces ad-hoc module-level caches: the owner constructs it at the
// dependency-injection root and decides capacity and freshness.
type Registry[V any] struct {
	shards      [numShards]*shard[V]
	maxPerShard int
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]entry[V]
}

type entry[V any] struct {
	value     V
	updatedAt time.Time
}

// New creates a registry capped at roughly maxEntries items.
func New[V any](maxEntries int) *Registry[V] {
	if maxEntries < numShards {
		maxEntries = numShards
	}
	r := &Registry[V]{maxPerShard: maxEntries / numShards}
	for i := 0; i < numShards; i++ {
		r.shards[i] = &shard[V]{items: make(map[string]entry[V])}
	}
	return r
}

func (r *Registry[V]) getShard(key string) *shard[V] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return r.shards[h.Sum32()%numShards]
}

// Set stores a value, evicting the oldest entry in the shard when full.
func (r *Registry[V]) Set(key string, value V) {
	s := r.getShard(key)
	s.mu.Lock()
	if _, exists := s.items[key]; !exists && len(s.items) >= r.maxPerShard {
		s.evictOldestLocked()
	}
	s.items[key] = entry[V]{value: value, updatedAt: time.Now()}
	s.mu.Unlock()
}

// Get retrieves a value.
func (r *Registry[V]) Get(key string) (V, bool) {
	s := r.getShard(key)
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	return e.value, ok
}

// GetFresh retrieves a value only if it is younger than maxAge.
func (r *Registry[V]) GetFresh(key string, maxAge time.Duration) (V, bool) {
	s := r.getShard(key)
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	if !ok || time.Since(e.updatedAt) > maxAge {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Delete removes a key.
func (r *Registry[V]) Delete(key string) {
	s := r.getShard(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Len returns the total number of entries.
func (r *Registry[V]) Len() int {
	total := 0
	for _, s := range r.shards {
		s.mu.RLock()
		total += len(s.items)
		s.mu.RUnlock()
	}
	return total
}

// Cleanup removes entries older than maxAge and reports how many were evicted.
func (r *Registry[V]) Cleanup(maxAge time.Duration) int {
	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, s := range r.shards {
		s.mu.Lock()
		for k, e := range s.items {
			if e.updatedAt.Before(cutoff) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

func (s *shard[V]) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, e := range s.items {
		if oldest.IsZero() || e.updatedAt.Before(oldest) {
			oldest = e.updatedAt
			oldestKey = k
		}
	}
	if oldestKey != "" {
		delete(s.items, oldestKey)
	}
}
