package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"

	appErrors "github.com/learnledger/editor-api/pkg/errors"
)

type memoryEntry struct {
	payload   []byte
	writtenAt time.Time
	ttl       time.Duration
}

func (e memoryEntry) stale(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.writtenAt) > e.ttl
}

// MemoryCache is an in-process TTL store with the same contract as the Redis
// repository, used for cacheless deployments and tests. Values are stored as
// JSON so Get semantics match the Redis path exactly. Expired entries are
// reaped lazily on read.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache constructs an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get retrieves and unmarshals the cached value into dest.
func (m *MemoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	entry, ok := m.entries[key]
	if ok && entry.stale(m.now()) {
		delete(m.entries, key)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return appErrors.ErrCacheMiss
	}
	if err := json.Unmarshal(entry.payload, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return nil
}

// Set stores the value with the given TTL.
func (m *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}

	m.mu.Lock()
	m.entries[key] = memoryEntry{payload: payload, writtenAt: m.now(), ttl: ttl}
	m.mu.Unlock()
	return nil
}

// DeleteByPattern removes entries whose key matches the glob pattern.
func (m *MemoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		ok, err := path.Match(pattern, key)
		if err != nil {
			return fmt.Errorf("match pattern %s: %w", pattern, err)
		}
		if ok {
			delete(m.entries, key)
		}
	}
	return nil
}
