// Package cache provides key/value stores used to memoize extraction results.
package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is used when a store is created without an explicit TTL.
const DefaultTTL = 24 * time.Hour

// Store is a byte-oriented cache. A miss is reported as ok=false with a nil error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)

type memoryEntry struct {
	expiry time.Time
	value  []byte
}

// MemoryStore is a thread-safe in-process cache with per-entry expiry.
type MemoryStore struct {
	entries map[string]memoryEntry
	stopCh  chan struct{}
	ttl     time.Duration
	mu      sync.RWMutex
	once    sync.Once
}

// NewMemoryStore creates a memory store with the specified TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	store := &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}

	go store.cleanup(cleanupInterval(ttl))

	return store
}

func cleanupInterval(ttl time.Duration) time.Duration {
	interval := ttl / 2
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

// Get returns a copy of the cached value if it exists and hasn't expired.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.entries[key]
	if !exists || time.Now().After(entry.expiry) {
		return nil, false, nil
	}

	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

// Set stores a copy of value.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{
		value:  stored,
		expiry: time.Now().Add(m.ttl),
	}
	return nil
}

// cleanup periodically removes expired entries.
func (m *MemoryStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.mu.Lock()
			now := time.Now()
			for key, entry := range m.entries {
				if now.After(entry.expiry) {
					delete(m.entries, key)
				}
			}
			m.mu.Unlock()
		}
	}
}

// Len returns the number of entries, including expired ones not yet swept.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (m *MemoryStore) Close() error {
	m.once.Do(func() { close(m.stopCh) })
	return nil
}
