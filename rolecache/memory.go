package rolecache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	snapshot  *Snapshot
	expiresAt time.Time
}

// Memory is an in-process TTL cache. Concurrent misses for the same role may
// each call the loader; the last write wins, which is harmless because every
// load reads the same source of truth.
type Memory struct {
	loader Loader
	ttl    time.Duration

	mu      sync.Mutex
	entries map[int64]memoryEntry

	nowFn func() time.Time
}

// NewMemory returns an in-process cache with the given TTL.
func NewMemory(ttl time.Duration, loader Loader) (*Memory, error) {
	if loader == nil {
		return nil, ErrNilLoader
	}

	return &Memory{
		loader:  loader,
		ttl:     ttl,
		entries: make(map[int64]memoryEntry),
		nowFn:   time.Now,
	}, nil
}

// Get returns the cached snapshot for roleID, loading it on miss or expiry.
// Loader errors are returned as-is and nothing is cached for them.
func (m *Memory) Get(ctx context.Context, roleID int64) (*Snapshot, error) {
	now := m.nowFn()

	m.mu.Lock()
	entry, ok := m.entries[roleID]
	m.mu.Unlock()

	if ok && now.Before(entry.expiresAt) {
		return entry.snapshot, nil
	}

	snapshot, err := m.loader(ctx, roleID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.entries[roleID] = memoryEntry{
		snapshot:  snapshot,
		expiresAt: now.Add(m.ttl),
	}
	m.mu.Unlock()

	return snapshot, nil
}
