package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is a mutex-guarded in-memory Adapter. It serves single-instance
// deployments and unit tests; distributed deployments use Redis instead.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.lookup(key)
	if !ok {
		return nil, ErrMiss
	}
	return append([]byte(nil), entry.value...), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.store(key, value, ttl)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// Update applies fn under the store lock, so the read-modify-write cycle is
// atomic with respect to all other operations on this adapter.
func (m *Memory) Update(_ context.Context, key string, ttl time.Duration, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var old []byte
	entry, exists := m.lookup(key)
	if exists {
		old = append([]byte(nil), entry.value...)
	}

	next, err := fn(old, exists)
	if err != nil {
		return err
	}

	m.store(key, next, ttl)
	return nil
}

// lookup returns the live entry for key, evicting it when expired.
// Callers must hold the lock.
func (m *Memory) lookup(key string) (memoryEntry, bool) {
	entry, ok := m.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return entry, true
}

// store writes an entry. Callers must hold the lock.
func (m *Memory) store(key string, value []byte, ttl time.Duration) {
	m.entries[key] = memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: m.now().Add(ttl),
	}
}
