package cache

import (
	"context"
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is an in-process cache. Expired entries are dropped on access.
type Memory[V any] struct {
	items      map[string]entry[V]
	defaultTTL time.Duration
	mu         sync.RWMutex
}

// NewMemory creates an in-memory cache. A non-positive defaultTTL means
// entries never expire.
func NewMemory[V any](defaultTTL time.Duration) *Memory[V] {
	return &Memory[V]{
		items:      make(map[string]entry[V]),
		defaultTTL: defaultTTL,
	}
}

func (m *Memory[V]) Get(ctx context.Context, key string) (V, error) {
	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()

	if !ok || e.expired(time.Now()) {
		if ok {
			m.mu.Lock()
			delete(m.items, key)
			m.mu.Unlock()
		}
		var zero V
		return zero, ErrNotFound
	}
	return e.value, nil
}

func (m *Memory[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if ttl == 0 {
		ttl = m.defaultTTL
	}

	e := entry[V]{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}

	m.mu.Lock()
	m.items[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory[V]) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *Memory[V]) Close() error {
	return nil
}
