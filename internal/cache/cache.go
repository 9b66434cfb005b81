package cache

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"
)

// Sentinel errors for cache operations.
var (
	ErrNotFound  = errors.New("cache: entry not found")
	ErrMarshal   = errors.New("cache: failed to marshal value")
	ErrUnmarshal = errors.New("cache: failed to unmarshal value")
)

// Cache is a key-value cache with TTL support. A zero TTL on Set means the
// cache's default TTL.
type Cache[V any] interface {
	Get(ctx context.Context, key string) (V, error)
	Set(ctx context.Context, key string, value V, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// loadTimeout bounds a shared load once it is detached from the caller.
const loadTimeout = 10 * time.Second

// Loader is a read-through view over a Cache. Concurrent misses for the
// same key on one Loader share a single load.
type Loader[V any] struct {
	cache Cache[V]
	ttl   time.Duration
	group singleflight.Group
}

// NewLoader creates a read-through loader. A zero ttl uses the cache's
// default TTL.
func NewLoader[V any](c Cache[V], ttl time.Duration) *Loader[V] {
	return &Loader[V]{cache: c, ttl: ttl}
}

// Get returns the cached value for key or calls load on a miss. A load
// error is returned as is and nothing is cached. The shared load runs on a
// context detached from the first caller, so one canceled caller does not
// fail the others; each caller still stops waiting when its own ctx ends.
func (l *Loader[V]) Get(ctx context.Context, key string, load func(ctx context.Context) (V, error)) (V, error) {
	var zero V
	if v, err := l.cache.Get(ctx, key); err == nil {
		return v, nil
	}

	ch := l.group.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		// another flight may have filled the key since the first lookup
		if v, err := l.cache.Get(lctx, key); err == nil {
			return v, nil
		}
		val, err := load(lctx)
		if err != nil {
			return nil, err
		}
		_ = l.cache.Set(lctx, key, val, l.ttl)
		return val, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

// Invalidate drops key from the cache.
func (l *Loader[V]) Invalidate(ctx context.Context, key string) error {
	return l.cache.Delete(ctx, key)
}
