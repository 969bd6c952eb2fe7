package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const valueKey = "value"

// Value caches a single lazily loaded value for a fixed TTL.
// Concurrent misses share one load. Invalidate discards both the cached
// value and any load already in flight, so an update is never hidden behind
// a value read before it.
type Value[T any] struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	value     T
	valid     bool
	expiresAt time.Time
	gen       uint64
	group     singleflight.Group
}

// NewValue creates an empty Value with the given TTL.
func NewValue[T any](ttl time.Duration) *Value[T] {
	return &Value[T]{ttl: ttl, now: time.Now}
}

// WithClock replaces the time source; intended for tests.
func (v *Value[T]) WithClock(now func() time.Time) *Value[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.now = now
	return v
}

// Get returns the cached value, calling load when it is missing or expired.
// A failed load is not cached.
func (v *Value[T]) Get(ctx context.Context, load func(context.Context) (T, error)) (T, error) {
	if val, ok := v.Peek(); ok {
		return val, nil
	}

	v.mu.Lock()
	gen := v.gen
	v.mu.Unlock()

	res, err, _ := v.group.Do(valueKey, func() (any, error) {
		val, err := load(ctx)
		if err != nil {
			return val, err
		}
		v.mu.Lock()
		if v.gen == gen {
			v.value = val
			v.valid = true
			v.expiresAt = v.now().Add(v.ttl)
		}
		v.mu.Unlock()
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	val, _ := res.(T)
	return val, nil
}

// Peek returns the cached value without loading.
func (v *Value[T]) Peek() (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.valid && v.now().Before(v.expiresAt) {
		return v.value, true
	}
	var zero T
	return zero, false
}

// Invalidate drops the cached value.
func (v *Value[T]) Invalidate() {
	v.mu.Lock()
	var zero T
	v.value = zero
	v.valid = false
	v.gen++
	v.mu.Unlock()

	// Later callers start a fresh load instead of joining one begun before
	// the invalidation.
	v.group.Forget(valueKey)
}

// CleanExpired releases an expired value and reports whether one was dropped.
func (v *Value[T]) CleanExpired() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.valid || v.now().Before(v.expiresAt) {
		return 0
	}
	var zero T
	v.value = zero
	v.valid = false
	return 1
}
