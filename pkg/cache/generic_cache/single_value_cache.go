// Copyright 2025 NetApp, Inc. All Rights Reserved.

package generic_cache

import (
	"sync"
)

// SingleValueCache is a thread-safe one-to-one cache with generic types.
// K must be comparable (suitable for map keys). Values are stored as given; callers
// that cache slices must treat them as immutable.
type SingleValueCache[K comparable, V any] struct {
	mu      sync.RWMutex
	mapping map[K]V
}

// NewSingleValueCache creates a new single-value cache.
func NewSingleValueCache[K comparable, V any]() *SingleValueCache[K, V] {
	return &SingleValueCache[K, V]{
		mapping: make(map[K]V),
	}
}

// Set stores a single value for a key, replacing any previous value.
func (c *SingleValueCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mapping[key] = value
}

// Get returns the value for a key and whether it was present.
func (c *SingleValueCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value, ok := c.mapping[key]
	return value, ok
}

// GetOrCompute returns the cached value for key when keep accepts it, otherwise it calls
// compute, stores the result and returns it. compute runs without the lock held, so
// concurrent callers may compute the same key; the last store wins.
func (c *SingleValueCache[K, V]) GetOrCompute(key K, keep func(V) bool, compute func() V) V {
	if value, ok := c.Get(key); ok && (keep == nil || keep(value)) {
		return value
	}
	value := compute()
	c.Set(key, value)
	return value
}

// Delete removes a key from the cache, reporting whether it was present.
func (c *SingleValueCache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.mapping[key]; !exists {
		return false
	}
	delete(c.mapping, key)
	return true
}

// Has checks if a key exists in the cache.
func (c *SingleValueCache[K, V]) Has(key K) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.mapping[key]
	return ok
}

// Len returns the number of keys in the cache.
func (c *SingleValueCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.mapping)
}

// Clear removes all entries from the cache.
func (c *SingleValueCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mapping = make(map[K]V)
}

// Keys returns a snapshot of the cached keys.
func (c *SingleValueCache[K, V]) Keys() []K {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]K, 0, len(c.mapping))
	for key := range c.mapping {
		keys = append(keys, key)
	}
	return keys
}
