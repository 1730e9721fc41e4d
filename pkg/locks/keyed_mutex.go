// Copyright 2025 NetApp, Inc. All Rights Reserved.

package locks

import "sync"

// LockedResource is a wrapper that holds a keyed lock and its unlock function.
// Unlock is idempotent. Go has no destructors, so the caller must call Unlock (typically via defer).
type LockedResource[K comparable] struct {
	key    K
	unlock func()
}

// Key returns the key that is locked.
func (lr *LockedResource[K]) Key() K {
	return lr.key
}

// Unlock releases the lock on this resource. Subsequent calls are no-ops.
func (lr *LockedResource[K]) Unlock() {
	if lr.unlock != nil {
		lr.unlock()
		lr.unlock = nil
	}
}

// KeyedMutex provides garbage-collected RW mutexes keyed by any comparable value.
// A key's mutex exists only while at least one caller holds or waits for it.
type KeyedMutex[K comparable] struct {
	mutexes map[K]*gcMutex
	m       sync.Mutex
}

type gcMutex struct {
	m sync.RWMutex
	c int
}

func NewKeyedMutex[K comparable]() *KeyedMutex[K] {
	return &KeyedMutex[K]{
		mutexes: make(map[K]*gcMutex),
	}
}

func (g *KeyedMutex[K]) acquire(key K) *gcMutex {
	g.m.Lock()
	defer g.m.Unlock()
	resourceMutex, ok := g.mutexes[key]
	if !ok {
		resourceMutex = &gcMutex{}
		g.mutexes[key] = resourceMutex
	}
	resourceMutex.c++
	return resourceMutex
}

func (g *KeyedMutex[K]) release(key K) *gcMutex {
	g.m.Lock()
	defer g.m.Unlock()
	resourceMutex, ok := g.mutexes[key]
	if !ok {
		return nil
	}
	resourceMutex.c--
	if resourceMutex.c == 0 {
		delete(g.mutexes, key)
	}
	return resourceMutex
}

func (g *KeyedMutex[K]) Lock(key K) {
	g.acquire(key).m.Lock()
}

func (g *KeyedMutex[K]) Unlock(key K) {
	if resourceMutex := g.release(key); resourceMutex != nil {
		resourceMutex.m.Unlock()
	}
}

func (g *KeyedMutex[K]) RLock(key K) {
	g.acquire(key).m.RLock()
}

func (g *KeyedMutex[K]) RUnlock(key K) {
	if resourceMutex := g.release(key); resourceMutex != nil {
		resourceMutex.m.RUnlock()
	}
}

// Len returns the number of keys that currently have a live mutex.
func (g *KeyedMutex[K]) Len() int {
	g.m.Lock()
	defer g.m.Unlock()
	return len(g.mutexes)
}

// LockWithGuard acquires a write lock and returns a wrapper for convenient unlock handling.
// Usage:
//
//	locked := mutex.LockWithGuard(key)
//	defer locked.Unlock()
func (g *KeyedMutex[K]) LockWithGuard(key K) *LockedResource[K] {
	g.Lock(key)
	return &LockedResource[K]{
		key:    key,
		unlock: func() { g.Unlock(key) },
	}
}

// RLockWithGuard acquires a read lock and returns a wrapper for convenient unlock handling.
func (g *KeyedMutex[K]) RLockWithGuard(key K) *LockedResource[K] {
	g.RLock(key)
	return &LockedResource[K]{
		key:    key,
		unlock: func() { g.RUnlock(key) },
	}
}

// Do runs fn while holding the write lock for key.
func (g *KeyedMutex[K]) Do(key K, fn func()) {
	g.Lock(key)
	defer g.Unlock(key)
	fn()
}
