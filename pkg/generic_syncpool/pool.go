// Copyright 2025 NetApp, Inc. All Rights Reserved.

package generic_syncpool

import "sync"

// Pool is a generic wrapper around sync.Pool that provides type-safe Get and Put methods.
//
// Example usage:
//
//	pool := generic_syncpool.NewPool(func() *bytes.Buffer { return &bytes.Buffer{} })
//	buf := pool.Get()
//	// ... use buf ...
//	pool.Put(buf)
type Pool[T any] struct {
	sync.Pool
}

// Get retrieves a value from the pool and returns it with the correct type.
func (p *Pool[T]) Get() T {
	return p.Pool.Get().(T)
}

// Put adds a value back to the pool for reuse.
func (p *Pool[T]) Put(x T) {
	p.Pool.Put(x)
}

// NewPool creates a new generic Pool with the given constructor function.
func NewPool[T any](newF func() T) *Pool[T] {
	return &Pool[T]{
		Pool: sync.Pool{
			New: func() any {
				return newF()
			},
		},
	}
}

// SlicePool hands out scratch slices that are emptied before reuse. Slices that grew
// beyond maxRetained are dropped instead of returned, so one large burst does not pin memory.
type SlicePool[T any] struct {
	pool        *Pool[*[]T]
	maxRetained int
}

// NewSlicePool creates a SlicePool whose slices start with the given capacity.
func NewSlicePool[T any](initialCap, maxRetained int) *SlicePool[T] {
	return &SlicePool[T]{
		pool: NewPool(func() *[]T {
			s := make([]T, 0, initialCap)
			return &s
		}),
		maxRetained: maxRetained,
	}
}

// Get returns an empty slice pointer.
func (p *SlicePool[T]) Get() *[]T {
	s := p.pool.Get()
	*s = (*s)[:0]
	return s
}

// Put clears the slice and returns it to the pool.
func (p *SlicePool[T]) Put(s *[]T) {
	if s == nil || cap(*s) > p.maxRetained {
		return
	}
	clear(*s)
	*s = (*s)[:0]
	p.pool.Put(s)
}
