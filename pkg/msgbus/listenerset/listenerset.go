// Copyright 2025 NetApp, Inc. All Rights Reserved.

// Package listenerset provides the concurrent set of listener instances held by a subscription.
//
// Inserts go to the head of a singly linked chain, so an iterator already past the head
// never sees a new element twice or loses one. Removal unlinks a node in place but keeps
// the node's next pointer, so an iterator parked on a removed node can still advance.
// A mutex guards structural changes only; iteration is lock-free.
package listenerset

import (
	"iter"
	"reflect"
	"sync"
	"sync/atomic"
	"unsafe"
	"weak"

	"github.com/netapp/msgbus/config"
)

type node struct {
	key any

	// Exactly one of strong or weak is set.
	strong any
	weak   weak.Pointer[byte]
	elem   reflect.Type

	next    atomic.Pointer[node]
	prev    *node // guarded by ListenerSet.mu
	removed atomic.Bool
}

// value returns the listener, or false if a weakly held listener has been collected.
func (n *node) value() (any, bool) {
	if n.strong != nil {
		return n.strong, true
	}
	p := n.weak.Value()
	if p == nil {
		return nil, false
	}
	return reflect.NewAt(n.elem, unsafe.Pointer(p)).Interface(), true
}

// ListenerSet is a set of listener instances with strong or weak ownership.
type ListenerSet struct {
	ownership config.Ownership

	mu    sync.Mutex
	index map[any]*node // guarded by mu
	head  atomic.Pointer[node]
	size  atomic.Int64
}

// New creates an empty set. Unknown ownership values fall back to strong.
func New(ownership config.Ownership) *ListenerSet {
	if ownership != config.OwnershipWeak {
		ownership = config.OwnershipStrong
	}
	return &ListenerSet{
		ownership: ownership,
		index:     make(map[any]*node),
	}
}

// Ownership returns how the set holds its listeners.
func (s *ListenerSet) Ownership() config.Ownership {
	return s.ownership
}

// weakTarget returns the element type and address of a listener that can be held weakly.
// Non-pointers and pointers to zero-size values are always held strongly, since they do not
// identify a distinct heap object.
func (s *ListenerSet) weakTarget(listener any) (reflect.Type, unsafe.Pointer, bool) {
	if s.ownership != config.OwnershipWeak {
		return nil, nil, false
	}
	v := reflect.ValueOf(listener)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Type().Elem().Size() == 0 {
		return nil, nil, false
	}
	return v.Type().Elem(), v.UnsafePointer(), true
}

// keyOf returns the index key for a listener without retaining it strongly when weak.
func (s *ListenerSet) keyOf(listener any) any {
	if _, p, ok := s.weakTarget(listener); ok {
		return weak.Make((*byte)(p))
	}
	return listener
}

func (s *ListenerSet) newNode(listener any) *node {
	if elem, p, ok := s.weakTarget(listener); ok {
		wp := weak.Make((*byte)(p))
		return &node{key: wp, weak: wp, elem: elem}
	}
	return &node{key: listener, strong: listener}
}

// Add inserts listener at the head of the set. It returns false if listener was already present.
func (s *ListenerSet) Add(listener any) bool {
	if listener == nil {
		return false
	}
	n := s.newNode(listener)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.index[n.key]; ok {
		if _, alive := existing.value(); alive {
			return false
		}
		s.unlinkLocked(existing)
	}

	head := s.head.Load()
	n.next.Store(head)
	if head != nil {
		head.prev = n
	}
	s.head.Store(n)
	s.index[n.key] = n
	s.size.Add(1)
	return true
}

// Remove removes listener and returns true if the set is empty afterwards.
func (s *ListenerSet) Remove(listener any) bool {
	_, empty := s.TryRemove(listener)
	return empty
}

// TryRemove removes listener, reporting whether it was present and whether the set is now empty.
func (s *ListenerSet) TryRemove(listener any) (found, empty bool) {
	if listener == nil {
		return false, s.IsEmpty()
	}
	key := s.keyOf(listener)

	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.index[key]; ok {
		_, found = n.value()
		s.unlinkLocked(n)
	}
	return found, s.head.Load() == nil
}

// Contains reports whether listener is in the set. Collected weak entries are purged.
func (s *ListenerSet) Contains(listener any) bool {
	if listener == nil {
		return false
	}
	key := s.keyOf(listener)

	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.index[key]
	if !ok {
		return false
	}
	if _, alive := n.value(); !alive {
		s.unlinkLocked(n)
		return false
	}
	return true
}

// Size returns the number of live listeners. For weak sets this walks the chain,
// purging collected entries on the way.
func (s *ListenerSet) Size() int {
	if s.ownership != config.OwnershipWeak {
		return int(s.size.Load())
	}
	count := 0
	for range s.All() {
		count++
	}
	return count
}

// IsEmpty reports whether the set holds no live listener.
func (s *ListenerSet) IsEmpty() bool {
	for range s.All() {
		return false
	}
	return true
}

// All returns a lazy sequence over the live listeners, most recently added first.
// Each call starts a fresh traversal. Listeners removed before the traversal reaches
// them are skipped; listeners added after it started may or may not be visited.
func (s *ListenerSet) All() iter.Seq[any] {
	return func(yield func(any) bool) {
		for n := s.head.Load(); n != nil; n = n.next.Load() {
			if n.removed.Load() {
				continue
			}
			listener, alive := n.value()
			if !alive {
				s.purge(n)
				continue
			}
			if !yield(listener) {
				return
			}
		}
	}
}

// Clear removes every listener.
func (s *ListenerSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for n := s.head.Load(); n != nil; n = n.next.Load() {
		n.removed.Store(true)
	}
	s.head.Store(nil)
	s.index = make(map[any]*node)
	s.size.Store(0)
}

func (s *ListenerSet) purge(n *node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !n.removed.Load() {
		s.unlinkLocked(n)
	}
}

// unlinkLocked removes n from the chain. n.next is left intact for in-flight iterators.
func (s *ListenerSet) unlinkLocked(n *node) {
	if n.removed.Load() {
		return
	}
	next := n.next.Load()
	if n.prev == nil {
		s.head.Store(next)
	} else {
		n.prev.next.Store(next)
	}
	if next != nil {
		next.prev = n.prev
	}
	n.removed.Store(true)
	n.prev = nil
	if s.index[n.key] == n {
		delete(s.index, n.key)
	}
	s.size.Add(-1)
}
