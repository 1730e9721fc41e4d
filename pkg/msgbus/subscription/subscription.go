// Copyright 2025 NetApp, Inc. All Rights Reserved.

// Package subscription binds a handler descriptor to the live set of listener instances
// registered for it, together with the dispatch pipeline built once from the descriptor.
package subscription

import (
	"cmp"
	"reflect"

	"github.com/netapp/msgbus/config"
	"github.com/netapp/msgbus/pkg/locks"
	"github.com/netapp/msgbus/pkg/msgbus/listenerset"
	"github.com/netapp/msgbus/pkg/msgbus/types"
	workerpooltypes "github.com/netapp/msgbus/pkg/workerpool/types"
)

// Subscription is created once per (listener class, handler) pair and lives as long as
// the registry that created it. Its listener set may become empty but is never removed.
type Subscription struct {
	id         uint64
	handler    *types.HandlerDescriptor
	listeners  *listenerset.ListenerSet
	dispatcher Dispatcher
}

// ID is unique per registry and used only to break priority ties.
func (s *Subscription) ID() uint64 { return s.id }

// Handler returns the descriptor this subscription was built from.
func (s *Subscription) Handler() *types.HandlerDescriptor { return s.handler }

// Priority is the handler priority.
func (s *Subscription) Priority() int { return s.handler.Priority }

// MessageTypes returns the declared message types.
func (s *Subscription) MessageTypes() []reflect.Type { return s.handler.MessageTypes }

// Listeners exposes the listener set.
func (s *Subscription) Listeners() *listenerset.ListenerSet { return s.listeners }

// Subscribe adds listener, returning false if it was already present.
func (s *Subscription) Subscribe(listener any) bool {
	return s.listeners.Add(listener)
}

// Unsubscribe removes listener, returning whether it was present.
func (s *Subscription) Unsubscribe(listener any) bool {
	found, _ := s.listeners.TryRemove(listener)
	return found
}

// Contains reports whether listener is subscribed.
func (s *Subscription) Contains(listener any) bool {
	return s.listeners.Contains(listener)
}

// Size returns the number of subscribed listeners.
func (s *Subscription) Size() int {
	return s.listeners.Size()
}

// Publish runs the dispatch pipeline for message against the current listeners.
// Subscriptions without listeners are skipped and count neither as delivered nor filtered.
func (s *Subscription) Publish(pub types.Publication, message any) {
	if s.listeners.IsEmpty() {
		return
	}
	s.dispatcher.Dispatch(pub, message, s.listeners.All())
}

// Compare orders subscriptions by priority descending, then id descending.
func Compare(a, b *Subscription) int {
	if c := cmp.Compare(b.handler.Priority, a.handler.Priority); c != 0 {
		return c
	}
	return cmp.Compare(b.id, a.id)
}

// Factory builds subscriptions that share one worker pool and one per-listener lock table.
type Factory struct {
	pool             workerpooltypes.Pool
	listenerLocks    *locks.KeyedMutex[any]
	defaultOwnership config.Ownership
}

// NewFactory creates a Factory. pool may be nil, in which case asynchronous handlers run inline.
func NewFactory(pool workerpooltypes.Pool, defaultOwnership config.Ownership) *Factory {
	return &Factory{
		pool:             pool,
		listenerLocks:    locks.NewKeyedMutex[any](),
		defaultOwnership: defaultOwnership,
	}
}

// New creates a subscription with the given id for handler.
func (f *Factory) New(id uint64, handler types.HandlerDescriptor) *Subscription {
	h := &handler
	h.Filters = append([]types.Filter(nil), handler.Filters...)
	h.MessageTypes = append([]reflect.Type(nil), handler.MessageTypes...)

	ownership := h.Ownership
	if ownership == "" {
		ownership = f.defaultOwnership
	}

	return &Subscription{
		id:         id,
		handler:    h,
		listeners:  listenerset.New(ownership),
		dispatcher: newDispatcher(h, f.pool, f.listenerLocks),
	}
}
