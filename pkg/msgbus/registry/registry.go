// Copyright 2025 NetApp, Inc. All Rights Reserved.

// Package registry indexes subscriptions by listener class and by message type and
// resolves the ordered subscriptions a message is delivered to.
package registry

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	. "github.com/netapp/msgbus/logging"
	"github.com/netapp/msgbus/pkg/cache/generic_cache"
	"github.com/netapp/msgbus/pkg/convert"
	"github.com/netapp/msgbus/pkg/generic_syncpool"
	"github.com/netapp/msgbus/pkg/locks"
	"github.com/netapp/msgbus/pkg/msgbus/subscription"
	"github.com/netapp/msgbus/pkg/msgbus/types"
	"github.com/netapp/msgbus/utils/errors"
)

const (
	scratchInitialCap  = 16
	scratchMaxRetained = 1024
)

// index is an immutable snapshot of the message type index. Writers build a new one
// under indexMu and swap it in; readers never lock.
type index struct {
	byMessageType map[reflect.Type][]*subscription.Subscription
	// interfaces lists every interface type with at least one subscription.
	interfaces []reflect.Type
}

// resolution is a cached Resolve result tagged with the index generation it was computed from.
type resolution struct {
	generation    uint64
	subscriptions []*subscription.Subscription
}

// Registry owns every subscription of a bus. Subscriptions are created once per
// (listener class, handler) pair and kept for the life of the registry.
type Registry struct {
	describer types.Describer
	factory   *subscription.Factory

	nextID     atomic.Uint64
	classLocks *locks.KeyedMutex[reflect.Type]

	byListenerClass    sync.Map // map[reflect.Type][]*subscription.Subscription
	nonListenerClasses sync.Map // map[reflect.Type]error

	indexMu    sync.Mutex
	index      atomic.Pointer[index]
	generation atomic.Uint64

	resolved *generic_cache.SingleValueCache[reflect.Type, resolution]
	scratch  *generic_syncpool.SlicePool[*subscription.Subscription]
}

// New creates an empty registry that describes listener classes with describer and
// builds their subscriptions with factory.
func New(describer types.Describer, factory *subscription.Factory) *Registry {
	r := &Registry{
		describer:  describer,
		factory:    factory,
		classLocks: locks.NewKeyedMutex[reflect.Type](),
		resolved:   generic_cache.NewSingleValueCache[reflect.Type, resolution](),
		scratch:    generic_syncpool.NewSlicePool[*subscription.Subscription](scratchInitialCap, scratchMaxRetained),
	}
	r.index.Store(&index{byMessageType: map[reflect.Type][]*subscription.Subscription{}})
	return r
}

// Subscribe adds listener to every subscription of its class, registering the class on
// first use. Subscribing a listener twice has no further effect. Listeners whose class
// declares no handlers are ignored. Malformed handlers are skipped and reported in the
// returned error while the remaining handlers are subscribed.
func (r *Registry) Subscribe(ctx context.Context, listener any) error {
	class, err := listenerClass(listener)
	if err != nil {
		return err
	}

	subs, err := r.classSubscriptions(ctx, class)
	for _, sub := range subs {
		sub.Subscribe(listener)
	}
	return err
}

// Unsubscribe removes listener from every subscription of its class. It returns true only
// if the listener was subscribed to all of them.
func (r *Registry) Unsubscribe(listener any) bool {
	if _, err := listenerClass(listener); err != nil {
		return false
	}

	value, ok := r.byListenerClass.Load(reflect.TypeOf(listener))
	if !ok {
		return false
	}
	subs := value.([]*subscription.Subscription)

	found := len(subs) > 0
	for _, sub := range subs {
		if !sub.Unsubscribe(listener) {
			found = false
		}
	}
	return found
}

// Resolve returns the subscriptions a message of type messageType is delivered to,
// ordered by priority descending then id descending. The returned slice is shared and
// must not be modified.
func (r *Registry) Resolve(messageType reflect.Type) []*subscription.Subscription {
	if messageType == nil {
		return nil
	}

	// The generation is read before the index so a result is never tagged newer than
	// the index it was computed from.
	generation := r.generation.Load()
	res := r.resolved.GetOrCompute(messageType,
		func(cached resolution) bool { return cached.generation == generation },
		func() resolution {
			return resolution{generation: generation, subscriptions: r.resolve(messageType)}
		},
	)
	return res.subscriptions
}

func (r *Registry) resolve(messageType reflect.Type) []*subscription.Subscription {
	idx := r.index.Load()

	scratch := r.scratch.Get()
	defer r.scratch.Put(scratch)

	seen := roaring64.New()
	collect := func(declared reflect.Type) {
		for _, sub := range idx.byMessageType[declared] {
			if sub.Handler().Accepts(messageType, declared) && seen.CheckedAdd(sub.ID()) {
				*scratch = append(*scratch, sub)
			}
		}
	}

	collect(messageType)
	for _, ancestor := range Ancestors(messageType, idx.interfaces) {
		collect(ancestor)
	}

	if len(*scratch) == 0 {
		return nil
	}
	result := slices.Clone(*scratch)
	slices.SortFunc(result, subscription.Compare)
	return result
}

// classSubscriptions returns the subscriptions of class, creating them on first use.
func (r *Registry) classSubscriptions(ctx context.Context, class reflect.Type) ([]*subscription.Subscription, error) {
	if subs, ok := r.lookupClass(class); ok {
		return subs, nil
	}
	if err, ok := r.nonListenerClasses.Load(class); ok {
		return nil, asError(err)
	}

	defer r.classLocks.LockWithGuard(class).Unlock()

	if subs, ok := r.lookupClass(class); ok {
		return subs, nil
	}
	if err, ok := r.nonListenerClasses.Load(class); ok {
		return nil, asError(err)
	}

	ctx = WithLogLayer(ctx, LogLayerRegistry)
	className := convert.TypeName(class)
	fields := LogFields{"listenerClass": className}

	descriptors, err := r.describer.Describe(class)
	if err != nil {
		err = fmt.Errorf("could not describe listener class %s; %w", className, err)
		Logc(ctx).WithFields(fields).WithError(err).Error("Listener class cannot be registered.")
		r.nonListenerClasses.Store(class, err)
		return nil, err
	}

	valid, malformed := r.validate(ctx, class, descriptors)
	if len(valid) == 0 {
		Logc(ctx).WithFields(fields).Debug("Class declares no enabled handlers.")
		r.nonListenerClasses.Store(class, malformed)
		return nil, malformed
	}

	subs := make([]*subscription.Subscription, 0, len(valid))
	for _, handler := range valid {
		subs = append(subs, r.factory.New(r.nextID.Add(1), handler))
	}
	r.addToIndex(subs)
	r.byListenerClass.Store(class, subs)

	Logc(ctx).WithFields(fields).WithField("handlers", len(subs)).Debug("Registered listener class.")
	return subs, malformed
}

func (r *Registry) validate(
	ctx context.Context, class reflect.Type, descriptors []types.HandlerDescriptor,
) ([]types.HandlerDescriptor, error) {
	var malformed error
	valid := make([]types.HandlerDescriptor, 0, len(descriptors))

	for i, handler := range descriptors {
		if handler.Name == "" {
			handler.Name = fmt.Sprintf("%s#%d", convert.TypeName(class), i)
		}
		if handler.ListenerType == nil {
			handler.ListenerType = class
		}
		if !handler.Enabled {
			Logc(ctx).WithField("handler", handler.Name).Debug("Skipping disabled handler.")
			continue
		}
		if err := handler.Validate(); err != nil {
			Logc(ctx).WithField("handler", handler.Name).WithError(err).Warn("Skipping malformed handler.")
			malformed = errors.Append(malformed, errors.MalformedHandlerError(handler.Name, err.Error()))
			continue
		}
		if !handler.AcceptsSubtypes {
			for _, mt := range handler.MessageTypes {
				if mt.Kind() == reflect.Interface {
					Logc(ctx).WithFields(LogFields{
						"handler":     handler.Name,
						"messageType": convert.TypeName(mt),
					}).Warn("Handler declared on an interface without accepting subtypes never receives messages.")
				}
			}
		}
		valid = append(valid, handler)
	}
	return valid, malformed
}

// addToIndex publishes subs under their message types with a copy-on-write swap.
func (r *Registry) addToIndex(subs []*subscription.Subscription) {
	r.indexMu.Lock()
	defer r.indexMu.Unlock()

	current := r.index.Load()
	next := &index{
		byMessageType: maps.Clone(current.byMessageType),
		interfaces:    slices.Clone(current.interfaces),
	}

	for _, sub := range subs {
		for _, mt := range sub.MessageTypes() {
			existing, known := next.byMessageType[mt]
			if slices.Contains(existing, sub) {
				continue
			}
			updated := append(slices.Clone(existing), sub)
			slices.SortFunc(updated, subscription.Compare)
			next.byMessageType[mt] = updated

			if !known && mt.Kind() == reflect.Interface {
				next.interfaces = append(next.interfaces, mt)
			}
		}
	}

	r.index.Store(next)
	r.generation.Add(1)
}

func (r *Registry) lookupClass(class reflect.Type) ([]*subscription.Subscription, bool) {
	value, ok := r.byListenerClass.Load(class)
	if !ok {
		return nil, false
	}
	return value.([]*subscription.Subscription), true
}

// SubscriptionsFor returns the subscriptions declared directly for messageType, in
// delivery order.
func (r *Registry) SubscriptionsFor(messageType reflect.Type) []*subscription.Subscription {
	return slices.Clone(r.index.Load().byMessageType[messageType])
}

// ClassSubscriptions returns the subscriptions of a registered listener class.
func (r *Registry) ClassSubscriptions(class reflect.Type) []*subscription.Subscription {
	subs, _ := r.lookupClass(class)
	return slices.Clone(subs)
}

// ListenerClasses returns every registered listener class.
func (r *Registry) ListenerClasses() []reflect.Type {
	var classes []reflect.Type
	r.byListenerClass.Range(func(key, _ any) bool {
		classes = append(classes, key.(reflect.Type))
		return true
	})
	return classes
}

// SubscriptionCount returns the number of subscriptions across all listener classes.
func (r *Registry) SubscriptionCount() int {
	count := 0
	r.byListenerClass.Range(func(_, value any) bool {
		count += len(value.([]*subscription.Subscription))
		return true
	})
	return count
}

// IsNonListenerClass reports whether class was examined and found to declare no usable handlers.
func (r *Registry) IsNonListenerClass(class reflect.Type) bool {
	_, ok := r.nonListenerClasses.Load(class)
	return ok
}

// Generation increases every time the message type index changes.
func (r *Registry) Generation() uint64 {
	return r.generation.Load()
}

func listenerClass(listener any) (reflect.Type, error) {
	if listener == nil {
		return nil, errors.InvalidListenerError("listener cannot be nil")
	}
	v := reflect.ValueOf(listener)
	if v.Kind() != reflect.Pointer {
		return nil, errors.InvalidListenerError("listener %T is not a pointer", listener)
	}
	if v.IsNil() {
		return nil, errors.InvalidListenerError("listener %T is a nil pointer", listener)
	}
	return v.Type(), nil
}

func asError(value any) error {
	if value == nil {
		return nil
	}
	return value.(error)
}
