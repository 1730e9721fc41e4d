// Copyright 2025 NetApp, Inc. All Rights Reserved.

package cmd

import (
	"context"
	"reflect"
	"sync/atomic"

	"github.com/netapp/msgbus/pkg/msgbus/metadata"
	"github.com/netapp/msgbus/pkg/msgbus/types"
)

// Demo messages published by bench and listed by describe.
type (
	Auditable interface {
		AuditKey() string
	}

	VolumeEvent struct {
		Volume    string
		SizeBytes uint64
	}

	VolumeCreated struct {
		VolumeEvent
		Backend string
	}

	VolumeResized struct {
		VolumeEvent
		PreviousBytes uint64
	}

	VolumeDeleted struct {
		VolumeEvent
	}

	// NodeEvent has no listener and ends up as a dead message.
	NodeEvent struct {
		Node string
	}
)

func (e VolumeEvent) AuditKey() string { return "volume/" + e.Volume }

// largeVolumeBytes is the size above which the quota listener reacts.
const largeVolumeBytes = 1 << 30

// capacityListener keeps a running total of allocated bytes.
type capacityListener struct {
	allocated atomic.Int64
}

func (l *capacityListener) created(_ context.Context, m VolumeCreated) error {
	l.allocated.Add(int64(m.SizeBytes))
	return nil
}

func (l *capacityListener) resized(_ context.Context, m VolumeResized) error {
	l.allocated.Add(int64(m.SizeBytes) - int64(m.PreviousBytes))
	return nil
}

func (l *capacityListener) deleted(_ context.Context, m VolumeDeleted) error {
	l.allocated.Add(-int64(m.SizeBytes))
	return nil
}

// quotaListener sees large volume changes through one enveloped handler.
type quotaListener struct {
	large atomic.Int64
}

func (l *quotaListener) changed(_ context.Context, e types.Envelope) error {
	l.large.Add(1)
	return nil
}

// auditListener is described by reflection.
type auditListener struct {
	records atomic.Int64
}

func (l *auditListener) HandleAudit(_ context.Context, _ Auditable) error {
	l.records.Add(1)
	return nil
}

func (l *auditListener) HandlerOptions() map[string][]metadata.HandlerOption {
	return map[string][]metadata.HandlerOption{
		"HandleAudit": {metadata.WithPriority(-10), metadata.Async(), metadata.Synchronized()},
	}
}

// deadLetterListener counts messages nobody received.
type deadLetterListener struct {
	dead atomic.Int64
}

func (l *deadLetterListener) HandleDead(_ context.Context, _ types.DeadMessage) error {
	l.dead.Add(1)
	return nil
}

var largeVolumeFilter = types.FilterFunc(
	func(_ context.Context, message any, _ *types.HandlerDescriptor) (bool, error) {
		switch m := message.(type) {
		case VolumeCreated:
			return m.SizeBytes > largeVolumeBytes, nil
		case VolumeResized:
			return m.SizeBytes > largeVolumeBytes, nil
		default:
			return false, nil
		}
	})

// demoListenerClasses lists the listener classes in the order describe prints them.
var demoListenerClasses = []reflect.Type{
	reflect.TypeFor[*capacityListener](),
	reflect.TypeFor[*quotaListener](),
	reflect.TypeFor[*auditListener](),
	reflect.TypeFor[*deadLetterListener](),
}

// demoCatalog describes the builder-declared demo listeners and falls back to reflection
// for the rest.
func demoCatalog() (*metadata.Catalog, error) {
	catalog := metadata.NewCatalog(metadata.Reflective{})

	if err := metadata.For[*capacityListener]().Handle(
		metadata.On((*capacityListener).created, metadata.WithPriority(10)),
		metadata.On((*capacityListener).resized, metadata.WithPriority(10)),
		metadata.On((*capacityListener).deleted, metadata.WithPriority(10), metadata.Synchronized()),
	).Register(catalog); err != nil {
		return nil, err
	}

	if err := metadata.For[*quotaListener]().Handle(
		metadata.OnEnvelope((*quotaListener).changed,
			[]reflect.Type{reflect.TypeFor[VolumeCreated](), reflect.TypeFor[VolumeResized]()},
			metadata.WithFilters(largeVolumeFilter),
		),
	).Register(catalog); err != nil {
		return nil, err
	}

	return catalog, nil
}
