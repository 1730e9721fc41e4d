// Copyright 2025 NetApp, Inc. All Rights Reserved.

package metadata

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/netapp/msgbus/config"
	"github.com/netapp/msgbus/pkg/msgbus/types"
)

// Handler is one handler of listener class L, built by On or OnEnvelope.
type Handler[L any] struct {
	descriptor types.HandlerDescriptor
}

// Descriptor returns the handler descriptor.
func (h Handler[L]) Descriptor() types.HandlerDescriptor {
	return h.descriptor
}

// On declares a handler for messages of type M. fn is usually a method expression:
//
//	metadata.On((*OrderListener).Created, metadata.WithPriority(10))
func On[L, M any](fn func(L, context.Context, M) error, opts ...HandlerOption) Handler[L] {
	d := newDescriptor(append([]HandlerOption{WithName(funcName(fn))}, opts...))
	d.ListenerType = reflect.TypeFor[L]()
	d.MessageTypes = []reflect.Type{reflect.TypeFor[M]()}
	d.Envelope = false
	d.Invoke = func(ctx context.Context, listener, message any) error {
		l, ok := listener.(L)
		if !ok {
			return fmt.Errorf("listener %T is not a %s", listener, d.ListenerType)
		}
		m, ok := types.As[M](message)
		if !ok {
			return fmt.Errorf("message %s cannot be delivered as %s",
				types.MessageTypeName(message), d.MessageTypes[0])
		}
		return fn(l, ctx, m)
	}
	return Handler[L]{descriptor: d}
}

// OnEnvelope declares a handler receiving any of messageTypes wrapped in an Envelope.
func OnEnvelope[L any](
	fn func(L, context.Context, types.Envelope) error, messageTypes []reflect.Type, opts ...HandlerOption,
) Handler[L] {
	d := newDescriptor(append([]HandlerOption{WithName(funcName(fn))}, opts...))
	d.ListenerType = reflect.TypeFor[L]()
	d.MessageTypes = append([]reflect.Type(nil), messageTypes...)
	d.Envelope = true
	d.Invoke = func(ctx context.Context, listener, message any) error {
		l, ok := listener.(L)
		if !ok {
			return fmt.Errorf("listener %T is not a %s", listener, d.ListenerType)
		}
		envelope, ok := message.(types.Envelope)
		if !ok {
			return fmt.Errorf("message %s is not an envelope", types.MessageTypeName(message))
		}
		return fn(l, ctx, envelope)
	}
	return Handler[L]{descriptor: d}
}

// ClassBuilder collects the handlers of listener class L.
type ClassBuilder[L any] struct {
	ownership config.Ownership
	handlers  []Handler[L]
}

// For starts describing listener class L, which must be a pointer type.
func For[L any]() *ClassBuilder[L] {
	return &ClassBuilder[L]{}
}

// Ownership sets how the bus references listeners of this class. Empty uses the bus default.
func (b *ClassBuilder[L]) Ownership(ownership config.Ownership) *ClassBuilder[L] {
	b.ownership = ownership
	return b
}

// Handle adds handlers to the class.
func (b *ClassBuilder[L]) Handle(handlers ...Handler[L]) *ClassBuilder[L] {
	b.handlers = append(b.handlers, handlers...)
	return b
}

// Descriptors returns the handler descriptors of the class.
func (b *ClassBuilder[L]) Descriptors() []types.HandlerDescriptor {
	descriptors := make([]types.HandlerDescriptor, 0, len(b.handlers))
	for _, h := range b.handlers {
		d := h.descriptor
		d.Filters = append([]types.Filter(nil), d.Filters...)
		if d.Ownership == "" {
			d.Ownership = b.ownership
		}
		descriptors = append(descriptors, d)
	}
	return descriptors
}

// Register adds the class to catalog, replacing any earlier registration of L.
func (b *ClassBuilder[L]) Register(catalog *Catalog) error {
	return catalog.register(reflect.TypeFor[L](), b.Descriptors())
}

// funcName derives a short handler name, e.g. "OrderListener.Created", from a function.
func funcName(fn any) string {
	f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if f == nil {
		return ""
	}
	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, "-fm")
	return strings.NewReplacer("(", "", ")", "", "*", "").Replace(name)
}
