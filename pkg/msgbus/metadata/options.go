// Copyright 2025 NetApp, Inc. All Rights Reserved.

package metadata

import (
	"github.com/netapp/msgbus/pkg/msgbus/types"
)

// HandlerOption adjusts a handler descriptor built by this package.
type HandlerOption func(*types.HandlerDescriptor)

// WithName overrides the generated handler name.
func WithName(name string) HandlerOption {
	return func(d *types.HandlerDescriptor) {
		d.Name = name
	}
}

// WithPriority sets the handler priority; higher runs earlier.
func WithPriority(priority int) HandlerOption {
	return func(d *types.HandlerDescriptor) {
		d.Priority = priority
	}
}

// RejectSubtypes restricts the handler to messages of exactly the declared type.
func RejectSubtypes() HandlerOption {
	return func(d *types.HandlerDescriptor) {
		d.AcceptsSubtypes = false
	}
}

// Async runs the handler on the bus worker pool.
func Async() HandlerOption {
	return func(d *types.HandlerDescriptor) {
		d.Delivery = types.DeliveryAsync
	}
}

// Synchronized allows one delivery at a time per listener instance.
func Synchronized() HandlerOption {
	return func(d *types.HandlerDescriptor) {
		d.Synchronized = true
	}
}

// WithFilters adds filters that must all accept a message before it is delivered.
func WithFilters(filters ...types.Filter) HandlerOption {
	return func(d *types.HandlerDescriptor) {
		d.Filters = append(d.Filters, filters...)
	}
}

// Disabled keeps the handler from producing a subscription.
func Disabled() HandlerOption {
	return func(d *types.HandlerDescriptor) {
		d.Enabled = false
	}
}

// defaults are applied before any option: enabled, synchronous, accepting subtypes.
func newDescriptor(opts []HandlerOption) types.HandlerDescriptor {
	d := types.HandlerDescriptor{
		AcceptsSubtypes: true,
		Delivery:        types.DeliverySync,
		Enabled:         true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&d)
		}
	}
	return d
}
