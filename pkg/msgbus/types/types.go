// Copyright 2025 NetApp, Inc. All Rights Reserved.

// Package types defines the values shared by the registry, the dispatch pipeline and
// the publication state machine: handler descriptors, the collaborator interfaces
// (Describer, Filter, ErrorHandler) and the synthetic message wrappers.
package types

//go:generate mockgen -destination=../../../mocks/mock_pkg/mock_msgbus/mock_types.go -package=mock_msgbus github.com/netapp/msgbus/pkg/msgbus/types Describer,Filter,ErrorHandler

import (
	"context"
	"fmt"
	"reflect"

	"github.com/netapp/msgbus/config"
	"github.com/netapp/msgbus/pkg/convert"
)

// Delivery selects where a handler runs relative to the publishing goroutine.
type Delivery int

const (
	// DeliverySync runs the handler on the goroutine executing the publication.
	DeliverySync Delivery = iota
	// DeliveryAsync hands the handler call to the bus worker pool.
	DeliveryAsync
)

func (d Delivery) String() string {
	switch d {
	case DeliverySync:
		return "sync"
	case DeliveryAsync:
		return "async"
	default:
		return fmt.Sprintf("Delivery(%d)", int(d))
	}
}

// InvokeFunc calls one handler on one listener. listener is always of the descriptor's
// ListenerType; message is the published message, or an Envelope for enveloped handlers.
type InvokeFunc func(ctx context.Context, listener, message any) error

// HandlerDescriptor describes one handler of a listener class. Descriptors are produced
// once per class by a Describer and are treated as immutable afterwards.
type HandlerDescriptor struct {
	// Name identifies the handler in logs, errors and metrics, e.g. "OrderListener.HandleCreated".
	Name string
	// ListenerType is the listener class owning this handler.
	ListenerType reflect.Type
	// MessageTypes lists the declared message types. More than one requires Envelope.
	MessageTypes []reflect.Type
	// Priority orders handlers of one message; higher runs earlier.
	Priority int
	// AcceptsSubtypes delivers messages whose type has a declared type among its ancestors.
	AcceptsSubtypes bool
	Delivery        Delivery
	// Synchronized serializes deliveries to each listener instance.
	Synchronized bool
	// Envelope wraps the message in an Envelope before invoking the handler.
	Envelope bool
	// Filters must all accept a message before it is delivered.
	Filters []Filter
	// Ownership of listener instances; empty uses the bus default.
	Ownership config.Ownership
	// Enabled handlers produce a subscription; disabled ones are skipped.
	Enabled bool
	Invoke  InvokeFunc
}

// Accepts reports whether a message of the given concrete type, whose ancestors include
// declared, is deliverable to this handler.
func (d *HandlerDescriptor) Accepts(messageType, declared reflect.Type) bool {
	if messageType == declared {
		return true
	}
	return d.AcceptsSubtypes
}

// Validate reports the first structural problem with the descriptor, or nil.
func (d *HandlerDescriptor) Validate() error {
	switch {
	case d.Invoke == nil:
		return fmt.Errorf("has no invoke function")
	case len(d.MessageTypes) == 0:
		return fmt.Errorf("declares no message types")
	case !d.Envelope && len(d.MessageTypes) > 1:
		return fmt.Errorf("declares %d message types without an envelope", len(d.MessageTypes))
	case d.Ownership != "" && !config.IsValidOwnership(d.Ownership):
		return fmt.Errorf("has unknown ownership %q", d.Ownership)
	case d.Delivery != DeliverySync && d.Delivery != DeliveryAsync:
		return fmt.Errorf("has unknown delivery %v", d.Delivery)
	}
	for i, mt := range d.MessageTypes {
		if mt == nil {
			return fmt.Errorf("declares a nil message type at position %d", i)
		}
	}
	return nil
}

func (d *HandlerDescriptor) String() string {
	return d.Name
}

// Describer produces the handler descriptors of a listener class. It is called at most
// once per class; returning no descriptors marks the class as a non-listener.
type Describer interface {
	Describe(listenerType reflect.Type) ([]HandlerDescriptor, error)
}

// DescriberFunc adapts a function to the Describer interface.
type DescriberFunc func(listenerType reflect.Type) ([]HandlerDescriptor, error)

func (f DescriberFunc) Describe(listenerType reflect.Type) ([]HandlerDescriptor, error) {
	return f(listenerType)
}

// Filter decides whether a message reaches a handler. A returned error counts as a rejection
// and is reported as a filter evaluation error.
type Filter interface {
	Accepts(ctx context.Context, message any, handler *HandlerDescriptor) (bool, error)
}

// FilterFunc adapts a function to the Filter interface.
type FilterFunc func(ctx context.Context, message any, handler *HandlerDescriptor) (bool, error)

func (f FilterFunc) Accepts(ctx context.Context, message any, handler *HandlerDescriptor) (bool, error) {
	return f(ctx, message, handler)
}

// ErrorHandler receives every error caught while dispatching a publication.
type ErrorHandler interface {
	Handle(ctx context.Context, err *PublicationError)
}

// ErrorHandlerFunc adapts a function to the ErrorHandler interface.
type ErrorHandlerFunc func(ctx context.Context, err *PublicationError)

func (f ErrorHandlerFunc) Handle(ctx context.Context, err *PublicationError) {
	f(ctx, err)
}

// PublicationError carries an error caught during dispatch together with where it happened.
type PublicationError struct {
	Cause         error
	Handler       *HandlerDescriptor
	Listener      any
	Message       any
	PublicationID string
}

func (e *PublicationError) Error() string {
	handler := "<none>"
	if e.Handler != nil {
		handler = e.Handler.Name
	}
	return fmt.Sprintf("publication %s of %s to handler %s failed; %v",
		e.PublicationID, MessageTypeName(e.Message), handler, e.Cause)
}

func (e *PublicationError) Unwrap() error { return e.Cause }

// Publication is the view of an in-flight publication the dispatch pipeline works against.
type Publication interface {
	ID() string
	Context() context.Context
	Message() any
	// MarkDelivered records that the message was handed to one listener.
	MarkDelivered()
	// MarkFiltered records that one subscription rejected the message.
	MarkFiltered()
	HandleError(err *PublicationError)
}

// Envelope carries a message to handlers declared for several message types.
type Envelope struct {
	Message any
}

// MessageType returns the concrete type of the carried message.
func (e Envelope) MessageType() reflect.Type {
	return reflect.TypeOf(e.Message)
}

// EnvelopeAs returns the carried message as M if it is one.
func EnvelopeAs[M any](e Envelope) (M, bool) {
	m, ok := e.Message.(M)
	return m, ok
}

// DeadMessage wraps a message that no listener received.
type DeadMessage struct {
	Message any
}

// FilteredMessage wraps a message that every matching subscription filtered out.
type FilteredMessage struct {
	Message any
}

// MessageTypeName returns a short type name for a message, for logs and metric labels.
func MessageTypeName(message any) string {
	return convert.TypeName(reflect.TypeOf(message))
}
