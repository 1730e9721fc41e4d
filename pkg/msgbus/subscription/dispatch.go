// Copyright 2025 NetApp, Inc. All Rights Reserved.

package subscription

import (
	"fmt"
	"iter"

	. "github.com/netapp/msgbus/logging"
	"github.com/netapp/msgbus/pkg/locks"
	"github.com/netapp/msgbus/pkg/msgbus/types"
	workerpooltypes "github.com/netapp/msgbus/pkg/workerpool/types"
	"github.com/netapp/msgbus/utils/errors"
)

// Dispatcher delivers one message of a publication to the listeners of one subscription.
type Dispatcher interface {
	Dispatch(pub types.Publication, message any, listeners iter.Seq[any])
}

// Invocation calls the handler on a single listener.
type Invocation interface {
	Invoke(pub types.Publication, listener, message any)
}

func reportError(pub types.Publication, handler *types.HandlerDescriptor, listener, message any, cause error) {
	pub.HandleError(&types.PublicationError{
		Cause:         cause,
		Handler:       handler,
		Listener:      listener,
		Message:       message,
		PublicationID: pub.ID(),
	})
}

// ============================================================================
// Dispatchers
// ============================================================================

// baseDispatcher invokes the handler once per listener.
type baseDispatcher struct {
	invocation Invocation
}

func (d *baseDispatcher) Dispatch(pub types.Publication, message any, listeners iter.Seq[any]) {
	for listener := range listeners {
		pub.MarkDelivered()
		d.invocation.Invoke(pub, listener, message)
	}
}

// envelopeDispatcher wraps the message before handing it on.
type envelopeDispatcher struct {
	next Dispatcher
}

func (d *envelopeDispatcher) Dispatch(pub types.Publication, message any, listeners iter.Seq[any]) {
	d.next.Dispatch(pub, types.Envelope{Message: message}, listeners)
}

// filterDispatcher hands the message on only if every filter accepts it.
type filterDispatcher struct {
	handler *types.HandlerDescriptor
	next    Dispatcher
}

func (d *filterDispatcher) Dispatch(pub types.Publication, message any, listeners iter.Seq[any]) {
	for _, filter := range d.handler.Filters {
		if !d.accepts(pub, filter, message) {
			pub.MarkFiltered()
			return
		}
	}
	d.next.Dispatch(pub, message, listeners)
}

func (d *filterDispatcher) accepts(pub types.Publication, filter types.Filter, message any) (accepted bool) {
	defer func() {
		if r := recover(); r != nil {
			reportError(pub, d.handler, nil, message,
				errors.WrapWithFilterEvaluationError(fmt.Errorf("panic: %v", r), d.handler.Name))
			accepted = false
		}
	}()

	accepted, err := filter.Accepts(pub.Context(), message, d.handler)
	if err != nil {
		reportError(pub, d.handler, nil, message, errors.WrapWithFilterEvaluationError(err, d.handler.Name))
		return false
	}
	return accepted
}

// ============================================================================
// Invocations
// ============================================================================

// rawInvocation calls the handler and converts returned errors and panics into publication errors.
type rawInvocation struct {
	handler *types.HandlerDescriptor
}

func (i *rawInvocation) Invoke(pub types.Publication, listener, message any) {
	ctx := WithHandler(pub.Context(), i.handler.Name)

	var err error
	inFlight := HandlerInvocationInFlightTelemeter(ctx)
	duration := HandlerInvocationDurationTelemeter(ctx)
	defer func() {
		if r := recover(); r != nil {
			err = errors.HandlerPanicError(r, i.handler.Name)
		}
		inFlight(&err)
		duration(&err)
		if err != nil {
			reportError(pub, i.handler, listener, message, err)
		}
	}()

	if invokeErr := i.handler.Invoke(ctx, listener, message); invokeErr != nil {
		err = errors.WrapWithHandlerInvocationError(invokeErr, i.handler.Name)
	}
}

// synchronizedInvocation allows one delivery at a time per listener instance, across
// every synchronized handler sharing the same lock table.
type synchronizedInvocation struct {
	locks *locks.KeyedMutex[any]
	next  Invocation
}

func (i *synchronizedInvocation) Invoke(pub types.Publication, listener, message any) {
	i.locks.Lock(listener)
	defer i.locks.Unlock(listener)
	i.next.Invoke(pub, listener, message)
}

// asyncInvocation runs the rest of the chain on the worker pool.
type asyncInvocation struct {
	handler *types.HandlerDescriptor
	pool    workerpooltypes.Pool
	next    Invocation
}

func (i *asyncInvocation) Invoke(pub types.Publication, listener, message any) {
	err := i.pool.Submit(pub.Context(), func() {
		i.next.Invoke(pub, listener, message)
	})
	if err != nil {
		Logc(pub.Context()).WithError(err).WithField("handler", i.handler.Name).
			Debug("Could not submit asynchronous handler invocation.")
		reportError(pub, i.handler, listener, message, errors.WrapWithHandlerInvocationError(err, i.handler.Name))
	}
}

// newDispatcher composes the pipeline for a descriptor, outermost first:
// filter, envelope, base dispatch, async offload, synchronized, raw call.
func newDispatcher(
	handler *types.HandlerDescriptor, pool workerpooltypes.Pool, listenerLocks *locks.KeyedMutex[any],
) Dispatcher {
	var invocation Invocation = &rawInvocation{handler: handler}
	if handler.Synchronized {
		invocation = &synchronizedInvocation{locks: listenerLocks, next: invocation}
	}
	if handler.Delivery == types.DeliveryAsync && pool != nil {
		invocation = &asyncInvocation{handler: handler, pool: pool, next: invocation}
	}

	var dispatcher Dispatcher = &baseDispatcher{invocation: invocation}
	if handler.Envelope {
		dispatcher = &envelopeDispatcher{next: dispatcher}
	}
	if len(handler.Filters) > 0 {
		dispatcher = &filterDispatcher{handler: handler, next: dispatcher}
	}
	return dispatcher
}
