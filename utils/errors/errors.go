// Copyright 2025 NetApp, Inc. All Rights Reserved.

package errors

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// ///////////////////////////////////////////////////////////////////////////
// Wrappers for standard library errors package
// ///////////////////////////////////////////////////////////////////////////

func New(message string) error {
	return errors.New(message)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Unwrap(err error) error {
	return errors.Unwrap(err)
}

func Join(errs ...error) error {
	return errors.Join(errs...)
}

// ///////////////////////////////////////////////////////////////////////////
// Wrappers for multierr
// ///////////////////////////////////////////////////////////////////////////

// Append combines two errors, either of which may be nil.
func Append(left, right error) error {
	return multierr.Append(left, right)
}

// Errors flattens a combined error into its parts.
func Errors(err error) []error {
	return multierr.Errors(err)
}

// ///////////////////////////////////////////////////////////////////////////
// notFoundError
// ///////////////////////////////////////////////////////////////////////////

type notFoundError struct {
	inner   error
	message string
}

func (e *notFoundError) Error() string {
	if e.inner == nil || e.inner.Error() == "" {
		return e.message
	} else if e.message == "" {
		return e.inner.Error()
	}
	return fmt.Sprintf("%v; %v", e.message, e.inner.Error())
}

func (e *notFoundError) Unwrap() error { return e.inner }

func WrapWithNotFoundError(err error, message string, a ...any) error {
	return &notFoundError{
		inner:   err,
		message: fmt.Sprintf(message, a...),
	}
}

func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var errPtr *notFoundError
	return errors.As(err, &errPtr)
}

// ///////////////////////////////////////////////////////////////////////////
// unsupportedConfigError
// ///////////////////////////////////////////////////////////////////////////

type unsupportedConfigError struct {
	message string
}

func (e *unsupportedConfigError) Error() string { return e.message }

func UnsupportedConfigError(message string, a ...any) error {
	if len(a) == 0 {
		return &unsupportedConfigError{message: message}
	}
	return &unsupportedConfigError{message: fmt.Sprintf(message, a...)}
}

func WrapUnsupportedConfigError(err error) error {
	if err == nil {
		return nil
	}
	return multierr.Combine(UnsupportedConfigError("unsupported config error"), err)
}

func IsUnsupportedConfigError(err error) bool {
	if err == nil {
		return false
	}
	var errPointer *unsupportedConfigError
	return errors.As(err, &errPointer)
}

// ///////////////////////////////////////////////////////////////////////////
// handlerInvocationError
// ///////////////////////////////////////////////////////////////////////////

// handlerInvocationError wraps a failure raised by handler code, either a returned
// error or a recovered panic.
type handlerInvocationError struct {
	inner   error
	handler string
	panic   bool
}

func (e *handlerInvocationError) Error() string {
	if e.panic {
		return fmt.Sprintf("handler %s panicked; %v", e.handler, e.inner)
	}
	return fmt.Sprintf("handler %s failed; %v", e.handler, e.inner)
}

func (e *handlerInvocationError) Unwrap() error { return e.inner }

func WrapWithHandlerInvocationError(err error, handler string) error {
	return &handlerInvocationError{inner: err, handler: handler}
}

// HandlerPanicError converts a recovered panic value into a handler invocation error.
func HandlerPanicError(recovered any, handler string) error {
	inner, ok := recovered.(error)
	if !ok {
		inner = fmt.Errorf("%v", recovered)
	}
	return &handlerInvocationError{inner: inner, handler: handler, panic: true}
}

func IsHandlerInvocationError(err error) bool {
	if err == nil {
		return false
	}
	var errPtr *handlerInvocationError
	return errors.As(err, &errPtr)
}

// IsHandlerPanicError returns true if the error is a handler invocation error caused by a panic.
func IsHandlerPanicError(err error) bool {
	if err == nil {
		return false
	}
	var errPtr *handlerInvocationError
	return errors.As(err, &errPtr) && errPtr.panic
}

// ///////////////////////////////////////////////////////////////////////////
// filterEvaluationError
// ///////////////////////////////////////////////////////////////////////////

type filterEvaluationError struct {
	inner   error
	handler string
}

func (e *filterEvaluationError) Error() string {
	return fmt.Sprintf("filter evaluation for handler %s failed; %v", e.handler, e.inner)
}

func (e *filterEvaluationError) Unwrap() error { return e.inner }

func WrapWithFilterEvaluationError(err error, handler string) error {
	return &filterEvaluationError{inner: err, handler: handler}
}

func IsFilterEvaluationError(err error) bool {
	if err == nil {
		return false
	}
	var errPtr *filterEvaluationError
	return errors.As(err, &errPtr)
}

// ///////////////////////////////////////////////////////////////////////////
// enqueueTimeoutError
// ///////////////////////////////////////////////////////////////////////////

type enqueueTimeoutError struct {
	inner   error
	timeout time.Duration
}

func (e *enqueueTimeoutError) Error() string {
	if e.inner != nil {
		return fmt.Sprintf("could not enqueue publication; %v", e.inner)
	}
	return fmt.Sprintf("could not enqueue publication within %v", e.timeout)
}

func (e *enqueueTimeoutError) Unwrap() error { return e.inner }

func EnqueueTimeoutError(timeout time.Duration) error {
	return &enqueueTimeoutError{timeout: timeout}
}

// WrapWithEnqueueTimeoutError is used when the enqueue was abandoned for a reason
// other than the post timeout, such as a cancelled context.
func WrapWithEnqueueTimeoutError(err error) error {
	return &enqueueTimeoutError{inner: err}
}

func IsEnqueueTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	var errPtr *enqueueTimeoutError
	return errors.As(err, &errPtr)
}

// ///////////////////////////////////////////////////////////////////////////
// malformedHandlerError
// ///////////////////////////////////////////////////////////////////////////

type malformedHandlerError struct {
	handler string
	message string
}

func (e *malformedHandlerError) Error() string {
	return fmt.Sprintf("malformed handler %s; %s", e.handler, e.message)
}

func MalformedHandlerError(handler, message string, a ...any) error {
	if len(a) > 0 {
		message = fmt.Sprintf(message, a...)
	}
	return &malformedHandlerError{handler: handler, message: message}
}

func IsMalformedHandlerError(err error) bool {
	if err == nil {
		return false
	}
	var errPtr *malformedHandlerError
	return errors.As(err, &errPtr)
}

// ///////////////////////////////////////////////////////////////////////////
// busClosedError
// ///////////////////////////////////////////////////////////////////////////

// busClosedError indicates an operation was attempted on a closed bus.
type busClosedError struct {
	message string
}

func (e *busClosedError) Error() string { return e.message }

// BusClosedError creates a new bus closed error.
func BusClosedError() error {
	return &busClosedError{
		message: "msgbus: bus is closed",
	}
}

// IsBusClosedError returns true if the error is a bus closed error.
func IsBusClosedError(err error) bool {
	if err == nil {
		return false
	}
	var busClosedError *busClosedError
	return errors.As(err, &busClosedError)
}

// ///////////////////////////////////////////////////////////////////////////
// invalidListenerError
// ///////////////////////////////////////////////////////////////////////////

type invalidListenerError struct {
	message string
}

func (e *invalidListenerError) Error() string { return e.message }

func InvalidListenerError(message string, a ...any) error {
	if len(a) == 0 {
		return &invalidListenerError{message: message}
	}
	return &invalidListenerError{message: fmt.Sprintf(message, a...)}
}

func IsInvalidListenerError(err error) bool {
	if err == nil {
		return false
	}
	var errPtr *invalidListenerError
	return errors.As(err, &errPtr)
}

// ///////////////////////////////////////////////////////////////////////////
// invalidMessageError
// ///////////////////////////////////////////////////////////////////////////

type invalidMessageError struct {
	message string
}

func (e *invalidMessageError) Error() string { return e.message }

func InvalidMessageError(message string, a ...any) error {
	if len(a) == 0 {
		return &invalidMessageError{message: message}
	}
	return &invalidMessageError{message: fmt.Sprintf(message, a...)}
}

func IsInvalidMessageError(err error) bool {
	if err == nil {
		return false
	}
	var errPtr *invalidMessageError
	return errors.As(err, &errPtr)
}

// ///////////////////////////////////////////////////////////////////////////
// StateError - a publication transition that its current state does not allow
// ///////////////////////////////////////////////////////////////////////////

type StateError struct {
	State   string // The publication state the transition was attempted from
	Message string // Optional message
}

func (e *StateError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("state: %s; %s", e.State, e.Message)
	}
	return fmt.Sprintf("state: %s", e.State)
}

// NewStateError creates a new error with the current state and an optional message
func NewStateError(state string, message string) error {
	return &StateError{State: state, Message: message}
}
