package errors

import (
	sterrors "errors"
	"fmt"
	"reflect"
)

var (
	ErrMediatorRequired     = sterrors.New("relay: mediator is required")
	ErrHandlerRequired      = sterrors.New("relay: handler is required")
	ErrSubscriberRequired   = sterrors.New("relay: subscriber is required")
	ErrNotificationRequired = sterrors.New("relay: notification is required")
	ErrRequestRequired      = sterrors.New("relay: request is required")
	ErrRegistryReadOnly     = sterrors.New("relay: handler resolver does not accept registrations")
	ErrConfigRequired       = sterrors.New("relay: config is required")
	ErrLoggerRequired       = sterrors.New("relay: logger is required")
)

// NotFoundError reports that no handler resolves for a capability.
type NotFoundError struct {
	Kind     string
	Request  reflect.Type
	Response reflect.Type
}

func (e *NotFoundError) Error() string {
	if e.Response != nil {
		return fmt.Sprintf("relay: no %s handler registered for %v -> %v", e.Kind, e.Request, e.Response)
	}
	return fmt.Sprintf("relay: no %s handler registered for %v", e.Kind, e.Request)
}

// AmbiguousHandlerError reports that more than one handler resolves for a
// capability that requires exactly one. This is a registration-time
// misconfiguration surfaced at dispatch time.
type AmbiguousHandlerError struct {
	Kind    string
	Request reflect.Type
	Count   int
}

func (e *AmbiguousHandlerError) Error() string {
	return fmt.Sprintf("relay: %d %s handlers registered for %v, want exactly one", e.Count, e.Kind, e.Request)
}

// NilResultError reports a query handler that completed without an error but
// produced a nil result.
type NilResultError struct {
	Request  reflect.Type
	Response reflect.Type
}

func (e *NilResultError) Error() string {
	return fmt.Sprintf("relay: query handler for %v returned a nil %v", e.Request, e.Response)
}

// NextCalledTwiceError reports a middleware that invoked its continuation more
// than once within a single dispatch.
type NextCalledTwiceError struct {
	Middleware string
}

func (e *NextCalledTwiceError) Error() string {
	return fmt.Sprintf("relay: middleware %q called next more than once", e.Middleware)
}

// RecoveredPanicError wraps a panic converted to an error by the recoverer
// middleware.
type RecoveredPanicError struct {
	Value any
}

func (e *RecoveredPanicError) Error() string {
	return fmt.Sprintf("relay: recovered panic: %v", e.Value)
}
