package mediator

import (
	"context"
	"fmt"
	"reflect"

	"github.com/fgrzl/enumerators"

	errspkg "github.com/drblury/relay/internal/mediator/errors"
)

// CommandHandler services a command: a request with no result.
type CommandHandler[C any] interface {
	Handle(ctx context.Context, cmd C) error
}

// CommandHandlerFunc adapts a function to CommandHandler.
type CommandHandlerFunc[C any] func(ctx context.Context, cmd C) error

func (f CommandHandlerFunc[C]) Handle(ctx context.Context, cmd C) error { return f(ctx, cmd) }

// QueryHandler services a query: a request with a typed result.
type QueryHandler[Q any, R any] interface {
	Handle(ctx context.Context, query Q) (R, error)
}

// QueryHandlerFunc adapts a function to QueryHandler.
type QueryHandlerFunc[Q any, R any] func(ctx context.Context, query Q) (R, error)

func (f QueryHandlerFunc[Q, R]) Handle(ctx context.Context, query Q) (R, error) {
	return f(ctx, query)
}

// StreamHandler services a stream request: the result is a lazy sequence of
// items. A fresh call produces a fresh sequence.
type StreamHandler[Q any, I any] interface {
	Handle(ctx context.Context, query Q) enumerators.Enumerator[I]
}

// StreamHandlerFunc adapts a function to StreamHandler.
type StreamHandlerFunc[Q any, I any] func(ctx context.Context, query Q) enumerators.Enumerator[I]

func (f StreamHandlerFunc[Q, I]) Handle(ctx context.Context, query Q) enumerators.Enumerator[I] {
	return f(ctx, query)
}

// NotificationHandler services a published notification. N may be a concrete
// type, an embedded base type, or an interface the notification implements.
type NotificationHandler[N any] interface {
	Handle(ctx context.Context, notification N) error
}

// NotificationHandlerFunc adapts a function to NotificationHandler.
type NotificationHandlerFunc[N any] func(ctx context.Context, notification N) error

func (f NotificationHandlerFunc[N]) Handle(ctx context.Context, notification N) error {
	return f(ctx, notification)
}

// RegisterCommandHandler binds h to the command type C.
func RegisterCommandHandler[C any](m *Mediator, h CommandHandler[C]) error {
	if m == nil {
		return errspkg.ErrMediatorRequired
	}
	if h == nil {
		return errspkg.ErrHandlerRequired
	}
	key := CapabilityKey{Kind: KindCommand, Request: typeOf[C]()}
	return m.addHandler(key, HandlerRegistration{
		Name:   fmt.Sprintf("%T", h),
		Target: h,
		Invoke: func(ctx context.Context, req any) (any, error) {
			return nil, h.Handle(ctx, req.(C))
		},
	})
}

// RegisterQueryHandler binds h to the (Q, R) query capability. A handler that
// completes without error but yields a nil R fails the dispatch with
// NilResultError.
func RegisterQueryHandler[Q any, R any](m *Mediator, h QueryHandler[Q, R]) error {
	if m == nil {
		return errspkg.ErrMediatorRequired
	}
	if h == nil {
		return errspkg.ErrHandlerRequired
	}
	key := CapabilityKey{Kind: KindQuery, Request: typeOf[Q](), Response: typeOf[R]()}
	return m.addHandler(key, HandlerRegistration{
		Name:   fmt.Sprintf("%T", h),
		Target: h,
		Invoke: func(ctx context.Context, req any) (any, error) {
			resp, err := h.Handle(ctx, req.(Q))
			if err != nil {
				return nil, err
			}
			if isNilValue(resp) {
				return nil, &errspkg.NilResultError{Request: key.Request, Response: key.Response}
			}
			return resp, nil
		},
	})
}

// RegisterStreamHandler binds h to the (Q, I) stream capability.
func RegisterStreamHandler[Q any, I any](m *Mediator, h StreamHandler[Q, I]) error {
	if m == nil {
		return errspkg.ErrMediatorRequired
	}
	if h == nil {
		return errspkg.ErrHandlerRequired
	}
	key := CapabilityKey{Kind: KindStream, Request: typeOf[Q](), Response: typeOf[I]()}
	return m.addHandler(key, HandlerRegistration{
		Name:   fmt.Sprintf("%T", h),
		Target: h,
		Invoke: func(ctx context.Context, req any) (any, error) {
			seq := h.Handle(ctx, req.(Q))
			if seq == nil {
				return nil, &errspkg.NilResultError{Request: key.Request, Response: key.Response}
			}
			return seq, nil
		},
	})
}

// RegisterNotificationHandler binds h to the notification type N. N may be an
// interface; the fan-out engine discovers it through hierarchy traversal.
func RegisterNotificationHandler[N any](m *Mediator, h NotificationHandler[N]) error {
	if m == nil {
		return errspkg.ErrMediatorRequired
	}
	if h == nil {
		return errspkg.ErrHandlerRequired
	}
	key := CapabilityKey{Kind: KindNotification, Request: typeOf[N]()}
	return m.addHandler(key, HandlerRegistration{
		Name:   fmt.Sprintf("%T", h),
		Target: h,
		Invoke: func(ctx context.Context, req any) (any, error) {
			return nil, h.Handle(ctx, req.(N))
		},
	})
}

func (m *Mediator) addHandler(key CapabilityKey, reg HandlerRegistration) error {
	registrar, ok := m.handlers.(HandlerRegistrar)
	if !ok {
		return errspkg.ErrRegistryReadOnly
	}
	_, err := registrar.Add(key, reg)
	return err
}

// isNilValue reports whether v is nil or wraps a nil pointer-like value.
func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}
