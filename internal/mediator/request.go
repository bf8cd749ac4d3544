package mediator

import (
	"context"
	"fmt"
	"time"

	errspkg "github.com/drblury/relay/internal/mediator/errors"
)

// Dispatch routes a command to its unique handler through the applicable
// middleware chain. The handler and each middleware run exactly once on the
// caller's flow of control.
func Dispatch[C any](ctx context.Context, m *Mediator, cmd C) error {
	if m == nil {
		return errspkg.ErrMediatorRequired
	}
	key := CapabilityKey{Kind: KindCommand, Request: typeOf[C]()}
	_, err := m.dispatch(ctx, key, cmd)
	return err
}

// DispatchQuery routes a query to its unique handler and returns the typed
// response.
func DispatchQuery[Q any, R any](ctx context.Context, m *Mediator, query Q) (R, error) {
	var zero R
	if m == nil {
		return zero, errspkg.ErrMediatorRequired
	}
	key := CapabilityKey{Kind: KindQuery, Request: typeOf[Q](), Response: typeOf[R]()}
	out, err := m.dispatch(ctx, key, query)
	if err != nil {
		return zero, err
	}
	resp, ok := out.(R)
	if !ok {
		return zero, fmt.Errorf("relay: pipeline produced %T, want %v", out, key.Response)
	}
	return resp, nil
}

// dispatch resolves the unique handler for the key, composes the applicable
// middleware chain around it, and executes the pipeline. It is the shared
// engine behind commands, queries, and streams.
func (m *Mediator) dispatch(ctx context.Context, key CapabilityKey, req any) (any, error) {
	reg, err := m.resolveOne(key)
	if err != nil {
		return nil, err
	}

	info := CallInfo{Kind: key.Kind, RequestType: key.Request, ResponseType: key.Response}
	pipeline := m.buildPipeline(info, m.instrument(key, reg.Invoke))

	return pipeline(withCallInfo(ctx, info), req)
}

// resolveOne enforces the exactly-one invariant for request capabilities.
func (m *Mediator) resolveOne(key CapabilityKey) (HandlerRegistration, error) {
	regs := m.handlers.Resolve(key)
	switch len(regs) {
	case 1:
		return regs[0], nil
	case 0:
		return HandlerRegistration{}, &errspkg.NotFoundError{
			Kind:     key.Kind.String(),
			Request:  key.Request,
			Response: key.Response,
		}
	default:
		return HandlerRegistration{}, &errspkg.AmbiguousHandlerError{
			Kind:    key.Kind.String(),
			Request: key.Request,
			Count:   len(regs),
		}
	}
}

// buildPipeline nests the applicable middleware around the terminal step.
// Pipeline instances are per-call: middleware selection depends on the
// concrete types of the current call and is never cached.
func (m *Mediator) buildPipeline(info CallInfo, terminal HandlerFunc) HandlerFunc {
	chain := m.middlewares.ResolveApplicable(info)

	next := terminal
	for i := len(chain) - 1; i >= 0; i-- {
		next = chain[i].Middleware(guardNext(chain[i].Name, next))
	}
	return next
}

// guardNext enforces the at-most-once contract on a middleware's
// continuation. The pipeline is rebuilt per call, so a plain closure flag is
// sufficient.
func guardNext(name string, next HandlerFunc) HandlerFunc {
	called := false
	return func(ctx context.Context, req any) (any, error) {
		if called {
			return nil, &errspkg.NextCalledTwiceError{Middleware: name}
		}
		called = true
		return next(ctx, req)
	}
}

// instrument records per-capability dispatch statistics around the terminal
// handler invocation.
func (m *Mediator) instrument(key CapabilityKey, terminal HandlerFunc) HandlerFunc {
	stats := m.stats.capability(key)
	return func(ctx context.Context, req any) (any, error) {
		start := time.Now()
		out, err := terminal(ctx, req)
		stats.record(time.Since(start), err)
		return out, err
	}
}
