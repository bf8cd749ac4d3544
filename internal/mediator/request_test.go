package mediator

import (
	"context"
	"errors"
	"testing"

	configpkg "github.com/drblury/relay/internal/mediator/config"
	errspkg "github.com/drblury/relay/internal/mediator/errors"
	loggingpkg "github.com/drblury/relay/internal/mediator/logging"
)

type pingCmd struct{ Target string }

type echoQuery struct{ Text string }

type echoReply struct{ Text string }

func newTestMediator(t *testing.T) *Mediator {
	t.Helper()
	m, err := New(&configpkg.Config{}, loggingpkg.NopLogger(), Dependencies{})
	if err != nil {
		t.Fatalf("unexpected error creating mediator: %v", err)
	}
	return m
}

func TestDispatchCommand(t *testing.T) {
	t.Parallel()

	t.Run("invokes handler exactly once", func(t *testing.T) {
		m := newTestMediator(t)
		calls := 0
		if err := RegisterCommandHandler(m, CommandHandlerFunc[pingCmd](func(ctx context.Context, cmd pingCmd) error {
			calls++
			if cmd.Target != "svc" {
				t.Fatalf("unexpected command payload: %+v", cmd)
			}
			return nil
		})); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := Dispatch(context.Background(), m, pingCmd{Target: "svc"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 1 {
			t.Fatalf("expected 1 handler call, got %d", calls)
		}
	})

	t.Run("propagates handler error", func(t *testing.T) {
		m := newTestMediator(t)
		boom := errors.New("boom")
		_ = RegisterCommandHandler(m, CommandHandlerFunc[pingCmd](func(ctx context.Context, cmd pingCmd) error {
			return boom
		}))

		if err := Dispatch(context.Background(), m, pingCmd{}); !errors.Is(err, boom) {
			t.Fatalf("expected handler error, got %v", err)
		}
	})

	t.Run("no handler yields NotFoundError", func(t *testing.T) {
		m := newTestMediator(t)
		err := Dispatch(context.Background(), m, pingCmd{})
		var notFound *errspkg.NotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
		if notFound.Kind != "command" {
			t.Fatalf("unexpected kind in error: %s", notFound.Kind)
		}
	})

	t.Run("two handlers yield AmbiguousHandlerError", func(t *testing.T) {
		m := newTestMediator(t)
		handler := CommandHandlerFunc[pingCmd](func(ctx context.Context, cmd pingCmd) error { return nil })
		_ = RegisterCommandHandler(m, handler)
		_ = RegisterCommandHandler(m, handler)

		err := Dispatch(context.Background(), m, pingCmd{})
		var ambiguous *errspkg.AmbiguousHandlerError
		if !errors.As(err, &ambiguous) {
			t.Fatalf("expected AmbiguousHandlerError, got %v", err)
		}
		if ambiguous.Count != 2 {
			t.Fatalf("expected count 2, got %d", ambiguous.Count)
		}
	})

	t.Run("nil mediator", func(t *testing.T) {
		if err := Dispatch(context.Background(), nil, pingCmd{}); !errors.Is(err, errspkg.ErrMediatorRequired) {
			t.Fatalf("expected ErrMediatorRequired, got %v", err)
		}
	})
}

func TestDispatchQuery(t *testing.T) {
	t.Parallel()

	t.Run("returns typed response", func(t *testing.T) {
		m := newTestMediator(t)
		_ = RegisterQueryHandler(m, QueryHandlerFunc[echoQuery, *echoReply](func(ctx context.Context, q echoQuery) (*echoReply, error) {
			return &echoReply{Text: q.Text}, nil
		}))

		reply, err := DispatchQuery[echoQuery, *echoReply](context.Background(), m, echoQuery{Text: "hi"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if reply.Text != "hi" {
			t.Fatalf("unexpected reply: %+v", reply)
		}
	})

	t.Run("nil response yields NilResultError", func(t *testing.T) {
		m := newTestMediator(t)
		_ = RegisterQueryHandler(m, QueryHandlerFunc[echoQuery, *echoReply](func(ctx context.Context, q echoQuery) (*echoReply, error) {
			return nil, nil
		}))

		_, err := DispatchQuery[echoQuery, *echoReply](context.Background(), m, echoQuery{})
		var nilResult *errspkg.NilResultError
		if !errors.As(err, &nilResult) {
			t.Fatalf("expected NilResultError, got %v", err)
		}
	})

	t.Run("distinct response types are distinct capabilities", func(t *testing.T) {
		m := newTestMediator(t)
		_ = RegisterQueryHandler(m, QueryHandlerFunc[echoQuery, *echoReply](func(ctx context.Context, q echoQuery) (*echoReply, error) {
			return &echoReply{Text: q.Text}, nil
		}))

		_, err := DispatchQuery[echoQuery, string](context.Background(), m, echoQuery{})
		var notFound *errspkg.NotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("expected NotFoundError for unregistered response type, got %v", err)
		}
	})
}

func TestPipelineContracts(t *testing.T) {
	t.Parallel()

	t.Run("correlation id reaches handler", func(t *testing.T) {
		m := newTestMediator(t)
		var seen string
		_ = RegisterCommandHandler(m, CommandHandlerFunc[pingCmd](func(ctx context.Context, cmd pingCmd) error {
			seen = CorrelationIDFromContext(ctx)
			return nil
		}))

		if err := Dispatch(context.Background(), m, pingCmd{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen == "" {
			t.Fatal("expected correlation id in handler context")
		}
	})

	t.Run("short circuit skips handler", func(t *testing.T) {
		m := newTestMediator(t)
		invoked := false
		_ = RegisterQueryHandler(m, QueryHandlerFunc[echoQuery, *echoReply](func(ctx context.Context, q echoQuery) (*echoReply, error) {
			invoked = true
			return &echoReply{Text: "real"}, nil
		}))

		err := m.RegisterMiddleware(MiddlewareRegistration{
			Name:  "cache",
			Order: 10,
			Middleware: func(next HandlerFunc) HandlerFunc {
				return func(ctx context.Context, req any) (any, error) {
					return &echoReply{Text: "cached"}, nil
				}
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		reply, err := DispatchQuery[echoQuery, *echoReply](context.Background(), m, echoQuery{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if invoked {
			t.Fatal("handler must not run when a middleware short-circuits")
		}
		if reply.Text != "cached" {
			t.Fatalf("expected cached reply, got %+v", reply)
		}
	})

	t.Run("calling next twice fails the dispatch", func(t *testing.T) {
		m := newTestMediator(t)
		_ = RegisterCommandHandler(m, CommandHandlerFunc[pingCmd](func(ctx context.Context, cmd pingCmd) error {
			return nil
		}))

		_ = m.RegisterMiddleware(MiddlewareRegistration{
			Name:  "greedy",
			Order: 10,
			Middleware: func(next HandlerFunc) HandlerFunc {
				return func(ctx context.Context, req any) (any, error) {
					if _, err := next(ctx, req); err != nil {
						return nil, err
					}
					return next(ctx, req)
				}
			},
		})

		err := Dispatch(context.Background(), m, pingCmd{})
		var twice *errspkg.NextCalledTwiceError
		if !errors.As(err, &twice) {
			t.Fatalf("expected NextCalledTwiceError, got %v", err)
		}
		if twice.Middleware != "greedy" {
			t.Fatalf("expected offending middleware name, got %q", twice.Middleware)
		}
	})

	t.Run("panic is recovered into an error", func(t *testing.T) {
		m := newTestMediator(t)
		_ = RegisterCommandHandler(m, CommandHandlerFunc[pingCmd](func(ctx context.Context, cmd pingCmd) error {
			panic("handler exploded")
		}))

		err := Dispatch(context.Background(), m, pingCmd{})
		var recovered *errspkg.RecoveredPanicError
		if !errors.As(err, &recovered) {
			t.Fatalf("expected RecoveredPanicError, got %v", err)
		}
	})

	t.Run("middleware error replaces result", func(t *testing.T) {
		m := newTestMediator(t)
		_ = RegisterQueryHandler(m, QueryHandlerFunc[echoQuery, *echoReply](func(ctx context.Context, q echoQuery) (*echoReply, error) {
			return &echoReply{Text: "ok"}, nil
		}))

		deny := errors.New("denied")
		_ = m.RegisterMiddleware(MiddlewareRegistration{
			Name:  "authz",
			Order: 5,
			Middleware: func(next HandlerFunc) HandlerFunc {
				return func(ctx context.Context, req any) (any, error) {
					return nil, deny
				}
			},
		})

		if _, err := DispatchQuery[echoQuery, *echoReply](context.Background(), m, echoQuery{}); !errors.Is(err, deny) {
			t.Fatalf("expected middleware error, got %v", err)
		}
	})
}
