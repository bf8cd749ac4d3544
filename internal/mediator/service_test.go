package mediator

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	configpkg "github.com/drblury/relay/internal/mediator/config"
	errspkg "github.com/drblury/relay/internal/mediator/errors"
	"github.com/drblury/relay/internal/mediator/jsoncodec"
	loggingpkg "github.com/drblury/relay/internal/mediator/logging"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("nil config is rejected", func(t *testing.T) {
		if _, err := New(nil, loggingpkg.NopLogger(), Dependencies{}); !errors.Is(err, errspkg.ErrConfigRequired) {
			t.Fatalf("expected ErrConfigRequired, got %v", err)
		}
	})

	t.Run("invalid config is rejected", func(t *testing.T) {
		_, err := New(&configpkg.Config{StreamExcellentRatio: 2}, loggingpkg.NopLogger(), Dependencies{})
		if err == nil {
			t.Fatal("expected validation error")
		}
	})

	t.Run("nil logger falls back to nop", func(t *testing.T) {
		m, err := New(&configpkg.Config{}, nil, Dependencies{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m.Logger == nil {
			t.Fatal("expected a logger")
		}
	})

	t.Run("defaults are applied", func(t *testing.T) {
		m := newTestMediator(t)
		if m.Conf.StreamExcellentRatio != 0.10 || m.Conf.StreamGoodRatio != 0.25 || m.Conf.StreamFairRatio != 0.50 {
			t.Fatalf("unexpected defaults: %+v", m.Conf)
		}
		if m.Conf.MetricsNamespace != "relay" {
			t.Fatalf("unexpected namespace: %q", m.Conf.MetricsNamespace)
		}
	})

	t.Run("builder failure surfaces from New", func(t *testing.T) {
		boom := errors.New("builder failed")
		_, err := New(&configpkg.Config{}, loggingpkg.NopLogger(), Dependencies{
			Middlewares: []MiddlewareRegistration{{
				Name:    "broken",
				Builder: func(m *Mediator) (Middleware, error) { return nil, boom },
			}},
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected builder error, got %v", err)
		}
	})

	t.Run("custom read-only resolver rejects registration", func(t *testing.T) {
		m, err := New(&configpkg.Config{}, loggingpkg.NopLogger(), Dependencies{Handlers: frozenResolver{}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		err = RegisterCommandHandler(m, CommandHandlerFunc[pingCmd](func(ctx context.Context, cmd pingCmd) error { return nil }))
		if !errors.Is(err, errspkg.ErrRegistryReadOnly) {
			t.Fatalf("expected ErrRegistryReadOnly, got %v", err)
		}
	})
}

type frozenResolver struct{}

func (frozenResolver) Resolve(key CapabilityKey) []HandlerRegistration { return nil }
func (frozenResolver) Keys(kind Kind) []CapabilityKey                  { return nil }

func TestStats(t *testing.T) {
	t.Parallel()

	t.Run("records per capability", func(t *testing.T) {
		m := newTestMediator(t)
		_ = RegisterCommandHandler(m, CommandHandlerFunc[pingCmd](func(ctx context.Context, cmd pingCmd) error { return nil }))
		_ = RegisterQueryHandler(m, QueryHandlerFunc[echoQuery, *echoReply](func(ctx context.Context, q echoQuery) (*echoReply, error) {
			return nil, errors.New("boom")
		}))

		_ = Dispatch(context.Background(), m, pingCmd{})
		_ = Dispatch(context.Background(), m, pingCmd{})
		_, _ = DispatchQuery[echoQuery, *echoReply](context.Background(), m, echoQuery{})

		views := m.Stats()
		if len(views) != 2 {
			t.Fatalf("expected 2 capabilities, got %d: %+v", len(views), views)
		}

		// Sorted by kind, command first.
		if views[0].Kind != "command" || views[0].Calls != 2 || views[0].Failures != 0 {
			t.Fatalf("unexpected command stats: %+v", views[0])
		}
		if views[1].Kind != "query" || views[1].Calls != 1 || views[1].Failures != 1 {
			t.Fatalf("unexpected query stats: %+v", views[1])
		}
		if views[1].LastError == "" {
			t.Fatal("expected last error to be recorded")
		}
	})

	t.Run("stats handler serves JSON", func(t *testing.T) {
		m := newTestMediator(t)
		_ = RegisterCommandHandler(m, CommandHandlerFunc[pingCmd](func(ctx context.Context, cmd pingCmd) error { return nil }))
		_ = Dispatch(context.Background(), m, pingCmd{})

		rec := httptest.NewRecorder()
		m.StatsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/stats", nil))

		if rec.Code != 200 {
			t.Fatalf("unexpected status: %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("unexpected content type: %q", ct)
		}

		var views []CapabilityStats
		if err := jsoncodec.Unmarshal(rec.Body.Bytes(), &views); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(views) != 1 || views[0].Calls != 1 {
			t.Fatalf("unexpected payload: %+v", views)
		}
	})
}
