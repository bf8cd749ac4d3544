package mediator

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	errspkg "github.com/drblury/relay/internal/mediator/errors"
	idspkg "github.com/drblury/relay/internal/mediator/ids"
	loggingpkg "github.com/drblury/relay/internal/mediator/logging"
)

// Middleware wraps the next step of a pipeline. It may run code before and
// after calling next, replace the result, or short-circuit by not calling
// next at all. Calling next more than once is a contract violation and fails
// the dispatch with NextCalledTwiceError.
type Middleware func(next HandlerFunc) HandlerFunc

// MiddlewareBuilder constructs a middleware using the owning mediator, for
// middleware that need access to its logger, config, or telemetry.
type MiddlewareBuilder func(*Mediator) (Middleware, error)

// MiddlewareRegistration captures how a middleware participates in pipelines:
// its position in the total order (Order ascending, ties broken by
// registration sequence) and the capability it targets.
type MiddlewareRegistration struct {
	Name       string
	Order      int
	Capability Capability
	Middleware Middleware
	Builder    MiddlewareBuilder

	seq uint64
}

// MiddlewareResolver yields the middleware applicable to a concrete call,
// already sorted. Applicability is evaluated per call, never cached.
type MiddlewareResolver interface {
	ResolveApplicable(info CallInfo) []MiddlewareRegistration
}

// MiddlewareRegistry is the default in-memory MiddlewareResolver.
type MiddlewareRegistry struct {
	mu      sync.RWMutex
	nextSeq uint64
	entries []MiddlewareRegistration
}

// NewMiddlewareRegistry returns an empty registry.
func NewMiddlewareRegistry() *MiddlewareRegistry {
	return &MiddlewareRegistry{}
}

// Add stores a built middleware registration.
func (r *MiddlewareRegistry) Add(reg MiddlewareRegistration) error {
	if reg.Middleware == nil {
		return errspkg.ErrHandlerRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextSeq++
	reg.seq = r.nextSeq
	r.entries = append(r.entries, reg)
	return nil
}

// ResolveApplicable returns the middleware whose capability covers the call,
// sorted by (Order ascending, registration sequence ascending).
func (r *MiddlewareRegistry) ResolveApplicable(info CallInfo) []MiddlewareRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var applicable []MiddlewareRegistration
	for _, reg := range r.entries {
		if reg.Capability.Applies(info) {
			applicable = append(applicable, reg)
		}
	}
	sort.SliceStable(applicable, func(i, j int) bool {
		if applicable[i].Order != applicable[j].Order {
			return applicable[i].Order < applicable[j].Order
		}
		return applicable[i].seq < applicable[j].seq
	})
	return applicable
}

// Context keys for values the built-in middleware thread through a dispatch.
type contextKey int

const (
	correlationIDKey contextKey = iota
	callInfoKey
)

// CorrelationIDFromContext returns the correlation id stamped by the
// correlation middleware, or "" when none is set.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// CallInfoFromContext returns the call currently being dispatched. Middleware
// use it for labels and log fields.
func CallInfoFromContext(ctx context.Context) (CallInfo, bool) {
	info, ok := ctx.Value(callInfoKey).(CallInfo)
	return info, ok
}

func withCallInfo(ctx context.Context, info CallInfo) context.Context {
	return context.WithValue(ctx, callInfoKey, info)
}

// Default middleware orders. Spaced out so applications can slot their own
// middleware between the built-ins.
const (
	OrderCorrelationID = -40
	OrderLogging       = -30
	OrderTracer        = -20
	OrderMetrics       = -10
	OrderRecoverer     = 40
)

// DefaultMiddlewares returns the standard middleware chain registered by New.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		CorrelationIDMiddleware(),
		LogCallsMiddleware(nil),
		TracerMiddleware(),
		MetricsMiddleware(),
		RecovererMiddleware(),
	}
}

// CorrelationIDMiddleware ensures each dispatch carries a correlation
// identifier in its context.
func CorrelationIDMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:  "correlation_id",
		Order: OrderCorrelationID,
		Middleware: func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req any) (any, error) {
				if CorrelationIDFromContext(ctx) == "" {
					ctx = context.WithValue(ctx, correlationIDKey, idspkg.NewCorrelationID())
				}
				return next(ctx, req)
			}
		},
	}
}

// LogCallsMiddleware logs every dispatch with its kind, types, outcome, and
// duration. Passing nil uses the mediator's logger.
func LogCallsMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:  "log_calls",
		Order: OrderLogging,
		Builder: func(m *Mediator) (Middleware, error) {
			l := logger
			if l == nil {
				l = m.Logger
			}
			if l == nil {
				return nil, errspkg.ErrLoggerRequired
			}
			return logCallsMiddleware(l), nil
		},
	}
}

func logCallsMiddleware(logger loggingpkg.ServiceLogger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req any) (any, error) {
			info, _ := CallInfoFromContext(ctx)
			fields := loggingpkg.LogFields{
				"kind":           info.Kind.String(),
				"request_type":   typeName(info.RequestType),
				"correlation_id": CorrelationIDFromContext(ctx),
			}
			logger.Debug("Dispatching", fields)

			start := time.Now()
			out, err := next(ctx, req)
			fields["duration_ms"] = time.Since(start).Milliseconds()

			if err != nil {
				logger.Error("Dispatch failed", err, fields)
			} else {
				logger.Debug("Dispatch completed", fields)
			}
			return out, err
		}
	}
}

// TracerMiddleware wraps each dispatch in an OpenTelemetry span.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:  "tracer",
		Order: OrderTracer,
		Middleware: func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req any) (any, error) {
				info, _ := CallInfoFromContext(ctx)
				tracer := otel.Tracer("relay-mediator")
				ctx, span := tracer.Start(ctx, "Dispatch")
				defer span.End()

				span.SetAttributes(
					attribute.String("relay.kind", info.Kind.String()),
					attribute.String("relay.request_type", typeName(info.RequestType)),
					attribute.String("relay.correlation_id", CorrelationIDFromContext(ctx)),
				)

				out, err := next(ctx, req)
				if err != nil {
					span.RecordError(err)
				}
				return out, err
			}
		},
	}
}

// MetricsMiddleware records dispatch counts and latency on the mediator's
// telemetry handle. A no-op when metrics are disabled.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:  "metrics",
		Order: OrderMetrics,
		Builder: func(m *Mediator) (Middleware, error) {
			if !m.Conf.MetricsEnabled {
				return nil, nil
			}
			telemetry := m.telemetry
			return func(next HandlerFunc) HandlerFunc {
				return func(ctx context.Context, req any) (any, error) {
					info, _ := CallInfoFromContext(ctx)
					start := time.Now()
					out, err := next(ctx, req)
					telemetry.ObserveDispatch(info, time.Since(start), err)
					return out, err
				}
			}, nil
		},
	}
}

// RecovererMiddleware converts panics in handlers or inner middleware into
// errors so callers see a failed dispatch instead of a crashed goroutine.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:  "recoverer",
		Order: OrderRecoverer,
		Middleware: func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req any) (out any, err error) {
				defer func() {
					if r := recover(); r != nil {
						out = nil
						err = &errspkg.RecoveredPanicError{Value: r}
					}
				}()
				return next(ctx, req)
			}
		},
	}
}
