package relay

import (
	"context"

	"github.com/fgrzl/enumerators"

	mediatorpkg "github.com/drblury/relay/internal/mediator"
	configpkg "github.com/drblury/relay/internal/mediator/config"
	errspkg "github.com/drblury/relay/internal/mediator/errors"
	idspkg "github.com/drblury/relay/internal/mediator/ids"
	"github.com/drblury/relay/internal/mediator/jsoncodec"
	loggingpkg "github.com/drblury/relay/internal/mediator/logging"
)

type (
	Config       = configpkg.Config
	Mediator     = mediatorpkg.Mediator
	Dependencies = mediatorpkg.Dependencies

	Kind          = mediatorpkg.Kind
	CapabilityKey = mediatorpkg.CapabilityKey
	CallInfo      = mediatorpkg.CallInfo
	Capability    = mediatorpkg.Capability

	HandlerFunc         = mediatorpkg.HandlerFunc
	HandlerRegistration = mediatorpkg.HandlerRegistration
	HandlerResolver     = mediatorpkg.HandlerResolver
	HandlerRegistrar    = mediatorpkg.HandlerRegistrar
	HandlerRegistry     = mediatorpkg.HandlerRegistry

	Middleware             = mediatorpkg.Middleware
	MiddlewareBuilder      = mediatorpkg.MiddlewareBuilder
	MiddlewareRegistration = mediatorpkg.MiddlewareRegistration
	MiddlewareResolver     = mediatorpkg.MiddlewareResolver

	CommandHandler[C any]           = mediatorpkg.CommandHandler[C]
	CommandHandlerFunc[C any]       = mediatorpkg.CommandHandlerFunc[C]
	QueryHandler[Q any, R any]      = mediatorpkg.QueryHandler[Q, R]
	QueryHandlerFunc[Q any, R any]  = mediatorpkg.QueryHandlerFunc[Q, R]
	StreamHandler[Q any, I any]     = mediatorpkg.StreamHandler[Q, I]
	StreamHandlerFunc[Q any, I any] = mediatorpkg.StreamHandlerFunc[Q, I]
	NotificationHandler[N any]      = mediatorpkg.NotificationHandler[N]
	NotificationHandlerFunc[N any]  = mediatorpkg.NotificationHandlerFunc[N]
	BroadcastSubscriber             = mediatorpkg.BroadcastSubscriber
	BroadcastSubscriberFunc         = mediatorpkg.BroadcastSubscriberFunc
	InstrumentedStream[I any]       = mediatorpkg.InstrumentedStream[I]

	Telemetry        = mediatorpkg.Telemetry
	StreamStats      = mediatorpkg.StreamStats
	StreamSummary    = mediatorpkg.StreamSummary
	StreamRating     = mediatorpkg.StreamRating
	RatingThresholds = mediatorpkg.RatingThresholds
	CapabilityStats  = mediatorpkg.CapabilityStats

	RecipientResult = mediatorpkg.RecipientResult
	PublishReport   = mediatorpkg.PublishReport
	PublishError    = mediatorpkg.PublishError

	NotFoundError         = errspkg.NotFoundError
	AmbiguousHandlerError = errspkg.AmbiguousHandlerError
	NilResultError        = errspkg.NilResultError
	NextCalledTwiceError  = errspkg.NextCalledTwiceError
	RecoveredPanicError   = errspkg.RecoveredPanicError

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger
)

const (
	KindCommand      = mediatorpkg.KindCommand
	KindQuery        = mediatorpkg.KindQuery
	KindStream       = mediatorpkg.KindStream
	KindNotification = mediatorpkg.KindNotification

	RatingExcellent = mediatorpkg.RatingExcellent
	RatingGood      = mediatorpkg.RatingGood
	RatingFair      = mediatorpkg.RatingFair
	RatingPoor      = mediatorpkg.RatingPoor

	RoleSubscriber = mediatorpkg.RoleSubscriber
	RoleBroadcast  = mediatorpkg.RoleBroadcast
	RoleHandler    = mediatorpkg.RoleHandler

	OrderCorrelationID = mediatorpkg.OrderCorrelationID
	OrderLogging       = mediatorpkg.OrderLogging
	OrderTracer        = mediatorpkg.OrderTracer
	OrderMetrics       = mediatorpkg.OrderMetrics
	OrderRecoverer     = mediatorpkg.OrderRecoverer
)

var (
	New            = mediatorpkg.New
	ValidateConfig = configpkg.ValidateConfig

	NewHandlerRegistry    = mediatorpkg.NewHandlerRegistry
	NewMiddlewareRegistry = mediatorpkg.NewMiddlewareRegistry
	NewTelemetry          = mediatorpkg.NewTelemetry

	SubscribeBroadcast = mediatorpkg.SubscribeBroadcast
	Unsubscribe        = mediatorpkg.Unsubscribe

	DefaultMiddlewares      = mediatorpkg.DefaultMiddlewares
	CorrelationIDMiddleware = mediatorpkg.CorrelationIDMiddleware
	LogCallsMiddleware      = mediatorpkg.LogCallsMiddleware
	TracerMiddleware        = mediatorpkg.TracerMiddleware
	MetricsMiddleware       = mediatorpkg.MetricsMiddleware
	RecovererMiddleware     = mediatorpkg.RecovererMiddleware

	CorrelationIDFromContext = mediatorpkg.CorrelationIDFromContext
	CallInfoFromContext      = mediatorpkg.CallInfoFromContext

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrMediatorRequired     = errspkg.ErrMediatorRequired
	ErrHandlerRequired      = errspkg.ErrHandlerRequired
	ErrSubscriberRequired   = errspkg.ErrSubscriberRequired
	ErrNotificationRequired = errspkg.ErrNotificationRequired
	ErrRequestRequired      = errspkg.ErrRequestRequired
	ErrRegistryReadOnly     = errspkg.ErrRegistryReadOnly
	ErrConfigRequired       = errspkg.ErrConfigRequired
	ErrLoggerRequired       = errspkg.ErrLoggerRequired

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NopLogger                 = loggingpkg.NopLogger

	NewCorrelationID = idspkg.NewCorrelationID
)

// RegisterCommandHandler binds h to the command type C. Exactly one handler
// may serve a command; a second registration surfaces as
// AmbiguousHandlerError at dispatch time.
func RegisterCommandHandler[C any](m *Mediator, h CommandHandler[C]) error {
	return mediatorpkg.RegisterCommandHandler(m, h)
}

// RegisterQueryHandler binds h to the (Q, R) query capability.
func RegisterQueryHandler[Q any, R any](m *Mediator, h QueryHandler[Q, R]) error {
	return mediatorpkg.RegisterQueryHandler(m, h)
}

// RegisterStreamHandler binds h to the (Q, I) stream capability.
func RegisterStreamHandler[Q any, I any](m *Mediator, h StreamHandler[Q, I]) error {
	return mediatorpkg.RegisterStreamHandler(m, h)
}

// RegisterNotificationHandler binds h to the notification type N. N may be a
// concrete type, an embedded base type, or an interface.
func RegisterNotificationHandler[N any](m *Mediator, h NotificationHandler[N]) error {
	return mediatorpkg.RegisterNotificationHandler(m, h)
}

// Dispatch routes a command to its unique handler through the middleware
// chain.
func Dispatch[C any](ctx context.Context, m *Mediator, cmd C) error {
	return mediatorpkg.Dispatch(ctx, m, cmd)
}

// DispatchQuery routes a query to its unique handler and returns the typed
// response.
func DispatchQuery[Q any, R any](ctx context.Context, m *Mediator, query Q) (R, error) {
	return mediatorpkg.DispatchQuery[Q, R](ctx, m, query)
}

// DispatchStream routes a stream request to its unique handler and returns
// the instrumented lazy sequence. Failures surface through the first
// enumeration step.
func DispatchStream[Q any, I any](ctx context.Context, m *Mediator, query Q) enumerators.Enumerator[I] {
	return mediatorpkg.DispatchStream[Q, I](ctx, m, query)
}

// Subscribe registers an explicit subscriber for notifications of type N.
func Subscribe[N any](m *Mediator, s NotificationHandler[N]) error {
	return mediatorpkg.Subscribe(m, s)
}
