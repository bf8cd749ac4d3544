package mediator

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/drblury/relay/internal/mediator/config"
	errspkg "github.com/drblury/relay/internal/mediator/errors"
	loggingpkg "github.com/drblury/relay/internal/mediator/logging"
)

// Dependencies holds the optional collaborators a Mediator can use. Leave
// fields zero to get the in-memory defaults.
type Dependencies struct {
	Handlers                  HandlerResolver          // Custom handler resolver; nil uses the in-memory registry.
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	Telemetry                 *Telemetry               // Custom metrics handle; nil creates one when metrics are enabled.
	Registerer                prometheus.Registerer    // Registerer for the created Telemetry; nil uses the Prometheus default.
}

// Mediator routes commands, queries, streams, and notifications between
// decoupled components of a single process. All dispatching is synchronous on
// the caller's flow of control.
type Mediator struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	handlers    HandlerResolver
	middlewares MiddlewareResolver
	subs        *subscriptionRegistry
	hierarchy   *hierarchyCache
	stats       *dispatchStats
	telemetry   *Telemetry
}

// New constructs a Mediator for the supplied configuration. Register handlers
// and subscribers on the returned Mediator before dispatching.
func New(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps Dependencies) (*Mediator, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	effective := conf.WithDefaults()
	if err := effective.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = loggingpkg.NopLogger()
	}

	handlers := deps.Handlers
	if handlers == nil {
		handlers = NewHandlerRegistry()
	}

	m := &Mediator{
		Conf:        &effective,
		Logger:      log,
		handlers:    handlers,
		middlewares: NewMiddlewareRegistry(),
		subs:        newSubscriptionRegistry(),
		hierarchy:   newHierarchyCache(),
		stats:       newDispatchStats(),
	}

	telemetry := deps.Telemetry
	if telemetry == nil && effective.MetricsEnabled {
		telemetry = NewTelemetry(effective.MetricsNamespace, deps.Registerer)
	}
	if telemetry != nil {
		if err := telemetry.Register(); err != nil {
			return nil, fmt.Errorf("relay: registering telemetry: %w", err)
		}
	}
	m.telemetry = telemetry

	if err := m.registerConfiguredMiddlewares(deps); err != nil {
		return nil, err
	}

	log.Info("Creating mediator",
		loggingpkg.LogFields{
			"metrics_enabled": effective.MetricsEnabled,
			"config":          effective,
		})

	return m, nil
}

func (m *Mediator) registerConfiguredMiddlewares(deps Dependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := m.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("relay: registering middleware %s: %w", name, err)
		}
	}
	return nil
}

// middlewareRegistrar is implemented by resolvers that accept registrations
// at runtime.
type middlewareRegistrar interface {
	Add(reg MiddlewareRegistration) error
}

// RegisterMiddleware adds a middleware to the mediator. Registrations with a
// Builder are constructed against this mediator first; a builder returning a
// nil middleware opts out of registration, which the metrics middleware uses
// when metrics are disabled.
func (m *Mediator) RegisterMiddleware(reg MiddlewareRegistration) error {
	if reg.Builder != nil {
		mw, err := reg.Builder(m)
		if err != nil {
			return err
		}
		if mw == nil {
			return nil
		}
		reg.Middleware = mw
	}
	if reg.Middleware == nil {
		return errspkg.ErrHandlerRequired
	}

	registrar, ok := m.middlewares.(middlewareRegistrar)
	if !ok {
		return errspkg.ErrRegistryReadOnly
	}
	return registrar.Add(reg)
}

func (m *Mediator) ratingThresholds() RatingThresholds {
	return RatingThresholds{
		Excellent: m.Conf.StreamExcellentRatio,
		Good:      m.Conf.StreamGoodRatio,
		Fair:      m.Conf.StreamFairRatio,
	}
}

// observeStream is the finalization hook installed on every instrumented
// stream.
func (m *Mediator) observeStream(info CallInfo, summary StreamSummary) {
	m.telemetry.ObserveStream(info, summary)

	fields := loggingpkg.LogFields{
		"request_type":  typeName(info.RequestType),
		"items":         summary.Items,
		"time_to_first": summary.TimeToFirst.String(),
		"mean_gap":      summary.MeanGap.String(),
		"jitter":        summary.Jitter.String(),
		"rating":        string(summary.Rating),
	}
	if summary.Err != nil {
		m.Logger.Error("Stream finished with error", summary.Err, fields)
		return
	}
	m.Logger.Debug("Stream finished", fields)
}
