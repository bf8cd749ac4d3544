// Package relay is an in-process mediator: it routes commands, queries,
// streams, and notifications between decoupled components of a single Go
// program, with an ordered middleware chain around every dispatch.
//
// Commands and queries are matched to exactly one handler by the concrete
// request (and response) type. Stream requests return a lazy sequence built
// on fgrzl/enumerators, decorated with per-item telemetry that rates each
// finished stream by its timing regularity. Notifications fan out to every
// matching recipient: explicit typed subscribers, broadcast subscribers, and
// handlers discovered through the notification's type hierarchy, which
// covers embedded base types and registered interfaces.
//
// All dispatching is synchronous on the caller's flow of control; the
// mediator spawns no goroutines. The default middleware chain adds
// correlation IDs, structured logging, OpenTelemetry tracing, Prometheus
// metrics, and panic recovery, in that order, and custom middleware slots in
// between by choosing an Order value.
//
// A minimal setup involves filling Config, creating a Mediator, registering
// handlers, and dispatching:
//
//	cfg := &relay.Config{MetricsEnabled: true}
//	m, err := relay.New(cfg, relay.NewSlogServiceLogger(slog.Default()), relay.Dependencies{})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	relay.RegisterQueryHandler(m, relay.QueryHandlerFunc[GetUser, *User](lookupUser))
//
//	user, err := relay.DispatchQuery[GetUser, *User](ctx, m, GetUser{ID: "42"})
//
// When you need more control, Dependencies exposes well-scoped hooks: bring
// your own HandlerResolver, middleware registrations, or Telemetry handle.
package relay
