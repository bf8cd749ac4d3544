/*
Package mediator implements the dispatching core of relay.

# Architecture Overview

The mediator matches requests to handlers by capability: the kind of call
(command, query, stream, or notification) plus the concrete request and
response types. Every dispatch composes a fresh pipeline of applicable
middleware around the resolved handler and runs it synchronously on the
caller's flow of control.

# Package Structure

## Core Service (service.go)

The Mediator struct is the central orchestrator that wires together:
  - Handler registry (capability keyed, copy-on-write)
  - Middleware registry with a deterministic total order
  - Subscription registry for explicit notification subscribers
  - Hierarchy cache for notification route discovery
  - Dispatch statistics and Prometheus telemetry

## Dispatching (request.go, stream.go, publish.go)

  - request.go: the shared pipeline engine, exactly-one handler resolution,
    and the Dispatch/DispatchQuery entry points
  - stream.go: DispatchStream and the per-item timing decorator around
    handler-produced enumerators
  - publish.go: notification fan-out across subscribers and discovered
    handlers, with a full per-recipient delivery report

## Middleware (middleware.go)

The middleware system provides composable dispatch stages:
  - CorrelationID: stamps a ULID on every dispatch context
  - LogCalls: structured logging of dispatch outcomes
  - Tracer: OpenTelemetry spans
  - Metrics: Prometheus dispatch counters and latency
  - Recoverer: panic recovery

## Telemetry (telemetry.go, stats.go)

Stream enumeration is timed per item; finished streams are summarized with
time-to-first-item, mean inter-item gap, jitter, throughput, and a rating
derived from configurable jitter thresholds. Dispatch counters per capability
are served as JSON by StatsHandler.

# Sub-packages

  - config/: mediator configuration with validation
  - errors/: sentinel errors and error types
  - ids/: ULID generation for correlation IDs
  - jsoncodec/: JSON marshaling utilities
  - logging/: logger interface and adapters
*/
package mediator
