package mediator

import (
	"context"
	"fmt"

	"github.com/fgrzl/enumerators"

	errspkg "github.com/drblury/relay/internal/mediator/errors"
)

// DispatchStream routes a stream request to its unique handler and returns
// the lazily produced sequence, wrapped in a telemetry decorator that times
// every item. Resolution and middleware failures surface through the first
// enumeration step rather than a separate error return, so callers consume
// every outcome through the same loop.
func DispatchStream[Q any, I any](ctx context.Context, m *Mediator, query Q) enumerators.Enumerator[I] {
	if m == nil {
		return enumerators.Error[I](errspkg.ErrMediatorRequired)
	}

	key := CapabilityKey{Kind: KindStream, Request: typeOf[Q](), Response: typeOf[I]()}
	out, err := m.dispatch(ctx, key, query)
	if err != nil {
		return enumerators.Error[I](err)
	}

	seq, ok := out.(enumerators.Enumerator[I])
	if !ok {
		return enumerators.Error[I](fmt.Errorf("relay: pipeline produced %T, want enumerator of %v", out, key.Response))
	}

	info := CallInfo{Kind: key.Kind, RequestType: key.Request, ResponseType: key.Response}
	stats := newStreamStats(info, m.ratingThresholds(), m.observeStream)
	return &timedEnumerator[I]{ctx: ctx, inner: seq, stats: stats}
}

// InstrumentedStream is implemented by the enumerators DispatchStream returns
// on the success path. Summary yields the telemetry aggregate once the stream
// has been finalized.
type InstrumentedStream[I any] interface {
	enumerators.Enumerator[I]
	Summary() (StreamSummary, bool)
}

// timedEnumerator decorates a handler-produced sequence with per-item timing.
// It pulls the current item eagerly inside MoveNext so that failures are
// attributed to the pull that caused them, and it finalizes the stats exactly
// once on completion, failure, cancellation, or Dispose.
type timedEnumerator[I any] struct {
	ctx   context.Context
	inner enumerators.Enumerator[I]
	stats *StreamStats

	current I
	err     error
	done    bool
}

func (e *timedEnumerator[I]) MoveNext() bool {
	if e.done {
		return false
	}

	if err := e.ctx.Err(); err != nil {
		return e.fail(err)
	}

	if !e.inner.MoveNext() {
		e.done = true
		var zero I
		e.current, e.err = zero, nil
		e.stats.finalize()
		return false
	}

	value, err := e.inner.Current()
	if err != nil {
		e.current = value
		return e.fail(err)
	}

	e.current, e.err = value, nil
	e.stats.recordItem()
	return true
}

// fail records the terminal error and keeps the enumerator positioned on it
// for one Current read. Subsequent MoveNext calls return false.
func (e *timedEnumerator[I]) fail(err error) bool {
	e.err = err
	e.done = true
	e.stats.recordFailure(err)
	e.stats.finalize()
	return true
}

func (e *timedEnumerator[I]) Current() (I, error) {
	return e.current, e.err
}

func (e *timedEnumerator[I]) Err() error {
	return e.err
}

func (e *timedEnumerator[I]) Dispose() {
	if !e.done {
		e.done = true
		e.stats.finalize()
	}
	e.inner.Dispose()
}

// Summary returns the telemetry aggregate and whether the stream has been
// finalized yet. Partial consumption followed by Dispose still yields a
// summary covering the items that were pulled.
func (e *timedEnumerator[I]) Summary() (StreamSummary, bool) {
	return e.stats.Summary()
}
