package mediator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fgrzl/enumerators"

	errspkg "github.com/drblury/relay/internal/mediator/errors"
)

type tailQuery struct{ Count int }

func registerTailHandler(t *testing.T, m *Mediator, fn func(ctx context.Context, q tailQuery) enumerators.Enumerator[int]) {
	t.Helper()
	if err := RegisterStreamHandler(m, StreamHandlerFunc[tailQuery, int](fn)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDispatchStream(t *testing.T) {
	t.Parallel()

	t.Run("delivers items in order", func(t *testing.T) {
		m := newTestMediator(t)
		registerTailHandler(t, m, func(ctx context.Context, q tailQuery) enumerators.Enumerator[int] {
			return enumerators.Slice([]int{1, 2, 3})
		})

		stream := DispatchStream[tailQuery, int](context.Background(), m, tailQuery{Count: 3})
		defer stream.Dispose()

		got, err := enumerators.ToSlice(stream)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
			t.Fatalf("unexpected items: %v", got)
		}
	})

	t.Run("resolution failure surfaces through enumeration", func(t *testing.T) {
		m := newTestMediator(t)
		stream := DispatchStream[tailQuery, int](context.Background(), m, tailQuery{})
		defer stream.Dispose()

		if !stream.MoveNext() {
			t.Fatal("expected one enumeration step carrying the error")
		}
		_, err := stream.Current()
		var notFound *errspkg.NotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
		if stream.MoveNext() {
			t.Fatal("expected enumeration to end after the error")
		}
	})

	t.Run("mid-stream failure ends enumeration", func(t *testing.T) {
		m := newTestMediator(t)
		boom := errors.New("feed lost")
		registerTailHandler(t, m, func(ctx context.Context, q tailQuery) enumerators.Enumerator[int] {
			return enumerators.Map(enumerators.Slice([]int{1, 2, 3}), func(v int) (int, error) {
				if v == 3 {
					return 0, boom
				}
				return v, nil
			})
		})

		stream := DispatchStream[tailQuery, int](context.Background(), m, tailQuery{})
		defer stream.Dispose()

		var items []int
		var streamErr error
		for stream.MoveNext() {
			v, err := stream.Current()
			if err != nil {
				streamErr = err
				break
			}
			items = append(items, v)
		}
		if !errors.Is(streamErr, boom) {
			t.Fatalf("expected stream error, got %v (items %v)", streamErr, items)
		}
		if stream.MoveNext() {
			t.Fatal("expected enumeration to stay ended after the error")
		}
	})

	t.Run("cancellation surfaces once then ends", func(t *testing.T) {
		m := newTestMediator(t)
		registerTailHandler(t, m, func(ctx context.Context, q tailQuery) enumerators.Enumerator[int] {
			return enumerators.Range(0, 1000, func(i int) int { return i })
		})

		ctx, cancel := context.WithCancel(context.Background())
		stream := DispatchStream[tailQuery, int](ctx, m, tailQuery{})
		defer stream.Dispose()

		if !stream.MoveNext() {
			t.Fatal("expected first item")
		}
		if _, err := stream.Current(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		cancel()

		if !stream.MoveNext() {
			t.Fatal("expected one enumeration step carrying the cancellation")
		}
		if _, err := stream.Current(); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if stream.MoveNext() {
			t.Fatal("expected enumeration to end after cancellation")
		}

		// Cancellation finalizes the telemetry with the items pulled so far,
		// and a later Dispose must not change the summary.
		instrumented := stream.(InstrumentedStream[int])
		summary, done := instrumented.Summary()
		if !done {
			t.Fatal("expected summary after cancellation")
		}
		if summary.Items != 1 {
			t.Fatalf("expected 1 item in summary, got %d", summary.Items)
		}
		if !errors.Is(summary.Err, context.Canceled) {
			t.Fatalf("expected cancellation in summary, got %v", summary.Err)
		}

		stream.Dispose()
		after, done := instrumented.Summary()
		if !done || after.Items != summary.Items || !errors.Is(after.Err, context.Canceled) {
			t.Fatalf("expected summary unchanged after Dispose, got done=%v %+v", done, after)
		}
	})
}

func TestStreamSummary(t *testing.T) {
	t.Parallel()

	t.Run("summarizes a completed stream", func(t *testing.T) {
		m := newTestMediator(t)
		registerTailHandler(t, m, func(ctx context.Context, q tailQuery) enumerators.Enumerator[int] {
			return enumerators.Range(0, q.Count, func(i int) int {
				time.Sleep(2 * time.Millisecond)
				return i
			})
		})

		stream := DispatchStream[tailQuery, int](context.Background(), m, tailQuery{Count: 5})
		if _, err := enumerators.ToSlice(stream); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		instrumented, ok := stream.(InstrumentedStream[int])
		if !ok {
			t.Fatal("expected an instrumented stream")
		}
		summary, done := instrumented.Summary()
		if !done {
			t.Fatal("expected summary after completion")
		}
		if summary.Items != 5 {
			t.Fatalf("expected 5 items, got %d", summary.Items)
		}
		if summary.TimeToFirst <= 0 {
			t.Fatal("expected positive time to first item")
		}
		if summary.MeanGap <= 0 {
			t.Fatal("expected positive mean gap")
		}
		if summary.Rating == "" {
			t.Fatal("expected a rating")
		}
	})

	t.Run("dispose finalizes a partially consumed stream", func(t *testing.T) {
		m := newTestMediator(t)
		registerTailHandler(t, m, func(ctx context.Context, q tailQuery) enumerators.Enumerator[int] {
			return enumerators.Range(0, 100, func(i int) int { return i })
		})

		stream := DispatchStream[tailQuery, int](context.Background(), m, tailQuery{})
		instrumented := stream.(InstrumentedStream[int])

		for i := 0; i < 3 && stream.MoveNext(); i++ {
			if _, err := stream.Current(); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if _, done := instrumented.Summary(); done {
			t.Fatal("summary must not exist before finalization")
		}

		stream.Dispose()

		summary, done := instrumented.Summary()
		if !done {
			t.Fatal("expected summary after Dispose")
		}
		if summary.Items != 3 {
			t.Fatalf("expected 3 items in summary, got %d", summary.Items)
		}
	})

	t.Run("failed stream keeps the error in the summary", func(t *testing.T) {
		m := newTestMediator(t)
		boom := errors.New("boom")
		registerTailHandler(t, m, func(ctx context.Context, q tailQuery) enumerators.Enumerator[int] {
			return enumerators.Error[int](boom)
		})

		stream := DispatchStream[tailQuery, int](context.Background(), m, tailQuery{})
		for stream.MoveNext() {
			_, _ = stream.Current()
		}

		summary, done := stream.(InstrumentedStream[int]).Summary()
		if !done {
			t.Fatal("expected summary after failure")
		}
		if !errors.Is(summary.Err, boom) {
			t.Fatalf("expected failure in summary, got %v", summary.Err)
		}
		if summary.Items != 0 {
			t.Fatalf("expected 0 items, got %d", summary.Items)
		}
	})

	t.Run("nil sequence from handler yields NilResultError", func(t *testing.T) {
		m := newTestMediator(t)
		registerTailHandler(t, m, func(ctx context.Context, q tailQuery) enumerators.Enumerator[int] {
			return nil
		})

		stream := DispatchStream[tailQuery, int](context.Background(), m, tailQuery{})
		if !stream.MoveNext() {
			t.Fatal("expected one enumeration step carrying the error")
		}
		_, err := stream.Current()
		var nilResult *errspkg.NilResultError
		if !errors.As(err, &nilResult) {
			t.Fatalf("expected NilResultError, got %v", err)
		}
	})
}
