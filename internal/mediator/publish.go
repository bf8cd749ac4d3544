package mediator

import (
	"context"
	sterrors "errors"
	"fmt"
	"reflect"

	"github.com/hashicorp/go-multierror"

	errspkg "github.com/drblury/relay/internal/mediator/errors"
)

// Recipient roles in a publish report.
const (
	RoleSubscriber = "subscriber"
	RoleBroadcast  = "broadcast"
	RoleHandler    = "handler"
)

// RecipientResult records one delivery attempt during a publish.
type RecipientResult struct {
	Name string
	Role string
	Err  error
}

// PublishReport is the full account of one fan-out: every recipient that was
// attempted, in delivery order, with its individual outcome.
type PublishReport struct {
	Notification string
	Results      []RecipientResult
}

// Delivered reports how many recipients completed without error.
func (r *PublishReport) Delivered() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the results of recipients that returned an error.
func (r *PublishReport) Failed() []RecipientResult {
	var failed []RecipientResult
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// Err aggregates every recipient failure, or nil when all deliveries
// succeeded.
func (r *PublishReport) Err() error {
	var agg *multierror.Error
	for _, res := range r.Results {
		if res.Err != nil {
			agg = multierror.Append(agg, fmt.Errorf("%s %q: %w", res.Role, res.Name, res.Err))
		}
	}
	return agg.ErrorOrNil()
}

// PublishError is returned when one or more recipients of a publish failed.
// It wraps the first failure in delivery order; the full report, including
// recipients that succeeded afterwards, rides along for callers that need the
// complete picture.
type PublishError struct {
	First  error
	Report *PublishReport
}

func (e *PublishError) Error() string {
	failed := len(e.Report.Failed())
	return fmt.Sprintf("relay: publish of %s failed for %d of %d recipients: %v",
		e.Report.Notification, failed, len(e.Report.Results), e.First)
}

func (e *PublishError) Unwrap() error { return e.First }

// Publish fans a notification out to every matching recipient, sequentially
// on the caller's flow of control: explicit typed subscribers first, then
// broadcast subscribers, then handlers discovered through the notification's
// type hierarchy. Every recipient is attempted even when an earlier one
// fails; a failure surfaces as a PublishError wrapping the first error.
//
// Publishing to zero recipients is a silent no-op.
func (m *Mediator) Publish(ctx context.Context, notification any) error {
	if m == nil {
		return errspkg.ErrMediatorRequired
	}
	if notification == nil {
		return errspkg.ErrNotificationRequired
	}

	_, err := m.PublishWithReport(ctx, notification)
	return err
}

// PublishWithReport behaves like Publish and additionally returns the
// delivery report. The report is nil when a middleware short-circuits the
// fan-out before any recipient runs.
func (m *Mediator) PublishWithReport(ctx context.Context, notification any) (*PublishReport, error) {
	if m == nil {
		return nil, errspkg.ErrMediatorRequired
	}
	if notification == nil {
		return nil, errspkg.ErrNotificationRequired
	}

	t := reflect.TypeOf(notification)
	key := CapabilityKey{Kind: KindNotification, Request: t}
	info := CallInfo{Kind: KindNotification, RequestType: t}

	terminal := m.instrument(key, func(ctx context.Context, req any) (any, error) {
		return m.fanOut(ctx, t, req)
	})
	pipeline := m.buildPipeline(info, terminal)

	out, err := pipeline(withCallInfo(ctx, info), notification)
	report, _ := out.(*PublishReport)
	if report == nil {
		var pubErr *PublishError
		if sterrors.As(err, &pubErr) {
			report = pubErr.Report
		}
	}
	return report, err
}

// fanOut delivers the notification to all recipients in order. Individual
// recipient panics are contained so later recipients still run.
func (m *Mediator) fanOut(ctx context.Context, t reflect.Type, notification any) (*PublishReport, error) {
	report := &PublishReport{Notification: typeName(t)}
	var first error

	deliver := func(name, role string, fn func() error) {
		err := safeDeliver(fn)
		report.Results = append(report.Results, RecipientResult{Name: name, Role: role, Err: err})
		if err != nil && first == nil {
			first = err
		}
	}

	typed, broadcast := m.subs.snapshot(t)
	for _, entry := range typed {
		entry := entry
		deliver(entry.name, RoleSubscriber, func() error { return entry.invoke(ctx, notification) })
	}
	for _, entry := range broadcast {
		entry := entry
		deliver(entry.name, RoleBroadcast, func() error { return entry.invoke(ctx, notification) })
	}

	seen := make(map[uint64]bool)
	for _, route := range m.hierarchy.routesFor(t, m.handlers) {
		regs := m.handlers.Resolve(route.key)
		if len(regs) == 0 {
			continue
		}
		value, ok := route.convert(notification)
		if !ok {
			continue
		}
		for _, reg := range regs {
			if seen[reg.ID] {
				continue
			}
			seen[reg.ID] = true
			reg := reg
			deliver(reg.Name, RoleHandler, func() error {
				_, err := reg.Invoke(ctx, value)
				return err
			})
		}
	}

	if first != nil {
		return report, &PublishError{First: first, Report: report}
	}
	return report, nil
}

func safeDeliver(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &errspkg.RecoveredPanicError{Value: r}
		}
	}()
	return fn()
}
