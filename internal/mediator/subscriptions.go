package mediator

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	errspkg "github.com/drblury/relay/internal/mediator/errors"
)

// BroadcastSubscriber receives every published notification regardless of its
// type.
type BroadcastSubscriber interface {
	Receive(ctx context.Context, notification any) error
}

// BroadcastSubscriberFunc adapts a function to BroadcastSubscriber.
type BroadcastSubscriberFunc func(ctx context.Context, notification any) error

func (f BroadcastSubscriberFunc) Receive(ctx context.Context, notification any) error {
	return f(ctx, notification)
}

type subscriberEntry struct {
	id     uint64
	name   string
	target any
	invoke func(ctx context.Context, notification any) error
}

// subscriptionRegistry holds explicit subscribers. Buckets are copy-on-write:
// mutations replace the bucket slice, so a snapshot taken at publish time
// stays stable while concurrent subscribe and unsubscribe calls proceed.
// Interface keys are additionally tracked in first-subscription order so the
// delivery order of interface-matched subscribers is deterministic.
type subscriptionRegistry struct {
	mu         sync.RWMutex
	nextID     uint64
	typed      map[reflect.Type][]subscriberEntry
	ifaceOrder []reflect.Type
	broadcast  []subscriberEntry
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{typed: make(map[reflect.Type][]subscriberEntry)}
}

func (r *subscriptionRegistry) subscribe(t reflect.Type, entry subscriberEntry) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	entry.id = r.nextID

	bucket := r.typed[t]
	if len(bucket) == 0 && t.Kind() == reflect.Interface {
		r.ifaceOrder = append(r.ifaceOrder, t)
	}
	next := make([]subscriberEntry, len(bucket), len(bucket)+1)
	copy(next, bucket)
	r.typed[t] = append(next, entry)
	return entry.id
}

func (r *subscriptionRegistry) subscribeBroadcast(entry subscriberEntry) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	entry.id = r.nextID

	next := make([]subscriberEntry, len(r.broadcast), len(r.broadcast)+1)
	copy(next, r.broadcast)
	r.broadcast = append(next, entry)
	return entry.id
}

// unsubscribe removes every subscription whose target is the given identity,
// across all typed buckets and the broadcast list. It reports how many
// entries were removed; removing an unknown identity is a no-op.
func (r *subscriptionRegistry) unsubscribe(target any) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for t, bucket := range r.typed {
		next, n := withoutIdentity(bucket, target)
		if n > 0 {
			removed += n
			if len(next) == 0 {
				delete(r.typed, t)
				if t.Kind() == reflect.Interface {
					r.ifaceOrder = withoutType(r.ifaceOrder, t)
				}
			} else {
				r.typed[t] = next
			}
		}
	}

	next, n := withoutIdentity(r.broadcast, target)
	if n > 0 {
		removed += n
		r.broadcast = next
	}
	return removed
}

// snapshot returns the subscribers matching t and the broadcast list. Exact
// type matches come first, then subscribers keyed on interfaces t implements,
// in first-subscription order of the interface so delivery order is stable
// across publishes. The returned slices are never mutated afterwards.
func (r *subscriptionRegistry) snapshot(t reflect.Type) (typed, broadcast []subscriberEntry) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	typed = r.typed[t]
	for _, keyType := range r.ifaceOrder {
		if keyType == t || !t.Implements(keyType) {
			continue
		}
		// Full slice expression keeps the stored bucket copy-on-write.
		typed = append(typed[:len(typed):len(typed)], r.typed[keyType]...)
	}
	return typed, r.broadcast
}

// withoutIdentity builds a new slice excluding entries whose target is the
// given identity. Returns the original slice when nothing matched.
func withoutIdentity(bucket []subscriberEntry, target any) ([]subscriberEntry, int) {
	matched := 0
	for _, entry := range bucket {
		if sameIdentity(entry.target, target) {
			matched++
		}
	}
	if matched == 0 {
		return bucket, 0
	}

	next := make([]subscriberEntry, 0, len(bucket)-matched)
	for _, entry := range bucket {
		if !sameIdentity(entry.target, target) {
			next = append(next, entry)
		}
	}
	return next, matched
}

// withoutType builds a new slice excluding t. Returns the original slice when
// t is absent.
func withoutType(types []reflect.Type, t reflect.Type) []reflect.Type {
	for i, typ := range types {
		if typ == t {
			next := make([]reflect.Type, 0, len(types)-1)
			next = append(next, types[:i]...)
			return append(next, types[i+1:]...)
		}
	}
	return types
}

// sameIdentity reports whether a and b are the same subscriber. Pointer
// targets compare by address; comparable values fall back to equality.
func sameIdentity(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if av.Kind() == reflect.Ptr || bv.Kind() == reflect.Ptr {
		return av.Kind() == bv.Kind() && av.Kind() == reflect.Ptr && av.Pointer() == bv.Pointer() && av.Type() == bv.Type()
	}
	if av.Type() != bv.Type() || !av.Type().Comparable() {
		return false
	}
	return a == b
}

// Subscribe registers an explicit subscriber for notifications of type N,
// which may be a concrete or an interface type. Subscribing the same
// subscriber twice delivers each notification twice.
func Subscribe[N any](m *Mediator, s NotificationHandler[N]) error {
	if m == nil {
		return errspkg.ErrMediatorRequired
	}
	if s == nil {
		return errspkg.ErrSubscriberRequired
	}
	m.subs.subscribe(typeOf[N](), subscriberEntry{
		name:   fmt.Sprintf("%T", s),
		target: s,
		invoke: func(ctx context.Context, notification any) error {
			return s.Handle(ctx, notification.(N))
		},
	})
	return nil
}

// SubscribeBroadcast registers a subscriber that receives every published
// notification.
func SubscribeBroadcast(m *Mediator, s BroadcastSubscriber) error {
	if m == nil {
		return errspkg.ErrMediatorRequired
	}
	if s == nil {
		return errspkg.ErrSubscriberRequired
	}
	m.subs.subscribeBroadcast(subscriberEntry{
		name:   fmt.Sprintf("%T", s),
		target: s,
		invoke: s.Receive,
	})
	return nil
}

// Unsubscribe removes every subscription held by the given subscriber, typed
// and broadcast alike. Unsubscribing an unknown subscriber is a no-op.
//
// Matching is by identity: pointer subscribers compare by address, comparable
// values by equality. Func adapters have no usable identity; subscribe with a
// pointer type when unsubscription is needed.
func Unsubscribe(m *Mediator, s any) error {
	if m == nil {
		return errspkg.ErrMediatorRequired
	}
	if s == nil {
		return errspkg.ErrSubscriberRequired
	}
	m.subs.unsubscribe(s)
	return nil
}
