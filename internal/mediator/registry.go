package mediator

import (
	"context"
	"sync"

	errspkg "github.com/drblury/relay/internal/mediator/errors"
)

// HandlerFunc is the type-erased call shape every pipeline composes over.
// For commands and notifications the result is nil; for queries it is the
// response value; for streams it is the lazy sequence.
type HandlerFunc func(ctx context.Context, req any) (any, error)

// HandlerRegistration is a handler bound to a capability, as stored by a
// resolver. ID is a stable per-instance identifier assigned at registration
// time; fan-out deduplication relies on it.
type HandlerRegistration struct {
	ID     uint64
	Name   string
	Target any
	Invoke HandlerFunc
}

// HandlerResolver yields the handlers registered for a capability. The
// mediator only consumes this; the default implementation is
// HandlerRegistry, but callers may bring their own.
//
// Keys exists so the notification fan-out can discover which notification
// types have handlers at all: hierarchy traversal checks the concrete
// notification type against every registered notification key.
type HandlerResolver interface {
	Resolve(key CapabilityKey) []HandlerRegistration
	Keys(kind Kind) []CapabilityKey
}

// HandlerRegistrar is implemented by resolvers that accept registrations at
// runtime. The typed Register* helpers require it.
type HandlerRegistrar interface {
	Add(key CapabilityKey, reg HandlerRegistration) (uint64, error)
}

// HandlerRegistry is the default in-memory HandlerResolver. Buckets are
// copy-on-write so a slice handed out by Resolve stays stable while
// registrations continue.
type HandlerRegistry struct {
	mu         sync.RWMutex
	nextID     uint64
	entries    map[CapabilityKey][]HandlerRegistration
	keyOrder   map[Kind][]CapabilityKey
	generation uint64
}

// NewHandlerRegistry returns an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		entries:  make(map[CapabilityKey][]HandlerRegistration),
		keyOrder: make(map[Kind][]CapabilityKey),
	}
}

// Add stores a registration under the capability key and returns the stable
// instance id assigned to it. Uniqueness per key is deliberately not checked
// here: "exactly one handler" is a dispatch-time invariant.
func (r *HandlerRegistry) Add(key CapabilityKey, reg HandlerRegistration) (uint64, error) {
	if reg.Invoke == nil {
		return 0, errspkg.ErrHandlerRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	reg.ID = r.nextID

	bucket := r.entries[key]
	if len(bucket) == 0 {
		r.keyOrder[key.Kind] = append(r.keyOrder[key.Kind], key)
	}
	next := make([]HandlerRegistration, len(bucket), len(bucket)+1)
	copy(next, bucket)
	r.entries[key] = append(next, reg)

	r.generation++
	return reg.ID, nil
}

// Resolve returns the registrations for the key in registration order. The
// returned slice must not be mutated.
func (r *HandlerRegistry) Resolve(key CapabilityKey) []HandlerRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[key]
}

// Keys returns every capability key of the given kind, in first-registration
// order.
func (r *HandlerRegistry) Keys(kind Kind) []CapabilityKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.keyOrder[kind]
}

// Generation increases on every Add. The hierarchy cache uses it to know
// when memoized traversals are stale.
func (r *HandlerRegistry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}
