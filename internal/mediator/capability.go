package mediator

import "reflect"

// Kind classifies the call shapes the mediator dispatches.
type Kind uint8

const (
	KindCommand Kind = iota + 1
	KindQuery
	KindStream
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindQuery:
		return "query"
	case KindStream:
		return "stream"
	case KindNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// CapabilityKey identifies a handler capability: the kind of call, the
// request (or notification) type, and the response type where one exists.
// Commands and notifications leave Response nil; streams carry the item type.
type CapabilityKey struct {
	Kind     Kind
	Request  reflect.Type
	Response reflect.Type
}

// CallInfo describes the concrete call a pipeline instance is being built
// for. Middleware applicability is evaluated against it on every dispatch.
type CallInfo struct {
	Kind         Kind
	RequestType  reflect.Type
	ResponseType reflect.Type
}

// Capability declares which calls a middleware participates in. Empty slices
// mean "any". All populated constraints must hold; Match, when set, is
// evaluated last.
type Capability struct {
	Kinds         []Kind
	RequestTypes  []reflect.Type
	ResponseTypes []reflect.Type
	Match         func(CallInfo) bool
}

// Applies reports whether the capability covers the given call.
func (c Capability) Applies(info CallInfo) bool {
	if len(c.Kinds) > 0 && !containsKind(c.Kinds, info.Kind) {
		return false
	}
	if len(c.RequestTypes) > 0 && !containsType(c.RequestTypes, info.RequestType) {
		return false
	}
	if len(c.ResponseTypes) > 0 && !containsType(c.ResponseTypes, info.ResponseType) {
		return false
	}
	if c.Match != nil && !c.Match(info) {
		return false
	}
	return true
}

func containsKind(kinds []Kind, k Kind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

func containsType(types []reflect.Type, t reflect.Type) bool {
	for _, typ := range types {
		if typ == t {
			return true
		}
	}
	return false
}

// typeOf resolves the reflect.Type of a type parameter. Unlike
// reflect.TypeOf on a value, it works for interface types too.
func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func typeName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	return t.String()
}
