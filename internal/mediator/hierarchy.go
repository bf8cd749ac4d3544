package mediator

import (
	"reflect"
	"sync"
)

// hierarchyRoute is one capability a published notification reaches beyond
// its exact type: an embedded base type or a registered interface the
// notification implements. convert extracts the value delivered to handlers
// registered under the route's key; ok is false when a nil embedded pointer
// makes the route unreachable for this particular notification.
type hierarchyRoute struct {
	key     CapabilityKey
	convert func(notification any) (value any, ok bool)
}

// hierarchyPlan is the memoized route set for one concrete notification
// type. Plans are invalidated by the handler registry's generation counter,
// so registering a new interface handler is picked up by the next publish.
type hierarchyPlan struct {
	generation uint64
	routes     []hierarchyRoute
}

type hierarchyCache struct {
	mu    sync.RWMutex
	plans map[reflect.Type]*hierarchyPlan
}

func newHierarchyCache() *hierarchyCache {
	return &hierarchyCache{plans: make(map[reflect.Type]*hierarchyPlan)}
}

// generationer is implemented by registries whose contents can change after
// construction. Resolvers without it disable plan memoization.
type generationer interface {
	Generation() uint64
}

// routesFor returns the hierarchy routes for the given notification type,
// building and memoizing the plan when needed.
func (c *hierarchyCache) routesFor(t reflect.Type, handlers HandlerResolver) []hierarchyRoute {
	gen, cacheable := uint64(0), false
	if g, ok := handlers.(generationer); ok {
		gen, cacheable = g.Generation(), true
	}

	if cacheable {
		c.mu.RLock()
		plan, ok := c.plans[t]
		c.mu.RUnlock()
		if ok && plan.generation == gen {
			return plan.routes
		}
	}

	routes := buildRoutes(t, handlers)

	if cacheable {
		c.mu.Lock()
		c.plans[t] = &hierarchyPlan{generation: gen, routes: routes}
		c.mu.Unlock()
	}
	return routes
}

// buildRoutes walks the notification type's shape. The exact type routes
// identity; embedded anonymous fields route breadth-first with the shallowest
// base first; registered interface capabilities route when the notification
// type implements them.
func buildRoutes(t reflect.Type, handlers HandlerResolver) []hierarchyRoute {
	var routes []hierarchyRoute

	routes = append(routes, hierarchyRoute{
		key:     CapabilityKey{Kind: KindNotification, Request: t},
		convert: identityConvert,
	})

	// Handlers registered for the value type still receive pointer-published
	// notifications, dereferenced.
	if t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Struct {
		routes = append(routes, hierarchyRoute{
			key:     CapabilityKey{Kind: KindNotification, Request: t.Elem()},
			convert: fieldConvert(nil, true),
		})
	}

	routes = append(routes, embeddedRoutes(t)...)
	routes = append(routes, interfaceRoutes(t, handlers)...)
	return routes
}

func identityConvert(notification any) (any, bool) {
	return notification, true
}

type fieldNode struct {
	t    reflect.Type
	path []int
}

// embeddedRoutes discovers base types reachable through anonymous struct
// fields, breadth-first. Each base type routes once; the shallowest path
// wins when a diamond makes a base reachable twice.
func embeddedRoutes(t reflect.Type) []hierarchyRoute {
	st := t
	if st.Kind() == reflect.Ptr {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return nil
	}

	var routes []hierarchyRoute
	seen := map[reflect.Type]bool{t: true, st: true}
	queue := []fieldNode{{t: st}}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		for i := 0; i < node.t.NumField(); i++ {
			field := node.t.Field(i)
			if !field.Anonymous || !field.IsExported() {
				continue
			}

			path := make([]int, len(node.path), len(node.path)+1)
			copy(path, node.path)
			path = append(path, i)

			if !seen[field.Type] {
				seen[field.Type] = true
				routes = append(routes, hierarchyRoute{
					key:     CapabilityKey{Kind: KindNotification, Request: field.Type},
					convert: fieldConvert(path, false),
				})
			}

			base := field.Type
			if base.Kind() == reflect.Ptr {
				base = base.Elem()
			}
			if base.Kind() == reflect.Struct && !seen[base] {
				if base != field.Type {
					seen[base] = true
					routes = append(routes, hierarchyRoute{
						key:     CapabilityKey{Kind: KindNotification, Request: base},
						convert: fieldConvert(path, true),
					})
				}
				queue = append(queue, fieldNode{t: base, path: path})
			}
		}
	}
	return routes
}

// interfaceRoutes matches the notification type against every registered
// interface capability. Interfaces cannot be enumerated from a type in Go,
// so discovery runs over the registry's known keys instead.
func interfaceRoutes(t reflect.Type, handlers HandlerResolver) []hierarchyRoute {
	var routes []hierarchyRoute
	for _, key := range handlers.Keys(KindNotification) {
		if key.Request == nil || key.Request.Kind() != reflect.Interface || key.Request == t {
			continue
		}
		if t.Implements(key.Request) {
			routes = append(routes, hierarchyRoute{key: key, convert: identityConvert})
		}
	}
	return routes
}

// fieldConvert walks an embedded field path, dereferencing intermediate
// pointers. derefFinal additionally dereferences the extracted value for
// routes keyed on the pointee type. A nil pointer along the path makes the
// route unreachable for that notification.
func fieldConvert(path []int, derefFinal bool) func(any) (any, bool) {
	return func(notification any) (any, bool) {
		v := reflect.ValueOf(notification)
		for _, i := range path {
			for v.Kind() == reflect.Ptr {
				if v.IsNil() {
					return nil, false
				}
				v = v.Elem()
			}
			if v.Kind() != reflect.Struct {
				return nil, false
			}
			v = v.Field(i)
		}
		if derefFinal {
			for v.Kind() == reflect.Ptr {
				if v.IsNil() {
					return nil, false
				}
				v = v.Elem()
			}
		}
		return v.Interface(), true
	}
}
