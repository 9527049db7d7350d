package tracer

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sort"
	"sync"

	"github.com/yousuf/tracebyte/internal/protocol"
)

// Undefined is the grip-able stand-in for a missing value, e.g. the return
// value of a function that returned nothing.
var Undefined = undefinedValue{}

type undefinedValue struct{}

// identity keys reference values so that the same object gets the same grip
// within a session
type identity struct {
	typ reflect.Type
	ptr uintptr
	len int
}

func identityOf(v any) (identity, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return identity{}, false
		}
		return identity{typ: rv.Type(), ptr: rv.Pointer()}, true
	case reflect.Slice:
		if rv.IsNil() {
			return identity{}, false
		}
		return identity{typ: rv.Type(), ptr: rv.Pointer(), len: rv.Len()}, true
	default:
		return identity{}, false
	}
}

// gripPool holds the object actors created for one tracing session
type gripPool struct {
	mu      sync.Mutex
	conn    *protocol.Conn
	pool    *protocol.Pool
	objects map[identity]*ObjectActor
}

func newGripPool(conn *protocol.Conn) *gripPool {
	return &gripPool{
		conn:    conn,
		pool:    protocol.NewPool(conn, "tracer-grips"),
		objects: make(map[identity]*ObjectActor),
	}
}

func (g *gripPool) grip(v any) any {
	switch x := v.(type) {
	case nil:
		return protocol.Packet{"type": "null"}
	case undefinedValue:
		return protocol.Packet{"type": "undefined"}
	case string, bool:
		return x
	}

	if f, ok := protocol.ToFloat(v); ok {
		return numberGrip(f)
	}
	return g.object(v).Form()
}

func numberGrip(f float64) any {
	switch {
	case math.IsNaN(f):
		return protocol.Packet{"type": "NaN"}
	case math.IsInf(f, 1):
		return protocol.Packet{"type": "Infinity"}
	case math.IsInf(f, -1):
		return protocol.Packet{"type": "-Infinity"}
	case f == 0 && math.Signbit(f):
		return protocol.Packet{"type": "-0"}
	default:
		return f
	}
}

func (g *gripPool) object(v any) *ObjectActor {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, hasIdentity := identityOf(v)
	if hasIdentity {
		if a, ok := g.objects[id]; ok {
			return a
		}
	}

	a := &ObjectActor{BaseActor: protocol.NewBaseActor(g.conn, "obj"), value: v, release: g.forget}
	if err := g.pool.AddActor(a); err != nil {
		// "obj" is a valid type name and the pool has a connection
		panic(fmt.Sprintf("failed to pool value grip: %v", err))
	}
	if hasIdentity {
		a.identity = &id
		g.objects[id] = a
	}
	return a
}

func (g *gripPool) forget(a *ObjectActor) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if a.identity != nil && g.objects[*a.identity] == a {
		delete(g.objects, *a.identity)
	}
}

func (g *gripPool) destroy() {
	g.pool.Destroy()
	g.mu.Lock()
	g.objects = make(map[identity]*ObjectActor)
	g.mu.Unlock()
}

// ObjectActor is the grip of a non-primitive traced value
type ObjectActor struct {
	protocol.BaseActor
	value    any
	identity *identity
	release  func(*ObjectActor)
}

// Class names the value the way clients display it
func (a *ObjectActor) Class() string {
	switch reflect.ValueOf(a.value).Kind() {
	case reflect.Slice, reflect.Array:
		return "Array"
	case reflect.Func:
		return "Function"
	default:
		return "Object"
	}
}

// Form implements protocol.FormProvider
func (a *ObjectActor) Form() protocol.Packet {
	form := protocol.Packet{
		"type":  "object",
		"actor": a.ActorID(),
		"class": a.Class(),
	}
	if names := a.ownPropertyNames(); names != nil {
		form["ownPropertyLength"] = len(names)
	}
	return form
}

func (a *ObjectActor) ownPropertyNames() []string {
	rv := reflect.ValueOf(a.value)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		names := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			names = append(names, fmt.Sprint(k.Interface()))
		}
		sort.Strings(names)
		return names
	case reflect.Slice, reflect.Array:
		names := make([]string, rv.Len())
		for i := range names {
			names[i] = fmt.Sprint(i)
		}
		return names
	case reflect.Struct:
		var names []string
		for i := 0; i < rv.NumField(); i++ {
			if f := rv.Type().Field(i); f.IsExported() {
				names = append(names, f.Name)
			}
		}
		return names
	default:
		return nil
	}
}

// Methods implements protocol.MethodProvider
func (a *ObjectActor) Methods() protocol.MethodTable {
	return protocol.MethodTable{
		"ownPropertyNames": func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
			names := a.ownPropertyNames()
			if names == nil {
				names = []string{}
			}
			return protocol.Packet{"ownPropertyNames": names}, nil
		},
		"release": func(ctx context.Context, req protocol.Packet) (protocol.Packet, error) {
			if p := a.RegisteredPool(); p != nil {
				p.RemoveActor(a)
			}
			return nil, nil
		},
	}
}

// Destroy implements protocol.Destroyer
func (a *ObjectActor) Destroy() {
	if a.release != nil {
		a.release(a)
	}
	a.value = nil
}
