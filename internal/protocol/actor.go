// Package protocol implements the actor runtime of the debugging protocol:
// actors, the pools that own them, connections that allocate their ids and
// dispatch request packets to them, and the state guard used by
// lifecycle-gated methods.
package protocol

import "context"

// Actor is a server-side object addressable by a stable id.
//
// Implementations embed BaseActor, which provides every method of this
// interface; the unexported method keeps pool bookkeeping inside this package.
type Actor interface {
	ActorID() string
	TypeName() string
	Conn() *Conn
	RegisteredPool() *Pool
	base() *BaseActor
}

// Method handles one request type of an actor
type Method func(ctx context.Context, req Packet) (Packet, error)

// MethodTable maps request types to their handlers
type MethodTable map[string]Method

// MethodProvider is implemented by actors that answer requests
type MethodProvider interface {
	Methods() MethodTable
}

// Destroyer is implemented by actors with a destructor. Pools call Destroy
// exactly once when the actor is removed.
type Destroyer interface {
	Destroy()
}

// Disconnecter is the legacy destructor name still used by some actors.
// It is only consulted when the actor is not a Destroyer.
type Disconnecter interface {
	Disconnect()
}

// FormProvider is implemented by actors that describe themselves to clients
type FormProvider interface {
	Form() Packet
}

// BaseActor carries the identity and ownership state shared by all actors
type BaseActor struct {
	actorID  string
	typeName string
	conn     *Conn
	pool     *Pool
}

// NewBaseActor creates the embedded actor state. The id is allocated from
// conn using typeName when the actor is first added to a pool.
func NewBaseActor(conn *Conn, typeName string) BaseActor {
	return BaseActor{conn: conn, typeName: typeName}
}

// NewBaseActorWithID creates the embedded actor state with a fixed id,
// as used by well-known actors such as "root".
func NewBaseActorWithID(conn *Conn, typeName, actorID string) BaseActor {
	return BaseActor{conn: conn, typeName: typeName, actorID: actorID}
}

// ActorID returns the actor's id, empty until the actor is pooled
func (a *BaseActor) ActorID() string { return a.actorID }

// TypeName returns the declared type name, also used as id prefix
func (a *BaseActor) TypeName() string { return a.typeName }

// Conn returns the owning connection
func (a *BaseActor) Conn() *Conn { return a.conn }

// RegisteredPool returns the pool currently owning the actor, or nil
func (a *BaseActor) RegisteredPool() *Pool { return a.pool }

func (a *BaseActor) base() *BaseActor { return a }
