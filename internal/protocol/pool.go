package protocol

import (
	"container/list"
	"fmt"
	"sync"
)

// Pool owns a set of actors sharing a lifetime.
//
// The mutex only protects the pool's own bookkeeping. Destructors run with it
// released so that they may remove other actors from the same pool.
type Pool struct {
	conn  *Conn
	label string

	mu     sync.RWMutex
	actors map[string]*list.Element
	order  *list.List
}

// NewPool creates a pool and registers it with conn so that its actors can be
// found by id. A nil conn creates a detached pool whose actors must already
// have ids.
func NewPool(conn *Conn, label string) *Pool {
	p := &Pool{
		conn:   conn,
		label:  label,
		actors: make(map[string]*list.Element),
		order:  list.New(),
	}
	if conn != nil {
		conn.addPool(p)
	}
	return p
}

// Label returns the pool's debugging label
func (p *Pool) Label() string { return p.label }

// AddActor registers actor in the pool.
//
// An actor without an id gets one allocated from the connection using its
// type name. An actor registered in another pool is detached from it first,
// without calling its destructor.
func (p *Pool) AddActor(actor Actor) error {
	b := actor.base()
	if b.actorID == "" {
		if b.typeName == "" {
			return ErrMissingTypeName
		}
		conn := p.conn
		if conn == nil {
			conn = b.conn
		}
		if conn == nil {
			return fmt.Errorf("pool %q: cannot allocate an id for %q without a connection", p.label, b.typeName)
		}
		b.actorID = conn.AllocID(b.typeName)
	}

	if old := b.pool; old != nil && old != p {
		old.detach(actor)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if el, ok := p.actors[b.actorID]; ok {
		if prev := el.Value.(Actor); prev != actor {
			prev.base().pool = nil
		}
		el.Value = actor
	} else {
		p.actors[b.actorID] = p.order.PushBack(actor)
	}
	b.pool = p
	return nil
}

// RemoveActor unregisters actor and runs its destructor exactly once.
// Removing an actor that is not in the pool is a no-op.
func (p *Pool) RemoveActor(actor Actor) {
	if !p.detach(actor) {
		return
	}
	switch a := actor.(type) {
	case Destroyer:
		a.Destroy()
	case Disconnecter:
		a.Disconnect()
	}
}

// detach drops the mapping without running the destructor
func (p *Pool) detach(actor Actor) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	b := actor.base()
	el, ok := p.actors[b.actorID]
	if !ok || el.Value.(Actor) != actor {
		return false
	}
	delete(p.actors, b.actorID)
	p.order.Remove(el)
	b.pool = nil
	return true
}

// Get returns the actor registered under id
func (p *Pool) Get(id string) (Actor, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	el, ok := p.actors[id]
	if !ok {
		return nil, false
	}
	return el.Value.(Actor), true
}

// Has reports whether an actor is registered under id
func (p *Pool) Has(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.actors[id]
	return ok
}

// IsEmpty reports whether the pool holds no actors
func (p *Pool) IsEmpty() bool {
	return p.Len() == 0
}

// Len returns the number of registered actors
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.actors)
}

// ForEach calls fn for every actor in insertion order.
// fn must not add or remove actors of this pool.
func (p *Pool) ForEach(fn func(Actor)) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for el := p.order.Front(); el != nil; el = el.Next() {
		fn(el.Value.(Actor))
	}
}

func (p *Pool) front() Actor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if el := p.order.Front(); el != nil {
		return el.Value.(Actor)
	}
	return nil
}

// Destroy removes every actor, running each destructor once, and
// unregisters the pool from its connection. It is idempotent.
func (p *Pool) Destroy() {
	for a := p.front(); a != nil; a = p.front() {
		p.RemoveActor(a)
	}
	if p.conn != nil {
		p.conn.removePool(p)
	}
}
