package actors

import (
	"github.com/yousuf/tracebyte/internal/protocol"
)

// actorSet keeps one actor per inventory key alive across list requests,
// so that clients see stable ids. Actors whose key disappears are removed
// from the pool, which destroys them.
type actorSet[K comparable, A protocol.Actor] struct {
	pool   *protocol.Pool
	actors map[K]A
}

func newActorSet[K comparable, A protocol.Actor](conn *protocol.Conn, label string) *actorSet[K, A] {
	return &actorSet[K, A]{
		pool:   protocol.NewPool(conn, label),
		actors: make(map[K]A),
	}
}

// sync reconciles the set with keys. create builds the actor for keys[i];
// update, when non-nil, refreshes an actor that already exists.
func (s *actorSet[K, A]) sync(keys []K, create func(i int) A, update func(a A, i int)) ([]A, error) {
	seen := make(map[K]bool, len(keys))
	out := make([]A, 0, len(keys))
	for i, k := range keys {
		seen[k] = true
		a, ok := s.actors[k]
		if ok {
			if update != nil {
				update(a, i)
			}
		} else {
			a = create(i)
			if err := s.pool.AddActor(a); err != nil {
				return nil, err
			}
			s.actors[k] = a
		}
		out = append(out, a)
	}
	for k, a := range s.actors {
		if !seen[k] {
			s.pool.RemoveActor(a)
			delete(s.actors, k)
		}
	}
	return out, nil
}

func forms[A protocol.FormProvider](actors []A) []protocol.Packet {
	out := make([]protocol.Packet, 0, len(actors))
	for _, a := range actors {
		out = append(out, a.Form())
	}
	return out
}
