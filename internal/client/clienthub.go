package client

import (
	"sync"

	"github.com/yousuf/tracebyte/internal/protocol"
)

// eventHub fans actor events out to subscribers.
//
// Subscribers are called in subscription order on the goroutine that
// delivers the notification, so they must not block.
type eventHub struct {
	mu          sync.RWMutex
	nextID      int
	subscribers map[int]func(protocol.Packet)
	order       []int
}

func newEventHub() *eventHub {
	return &eventHub{subscribers: make(map[int]func(protocol.Packet))}
}

func (h *eventHub) subscribe(fn func(protocol.Packet)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	h.subscribers[id] = fn
	h.order = append(h.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { h.unsubscribe(id) })
	}
}

func (h *eventHub) unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subscribers, id)
	for i, v := range h.order {
		if v == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

func (h *eventHub) publish(ev protocol.Packet) {
	h.mu.RLock()
	fns := make([]func(protocol.Packet), 0, len(h.order))
	for _, id := range h.order {
		fns = append(fns, h.subscribers[id])
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
