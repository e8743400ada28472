// Package presence wraps the bidirectional real-time transport. It owns no
// conversation state; it only moves event frames.
package presence

import (
	"context"
	"encoding/json"
	"sync"
)

// Handler receives the raw payload of one event frame. Handlers for an event
// run in the order frames arrive from the transport; the transport is the
// sole ordering authority.
type Handler func(payload json.RawMessage)

// Channel is the injected transport seam. The production implementation dials
// a websocket; tests substitute MemoryChannel.
type Channel interface {
	Connect(ctx context.Context) error
	// JoinRoom subscribes the connection to a room. Idempotent; the active
	// rooms are re-joined after a reconnect since server-side membership does
	// not survive one.
	JoinRoom(roomID string) error
	Emit(event string, payload any) error
	// Subscribe registers a handler and returns its unsubscribe function.
	Subscribe(event string, h Handler) func()
	Close() error
}

// Frame is the JSON envelope of every event on the wire.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// registry keys handlers per event and preserves registration order for
// dispatch. Safe for concurrent use.
type registry struct {
	mu     sync.Mutex
	nextID int
	subs   map[string][]subscription
}

type subscription struct {
	id int
	h  Handler
}

func newRegistry() *registry {
	return &registry{subs: make(map[string][]subscription)}
}

func (r *registry) add(event string, h Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.subs[event] = append(r.subs[event], subscription{id: id, h: h})
	return func() { r.remove(event, id) }
}

func (r *registry) remove(event string, id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := r.subs[event]
	for i, s := range subs {
		if s.id == id {
			r.subs[event] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

func (r *registry) dispatch(f Frame) {
	r.mu.Lock()
	subs := make([]subscription, len(r.subs[f.Event]))
	copy(subs, r.subs[f.Event])
	r.mu.Unlock()

	for _, s := range subs {
		s.h(f.Payload)
	}
}
