package presence

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryChannel is an in-process Channel for tests and offline development.
// Emitted frames are recorded; Deliver injects inbound frames and dispatches
// them synchronously, in call order, mirroring the single-reader ordering of
// the websocket transport.
type MemoryChannel struct {
	registry *registry

	mu      sync.Mutex
	rooms   map[string]bool
	emitted []Frame
}

func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{
		registry: newRegistry(),
		rooms:    make(map[string]bool),
	}
}

func (c *MemoryChannel) Connect(ctx context.Context) error { return nil }

func (c *MemoryChannel) JoinRoom(roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[roomID] = true
	return nil
}

func (c *MemoryChannel) Emit(event string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitted = append(c.emitted, Frame{Event: event, Payload: b})
	return nil
}

func (c *MemoryChannel) Subscribe(event string, h Handler) func() {
	return c.registry.add(event, h)
}

func (c *MemoryChannel) Close() error { return nil }

// Deliver simulates an inbound frame from the relay.
func (c *MemoryChannel) Deliver(event string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.registry.dispatch(Frame{Event: event, Payload: b})
	return nil
}

// Joined reports whether the room was joined.
func (c *MemoryChannel) Joined(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[roomID]
}

// Emitted returns the frames emitted so far with the given event name; all
// frames when event is empty.
func (c *MemoryChannel) Emitted(event string) []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Frame, 0, len(c.emitted))
	for _, f := range c.emitted {
		if event == "" || f.Event == event {
			out = append(out, f)
		}
	}
	return out
}
