// Package relay is the reference server the messaging core talks to: a
// websocket fan-out hub plus the HTTP persistence API. One relay instance
// serves every conversation of its connected users.
package relay

import (
	"encoding/json"
	"sync"
)

// Frame is the JSON envelope of every websocket event.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// client is one connected socket. Connection implements it; tests substitute
// a recorder.
type client interface {
	UserID() string
	Send(f Frame) bool
}

// Hub tracks connected clients and their room memberships.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[client]struct{}
	users map[string]map[client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[client]struct{}),
		users: make(map[string]map[client]struct{}),
	}
}

func (h *Hub) Register(c client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.users[c.UserID()]; !ok {
		h.users[c.UserID()] = make(map[client]struct{})
	}
	h.users[c.UserID()][c] = struct{}{}
}

func (h *Hub) Unregister(c client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	if set, ok := h.users[c.UserID()]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.users, c.UserID())
		}
	}
}

// Join subscribes a client to a room. Idempotent.
func (h *Hub) Join(roomID string, c client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[client]struct{})
	}
	h.rooms[roomID][c] = struct{}{}
}

// Broadcast sends a frame to every room member except the originator.
// Returns how many clients the frame reached.
func (h *Hub) Broadcast(roomID string, f Frame, except client) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.rooms[roomID] {
		if c == except {
			continue
		}
		if c.Send(f) {
			n++
		}
	}
	return n
}

// SendToUser delivers a frame to every socket of one user.
func (h *Hub) SendToUser(userID string, f Frame) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.users[userID] {
		if c.Send(f) {
			n++
		}
	}
	return n
}
