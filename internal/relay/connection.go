package relay

import (
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 64 * 1024
	sendBuffer = 256
)

// Connection is one authenticated websocket client.
type Connection struct {
	ws     *websocket.Conn
	send   chan Frame
	userID string
	hub    *Hub
	route  func(*Connection, Frame)
}

func NewConnection(ws *websocket.Conn, userID string, hub *Hub, route func(*Connection, Frame)) *Connection {
	return &Connection{
		ws:     ws,
		send:   make(chan Frame, sendBuffer),
		userID: userID,
		hub:    hub,
		route:  route,
	}
}

func (c *Connection) UserID() string { return c.userID }

// Send queues a frame for the write pump. A slow client gets frames dropped
// rather than stalling the hub.
func (c *Connection) Send(f Frame) bool {
	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.hub.Unregister(c)
		close(c.send)
		_ = c.ws.Close()
	}()
	c.ws.SetReadLimit(readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		c.route(c, f)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case f, ok := <-c.send:
			if !ok {
				_ = c.ws.WriteControl(websocket.CloseMessage, nil, time.Now().Add(time.Second))
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}
