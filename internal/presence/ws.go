package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/campusconnect/messaging/internal/domain"
	"github.com/campusconnect/messaging/internal/errs"
	"github.com/campusconnect/messaging/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 64 * 1024
)

// WSChannel is the websocket-backed Channel. One connection is shared by all
// conversations of a session; rooms are multiplexed over it with join_room
// frames. On a dropped connection it redials with exponential backoff and
// re-issues join_room for every active room.
type WSChannel struct {
	url      string
	registry *registry
	log      *zap.SugaredLogger

	mu     sync.Mutex
	conn   *websocket.Conn
	joined map[string]bool
	closed bool
	cancel context.CancelFunc
}

func NewWSChannel(url string, log *zap.SugaredLogger) *WSChannel {
	if log == nil {
		log = logger.Nop()
	}
	return &WSChannel{
		url:      url,
		registry: newRegistry(),
		log:      log,
		joined:   make(map[string]bool),
	}
}

// Connect dials the relay and starts the read and ping pumps. The read pump
// is the single goroutine dispatching inbound frames, which preserves
// transport delivery order end to end.
func (c *WSChannel) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()

	go c.readPump(runCtx)
	go c.pingPump(runCtx)
	return nil
}

func (c *WSChannel) JoinRoom(roomID string) error {
	c.mu.Lock()
	if c.joined[roomID] {
		c.mu.Unlock()
		return nil
	}
	c.joined[roomID] = true
	c.mu.Unlock()

	return c.Emit(domain.EventJoinRoom, domain.JoinRoomEvent{RoomID: roomID})
}

func (c *WSChannel) Emit(event string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errs.ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(Frame{Event: event, Payload: b})
}

func (c *WSChannel) Subscribe(event string, h Handler) func() {
	return c.registry.add(event, h)
}

func (c *WSChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		return conn.Close()
	}
	return nil
}

func (c *WSChannel) readPump(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			c.log.Warnw("read failed, redialing", "err", err)
			c.redial(ctx)
			return
		}
		c.registry.dispatch(f)
	}
}

func (c *WSChannel) pingPump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// redial reconnects with exponential backoff and re-joins the rooms that were
// active, since room membership does not survive a transport reconnect.
func (c *WSChannel) redial(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	var conn *websocket.Conn
	operation := func() error {
		var err error
		conn, _, err = websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		return err
	}
	if err := backoff.Retry(operation, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		c.log.Errorw("redial gave up", "err", err)
		return
	}

	// The new connection gets fresh pumps; the previous generation's context
	// is cancelled so its ping pump does not outlive the conn it served.
	runCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		_ = conn.Close()
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	c.conn = conn
	rooms := make([]string, 0, len(c.joined))
	for r := range c.joined {
		rooms = append(rooms, r)
	}
	c.mu.Unlock()

	for _, r := range rooms {
		if err := c.Emit(domain.EventJoinRoom, domain.JoinRoomEvent{RoomID: r}); err != nil {
			c.log.Warnw("rejoin failed", "room", r, "err", err)
		}
	}
	c.log.Infow("reconnected", "rooms", len(rooms))

	go c.readPump(runCtx)
	go c.pingPump(runCtx)
}
