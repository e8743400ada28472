package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusconnect/messaging/internal/domain"
	"github.com/campusconnect/messaging/internal/logger"
)

type ServerOptions struct {
	Store    Store
	Tokens   *TokenValidator // nil disables auth (dev mode)
	Producer *Producer       // nil disables publishing
	Presence *PresenceStore  // nil disables presence tracking

	RateLimitPerMinute int
	Logger             *zap.SugaredLogger
}

// Server is the relay: websocket fan-out plus the history HTTP API.
type Server struct {
	hub      *Hub
	store    Store
	tokens   *TokenValidator
	producer *Producer
	presence *PresenceStore
	log      *zap.SugaredLogger
	app      *fiber.App
}

func NewServer(opts ServerOptions) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		hub:      NewHub(),
		store:    opts.Store,
		tokens:   opts.Tokens,
		producer: opts.Producer,
		presence: opts.Presence,
		log:      log,
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(fiberlogger.New())
	if opts.RateLimitPerMinute > 0 {
		app.Use("/v1", newIPRateLimiter(opts.RateLimitPerMinute).handler())
	}

	api := app.Group("/v1")
	if s.tokens != nil {
		api.Use(s.authMiddleware)
	}
	api.Get("/rooms/:room_id/messages", s.listMessages)
	api.Post("/messages", s.saveMessage)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.handleWS))

	s.app = app
	return s
}

func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

func (s *Server) Shutdown(ctx context.Context) error { return s.app.ShutdownWithContext(ctx) }

func (s *Server) authMiddleware(c *fiber.Ctx) error {
	hdr := c.Get("Authorization")
	const pref = "Bearer "
	if len(hdr) <= len(pref) || hdr[:len(pref)] != pref {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing auth"})
	}
	sub, err := s.tokens.Validate(hdr[len(pref):])
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
	}
	c.Locals("user_id", sub)
	return c.Next()
}

func (s *Server) listMessages(c *fiber.Ctx) error {
	roomID := c.Params("room_id")
	msgs, err := s.store.List(c.Context(), roomID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok", "data": msgs})
}

// saveMessage is the persistence endpoint of the optimistic send lifecycle.
// The relay assigns the final id and timestamp; the response body is what the
// client reconciles its provisional entry against.
func (s *Server) saveMessage(c *fiber.Ctx) error {
	var m domain.Message
	if form, err := c.MultipartForm(); err == nil && form != nil {
		vals := form.Value["message"]
		if len(vals) == 0 || json.Unmarshal([]byte(vals[0]), &m) != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid message part"})
		}
	} else if err := c.BodyParser(&m); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	if m.RoomID == "" || m.SenderID == "" || m.Empty() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "room_id, sender_id and a body or attachment required"})
	}
	if uid, ok := c.Locals("user_id").(string); ok && uid != m.SenderID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "sender mismatch"})
	}

	m.ID = uuid.NewString()
	m.CreatedAt = time.Now().UTC()

	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()
	if err := s.store.Save(ctx, &m); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	if s.producer != nil {
		if err := s.producer.PublishPersisted(ctx, &m); err != nil {
			s.log.Warnw("kafka publish failed", "message", m.ID, "err", err)
		}
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "ok", "data": &m})
}

func (s *Server) handleWS(ws *websocket.Conn) {
	userID := ws.Query("user_id")
	if s.tokens != nil {
		uid, err := s.tokens.Validate(ws.Query("token"))
		if err != nil {
			_ = ws.Close()
			return
		}
		userID = uid
	}
	if userID == "" {
		_ = ws.Close()
		return
	}

	conn := NewConnection(ws, userID, s.hub, s.route)
	s.hub.Register(conn)
	if s.presence != nil {
		if err := s.presence.Online(context.Background(), userID); err != nil {
			s.log.Warnw("presence online failed", "user", userID, "err", err)
		}
	}
	s.log.Infow("client connected", "user", userID)

	go conn.writePump()
	conn.readPump()

	if s.presence != nil {
		if err := s.presence.Offline(context.Background(), userID); err != nil {
			s.log.Warnw("presence offline failed", "user", userID, "err", err)
		}
	}
	s.log.Infow("client disconnected", "user", userID)
}

// route handles one inbound frame. join_room mutates hub membership; every
// other event is fanned out verbatim to the rest of the room — the relay
// never reorders and never inspects more than the routing fields.
func (s *Server) route(c *Connection, f Frame) {
	switch f.Event {
	case domain.EventJoinRoom:
		var ev domain.JoinRoomEvent
		if err := json.Unmarshal(f.Payload, &ev); err != nil || ev.RoomID == "" {
			return
		}
		s.hub.Join(ev.RoomID, c)

	case domain.EventSendMessage:
		var m domain.Message
		if err := json.Unmarshal(f.Payload, &m); err != nil || m.RoomID == "" {
			return
		}
		s.hub.Broadcast(m.RoomID, Frame{Event: domain.EventReceiveMessage, Payload: f.Payload}, c)

	case domain.EventTyping, domain.EventStatus, domain.EventReaction:
		var ev struct {
			RoomID string `json:"room_id"`
		}
		if err := json.Unmarshal(f.Payload, &ev); err != nil || ev.RoomID == "" {
			return
		}
		s.hub.Broadcast(ev.RoomID, f, c)
	}
}
