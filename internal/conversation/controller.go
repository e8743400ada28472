// Package conversation orchestrates one two-party conversation: it joins the
// room, merges history with live events, and routes every event to the
// component that owns the corresponding state.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/campusconnect/messaging/internal/delivery"
	"github.com/campusconnect/messaging/internal/domain"
	"github.com/campusconnect/messaging/internal/errs"
	"github.com/campusconnect/messaging/internal/history"
	"github.com/campusconnect/messaging/internal/logger"
	"github.com/campusconnect/messaging/internal/presence"
	"github.com/campusconnect/messaging/internal/reaction"
	"github.com/campusconnect/messaging/internal/room"
	"github.com/campusconnect/messaging/internal/timeline"
	"github.com/campusconnect/messaging/internal/typing"
)

type Options struct {
	LocalUserID  string
	RemoteUserID string
	Channel      presence.Channel
	History      history.Service

	TypingDebounce time.Duration
	TypingTimeout  time.Duration

	// OnChange fires after any state mutation so a UI layer can re-render.
	// Called without internal locks held, possibly from the channel's
	// dispatch goroutine.
	OnChange func()

	Logger *zap.SugaredLogger
}

// Controller glues timeline, tracker, typing signal and reaction ledger
// behind the channel and persistence collaborators. All component state is
// guarded by one mutex; the mutex is never held across network I/O. The
// channel's single dispatch goroutine keeps event handling in transport
// arrival order.
type Controller struct {
	localID  string
	remoteID string
	roomID   string

	channel presence.Channel
	history history.Service

	mu        sync.Mutex
	timeline  *timeline.Timeline
	tracker   *delivery.Tracker
	typing    *typing.Signal
	reactions *reaction.Ledger
	unsubs    []func()
	active    bool
	seq       int64

	onChange func()
	now      func() time.Time
	log      *zap.SugaredLogger
}

func NewController(opts Options) (*Controller, error) {
	roomID, err := room.CanonicalID(opts.LocalUserID, opts.RemoteUserID)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	c := &Controller{
		localID:   opts.LocalUserID,
		remoteID:  opts.RemoteUserID,
		roomID:    roomID,
		channel:   opts.Channel,
		history:   opts.History,
		timeline:  timeline.New(roomID),
		tracker:   delivery.NewTracker(),
		reactions: reaction.NewLedger(),
		onChange:  opts.OnChange,
		now:       time.Now,
		log:       log.With("room", roomID),
	}
	c.typing = typing.New(opts.TypingDebounce, opts.TypingTimeout)
	return c, nil
}

func (c *Controller) RoomID() string { return c.roomID }

// Activate joins the room, wires the event handlers and loads history. The
// handlers are wired before the (suspending) history fetch; the wholesale
// timeline replace makes the load last-writer-wins, and live events arriving
// afterwards re-merge via duplicate-suppressed inserts.
func (c *Controller) Activate(ctx context.Context) error {
	if err := c.channel.JoinRoom(c.roomID); err != nil {
		return err
	}

	c.mu.Lock()
	// Re-activation (e.g. retrying a failed history load) replaces the handler
	// set; stacking a second one would double-process every inbound frame.
	old := c.unsubs
	c.active = true
	c.unsubs = []func(){
		c.channel.Subscribe(domain.EventReceiveMessage, c.onMessage),
		c.channel.Subscribe(domain.EventTyping, c.onTyping),
		c.channel.Subscribe(domain.EventStatus, c.onStatus),
		c.channel.Subscribe(domain.EventReaction, c.onReaction),
	}
	c.mu.Unlock()

	for _, u := range old {
		u()
	}

	msgs, err := c.history.LoadHistory(ctx, c.roomID)
	if err != nil {
		// Recoverable: the timeline stays empty, the caller may retry.
		return err
	}

	c.mu.Lock()
	if c.active {
		c.timeline.Replace(msgs)
	}
	c.mu.Unlock()

	c.notify()
	return nil
}

// Close detaches every event handler. Leaving the transport room is not
// required; an idle membership consumes nothing.
func (c *Controller) Close() {
	c.mu.Lock()
	c.active = false
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}

// Send performs the optimistic send lifecycle: insert locally, emit over the
// channel, persist, then reconcile the provisional entry with the confirmed
// message. On persistence failure the message stays visible in state failed
// for an explicit Retry. Returns the id under which the message is tracked.
func (c *Controller) Send(ctx context.Context, body string, att *domain.Attachment) (string, error) {
	msg := &domain.Message{
		RoomID:     c.roomID,
		SenderID:   c.localID,
		Body:       body,
		Attachment: att,
		CreatedAt:  c.now().UTC(),
	}
	if msg.Empty() {
		return "", errs.ErrEmptyMessage
	}

	c.mu.Lock()
	c.seq++
	msg.ClientSeq = c.seq
	msg.ID = fmt.Sprintf("local-%d-%d", msg.CreatedAt.UnixNano(), msg.ClientSeq)
	c.timeline.AppendOptimistic(msg)
	c.tracker.Begin(msg.ID)
	c.mu.Unlock()
	c.notify()

	if err := c.channel.Emit(domain.EventSendMessage, msg); err != nil {
		c.log.Warnw("channel emit failed", "err", err)
	}

	return c.persist(ctx, msg)
}

// Retry re-issues the persistence call for a message stuck in failed.
func (c *Controller) Retry(ctx context.Context, provisionalID string) (string, error) {
	c.mu.Lock()
	msg, ok := c.timeline.Get(provisionalID)
	status, _ := c.tracker.Status(provisionalID)
	if !ok || status != domain.StatusFailed {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: nothing to retry for %q", errs.ErrSendFailed, provisionalID)
	}
	c.tracker.Begin(provisionalID)
	c.mu.Unlock()
	c.notify()

	return c.persist(ctx, msg)
}

func (c *Controller) persist(ctx context.Context, msg *domain.Message) (string, error) {
	confirmed, err := c.history.SaveMessage(ctx, msg)
	if err != nil {
		c.mu.Lock()
		c.tracker.Fail(msg.ID)
		c.mu.Unlock()
		c.notify()
		return msg.ID, err
	}

	c.mu.Lock()
	c.timeline.Reconcile(msg.ID, confirmed)
	c.tracker.Rename(msg.ID, confirmed.ID)
	c.tracker.Apply(confirmed.ID, domain.StatusSent)
	c.reactions.Rekey(msg.ID, confirmed.ID)
	c.mu.Unlock()
	c.notify()
	return confirmed.ID, nil
}

// NotifyTyping is called on every local input change; the typing signal
// debounces the actual emission.
func (c *Controller) NotifyTyping() {
	c.mu.Lock()
	emit := c.typing.Notify()
	c.mu.Unlock()
	if !emit {
		return
	}
	if err := c.channel.Emit(domain.EventTyping, domain.TypingEvent{
		UserID: c.localID,
		RoomID: c.roomID,
	}); err != nil {
		c.log.Warnw("typing emit failed", "err", err)
	}
}

// MarkRead emits the read receipt for a message authored by the remote user.
func (c *Controller) MarkRead(messageID string) {
	if err := c.channel.Emit(domain.EventStatus, domain.StatusEvent{
		MessageID: messageID,
		RoomID:    c.roomID,
		Status:    domain.StatusRead,
	}); err != nil {
		c.log.Warnw("read receipt emit failed", "err", err)
	}
}

// React upserts the local user's reaction on a message, locally and over the
// channel. An empty reaction clears it.
func (c *Controller) React(messageID, reactionValue string) {
	c.mu.Lock()
	c.reactions.Set(messageID, c.localID, reactionValue)
	c.mu.Unlock()

	var r *string
	if reactionValue != "" {
		r = &reactionValue
	}
	if err := c.channel.Emit(domain.EventReaction, domain.ReactionEvent{
		MessageID: messageID,
		RoomID:    c.roomID,
		UserID:    c.localID,
		Reaction:  r,
	}); err != nil {
		c.log.Warnw("reaction emit failed", "err", err)
	}
	c.notify()
}

// Messages returns the timeline in display order.
func (c *Controller) Messages() []*domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeline.Messages()
}

// StatusOf returns the delivery status of a locally authored message.
func (c *Controller) StatusOf(messageID string) (domain.Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker.Status(messageID)
}

// Reactions returns the reaction entries on a message.
func (c *Controller) Reactions(messageID string) []reaction.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reactions.For(messageID)
}

// ReactionCounts returns the per-symbol aggregation for a message.
func (c *Controller) ReactionCounts(messageID string) map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reactions.Counts(messageID)
}

// RemoteTyping reports whether the remote participant's typing indicator is
// live.
func (c *Controller) RemoteTyping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing.IsTyping(c.remoteID)
}

func (c *Controller) onMessage(payload json.RawMessage) {
	var msg domain.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.log.Warnw("bad message payload", "err", err)
		return
	}
	if msg.RoomID != c.roomID || msg.SenderID == c.localID {
		return
	}

	c.mu.Lock()
	c.timeline.AppendIncoming(&msg)
	c.mu.Unlock()

	// Genuine delivery acknowledgement back to the sender.
	if err := c.channel.Emit(domain.EventStatus, domain.StatusEvent{
		MessageID: msg.ID,
		RoomID:    c.roomID,
		Status:    domain.StatusDelivered,
	}); err != nil {
		c.log.Warnw("delivery ack emit failed", "err", err)
	}
	c.notify()
}

func (c *Controller) onTyping(payload json.RawMessage) {
	var ev domain.TypingEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return
	}
	if ev.RoomID != c.roomID || ev.UserID == c.localID {
		return
	}

	c.mu.Lock()
	c.typing.Touch(ev.UserID)
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) onStatus(payload json.RawMessage) {
	var ev domain.StatusEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return
	}
	if ev.RoomID != "" && ev.RoomID != c.roomID {
		return
	}

	c.mu.Lock()
	// Status is the sender's concern: skip events about messages the remote
	// side authored. An id the timeline does not know yet may be an ack that
	// outran reconciliation, so it is tracked and merged by Rename later.
	if m, ok := c.timeline.Get(ev.MessageID); ok && m.SenderID != c.localID {
		c.mu.Unlock()
		return
	}
	c.tracker.Apply(ev.MessageID, ev.Status)
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) onReaction(payload json.RawMessage) {
	var ev domain.ReactionEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return
	}
	if ev.RoomID != "" && ev.RoomID != c.roomID {
		return
	}

	c.mu.Lock()
	// A remote peer reacts under the id it saw on the wire, which for our own
	// messages is the provisional one.
	id := c.tracker.Resolve(ev.MessageID)
	if ev.Reaction == nil {
		c.reactions.Clear(id, ev.UserID)
	} else {
		c.reactions.Set(id, ev.UserID, *ev.Reaction)
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}
