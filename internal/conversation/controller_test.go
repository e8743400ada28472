package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campusconnect/messaging/internal/domain"
	"github.com/campusconnect/messaging/internal/errs"
	"github.com/campusconnect/messaging/internal/presence"
)

type fakeHistory struct {
	mu       sync.Mutex
	messages []*domain.Message
	loadErr  error
	saveErr  error
	nextID   string
	saved    []*domain.Message
}

func (f *fakeHistory) LoadHistory(ctx context.Context, roomID string) ([]*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.messages, nil
}

func (f *fakeHistory) SaveMessage(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	confirmed := *m
	confirmed.ID = f.nextID
	f.saved = append(f.saved, &confirmed)
	return &confirmed, nil
}

func newTestController(t *testing.T, hist *fakeHistory) (*Controller, *presence.MemoryChannel) {
	t.Helper()
	ch := presence.NewMemoryChannel()
	c, err := NewController(Options{
		LocalUserID:  "alice",
		RemoteUserID: "bob",
		Channel:      ch,
		History:      hist,
	})
	require.NoError(t, err)
	return c, ch
}

func Test_NewController_RejectsInvalidParticipants(t *testing.T) {
	req := require.New(t)

	_, err := NewController(Options{LocalUserID: "alice", RemoteUserID: "alice"})
	req.ErrorIs(err, errs.ErrInvalidParticipant)

	_, err = NewController(Options{LocalUserID: "", RemoteUserID: "bob"})
	req.ErrorIs(err, errs.ErrInvalidParticipant)
}

func Test_Activate_JoinsAndLoads(t *testing.T) {
	req := require.New(t)
	hist := &fakeHistory{messages: []*domain.Message{
		{ID: "m-1", RoomID: "alice:bob", SenderID: "bob", Body: "hey", CreatedAt: time.Unix(10, 0).UTC()},
	}}
	c, ch := newTestController(t, hist)

	req.NoError(c.Activate(context.Background()))
	req.True(ch.Joined("alice:bob"))

	msgs := c.Messages()
	req.Len(msgs, 1)
	req.Equal("m-1", msgs[0].ID)
}

func Test_Activate_HistoryFailureLeavesTimelineEmpty(t *testing.T) {
	req := require.New(t)
	hist := &fakeHistory{loadErr: errs.ErrHistoryUnavailable}
	c, _ := newTestController(t, hist)

	err := c.Activate(context.Background())
	req.ErrorIs(err, errs.ErrHistoryUnavailable)
	req.Empty(c.Messages())
}

// Optimistic "hello" shows up immediately, slow persistence confirms it as
// m-77, a later delivered event promotes the status.
func Test_Activate_RetryReplacesHandlers(t *testing.T) {
	req := require.New(t)
	hist := &fakeHistory{loadErr: errs.ErrHistoryUnavailable}
	c, ch := newTestController(t, hist)

	req.Error(c.Activate(context.Background()))

	hist.mu.Lock()
	hist.loadErr = nil
	hist.mu.Unlock()
	req.NoError(c.Activate(context.Background()))

	// One incoming message must be processed once, not once per activation.
	req.NoError(ch.Deliver(domain.EventReceiveMessage, &domain.Message{
		ID: "m-5", RoomID: "alice:bob", SenderID: "bob", Body: "hi", CreatedAt: time.Unix(30, 0).UTC(),
	}))
	req.Len(c.Messages(), 1)
	req.Len(ch.Emitted(domain.EventStatus), 1)

	// Close detaches the replacement set too: nothing dangles.
	c.Close()
	req.NoError(ch.Deliver(domain.EventReceiveMessage, &domain.Message{
		ID: "m-6", RoomID: "alice:bob", SenderID: "bob", Body: "again", CreatedAt: time.Unix(40, 0).UTC(),
	}))
	req.Len(c.Messages(), 1)
	req.Len(ch.Emitted(domain.EventStatus), 1)
}

func Test_Send_OptimisticLifecycle(t *testing.T) {
	req := require.New(t)
	hist := &fakeHistory{nextID: "m-77"}
	c, ch := newTestController(t, hist)
	req.NoError(c.Activate(context.Background()))

	id, err := c.Send(context.Background(), "hello", nil)
	req.NoError(err)
	req.Equal("m-77", id)

	msgs := c.Messages()
	req.Len(msgs, 1)
	req.Equal("m-77", msgs[0].ID)
	req.Equal("hello", msgs[0].Body)

	status, ok := c.StatusOf("m-77")
	req.True(ok)
	req.Equal(domain.StatusSent, status)

	// The message also went out over the channel before persistence.
	req.Len(ch.Emitted(domain.EventSendMessage), 1)

	req.NoError(ch.Deliver(domain.EventStatus, domain.StatusEvent{
		MessageID: "m-77", RoomID: "alice:bob", Status: domain.StatusDelivered,
	}))
	status, _ = c.StatusOf("m-77")
	req.Equal(domain.StatusDelivered, status)
}

func Test_Send_RejectsEmpty(t *testing.T) {
	req := require.New(t)
	c, _ := newTestController(t, &fakeHistory{nextID: "m-1"})

	_, err := c.Send(context.Background(), "", nil)
	req.ErrorIs(err, errs.ErrEmptyMessage)
	req.Empty(c.Messages())
}

func Test_Send_FailureKeepsMessageVisible(t *testing.T) {
	req := require.New(t)
	hist := &fakeHistory{saveErr: errors.New("mongo down"), nextID: "m-77"}
	c, _ := newTestController(t, hist)
	req.NoError(c.Activate(context.Background()))

	id, err := c.Send(context.Background(), "hello", nil)
	req.Error(err)

	msgs := c.Messages()
	req.Len(msgs, 1)
	req.Equal("hello", msgs[0].Body)

	status, _ := c.StatusOf(id)
	req.Equal(domain.StatusFailed, status)

	// Retry after the backend recovers reconciles normally.
	hist.mu.Lock()
	hist.saveErr = nil
	hist.mu.Unlock()

	confirmedID, err := c.Retry(context.Background(), id)
	req.NoError(err)
	req.Equal("m-77", confirmedID)

	status, _ = c.StatusOf("m-77")
	req.Equal(domain.StatusSent, status)
	req.Len(c.Messages(), 1)
}

func Test_IncomingMessage_AppendedAndAcked(t *testing.T) {
	req := require.New(t)
	c, ch := newTestController(t, &fakeHistory{})
	req.NoError(c.Activate(context.Background()))

	req.NoError(ch.Deliver(domain.EventReceiveMessage, &domain.Message{
		ID: "m-5", RoomID: "alice:bob", SenderID: "bob", Body: "hi", CreatedAt: time.Unix(30, 0).UTC(),
	}))

	msgs := c.Messages()
	req.Len(msgs, 1)
	req.Equal("m-5", msgs[0].ID)

	// No delivery tracking for incoming messages.
	_, ok := c.StatusOf("m-5")
	req.False(ok)

	// But a delivered acknowledgement went back to the sender.
	acks := ch.Emitted(domain.EventStatus)
	req.Len(acks, 1)
	var ev domain.StatusEvent
	req.NoError(json.Unmarshal(acks[0].Payload, &ev))
	req.Equal("m-5", ev.MessageID)
	req.Equal(domain.StatusDelivered, ev.Status)
}

func Test_IncomingMessage_OtherRoomIgnored(t *testing.T) {
	req := require.New(t)
	c, ch := newTestController(t, &fakeHistory{})
	req.NoError(c.Activate(context.Background()))

	req.NoError(ch.Deliver(domain.EventReceiveMessage, &domain.Message{
		ID: "m-9", RoomID: "carol:dave", SenderID: "carol", Body: "wrong room",
	}))
	req.Empty(c.Messages())
}

func Test_StatusEvent_ForRemoteMessageIgnored(t *testing.T) {
	req := require.New(t)
	c, ch := newTestController(t, &fakeHistory{})
	req.NoError(c.Activate(context.Background()))

	req.NoError(ch.Deliver(domain.EventReceiveMessage, &domain.Message{
		ID: "m-5", RoomID: "alice:bob", SenderID: "bob", Body: "hi", CreatedAt: time.Unix(30, 0).UTC(),
	}))
	req.NoError(ch.Deliver(domain.EventStatus, domain.StatusEvent{
		MessageID: "m-5", RoomID: "alice:bob", Status: domain.StatusRead,
	}))

	_, ok := c.StatusOf("m-5")
	req.False(ok)
}

func Test_Typing_RemoteIndicator(t *testing.T) {
	req := require.New(t)
	c, ch := newTestController(t, &fakeHistory{})
	req.NoError(c.Activate(context.Background()))

	req.False(c.RemoteTyping())
	req.NoError(ch.Deliver(domain.EventTyping, domain.TypingEvent{UserID: "bob", RoomID: "alice:bob"}))
	req.True(c.RemoteTyping())
}

func Test_NotifyTyping_EmitsDebounced(t *testing.T) {
	req := require.New(t)
	c, ch := newTestController(t, &fakeHistory{})
	req.NoError(c.Activate(context.Background()))

	for i := 0; i < 5; i++ {
		c.NotifyTyping()
	}
	req.Len(ch.Emitted(domain.EventTyping), 1)
}

func Test_ReactionEvents_UpdateLedger(t *testing.T) {
	req := require.New(t)
	c, ch := newTestController(t, &fakeHistory{})
	req.NoError(c.Activate(context.Background()))

	like := "like"
	req.NoError(ch.Deliver(domain.EventReaction, domain.ReactionEvent{
		MessageID: "m-1", RoomID: "alice:bob", UserID: "bob", Reaction: &like,
	}))
	req.Equal(map[string]int{"like": 1}, c.ReactionCounts("m-1"))

	req.NoError(ch.Deliver(domain.EventReaction, domain.ReactionEvent{
		MessageID: "m-1", RoomID: "alice:bob", UserID: "bob", Reaction: nil,
	}))
	req.Empty(c.Reactions("m-1"))
}

func Test_React_LocalAndEmitted(t *testing.T) {
	req := require.New(t)
	c, ch := newTestController(t, &fakeHistory{})
	req.NoError(c.Activate(context.Background()))

	c.React("m-1", "heart")
	req.Equal(map[string]int{"heart": 1}, c.ReactionCounts("m-1"))
	req.Len(ch.Emitted(domain.EventReaction), 1)
}

func Test_Close_DetachesHandlers(t *testing.T) {
	req := require.New(t)
	c, ch := newTestController(t, &fakeHistory{})
	req.NoError(c.Activate(context.Background()))
	c.Close()

	req.NoError(ch.Deliver(domain.EventReceiveMessage, &domain.Message{
		ID: "m-5", RoomID: "alice:bob", SenderID: "bob", Body: "hi",
	}))
	req.Empty(c.Messages())
}
