// Package timeline holds the ordered message sequence of the active
// conversation, merged from a history fetch and live events.
package timeline

import (
	"sort"

	"github.com/campusconnect/messaging/internal/domain"
)

// Timeline is the append-only display order of one conversation. It is the
// sole owner of the message sequence; trackers and ledgers reference messages
// by id only. Not safe for concurrent use — the conversation controller
// serializes access.
type Timeline struct {
	roomID   string
	messages []*domain.Message
	byID     map[string]int // message id -> index
}

func New(roomID string) *Timeline {
	return &Timeline{
		roomID: roomID,
		byID:   make(map[string]int),
	}
}

func (t *Timeline) RoomID() string { return t.roomID }

func (t *Timeline) Len() int { return len(t.messages) }

// Messages returns the timeline in display order. The returned slice is a
// copy; the messages themselves are shared.
func (t *Timeline) Messages() []*domain.Message {
	out := make([]*domain.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Get returns the message with the given id, if present.
func (t *Timeline) Get(id string) (*domain.Message, bool) {
	i, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	return t.messages[i], true
}

// Replace swaps in a freshly fetched history, dropping whatever was loaded
// before. All-or-nothing: callers must not hand over a partial fetch.
func (t *Timeline) Replace(history []*domain.Message) {
	msgs := make([]*domain.Message, len(history))
	copy(msgs, history)
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Before(msgs[j]) })

	t.messages = msgs
	t.byID = make(map[string]int, len(msgs))
	for i, m := range msgs {
		t.byID[m.ID] = i
	}
}

// AppendOptimistic inserts a locally authored message at the tail and returns
// its position for later reconciliation.
func (t *Timeline) AppendOptimistic(m *domain.Message) int {
	t.messages = append(t.messages, m)
	pos := len(t.messages) - 1
	t.byID[m.ID] = pos
	return pos
}

// Reconcile replaces the provisional message with the server-confirmed one,
// preserving its display position. If the provisional id is gone (a history
// reload raced with the send) the confirmed message is inserted as incoming
// instead; either way the confirmed id appears exactly once.
func (t *Timeline) Reconcile(provisionalID string, confirmed *domain.Message) {
	i, ok := t.byID[provisionalID]
	if !ok {
		t.AppendIncoming(confirmed)
		return
	}
	delete(t.byID, provisionalID)
	t.messages[i] = confirmed
	t.byID[confirmed.ID] = i
}

// AppendIncoming inserts a message in its sorted position per the
// (CreatedAt, ClientSeq) order. Out-of-order delivery from the transport must
// still render correctly, so this is not necessarily a tail append.
// Duplicates (same id) are dropped.
func (t *Timeline) AppendIncoming(m *domain.Message) {
	if _, ok := t.byID[m.ID]; ok {
		return
	}
	pos := sort.Search(len(t.messages), func(i int) bool {
		return m.Before(t.messages[i])
	})
	t.messages = append(t.messages, nil)
	copy(t.messages[pos+1:], t.messages[pos:])
	t.messages[pos] = m

	t.byID[m.ID] = pos
	for i := pos + 1; i < len(t.messages); i++ {
		t.byID[t.messages[i].ID] = i
	}
}
