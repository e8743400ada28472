// Package delivery tracks the per-message delivery status of locally
// authored messages.
package delivery

import "github.com/campusconnect/messaging/internal/domain"

// Tracker is the status state machine keyed by message id. Incoming messages
// are the remote sender's concern and never enter the tracker. Not safe for
// concurrent use — the conversation controller serializes access.
type Tracker struct {
	statuses map[string]domain.Status
	aliases  map[string]string // provisional id -> confirmed id
}

func NewTracker() *Tracker {
	return &Tracker{
		statuses: make(map[string]domain.Status),
		aliases:  make(map[string]string),
	}
}

func (t *Tracker) resolve(messageID string) string {
	if canon, ok := t.aliases[messageID]; ok {
		return canon
	}
	return messageID
}

// Begin registers a message at the moment of its optimistic insert.
func (t *Tracker) Begin(messageID string) {
	t.statuses[messageID] = domain.StatusSending
}

// Apply merges an incoming status event. The merge takes the maximum under
// sending < sent < delivered < read, so a stale event can never regress a
// message; a failed message stays failed.
func (t *Tracker) Apply(messageID string, incoming domain.Status) domain.Status {
	messageID = t.resolve(messageID)
	current, ok := t.statuses[messageID]
	if !ok {
		current = incoming
	} else {
		current = current.Max(incoming)
	}
	t.statuses[messageID] = current
	return current
}

// Rename re-keys a tracked message from its provisional id to the
// server-assigned one during reconciliation. The provisional id stays live as
// an alias: the remote client acks under the id it saw on the wire, which may
// be the provisional one.
func (t *Tracker) Rename(provisionalID, confirmedID string) {
	if s, ok := t.statuses[provisionalID]; ok {
		delete(t.statuses, provisionalID)
		// A status event for the confirmed id may have raced ahead of the
		// persistence ack; keep the higher of the two.
		t.statuses[confirmedID] = s.Max(t.statuses[confirmedID])
	}
	t.aliases[provisionalID] = confirmedID
}

// Fail marks a message whose persistence call failed. Terminal: no later
// status event revives it, the user retries explicitly.
func (t *Tracker) Fail(messageID string) {
	t.statuses[messageID] = domain.StatusFailed
}

// Status returns the tracked status for a message id, following the
// provisional alias if the message has been renamed.
func (t *Tracker) Status(messageID string) (domain.Status, bool) {
	s, ok := t.statuses[t.resolve(messageID)]
	return s, ok
}

// Resolve maps an id to its confirmed form if the message was renamed,
// otherwise returns the id unchanged. Other components keying state by
// message id use this to stay consistent across reconciliation.
func (t *Tracker) Resolve(messageID string) string {
	return t.resolve(messageID)
}
