// Package reaction keeps the per-message, per-user reaction map.
package reaction

// Entry is one user's reaction on one message. At most one entry exists per
// (message, user) pair.
type Entry struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Reaction  string `json:"reaction"`
}

// Ledger stores reactions keyed by (message id, user id). A later Set for the
// same pair replaces the earlier one. Not safe for concurrent use — the
// conversation controller serializes access.
type Ledger struct {
	byMessage map[string]map[string]string // message id -> user id -> reaction
}

func NewLedger() *Ledger {
	return &Ledger{byMessage: make(map[string]map[string]string)}
}

// Set upserts a reaction. An empty reaction clears the entry instead.
func (l *Ledger) Set(messageID, userID, reaction string) {
	if reaction == "" {
		l.Clear(messageID, userID)
		return
	}
	users, ok := l.byMessage[messageID]
	if !ok {
		users = make(map[string]string)
		l.byMessage[messageID] = users
	}
	users[userID] = reaction
}

// Clear removes the user's reaction from the message. Idempotent.
func (l *Ledger) Clear(messageID, userID string) {
	users, ok := l.byMessage[messageID]
	if !ok {
		return
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(l.byMessage, messageID)
	}
}

// Rekey moves every reaction recorded under oldID to newID, merging with any
// already recorded there. Used when a provisional message id is swapped for
// the server-assigned one.
func (l *Ledger) Rekey(oldID, newID string) {
	users, ok := l.byMessage[oldID]
	if !ok || oldID == newID {
		return
	}
	delete(l.byMessage, oldID)
	for userID, r := range users {
		l.Set(newID, userID, r)
	}
}

// For returns all reaction entries on a message.
func (l *Ledger) For(messageID string) []Entry {
	users := l.byMessage[messageID]
	out := make([]Entry, 0, len(users))
	for userID, r := range users {
		out = append(out, Entry{MessageID: messageID, UserID: userID, Reaction: r})
	}
	return out
}

// Counts aggregates reactions on a message per symbol. Derived on every call,
// never stored, so it cannot desynchronize from the ledger.
func (l *Ledger) Counts(messageID string) map[string]int {
	counts := make(map[string]int)
	for _, r := range l.byMessage[messageID] {
		counts[r]++
	}
	return counts
}
