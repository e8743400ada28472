// Package typing debounces outgoing typing notifications and decays incoming
// ones.
package typing

import (
	"time"
)

// Signal owns both sides of the typing indicator for one room. Outgoing:
// Notify emits at most once per quiet window regardless of keystroke rate.
// Incoming: Touch arms a per-user expiry and expiry alone clears the
// indicator — no "stopped typing" event exists, which bounds indicator
// staleness to one timeout window and removes missed-stop bugs entirely.
//
// Not safe for concurrent use — the conversation controller serializes
// access.
type Signal struct {
	debounce time.Duration
	timeout  time.Duration
	now      func() time.Time

	nextEmit time.Time
	expiry   map[string]time.Time // remote user id -> expiresAt
}

const (
	DefaultDebounce = 1500 * time.Millisecond
	DefaultTimeout  = 3 * time.Second
)

func New(debounce, timeout time.Duration) *Signal {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Signal{
		debounce: debounce,
		timeout:  timeout,
		now:      time.Now,
		expiry:   make(map[string]time.Time),
	}
}

// WithClock overrides the time source. Tests only.
func (s *Signal) WithClock(now func() time.Time) *Signal {
	s.now = now
	return s
}

// Notify is called on every local input change. It reports whether a typing
// event should go out now: at most one per quiet window, however fast the
// keystrokes come.
func (s *Signal) Notify() bool {
	now := s.now()
	if now.Before(s.nextEmit) {
		return false
	}
	s.nextEmit = now.Add(s.debounce)
	return true
}

// Touch records a typing event from a remote participant. A fresh event
// extends the expiry rather than stacking timers.
func (s *Signal) Touch(userID string) {
	s.expiry[userID] = s.now().Add(s.timeout)
}

// IsTyping reports whether the participant's indicator is still live. Expired
// entries are swept on read.
func (s *Signal) IsTyping(userID string) bool {
	at, ok := s.expiry[userID]
	if !ok {
		return false
	}
	if !s.now().Before(at) {
		delete(s.expiry, userID)
		return false
	}
	return true
}
