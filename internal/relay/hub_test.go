package relay

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	user string

	mu     sync.Mutex
	frames []Frame
}

func (r *recorder) UserID() string { return r.user }

func (r *recorder) Send(f Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
	return true
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func Test_Broadcast_SkipsOriginator(t *testing.T) {
	req := require.New(t)
	h := NewHub()

	alice := &recorder{user: "alice"}
	bob := &recorder{user: "bob"}
	h.Register(alice)
	h.Register(bob)
	h.Join("alice:bob", alice)
	h.Join("alice:bob", bob)

	n := h.Broadcast("alice:bob", Frame{Event: "receive_message"}, alice)
	req.Equal(1, n)
	req.Equal(0, alice.count())
	req.Equal(1, bob.count())
}

func Test_Join_Idempotent(t *testing.T) {
	req := require.New(t)
	h := NewHub()

	bob := &recorder{user: "bob"}
	h.Register(bob)
	h.Join("alice:bob", bob)
	h.Join("alice:bob", bob)

	n := h.Broadcast("alice:bob", Frame{Event: "typing"}, nil)
	req.Equal(1, n)
	req.Equal(1, bob.count())
}

func Test_Unregister_LeavesOtherRoomsIntact(t *testing.T) {
	req := require.New(t)
	h := NewHub()

	alice := &recorder{user: "alice"}
	bob := &recorder{user: "bob"}
	carol := &recorder{user: "carol"}
	for _, c := range []*recorder{alice, bob, carol} {
		h.Register(c)
	}
	h.Join("alice:bob", alice)
	h.Join("alice:bob", bob)
	h.Join("alice:carol", alice)
	h.Join("alice:carol", carol)

	h.Unregister(bob)

	req.Equal(0, h.Broadcast("alice:bob", Frame{Event: "typing"}, alice))
	req.Equal(1, h.Broadcast("alice:carol", Frame{Event: "typing"}, alice))
}

func Test_SendToUser_ReachesAllSockets(t *testing.T) {
	req := require.New(t)
	h := NewHub()

	phone := &recorder{user: "bob"}
	laptop := &recorder{user: "bob"}
	h.Register(phone)
	h.Register(laptop)

	n := h.SendToUser("bob", Frame{Event: "receive_message"})
	req.Equal(2, n)
}
