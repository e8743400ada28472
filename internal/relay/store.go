package relay

import (
	"context"
	"sort"
	"sync"

	"github.com/campusconnect/messaging/internal/domain"
)

// Store is the message archive behind the history API.
type Store interface {
	Save(ctx context.Context, m *domain.Message) error
	List(ctx context.Context, roomID string) ([]*domain.Message, error)
}

// MemoryStore keeps messages per room in memory. Dev and test use; the
// production archive is MongoStore.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string][]*domain.Message
	cap   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string][]*domain.Message), cap: 1000}
}

func (s *MemoryStore) Save(ctx context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := append(s.rooms[m.RoomID], m)
	if len(msgs) > s.cap {
		msgs = msgs[len(msgs)-s.cap:]
	}
	s.rooms[m.RoomID] = msgs
	return nil
}

func (s *MemoryStore) List(ctx context.Context, roomID string) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.rooms[roomID]
	out := make([]*domain.Message, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}
