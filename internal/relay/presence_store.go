package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceStore mirrors who is online into Redis so other relay instances
// and the rest of the platform can see connection state. Optional: a nil
// store disables presence tracking.
type PresenceStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type presenceRecord struct {
	Status   string `json:"status"`
	LastSeen int64  `json:"last_seen"`
}

func NewPresenceStore(client *redis.Client, prefix string, ttl time.Duration) *PresenceStore {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &PresenceStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *PresenceStore) key(userID string) string {
	return fmt.Sprintf("%s:presence:%s", s.prefix, userID)
}

func (s *PresenceStore) Online(ctx context.Context, userID string) error {
	b, _ := json.Marshal(presenceRecord{Status: "online", LastSeen: time.Now().Unix()})
	return s.client.Set(ctx, s.key(userID), b, s.ttl).Err()
}

func (s *PresenceStore) Offline(ctx context.Context, userID string) error {
	b, _ := json.Marshal(presenceRecord{Status: "offline", LastSeen: time.Now().Unix()})
	return s.client.Set(ctx, s.key(userID), b, 0).Err()
}

func (s *PresenceStore) Get(ctx context.Context, userID string) (string, time.Time, error) {
	b, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		return "", time.Time{}, err
	}
	var rec presenceRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return "", time.Time{}, err
	}
	return rec.Status, time.Unix(rec.LastSeen, 0), nil
}
