package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "presence:"
	// offline entries are retained for a while so "last seen" survives the
	// user table being unreachable from sibling services
	offlineRetention = 7 * 24 * time.Hour
)

// PresenceMirror copies online transitions into Redis so sibling services
// can answer "is user X online" without a round trip to the hub.
type PresenceMirror struct {
	client *redis.Client
}

func NewPresenceMirror(addr string) *PresenceMirror {
	return &PresenceMirror{client: redis.NewClient(&redis.Options{Addr: addr})}
}

type mirrorEntry struct {
	Status   string `json:"status"`
	LastSeen int64  `json:"last_seen"`
}

func (m *PresenceMirror) Set(ctx context.Context, userID int64, online bool, atMillis int64) error {
	e := mirrorEntry{Status: "offline", LastSeen: atMillis}
	ttl := offlineRetention
	if online {
		e.Status = "online"
		ttl = 0
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal presence entry: %w", err)
	}
	return m.client.Set(ctx, presenceKey(userID), data, ttl).Err()
}

func (m *PresenceMirror) Get(ctx context.Context, userID int64) (online bool, lastSeen int64, err error) {
	data, err := m.client.Get(ctx, presenceKey(userID)).Result()
	if err == redis.Nil {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("get presence entry: %w", err)
	}
	var e mirrorEntry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return false, 0, fmt.Errorf("unmarshal presence entry: %w", err)
	}
	return e.Status == "online", e.LastSeen, nil
}

func (m *PresenceMirror) Close() error {
	return m.client.Close()
}

func presenceKey(userID int64) string {
	return presenceKeyPrefix + strconv.FormatInt(userID, 10)
}
