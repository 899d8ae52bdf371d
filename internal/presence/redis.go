package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Mirror reflects identity bindings into shared state so operators (and
// other broker nodes) can see who is connected where. Mirror failures are
// reported to the caller and must never terminate a session.
type Mirror interface {
	Register(ctx context.Context, clientID string, info string) error
	Refresh(ctx context.Context, clientID string) error
	Remove(ctx context.Context, clientID string) error
}

// RedisMirror stores bindings under autowire:sess:<client id> with a TTL
// refreshed on traffic.
type RedisMirror struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisMirror(client *redis.Client, ttl time.Duration) *RedisMirror {
	return &RedisMirror{client: client, ttl: ttl}
}

func (m *RedisMirror) key(clientID string) string {
	return fmt.Sprintf("autowire:sess:%s", clientID)
}

func (m *RedisMirror) Register(ctx context.Context, clientID string, info string) error {
	return m.client.Set(ctx, m.key(clientID), info, m.ttl).Err()
}

func (m *RedisMirror) Refresh(ctx context.Context, clientID string) error {
	return m.client.Expire(ctx, m.key(clientID), m.ttl).Err()
}

func (m *RedisMirror) Remove(ctx context.Context, clientID string) error {
	return m.client.Del(ctx, m.key(clientID)).Err()
}
