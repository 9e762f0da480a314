package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// CodeReservations marks torn-down room codes in Redis with a TTL so a
// stale client cannot land in a different room under the same code, even
// across a process restart within the grace window.
type CodeReservations struct {
	client *redis.Client
}

func NewCodeReservations(client *redis.Client) *CodeReservations {
	return &CodeReservations{client: client}
}

func (s *CodeReservations) Reserve(ctx context.Context, code string, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(code), "1", ttl).Err()
}

func (s *CodeReservations) Reserved(ctx context.Context, code string) bool {
	n, err := s.client.Exists(ctx, s.key(code)).Result()
	// On Redis failure err on the safe side: treat the code as taken so a
	// possibly-reserved code is never handed out.
	if err != nil {
		return true
	}
	return n > 0
}

func (s *CodeReservations) key(code string) string {
	return "room:code:" + code
}
