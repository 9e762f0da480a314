package app

import (
	"context"
	"time"

	"livequiz-service/internal/domain"
)

// QuizContentStore supplies quiz content. Implementations live under
// internal/infra (cached memory repository, Redis cache, Postgres loader).
type QuizContentStore interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ResultStore receives final per-participant results when a room finishes.
// Calls are retried a bounded number of times and never block teardown.
type ResultStore interface {
	SaveResult(ctx context.Context, result domain.RoomResult) error
}

// AuthVerifier validates a host's bearer credential at handshake time and
// resolves it to a stable host identity.
type AuthVerifier interface {
	Verify(ctx context.Context, token string) (hostID string, err error)
}

// CodeReservations bans room-code reuse for a grace period after teardown,
// so a stale client cannot rejoin a different room under the same code.
type CodeReservations interface {
	Reserve(ctx context.Context, code string, ttl time.Duration) error
	Reserved(ctx context.Context, code string) bool
}
