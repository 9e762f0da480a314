package memory

import (
	"context"
	"sync"
	"time"
)

// CodeReservations bans room-code reuse for a grace period after teardown.
// Expired entries are dropped lazily on lookup and reserve.
type CodeReservations struct {
	clock func() time.Time

	mu       sync.Mutex
	reserved map[string]time.Time // code -> expiry
}

func NewCodeReservations() *CodeReservations {
	return &CodeReservations{
		clock:    time.Now,
		reserved: make(map[string]time.Time),
	}
}

func (s *CodeReservations) Reserve(_ context.Context, code string, ttl time.Duration) error {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)
	s.reserved[code] = now.Add(ttl)
	return nil
}

func (s *CodeReservations) Reserved(_ context.Context, code string) bool {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.reserved[code]
	if !ok {
		return false
	}
	if !expiry.After(now) {
		delete(s.reserved, code)
		return false
	}
	return true
}

func (s *CodeReservations) pruneLocked(now time.Time) {
	for code, expiry := range s.reserved {
		if !expiry.After(now) {
			delete(s.reserved, code)
		}
	}
}
