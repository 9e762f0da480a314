package memory

import (
	"context"
	"sync"

	"livequiz-service/internal/domain"
)

// ResultStore keeps final room results in memory; the demo/default wiring
// and the engine tests use it in place of Postgres.
type ResultStore struct {
	mu      sync.Mutex
	results []domain.RoomResult
}

func NewResultStore() *ResultStore {
	return &ResultStore{}
}

func (s *ResultStore) SaveResult(_ context.Context, result domain.RoomResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

// Results returns a copy of everything saved so far.
func (s *ResultStore) Results() []domain.RoomResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RoomResult, len(s.results))
	copy(out, s.results)
	return out
}
