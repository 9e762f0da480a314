package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"livequiz-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ResultStore persists final per-participant room results. One row per
// (room, participant); a retried save overwrites rather than duplicates.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) SaveResult(ctx context.Context, result domain.RoomResult) error {
	answers, err := json.Marshal(result.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO session_results (room_code, quiz_id, participant_id, display_name, score, answers, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
		ON CONFLICT (room_code, participant_id)
		DO UPDATE SET score=EXCLUDED.score, answers=EXCLUDED.answers, finished_at=EXCLUDED.finished_at`,
		result.RoomCode, result.QuizID, result.ParticipantID, result.DisplayName, result.Score, string(answers), result.FinishedAt)
	if err != nil {
		return fmt.Errorf("%w: save result: %v", domain.ErrCollaboratorUnavailable, err)
	}
	return nil
}
