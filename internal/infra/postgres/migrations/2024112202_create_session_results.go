package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
				CREATE TABLE IF NOT EXISTS session_results (
					room_code      TEXT        NOT NULL,
					quiz_id        TEXT        NOT NULL,
					participant_id TEXT        NOT NULL,
					display_name   TEXT        NOT NULL,
					score          INTEGER     NOT NULL,
					answers        JSONB       NOT NULL DEFAULT '[]',
					finished_at    TIMESTAMPTZ NOT NULL,
					PRIMARY KEY (room_code, participant_id)
				)`)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS session_results`)
			return err
		},
	)
}
