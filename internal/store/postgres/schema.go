package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied on every start. Statements must stay idempotent.
const schema = `
	CREATE TABLE IF NOT EXISTS board_objects (
		id         UUID PRIMARY KEY,
		board_id   UUID NOT NULL,
		kind       TEXT NOT NULL,
		doc        JSONB NOT NULL DEFAULT '{}'::jsonb,
		version    BIGINT NOT NULL DEFAULT 1,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_by TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_board_objects_board ON board_objects(board_id);

	CREATE TABLE IF NOT EXISTS board_activity (
		id         UUID PRIMARY KEY,
		board_id   UUID NOT NULL,
		actor      TEXT NOT NULL,
		action     TEXT NOT NULL,
		label      TEXT NOT NULL DEFAULT '',
		object_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
		details    JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_board_activity_board ON board_activity(board_id, created_at DESC);
`

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
