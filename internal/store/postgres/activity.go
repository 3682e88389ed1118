package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/canvas/internal/domain"
)

type ActivityRepo struct {
	pool *pgxpool.Pool
}

func NewActivityRepo(pool *pgxpool.Pool) *ActivityRepo {
	return &ActivityRepo{pool: pool}
}

func (r *ActivityRepo) Record(ctx context.Context, entry *domain.ActivityEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("activityRepo.Record: marshal details: %w", err)
	}
	objectIDs, err := json.Marshal(entry.ObjectIDs)
	if err != nil {
		return fmt.Errorf("activityRepo.Record: marshal object ids: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO board_activity (id, board_id, actor, action, label, object_ids, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.BoardID, entry.Actor, entry.Action, entry.Label,
		objectIDs, details, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("activityRepo.Record: %w", err)
	}

	return nil
}

func (r *ActivityRepo) ListByBoard(ctx context.Context, boardID uuid.UUID, limit, offset int) ([]*domain.ActivityEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, board_id, actor, action, label, object_ids, details, created_at
		 FROM board_activity WHERE board_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		boardID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("activityRepo.ListByBoard: %w", err)
	}
	defer rows.Close()

	return scanActivity(rows, "activityRepo.ListByBoard")
}

func scanActivity(rows pgx.Rows, caller string) ([]*domain.ActivityEntry, error) {
	var entries []*domain.ActivityEntry
	for rows.Next() {
		var e domain.ActivityEntry
		var objectIDs, details []byte

		if err := rows.Scan(
			&e.ID, &e.BoardID, &e.Actor, &e.Action, &e.Label,
			&objectIDs, &details, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		if err := json.Unmarshal(objectIDs, &e.ObjectIDs); err != nil {
			return nil, fmt.Errorf("%s: unmarshal object ids: %w", caller, err)
		}
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return nil, fmt.Errorf("%s: unmarshal details: %w", caller, err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return entries, nil
}
