package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ActivityAction string

const (
	ActivityCreate ActivityAction = "create"
	ActivityUpdate ActivityAction = "update"
	ActivityDelete ActivityAction = "delete"
)

// ActivityEntry records one committed, user-visible edit on a board.
// Intermediate gesture frames and undo/redo replays are not recorded.
type ActivityEntry struct {
	ID        uuid.UUID      `json:"id"`
	BoardID   uuid.UUID      `json:"board_id"`
	Actor     string         `json:"actor"`
	Action    ActivityAction `json:"action"`
	Label     string         `json:"label"`
	ObjectIDs []uuid.UUID    `json:"object_ids"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type ActivityRepository interface {
	Record(ctx context.Context, entry *ActivityEntry) error
	ListByBoard(ctx context.Context, boardID uuid.UUID, limit, offset int) ([]*ActivityEntry, error)
}
