package v1

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/canvas/internal/domain"
)

// ObjectService abstracts the document store for handler testing.
// *docstore.Store satisfies this interface.
type ObjectService interface {
	List(ctx context.Context, boardID uuid.UUID) ([]domain.BoardObject, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.BoardObject, error)
	Create(ctx context.Context, o *domain.BoardObject, actor string) error
	Patch(ctx context.Context, id uuid.UUID, p domain.Patch, expectedVersion int64, actor string) (*domain.BoardObject, error)
	Delete(ctx context.Context, id uuid.UUID, actor string) (*domain.BoardObject, error)
}

// ActivityLog abstracts the board activity log for handler testing.
// domain.ActivityRepository satisfies this interface.
type ActivityLog interface {
	Record(ctx context.Context, entry *domain.ActivityEntry) error
	ListByBoard(ctx context.Context, boardID uuid.UUID, limit, offset int) ([]*domain.ActivityEntry, error)
}
