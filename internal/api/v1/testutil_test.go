package v1_test

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/gosuda/canvas/internal/domain"
	"github.com/gosuda/canvas/internal/server/middleware"
)

// ---------------------------------------------------------------------------
// Context helpers: inject the actor into context for DoCtx
// ---------------------------------------------------------------------------

func actorCtx(actor string) context.Context {
	return context.WithValue(context.Background(), middleware.ContextKeyActor, actor)
}

// ---------------------------------------------------------------------------
// Mock ObjectService
// ---------------------------------------------------------------------------

type mockObjectService struct {
	listFunc   func(ctx context.Context, boardID uuid.UUID) ([]domain.BoardObject, error)
	getFunc    func(ctx context.Context, id uuid.UUID) (*domain.BoardObject, error)
	createFunc func(ctx context.Context, o *domain.BoardObject, actor string) error
	patchFunc  func(ctx context.Context, id uuid.UUID, p domain.Patch, expectedVersion int64, actor string) (*domain.BoardObject, error)
	deleteFunc func(ctx context.Context, id uuid.UUID, actor string) (*domain.BoardObject, error)
}

func (m *mockObjectService) List(ctx context.Context, boardID uuid.UUID) ([]domain.BoardObject, error) {
	return m.listFunc(ctx, boardID)
}

func (m *mockObjectService) Get(ctx context.Context, id uuid.UUID) (*domain.BoardObject, error) {
	return m.getFunc(ctx, id)
}

func (m *mockObjectService) Create(ctx context.Context, o *domain.BoardObject, actor string) error {
	return m.createFunc(ctx, o, actor)
}

func (m *mockObjectService) Patch(ctx context.Context, id uuid.UUID, p domain.Patch, expectedVersion int64, actor string) (*domain.BoardObject, error) {
	return m.patchFunc(ctx, id, p, expectedVersion, actor)
}

func (m *mockObjectService) Delete(ctx context.Context, id uuid.UUID, actor string) (*domain.BoardObject, error) {
	return m.deleteFunc(ctx, id, actor)
}

// ---------------------------------------------------------------------------
// Mock ActivityLog
// ---------------------------------------------------------------------------

type mockActivityLog struct {
	mu        sync.Mutex
	recorded  []*domain.ActivityEntry
	recordErr error
	listFunc  func(ctx context.Context, boardID uuid.UUID, limit, offset int) ([]*domain.ActivityEntry, error)
}

func (m *mockActivityLog) Record(_ context.Context, entry *domain.ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorded = append(m.recorded, entry)
	return m.recordErr
}

func (m *mockActivityLog) ListByBoard(ctx context.Context, boardID uuid.UUID, limit, offset int) ([]*domain.ActivityEntry, error) {
	return m.listFunc(ctx, boardID, limit, offset)
}

func (m *mockActivityLog) entries() []*domain.ActivityEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.ActivityEntry(nil), m.recorded...)
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func sampleObject(boardID uuid.UUID) *domain.BoardObject {
	return &domain.BoardObject{
		ID:       uuid.New(),
		BoardID:  boardID,
		Kind:     domain.KindStickyNote,
		Position: domain.Point{X: 10, Y: 20},
		Size:     domain.Size{Width: 100, Height: 80},
		Version:  4,
	}
}

// getter returns a getFunc that serves the given objects.
func getter(objs ...*domain.BoardObject) func(context.Context, uuid.UUID) (*domain.BoardObject, error) {
	return func(_ context.Context, id uuid.UUID) (*domain.BoardObject, error) {
		for _, o := range objs {
			if o.ID == id {
				c := o.Clone()
				return &c, nil
			}
		}
		return nil, domain.ErrNotFound
	}
}
