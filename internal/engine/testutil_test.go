package engine_test

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/canvas/internal/domain"
	"github.com/gosuda/canvas/internal/engine"
)

// ---------------------------------------------------------------------------
// Manual clock
// ---------------------------------------------------------------------------

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *manualClock {
	return &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ---------------------------------------------------------------------------
// Fake document store
// ---------------------------------------------------------------------------

type patchCall struct {
	id       uuid.UUID
	patch    domain.Patch
	expected int64
}

type fakeStore struct {
	mu       sync.Mutex
	objects  map[uuid.UUID]domain.BoardObject
	creates  []domain.BoardObject
	patches  []patchCall
	deletes  []uuid.UUID
	patchErr error
}

func newFakeStore(objects ...domain.BoardObject) *fakeStore {
	s := &fakeStore{objects: make(map[uuid.UUID]domain.BoardObject)}
	for _, o := range objects {
		if o.Version == 0 {
			o.Version = 1
		}
		s.objects[o.ID] = o
	}
	return s
}

func (s *fakeStore) CommitCreate(_ context.Context, o domain.BoardObject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.Version++
	s.objects[o.ID] = o
	s.creates = append(s.creates, o)
	return nil
}

func (s *fakeStore) CommitPatch(_ context.Context, id uuid.UUID, p domain.Patch, expected int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patches = append(s.patches, patchCall{id: id, patch: p, expected: expected})
	if s.patchErr != nil {
		return 0, s.patchErr
	}
	o, ok := s.objects[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	o = p.Apply(o)
	o.Version = max(o.Version, expected) + 1
	s.objects[id] = o
	return o.Version, nil
}

func (s *fakeStore) CommitDelete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, id)
	if _, ok := s.objects[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.objects, id)
	return nil
}

// snapshot returns the store contents the way a subscription would deliver them.
func (s *fakeStore) snapshot() []domain.BoardObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.BoardObject, 0, len(s.objects))
	for _, o := range s.objects {
		out = append(out, o.Clone())
	}
	slices.SortFunc(out, func(a, b domain.BoardObject) int {
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return out
}

func (s *fakeStore) get(id uuid.UUID) domain.BoardObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[id]
}

func (s *fakeStore) patchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.patches)
}

func (s *fakeStore) patchesFor(id uuid.UUID) []patchCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []patchCall
	for _, c := range s.patches {
		if c.id == id {
			out = append(out, c)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Fake activity log
// ---------------------------------------------------------------------------

type fakeActivity struct {
	mu      sync.Mutex
	entries []*domain.ActivityEntry
}

func (a *fakeActivity) Record(_ context.Context, entry *domain.ActivityEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *fakeActivity) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

var testBoard = uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee") //nolint:gochecknoglobals // test fixture

type harness struct {
	engine   *engine.Engine
	store    *fakeStore
	clock    *manualClock
	activity *fakeActivity
}

// newHarness builds an engine over a fake store holding objects and delivers
// the initial snapshot.
func newHarness(t *testing.T, objects ...domain.BoardObject) *harness {
	t.Helper()

	clock := newClock()
	store := newFakeStore(objects...)
	activity := &fakeActivity{}
	e := engine.New(testBoard, "tester", store, activity, engine.Config{
		PublishInterval: 40 * time.Millisecond,
		Now:             clock.Now,
	})
	e.ApplySnapshot(store.snapshot())

	return &harness{engine: e, store: store, clock: clock, activity: activity}
}

// sync delivers the store's current contents as a snapshot.
func (h *harness) sync() engine.ReconcileStats {
	return h.engine.ApplySnapshot(h.store.snapshot())
}

func (h *harness) position(t *testing.T, id uuid.UUID) domain.Point {
	t.Helper()
	o, ok := h.engine.Object(id)
	if !ok {
		t.Fatalf("object %s not in view", id)
	}
	return o.Position
}

func note(x, y, w, h float64) domain.BoardObject {
	return domain.BoardObject{
		ID:       uuid.New(),
		BoardID:  testBoard,
		Kind:     domain.KindStickyNote,
		Position: domain.Point{X: x, Y: y},
		Size:     domain.Size{Width: w, Height: h},
		ZIndex:   1,
	}
}

func frame(x, y, w, h float64, z int) domain.BoardObject {
	return domain.BoardObject{
		ID:       uuid.New(),
		BoardID:  testBoard,
		Kind:     domain.KindFrame,
		Position: domain.Point{X: x, Y: y},
		Size:     domain.Size{Width: w, Height: h},
		ZIndex:   z,
	}
}

func connector(start, end domain.Point) domain.BoardObject {
	return domain.BoardObject{
		ID:        uuid.New(),
		BoardID:   testBoard,
		Kind:      domain.KindConnector,
		Connector: &domain.ConnectorGeometry{Start: start, End: end},
		ZIndex:    5,
	}
}

func pt(x, y float64) domain.Point { return domain.Point{X: x, Y: y} }
