package docstore_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/canvas/internal/docstore"
	"github.com/gosuda/canvas/internal/domain"
)

// ---------------------------------------------------------------------------
// Mock ObjectRepository
// ---------------------------------------------------------------------------

type mockObjectRepo struct {
	createFunc      func(ctx context.Context, o *domain.BoardObject) error
	getByIDFunc     func(ctx context.Context, id uuid.UUID) (*domain.BoardObject, error)
	listByBoardFunc func(ctx context.Context, boardID uuid.UUID) ([]*domain.BoardObject, error)
	patchFunc       func(ctx context.Context, id uuid.UUID, p domain.Patch, expectedVersion int64, actor string) (*domain.BoardObject, error)
	deleteFunc      func(ctx context.Context, id uuid.UUID) (*domain.BoardObject, error)
}

func (m *mockObjectRepo) Create(ctx context.Context, o *domain.BoardObject) error {
	return m.createFunc(ctx, o)
}

func (m *mockObjectRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.BoardObject, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockObjectRepo) ListByBoard(ctx context.Context, boardID uuid.UUID) ([]*domain.BoardObject, error) {
	return m.listByBoardFunc(ctx, boardID)
}

func (m *mockObjectRepo) Patch(ctx context.Context, id uuid.UUID, p domain.Patch, expectedVersion int64, actor string) (*domain.BoardObject, error) {
	return m.patchFunc(ctx, id, p, expectedVersion, actor)
}

func (m *mockObjectRepo) Delete(ctx context.Context, id uuid.UUID) (*domain.BoardObject, error) {
	return m.deleteFunc(ctx, id)
}

// ---------------------------------------------------------------------------
// Mock PubSub
// ---------------------------------------------------------------------------

type published struct {
	channel string
	notice  docstore.Notice
}

type mockPubSub struct {
	mu         sync.Mutex
	published  []published
	publishErr error
	notices    chan []byte
	subErr     error
	subscribed string
}

func (m *mockPubSub) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	var n docstore.Notice
	if err := json.Unmarshal(payload, &n); err != nil {
		return err
	}
	m.published = append(m.published, published{channel: channel, notice: n})
	return nil
}

func (m *mockPubSub) Subscribe(_ context.Context, channel string) (<-chan []byte, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subErr != nil {
		return nil, nil, m.subErr
	}
	m.subscribed = channel
	return m.notices, func() {}, nil
}

func (m *mockPubSub) sent() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.published...)
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

var boardID = uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee") //nolint:gochecknoglobals // test fixture

func sampleObject() *domain.BoardObject {
	return &domain.BoardObject{
		ID:       uuid.New(),
		BoardID:  boardID,
		Kind:     domain.KindStickyNote,
		Position: domain.Point{X: 10, Y: 20},
		Size:     domain.Size{Width: 100, Height: 80},
		Version:  3,
	}
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

func TestStore_Create(t *testing.T) {
	t.Parallel()

	t.Run("persists and announces", func(t *testing.T) {
		t.Parallel()

		var stored *domain.BoardObject
		repo := &mockObjectRepo{createFunc: func(_ context.Context, o *domain.BoardObject) error {
			stored = o
			return nil
		}}
		ps := &mockPubSub{}
		s := docstore.New(repo, ps)

		o := sampleObject()
		require.NoError(t, s.Create(context.Background(), o, "alice"))

		require.NotNil(t, stored)
		assert.Equal(t, "alice", stored.UpdatedBy)

		sent := ps.sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "board:"+boardID.String(), sent[0].channel)
		assert.Equal(t, docstore.NoticeCreated, sent[0].notice.Kind)
		assert.Equal(t, o.ID, sent[0].notice.ObjectID)
		assert.Equal(t, "alice", sent[0].notice.Actor)
	})

	t.Run("invalid object is rejected before the repo", func(t *testing.T) {
		t.Parallel()

		repo := &mockObjectRepo{createFunc: func(context.Context, *domain.BoardObject) error {
			t.Fatal("repo must not be called")
			return nil
		}}
		ps := &mockPubSub{}
		s := docstore.New(repo, ps)

		o := sampleObject()
		o.Kind = "blob"
		err := s.Create(context.Background(), o, "alice")
		require.ErrorIs(t, err, domain.ErrInvalidObject)
		assert.Empty(t, ps.sent())
	})

	t.Run("publish failure does not fail the write", func(t *testing.T) {
		t.Parallel()

		repo := &mockObjectRepo{createFunc: func(context.Context, *domain.BoardObject) error { return nil }}
		s := docstore.New(repo, &mockPubSub{publishErr: errors.New("redis down")})

		assert.NoError(t, s.Create(context.Background(), sampleObject(), "alice"))
	})
}

func TestStore_Patch(t *testing.T) {
	t.Parallel()

	t.Run("passes version and actor through", func(t *testing.T) {
		t.Parallel()

		o := sampleObject()
		repo := &mockObjectRepo{patchFunc: func(_ context.Context, id uuid.UUID, p domain.Patch, expected int64, actor string) (*domain.BoardObject, error) {
			assert.Equal(t, o.ID, id)
			assert.Equal(t, int64(3), expected)
			assert.Equal(t, "bob", actor)
			out := p.Apply(*o)
			out.Version = expected + 1
			return &out, nil
		}}
		ps := &mockPubSub{}
		s := docstore.New(repo, ps)

		pos := domain.Point{X: 50, Y: 50}
		got, err := s.Patch(context.Background(), o.ID, domain.Patch{Position: &pos}, 3, "bob")
		require.NoError(t, err)
		assert.Equal(t, pos, got.Position)
		assert.Equal(t, int64(4), got.Version)

		sent := ps.sent()
		require.Len(t, sent, 1)
		assert.Equal(t, docstore.NoticePatched, sent[0].notice.Kind)
		assert.Equal(t, int64(4), sent[0].notice.Version)
	})

	t.Run("missing object", func(t *testing.T) {
		t.Parallel()

		repo := &mockObjectRepo{patchFunc: func(context.Context, uuid.UUID, domain.Patch, int64, string) (*domain.BoardObject, error) {
			return nil, domain.ErrNotFound
		}}
		ps := &mockPubSub{}
		s := docstore.New(repo, ps)

		text := "x"
		_, err := s.Patch(context.Background(), uuid.New(), domain.Patch{Text: &text}, 1, "bob")
		require.ErrorIs(t, err, domain.ErrNotFound)
		assert.Empty(t, ps.sent())
	})

	t.Run("empty patch reads without writing", func(t *testing.T) {
		t.Parallel()

		o := sampleObject()
		repo := &mockObjectRepo{getByIDFunc: func(context.Context, uuid.UUID) (*domain.BoardObject, error) {
			return o, nil
		}}
		ps := &mockPubSub{}
		s := docstore.New(repo, ps)

		got, err := s.Patch(context.Background(), o.ID, domain.Patch{}, 1, "bob")
		require.NoError(t, err)
		assert.Equal(t, o.ID, got.ID)
		assert.Empty(t, ps.sent())
	})
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()

	o := sampleObject()
	repo := &mockObjectRepo{deleteFunc: func(_ context.Context, id uuid.UUID) (*domain.BoardObject, error) {
		if id != o.ID {
			return nil, domain.ErrNotFound
		}
		return o, nil
	}}
	ps := &mockPubSub{}
	s := docstore.New(repo, ps)

	_, err := s.Delete(context.Background(), o.ID, "carol")
	require.NoError(t, err)

	_, err = s.Delete(context.Background(), uuid.New(), "carol")
	require.ErrorIs(t, err, domain.ErrNotFound)

	sent := ps.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, docstore.NoticeDeleted, sent[0].notice.Kind)
	assert.Equal(t, boardID, sent[0].notice.BoardID)
}

func TestWriter(t *testing.T) {
	t.Parallel()

	o := sampleObject()
	var actors []string
	repo := &mockObjectRepo{
		createFunc: func(_ context.Context, created *domain.BoardObject) error {
			actors = append(actors, created.UpdatedBy)
			return nil
		},
		patchFunc: func(_ context.Context, _ uuid.UUID, _ domain.Patch, expected int64, actor string) (*domain.BoardObject, error) {
			actors = append(actors, actor)
			out := *o
			out.Version = expected + 1
			return &out, nil
		},
		deleteFunc: func(context.Context, uuid.UUID) (*domain.BoardObject, error) {
			return nil, domain.ErrNotFound
		},
	}
	w := docstore.New(repo, &mockPubSub{}).Writer("dave")

	require.NoError(t, w.CommitCreate(context.Background(), *o))

	text := "hi"
	version, err := w.CommitPatch(context.Background(), o.ID, domain.Patch{Text: &text}, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(10), version)

	err = w.CommitDelete(context.Background(), o.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	assert.Equal(t, []string{"dave", "dave"}, actors)
}

// ---------------------------------------------------------------------------
// Subscribe
// ---------------------------------------------------------------------------

func TestStore_Subscribe(t *testing.T) {
	t.Parallel()

	o := sampleObject()
	repo := &mockObjectRepo{listByBoardFunc: func(_ context.Context, id uuid.UUID) ([]*domain.BoardObject, error) {
		assert.Equal(t, boardID, id)
		return []*domain.BoardObject{o}, nil
	}}
	ps := &mockPubSub{notices: make(chan []byte, 4)}
	s := docstore.New(repo, ps)

	ctx, cancel := context.WithCancel(context.Background())
	snapshots := make(chan []domain.BoardObject, 4)
	done := make(chan error, 1)
	go func() {
		done <- s.Subscribe(ctx, boardID, func(objs []domain.BoardObject) { snapshots <- objs })
	}()

	select {
	case snap := <-snapshots:
		require.Len(t, snap, 1)
		assert.Equal(t, o.ID, snap[0].ID)
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	ps.notices <- []byte(`{"kind":"patched"}`)
	select {
	case <-snapshots:
	case <-time.After(time.Second):
		t.Fatal("no snapshot after notice")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("subscribe did not return after cancel")
	}
	assert.Equal(t, "board:"+boardID.String(), ps.subscribed)
}

func TestStore_Subscribe_CoalescesBursts(t *testing.T) {
	t.Parallel()

	loads := 0
	repo := &mockObjectRepo{listByBoardFunc: func(context.Context, uuid.UUID) ([]*domain.BoardObject, error) {
		loads++
		return nil, nil
	}}
	ps := &mockPubSub{notices: make(chan []byte, 3)}
	for range 3 {
		ps.notices <- []byte(`{}`)
	}
	close(ps.notices)

	delivered := 0
	err := docstore.New(repo, ps).Subscribe(context.Background(), boardID, func([]domain.BoardObject) { delivered++ })

	require.ErrorIs(t, err, docstore.ErrSubscriptionClosed)
	assert.Equal(t, 2, loads, "initial load plus one reload for the whole burst")
	assert.Equal(t, 2, delivered)
}

func TestStore_Subscribe_Errors(t *testing.T) {
	t.Parallel()

	t.Run("subscribe fails", func(t *testing.T) {
		t.Parallel()

		s := docstore.New(&mockObjectRepo{}, &mockPubSub{subErr: errors.New("redis down")})
		err := s.Subscribe(context.Background(), boardID, func([]domain.BoardObject) {})
		assert.ErrorContains(t, err, "redis down")
	})

	t.Run("initial load fails", func(t *testing.T) {
		t.Parallel()

		repo := &mockObjectRepo{listByBoardFunc: func(context.Context, uuid.UUID) ([]*domain.BoardObject, error) {
			return nil, errors.New("db down")
		}}
		s := docstore.New(repo, &mockPubSub{notices: make(chan []byte)})
		err := s.Subscribe(context.Background(), boardID, func([]domain.BoardObject) {
			t.Fatal("no snapshot expected")
		})
		assert.ErrorContains(t, err, "initial load")
	})
}
