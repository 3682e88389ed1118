package session_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/canvas/internal/domain"
	"github.com/gosuda/canvas/internal/engine"
	"github.com/gosuda/canvas/internal/session"
)

// ---------------------------------------------------------------------------
// In-memory document store
// ---------------------------------------------------------------------------

type memStore struct {
	mu      sync.Mutex
	objects map[uuid.UUID]domain.BoardObject
}

func newMemStore(objs ...domain.BoardObject) *memStore {
	m := &memStore{objects: make(map[uuid.UUID]domain.BoardObject)}
	for _, o := range objs {
		m.objects[o.ID] = o
	}
	return m
}

func (m *memStore) CommitCreate(_ context.Context, o domain.BoardObject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.Version = 1
	m.objects[o.ID] = o
	return nil
}

func (m *memStore) CommitPatch(_ context.Context, id uuid.UUID, p domain.Patch, expected int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	o = p.Apply(o)
	o.Version = max(o.Version, expected) + 1
	m.objects[id] = o
	return o.Version, nil
}

func (m *memStore) CommitDelete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.objects, id)
	return nil
}

func (m *memStore) list() []domain.BoardObject {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.BoardObject, 0, len(m.objects))
	for _, o := range m.objects {
		out = append(out, o)
	}
	return out
}

func (m *memStore) get(id uuid.UUID) domain.BoardObject {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[id]
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

var boardID = uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee") //nolint:gochecknoglobals // test fixture

func note(x, y float64) domain.BoardObject {
	return domain.BoardObject{
		ID:       uuid.New(),
		BoardID:  boardID,
		Kind:     domain.KindStickyNote,
		Position: domain.Point{X: x, Y: y},
		Size:     domain.Size{Width: 100, Height: 100},
		Version:  1,
	}
}

func newSession(t *testing.T, objs ...domain.BoardObject) (*session.Session, *memStore) {
	t.Helper()
	store := newMemStore(objs...)
	s := session.New(boardID, "tester", store, nil, engine.Config{})
	s.Engine().ApplySnapshot(store.list())
	return s, store
}

func command(t *testing.T, cmd session.Command) []byte {
	t.Helper()
	raw, err := json.Marshal(cmd)
	require.NoError(t, err)
	return raw
}

func point(x, y float64) *domain.Point { return &domain.Point{X: x, Y: y} }

// ---------------------------------------------------------------------------
// Handle
// ---------------------------------------------------------------------------

func TestSession_Handle_Drag(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	n := note(0, 0)
	s, store := newSession(t, n)

	for _, cmd := range []session.Command{
		{Type: session.CmdDragBegin, Seq: 1, ID: n.ID, Point: point(10, 10)},
		{Type: session.CmdDragMove, Seq: 2, ID: n.ID, Point: point(20, 20)},
		{Type: session.CmdDragEnd, Seq: 3, ID: n.ID, Point: point(40, 30)},
	} {
		reply := s.Handle(ctx, command(t, cmd))
		assert.Equal(t, session.MsgAck, reply.Type)
		assert.Equal(t, cmd.Seq, reply.Seq)
	}

	assert.Equal(t, domain.Point{X: 30, Y: 20}, store.get(n.ID).Position)
	view := s.View()
	require.Len(t, view.Objects, 1)
	assert.Equal(t, domain.Point{X: 30, Y: 20}, view.Objects[0].Position)
	assert.True(t, view.CanUndo)

	reply := s.Handle(ctx, command(t, session.Command{Type: session.CmdUndo}))
	assert.Equal(t, session.MsgAck, reply.Type)
	assert.Equal(t, domain.Point{X: 0, Y: 0}, store.get(n.ID).Position)
}

func TestSession_Handle_Create(t *testing.T) {
	t.Parallel()

	s, store := newSession(t)
	reply := s.Handle(context.Background(), command(t, session.Command{
		Type: session.CmdCreate,
		Object: &domain.BoardObject{
			Kind:     domain.KindText,
			Position: domain.Point{X: 5, Y: 5},
			Size:     domain.Size{Width: 50, Height: 20},
			Text:     "hello",
		},
	}))

	require.Equal(t, session.MsgAck, reply.Type, reply.Error)
	require.NotNil(t, reply.Created)
	assert.Equal(t, "hello", store.get(reply.Created.ID).Text)
}

func TestSession_Handle_RotateStepAndDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, b := note(0, 0), note(200, 0)
	s, store := newSession(t, a, b)

	s.Handle(ctx, command(t, session.Command{Type: session.CmdSelect, IDs: []uuid.UUID{a.ID, b.ID}}))
	reply := s.Handle(ctx, command(t, session.Command{Type: session.CmdRotateStep, Direction: 1}))
	require.Equal(t, session.MsgAck, reply.Type, reply.Error)
	assert.InDelta(t, engine.DefaultRotateStep, store.get(a.ID).Rotation, 1e-9)
	assert.InDelta(t, engine.DefaultRotateStep, store.get(b.ID).Rotation, 1e-9)

	reply = s.Handle(ctx, command(t, session.Command{Type: session.CmdDelete, ID: a.ID}))
	require.Equal(t, session.MsgAck, reply.Type, reply.Error)
	assert.Len(t, store.list(), 1)
}

func TestSession_Handle_Errors(t *testing.T) {
	t.Parallel()

	n := note(0, 0)
	s, _ := newSession(t, n)

	tests := []struct {
		name    string
		raw     []byte
		wantErr string
	}{
		{name: "not json", raw: []byte("{"), wantErr: "malformed command"},
		{name: "unknown type", raw: []byte(`{"type":"teleport","seq":4}`), wantErr: "unknown command"},
		{name: "drag without point", raw: []byte(`{"type":"drag_begin","id":"` + n.ID.String() + `"}`), wantErr: "needs point"},
		{name: "resize without rect", raw: []byte(`{"type":"resize_end","id":"` + n.ID.String() + `"}`), wantErr: "needs rect"},
		{name: "create without object", raw: []byte(`{"type":"create"}`), wantErr: "needs object"},
		{name: "update unknown object", raw: []byte(`{"type":"update","id":"` + uuid.NewString() + `","patch":{"text":"x"}}`), wantErr: "unknown object"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reply := s.Handle(context.Background(), tc.raw)
			assert.Equal(t, session.MsgError, reply.Type)
			assert.Contains(t, reply.Error, tc.wantErr)
		})
	}
}

func TestSession_ChangedIsCoalesced(t *testing.T) {
	t.Parallel()

	n := note(0, 0)
	s, _ := newSession(t, n)

	// Applying the initial snapshot already signalled; many more changes
	// still leave a single pending signal.
	for range 5 {
		s.Engine().Select([]uuid.UUID{n.ID})
	}
	select {
	case <-s.Changed():
	default:
		t.Fatal("expected a change signal")
	}
	select {
	case <-s.Changed():
		t.Fatal("signals must coalesce")
	default:
	}
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

type pipeConn struct {
	in  chan []byte
	out chan []byte
}

func newPipeConn() *pipeConn {
	return &pipeConn{in: make(chan []byte, 8), out: make(chan []byte, 64)}
}

func (c *pipeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case raw := <-c.in:
		return raw, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *pipeConn) Write(ctx context.Context, payload []byte) error {
	select {
	case c.out <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// until reads messages until done reports true for one of them.
func (c *pipeConn) until(t *testing.T, done func(session.Message) bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case raw := <-c.out:
			var msg session.Message
			require.NoError(t, json.Unmarshal(raw, &msg))
			if done(msg) {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for message")
		}
	}
}

type staticFeed struct {
	objects []domain.BoardObject
}

func (f *staticFeed) Subscribe(ctx context.Context, _ uuid.UUID, fn func([]domain.BoardObject)) error {
	fn(f.objects)
	<-ctx.Done()
	return nil
}

func TestSession_Run(t *testing.T) {
	t.Parallel()

	n := note(0, 0)
	store := newMemStore(n)
	s := session.New(boardID, "tester", store, nil, engine.Config{})
	conn := newPipeConn()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, conn, &staticFeed{objects: store.list()}, 10*time.Millisecond)
	}()

	conn.until(t, func(msg session.Message) bool {
		return msg.Type == session.MsgView && len(msg.Objects) == 1 && msg.Objects[0].ID == n.ID
	})

	// The ack and the view carrying the new selection may arrive in either order.
	conn.in <- command(t, session.Command{Type: session.CmdSelect, Seq: 7, IDs: []uuid.UUID{n.ID}})
	var acked, selected bool
	conn.until(t, func(msg session.Message) bool {
		switch msg.Type {
		case session.MsgAck:
			acked = msg.Seq == 7
		case session.MsgView:
			selected = selected || len(msg.Selection) == 1 && msg.Selection[0] == n.ID
		}
		return acked && selected
	})

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
