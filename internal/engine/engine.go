package engine

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/canvas/internal/domain"
)

// ErrUnknownObject is returned when an operation names an object the engine
// has not seen in any snapshot.
var ErrUnknownObject = errors.New("engine: unknown object") //nolint:gochecknoglobals // sentinel error

const (
	DefaultPendingTimeout  = 3 * time.Second
	DefaultPublishInterval = 40 * time.Millisecond
	DefaultEpsilon         = 0.5
	DefaultRotateStep      = 15.0

	// MinObjectSize is the smallest width or height a resize can produce.
	MinObjectSize = 1.0
)

// DocumentStore is the remote document store. Every call is atomic per
// document and eventually consistent; there are no cross-document
// transactions.
type DocumentStore interface {
	CommitCreate(ctx context.Context, o domain.BoardObject) error
	CommitPatch(ctx context.Context, id uuid.UUID, p domain.Patch, expectedVersion int64) (int64, error)
	CommitDelete(ctx context.Context, id uuid.UUID) error
}

// ActivityRecorder receives committed user edits.
// domain.ActivityRepository satisfies this interface.
type ActivityRecorder interface {
	Record(ctx context.Context, entry *domain.ActivityEntry) error
}

// Config tunes an Engine. Zero values take the package defaults.
type Config struct {
	PendingTimeout  time.Duration
	PublishInterval time.Duration
	Epsilon         float64
	HistoryLimit    int
	RotateStep      float64

	// Now replaces time.Now; tests inject a manual clock.
	Now func() time.Time

	// OnChange is called whenever the resolved view may have changed. It
	// runs with the engine lock held and must not call back into the engine.
	OnChange func()
}

func (c Config) withDefaults() Config {
	if c.PendingTimeout <= 0 {
		c.PendingTimeout = DefaultPendingTimeout
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = DefaultPublishInterval
	}
	if c.Epsilon <= 0 {
		c.Epsilon = DefaultEpsilon
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.RotateStep <= 0 {
		c.RotateStep = DefaultRotateStep
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.OnChange == nil {
		c.OnChange = func() {}
	}
	return c
}

// Engine is the optimistic synchronization state of one board session. It
// merges the remote snapshot with local overrides, drives gestures, and owns
// the undo history. One Engine serves one local user; all methods are safe
// for concurrent use and are serialized internally.
type Engine struct {
	mu sync.Mutex

	boardID  uuid.UUID
	actor    string
	store    DocumentStore
	activity ActivityRecorder
	cfg      Config
	now      func() time.Time

	objects  map[uuid.UUID]*domain.BoardObject
	versions map[uuid.UUID]int64
	hidden   map[uuid.UUID]time.Time

	positions  *OverrideStore[domain.Point]
	sizes      *OverrideStore[domain.Size]
	rotations  *OverrideStore[float64]
	connectors *OverrideStore[domain.ConnectorGeometry]

	selection map[uuid.UUID]struct{}
	gesture   *gesture
	throttle  *Throttle
	history   *History
}

// New creates an Engine for boardID acting as actor. activity may be nil.
func New(boardID uuid.UUID, actor string, store DocumentStore, activity ActivityRecorder, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		boardID:   boardID,
		actor:     actor,
		store:     store,
		activity:  activity,
		cfg:       cfg,
		now:       cfg.Now,
		objects:   make(map[uuid.UUID]*domain.BoardObject),
		versions:  make(map[uuid.UUID]int64),
		hidden:    make(map[uuid.UUID]time.Time),
		selection: make(map[uuid.UUID]struct{}),
		throttle:  NewThrottle(cfg.PublishInterval, cfg.Now),
		history:   NewHistory(cfg.HistoryLimit),
	}
	e.positions = NewOverrideStore[domain.Point](cfg.Now, e.changed)
	e.sizes = NewOverrideStore[domain.Size](cfg.Now, e.changed)
	e.rotations = NewOverrideStore[float64](cfg.Now, e.changed)
	e.connectors = NewOverrideStore[domain.ConnectorGeometry](cfg.Now, e.changed)
	return e
}

func (e *Engine) BoardID() uuid.UUID { return e.boardID }

func (e *Engine) changed() { e.cfg.OnChange() }

// ApplySnapshot replaces the known object set with a full snapshot of the
// board and reconciles every override map against it. Malformed entries and
// entries of other boards are dropped without error.
func (e *Engine) ApplySnapshot(objects []domain.BoardObject) ReconcileStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	var stats ReconcileStats
	index := make(map[uuid.UUID]*domain.BoardObject, len(objects))
	for i := range objects {
		o := objects[i].Clone()
		if err := o.Validate(); err != nil || o.BoardID != e.boardID {
			stats.Malformed++
			continue
		}
		index[o.ID] = &o
		if o.Version > e.versions[o.ID] {
			e.versions[o.ID] = o.Version
		}
	}
	for id := range e.versions {
		if _, ok := index[id]; !ok {
			delete(e.versions, id)
		}
	}
	for id := range e.selection {
		if _, ok := index[id]; !ok {
			delete(e.selection, id)
		}
	}
	e.objects = index

	now := e.now()
	timeout := e.cfg.PendingTimeout
	for id, at := range e.hidden {
		if _, ok := index[id]; !ok || now.Sub(at) > timeout {
			delete(e.hidden, id)
		}
	}
	eps := e.cfg.Epsilon

	stats.add(reconcile(e.positions, index, func(v domain.Point, o *domain.BoardObject) bool {
		return v.Near(o.Position, eps)
	}, e.owned, now, timeout))
	stats.add(reconcile(e.sizes, index, func(v domain.Size, o *domain.BoardObject) bool {
		return v.Near(o.Size, eps)
	}, e.owned, now, timeout))
	stats.add(reconcile(e.rotations, index, func(v float64, o *domain.BoardObject) bool {
		return domain.RotationNear(v, o.Rotation, eps)
	}, e.owned, now, timeout))
	stats.add(reconcile(e.connectors, index, func(v domain.ConnectorGeometry, o *domain.BoardObject) bool {
		return o.Connector != nil && v.Matches(*o.Connector, eps)
	}, e.owned, now, timeout))

	e.changed()

	log.Debug().
		Str("board_id", e.boardID.String()).
		Int("objects", len(index)).
		Int("kept", stats.Kept).
		Int("dropped", stats.Dropped).
		Int("expired", stats.Expired).
		Int("demoted", stats.Demoted).
		Int("malformed", stats.Malformed).
		Msg("engine.Engine.ApplySnapshot")

	return stats
}

// ExpirePending drops pending overrides that have outlived the timeout
// without a confirming snapshot. It returns how many were dropped.
func (e *Engine) ExpirePending() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	timeout := e.cfg.PendingTimeout
	for id, at := range e.hidden {
		if now.Sub(at) > timeout {
			delete(e.hidden, id)
			e.changed()
		}
	}
	return expire(e.positions, now, timeout) +
		expire(e.sizes, now, timeout) +
		expire(e.rotations, now, timeout) +
		expire(e.connectors, now, timeout)
}

// owned reports whether the current local gesture drives id.
func (e *Engine) owned(id uuid.UUID) bool {
	return e.gesture != nil && e.gesture.owns(id)
}

// lookup returns a known object unless a local delete is still awaiting
// confirmation. A delete that no snapshot confirms within the pending timeout
// stops hiding the object.
func (e *Engine) lookup(id uuid.UUID) (*domain.BoardObject, bool) {
	o, ok := e.objects[id]
	if !ok || e.isHidden(id) {
		return nil, false
	}
	return o, true
}

func (e *Engine) isHidden(id uuid.UUID) bool {
	at, ok := e.hidden[id]
	return ok && e.now().Sub(at) <= e.cfg.PendingTimeout
}

// live reports whether an override still shadows the snapshot. Pending
// overrides past the timeout are ignored even before they are swept.
func live[T any](e *Engine, ov Override[T]) bool {
	return ov.Mode == ModeActive || e.now().Sub(ov.UpdatedAt) <= e.cfg.PendingTimeout
}

func (e *Engine) positionOf(o *domain.BoardObject) domain.Point {
	if ov, ok := e.positions.Get(o.ID); ok && live(e, ov) {
		return ov.Value
	}
	return o.Position
}

func (e *Engine) sizeOf(o *domain.BoardObject) domain.Size {
	if ov, ok := e.sizes.Get(o.ID); ok && live(e, ov) {
		return ov.Value
	}
	return o.Size
}

func (e *Engine) rotationOf(o *domain.BoardObject) float64 {
	if ov, ok := e.rotations.Get(o.ID); ok && live(e, ov) {
		return ov.Value
	}
	return o.Rotation
}

func (e *Engine) connectorOf(o *domain.BoardObject) (domain.ConnectorGeometry, bool) {
	if ov, ok := e.connectors.Get(o.ID); ok && live(e, ov) {
		return ov.Value.Clone(), true
	}
	if o.Connector == nil {
		return domain.ConnectorGeometry{}, false
	}
	return o.Connector.Clone(), true
}

func (e *Engine) boundsOf(o *domain.BoardObject) domain.Rect {
	return domain.Rect{Position: e.positionOf(o), Size: e.sizeOf(o)}
}

func (e *Engine) resolved(o *domain.BoardObject) domain.BoardObject {
	out := o.Clone()
	out.Position = e.positionOf(o)
	out.Size = e.sizeOf(o)
	out.Rotation = e.rotationOf(o)
	if g, ok := e.connectorOf(o); ok && o.Kind == domain.KindConnector {
		out.Connector = &g
	}
	return out
}

// ResolvePosition returns the position to render for o: the override if one
// exists, else the snapshot value.
func (e *Engine) ResolvePosition(o domain.BoardObject) domain.Point {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionOf(&o)
}

// ResolveSize returns the size to render for o.
func (e *Engine) ResolveSize(o domain.BoardObject) domain.Size {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sizeOf(&o)
}

// ResolveRotation returns the rotation to render for o.
func (e *Engine) ResolveRotation(o domain.BoardObject) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rotationOf(&o)
}

// ResolveConnectorGeometry returns the endpoints and bindings to render for a
// connector. ok is false when o carries no geometry and has no override.
func (e *Engine) ResolveConnectorGeometry(o domain.BoardObject) (domain.ConnectorGeometry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connectorOf(&o)
}

// Object returns the resolved state of one object.
func (e *Engine) Object(id uuid.UUID) (domain.BoardObject, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.lookup(id)
	if !ok {
		return domain.BoardObject{}, false
	}
	return e.resolved(o), true
}

// View returns every known object with overrides applied, in paint order.
func (e *Engine) View() []domain.BoardObject {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.BoardObject, 0, len(e.objects))
	for _, o := range e.objects {
		if e.isHidden(o.ID) {
			continue
		}
		out = append(out, e.resolved(o))
	}
	slices.SortFunc(out, func(a, b domain.BoardObject) int {
		if c := cmp.Compare(a.ZIndex, b.ZIndex); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return out
}

// Select replaces the local multi-selection. Unknown ids are ignored.
func (e *Engine) Select(ids []uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.selection = make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := e.lookup(id); ok {
			e.selection[id] = struct{}{}
		}
	}
	e.changed()
}

// Selection returns the selected ids in a stable order.
func (e *Engine) Selection() []uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectedIDs()
}

func (e *Engine) selectedIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(e.selection))
	for id := range e.selection {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

func (e *Engine) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanUndo()
}

func (e *Engine) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanRedo()
}

// frameCandidates lists every frame with its resolved bounds.
func (e *Engine) frameCandidates() []FrameCandidate {
	var frames []FrameCandidate
	for _, o := range e.objects {
		if o.Kind != domain.KindFrame || e.isHidden(o.ID) {
			continue
		}
		frames = append(frames, FrameCandidate{ID: o.ID, Bounds: e.boundsOf(o), ZIndex: o.ZIndex})
	}
	return frames
}

// frameChange computes the FrameID patch value for o placed at bounds. It
// returns nil when the enclosing frame does not change or o does not take
// part in containment (frames and connectors).
func (e *Engine) frameChange(o *domain.BoardObject, bounds domain.Rect) *uuid.UUID {
	if !o.Kind.Positioned() || o.Kind == domain.KindFrame {
		return nil
	}
	next := ResolveFrame(e.frameCandidates(), o.ID, bounds)
	if sameFrameID(next, o.FrameID) {
		return nil
	}
	return frameRef(next)
}

func sameFrameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// frameRef turns a nullable frame id into a patch value; nil becomes uuid.Nil
// which detaches.
func frameRef(id *uuid.UUID) *uuid.UUID {
	v := uuid.Nil
	if id != nil {
		v = *id
	}
	return &v
}

func sortIDs(ids []uuid.UUID) {
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return cmp.Compare(a.String(), b.String())
	})
}
