package engine

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/canvas/internal/domain"
)

type gestureKind int

const (
	gestureDrag gestureKind = iota + 1
	gestureResize
	gestureRotate
	gestureEndpoint
)

func (k gestureKind) String() string {
	switch k {
	case gestureDrag:
		return "drag"
	case gestureResize:
		return "resize"
	case gestureRotate:
		return "rotate"
	case gestureEndpoint:
		return "endpoint"
	default:
		return "unknown"
	}
}

// ConnectorEnd selects which end of a connector an endpoint edit moves.
type ConnectorEnd string

const (
	EndStart ConnectorEnd = "start"
	EndEnd   ConnectorEnd = "end"
)

// Binding attaches a connector end to an anchor of another object.
type Binding struct {
	ObjectID uuid.UUID     `json:"object_id"`
	Anchor   domain.Anchor `json:"anchor"`
}

// gesture is the baseline captured at Begin. starts holds the starting
// position of every object a drag moves, the primary included.
type gesture struct {
	kind    gestureKind
	primary uuid.UUID
	anchor  domain.Point

	starts    map[uuid.UUID]domain.Point
	connector *domain.ConnectorGeometry

	startRect     domain.Rect
	startRotation float64
	startAngle    float64

	end ConnectorEnd
}

func (g *gesture) owns(id uuid.UUID) bool {
	if id == g.primary {
		return true
	}
	_, ok := g.starts[id]
	return ok
}

// memberIDs returns the moved objects, primary first, the rest sorted.
func (g *gesture) memberIDs() []uuid.UUID {
	var rest []uuid.UUID
	for id := range g.starts {
		if id != g.primary {
			rest = append(rest, id)
		}
	}
	sortIDs(rest)
	if _, ok := g.starts[g.primary]; ok {
		return append([]uuid.UUID{g.primary}, rest...)
	}
	return rest
}

// begin installs g as the local gesture. A gesture that was never ended has
// its active overrides demoted so they can still converge.
func (e *Engine) begin(g *gesture) {
	if prev := e.gesture; prev != nil {
		ids := prev.memberIDs()
		if _, ok := prev.starts[prev.primary]; !ok {
			ids = append(ids, prev.primary)
		}
		for _, id := range ids {
			e.positions.Demote(id)
			e.sizes.Demote(id)
			e.rotations.Demote(id)
			e.connectors.Demote(id)
		}
	}
	e.gesture = g
}

// current returns the gesture if it is of kind and driven by id.
func (e *Engine) current(kind gestureKind, id uuid.UUID) *gesture {
	g := e.gesture
	if g == nil || g.kind != kind || g.primary != id {
		log.Debug().Str("object_id", id.String()).Str("gesture", kind.String()).Msg("engine: no matching gesture")
		return nil
	}
	return g
}

// publish forwards throttled intermediate frames through the commit path
// without history or activity. Failures are logged only: intermediate frames
// carry no delivery guarantee.
func (e *Engine) publish(ctx context.Context, st staged) {
	if len(st.writes) == 0 {
		return
	}
	if err := e.send(ctx, st); err != nil {
		log.Debug().Err(err).Str("board_id", e.boardID.String()).Msg("engine.Engine.publish: intermediate write failed")
	}
}

// BeginDrag starts a position drag of id grabbed at anchor. When id is part
// of a multi-selection every selected non-connector object moves with it.
// An unselected frame drags the objects it contains.
func (e *Engine) BeginDrag(id uuid.UUID, anchor domain.Point) {
	e.mu.Lock()
	defer e.mu.Unlock()

	obj, ok := e.lookup(id)
	if !ok {
		log.Debug().Str("object_id", id.String()).Msg("engine.Engine.BeginDrag: unknown object")
		return
	}

	g := &gesture{
		kind:    gestureDrag,
		primary: id,
		anchor:  anchor,
		starts:  make(map[uuid.UUID]domain.Point),
	}
	if obj.Kind == domain.KindConnector {
		if geom, ok := e.connectorOf(obj); ok {
			g.connector = &geom
		}
	} else {
		g.starts[id] = e.positionOf(obj)
	}

	_, selected := e.selection[id]
	switch {
	case selected && len(e.selection) > 1:
		for sid := range e.selection {
			o, ok := e.objects[sid]
			if !ok || sid == id || o.Kind == domain.KindConnector {
				continue
			}
			g.starts[sid] = e.positionOf(o)
		}
	case obj.Kind == domain.KindFrame:
		for _, mid := range e.membersOf(id) {
			o := e.objects[mid]
			if o.Kind == domain.KindConnector {
				continue
			}
			g.starts[mid] = e.positionOf(o)
		}
	}

	e.begin(g)
}

// MoveDrag moves every member of the drag by point - anchor from its start.
func (e *Engine) MoveDrag(ctx context.Context, id uuid.UUID, point domain.Point) {
	e.mu.Lock()
	g := e.current(gestureDrag, id)
	if g == nil {
		e.mu.Unlock()
		return
	}

	delta := point.Sub(g.anchor)
	var frames []Entry
	for _, mid := range g.memberIDs() {
		pos := g.starts[mid].Add(delta)
		e.positions.Set(mid, pos, ModeActive)
		if e.throttle.Allow(mid) {
			frames = append(frames, PatchEntry(mid, domain.Patch{}, domain.Patch{Position: &pos}))
		}
	}
	if g.connector != nil {
		geom := g.connector.Translate(delta)
		e.connectors.Set(id, geom, ModeActive)
		if e.throttle.Allow(id) {
			frames = append(frames, PatchEntry(id, domain.Patch{}, domain.Patch{Connector: &geom}))
		}
	}
	st := e.stage(frames, commitOptions{})
	e.mu.Unlock()

	e.publish(ctx, st)
}

// EndDrag settles the drag at point. Every member gets a pending override and
// one committed write; containment is re-resolved for each non-frame member
// and folded into its write. The whole drag is one undoable step.
func (e *Engine) EndDrag(ctx context.Context, id uuid.UUID, point domain.Point, label string) error {
	e.mu.Lock()
	g := e.current(gestureDrag, id)
	if g == nil {
		e.mu.Unlock()
		return nil
	}
	e.gesture = nil

	delta := point.Sub(g.anchor)
	members := g.memberIDs()
	finals := make(map[uuid.UUID]domain.Point, len(members))
	for _, mid := range members {
		finals[mid] = g.starts[mid].Add(delta)
		e.positions.Set(mid, finals[mid], ModePending)
	}

	entries := make([]Entry, 0, len(members)+1)
	for _, mid := range members {
		start, final := g.starts[mid], finals[mid]
		before := domain.Patch{Position: &start}
		after := domain.Patch{Position: &final}
		if obj, ok := e.objects[mid]; ok {
			bounds := domain.Rect{Position: final, Size: e.sizeOf(obj)}
			if frameID := e.frameChange(obj, bounds); frameID != nil {
				after.FrameID = frameID
				before.FrameID = frameRef(obj.FrameID)
			}
		}
		entries = append(entries, PatchEntry(mid, before, after))
	}
	if g.connector != nil {
		start := g.connector.Clone()
		geom := g.connector.Translate(delta)
		e.connectors.Set(id, geom, ModePending)
		entries = append(entries, PatchEntry(id, domain.Patch{Connector: &start}, domain.Patch{Connector: &geom}))
	}

	st := e.stage(entries, commitOptions{recordHistory: true, logActivity: true, label: label})
	e.mu.Unlock()

	return e.send(ctx, st)
}

// BeginResize starts a resize of a positioned object.
func (e *Engine) BeginResize(id uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	obj, ok := e.lookup(id)
	if !ok || !obj.Kind.Positioned() {
		log.Debug().Str("object_id", id.String()).Msg("engine.Engine.BeginResize: unknown or unsized object")
		return
	}
	e.begin(&gesture{kind: gestureResize, primary: id, startRect: e.boundsOf(obj)})
}

// MoveResize shows id at rect while the resize is in progress.
func (e *Engine) MoveResize(ctx context.Context, id uuid.UUID, rect domain.Rect) {
	e.mu.Lock()
	if e.current(gestureResize, id) == nil {
		e.mu.Unlock()
		return
	}

	rect = clampRect(rect)
	e.positions.Set(id, rect.Position, ModeActive)
	e.sizes.Set(id, rect.Size, ModeActive)
	var frames []Entry
	if e.throttle.Allow(id) {
		frames = append(frames, PatchEntry(id, domain.Patch{}, domain.Patch{Position: &rect.Position, Size: &rect.Size}))
	}
	st := e.stage(frames, commitOptions{})
	e.mu.Unlock()

	e.publish(ctx, st)
}

// CommitResize settles the resize at rect as one undoable step.
func (e *Engine) CommitResize(ctx context.Context, id uuid.UUID, rect domain.Rect, label string) error {
	e.mu.Lock()
	g := e.current(gestureResize, id)
	if g == nil {
		e.mu.Unlock()
		return nil
	}
	e.gesture = nil

	rect = clampRect(rect)
	e.positions.Set(id, rect.Position, ModePending)
	e.sizes.Set(id, rect.Size, ModePending)

	start := g.startRect
	before := domain.Patch{Position: &start.Position, Size: &start.Size}
	after := domain.Patch{Position: &rect.Position, Size: &rect.Size}
	if obj, ok := e.objects[id]; ok {
		if frameID := e.frameChange(obj, rect); frameID != nil {
			after.FrameID = frameID
			before.FrameID = frameRef(obj.FrameID)
		}
	}

	st := e.stage([]Entry{PatchEntry(id, before, after)}, commitOptions{recordHistory: true, logActivity: true, label: label})
	e.mu.Unlock()

	return e.send(ctx, st)
}

func clampRect(r domain.Rect) domain.Rect {
	r.Size.Width = math.Max(r.Size.Width, MinObjectSize)
	r.Size.Height = math.Max(r.Size.Height, MinObjectSize)
	return r
}

// BeginRotate starts a free rotation of id driven by a pointer circling the
// object's center.
func (e *Engine) BeginRotate(id uuid.UUID, pointer domain.Point) {
	e.mu.Lock()
	defer e.mu.Unlock()

	obj, ok := e.lookup(id)
	if !ok || !obj.Kind.Positioned() {
		log.Debug().Str("object_id", id.String()).Msg("engine.Engine.BeginRotate: unknown or unrotatable object")
		return
	}
	rect := e.boundsOf(obj)
	e.begin(&gesture{
		kind:          gestureRotate,
		primary:       id,
		anchor:        pointer,
		startRect:     rect,
		startRotation: e.rotationOf(obj),
		startAngle:    pointerAngle(rect.Center(), pointer),
	})
}

func (g *gesture) rotationAt(pointer domain.Point) float64 {
	turned := pointerAngle(g.startRect.Center(), pointer) - g.startAngle
	return domain.NormalizeRotation(g.startRotation + turned)
}

// MoveRotate shows id rotated to follow pointer.
func (e *Engine) MoveRotate(ctx context.Context, id uuid.UUID, pointer domain.Point) {
	e.mu.Lock()
	g := e.current(gestureRotate, id)
	if g == nil {
		e.mu.Unlock()
		return
	}

	r := g.rotationAt(pointer)
	e.rotations.Set(id, r, ModeActive)
	var frames []Entry
	if e.throttle.Allow(id) {
		frames = append(frames, PatchEntry(id, domain.Patch{}, domain.Patch{Rotation: &r}))
	}
	st := e.stage(frames, commitOptions{})
	e.mu.Unlock()

	e.publish(ctx, st)
}

// EndRotate settles the rotation at pointer as one undoable step.
func (e *Engine) EndRotate(ctx context.Context, id uuid.UUID, pointer domain.Point, label string) error {
	e.mu.Lock()
	g := e.current(gestureRotate, id)
	if g == nil {
		e.mu.Unlock()
		return nil
	}
	e.gesture = nil

	r := g.rotationAt(pointer)
	start := g.startRotation
	e.rotations.Set(id, r, ModePending)

	st := e.stage([]Entry{PatchEntry(id, domain.Patch{Rotation: &start}, domain.Patch{Rotation: &r})},
		commitOptions{recordHistory: true, logActivity: true, label: label})
	e.mu.Unlock()

	return e.send(ctx, st)
}

// RotateSelection turns every selected non-connector object by one rotate
// step; direction's sign picks clockwise (positive) or counter-clockwise.
// The whole selection turns as one undoable step.
func (e *Engine) RotateSelection(ctx context.Context, direction int, label string) error {
	e.mu.Lock()

	step := e.cfg.RotateStep
	switch {
	case direction < 0:
		step = -step
	case direction == 0:
		e.mu.Unlock()
		return nil
	}

	var entries []Entry
	for _, id := range e.selectedIDs() {
		obj := e.objects[id]
		if obj.Kind == domain.KindConnector {
			continue
		}
		start := e.rotationOf(obj)
		r := domain.NormalizeRotation(start + step)
		e.rotations.Set(id, r, ModePending)
		entries = append(entries, PatchEntry(id, domain.Patch{Rotation: &start}, domain.Patch{Rotation: &r}))
	}
	if len(entries) == 0 {
		e.mu.Unlock()
		return nil
	}

	st := e.stage(entries, commitOptions{recordHistory: true, logActivity: true, label: label})
	e.mu.Unlock()

	return e.send(ctx, st)
}

// pointerAngle returns the angle of p around center in degrees, clockwise
// from the positive x axis in screen coordinates.
func pointerAngle(center, p domain.Point) float64 {
	return math.Atan2(p.Y-center.Y, p.X-center.X) * 180 / math.Pi
}

// BeginEndpoint starts moving one end of connector id.
func (e *Engine) BeginEndpoint(id uuid.UUID, end ConnectorEnd) {
	e.mu.Lock()
	defer e.mu.Unlock()

	obj, ok := e.lookup(id)
	if !ok || obj.Kind != domain.KindConnector {
		log.Debug().Str("object_id", id.String()).Msg("engine.Engine.BeginEndpoint: unknown object or not a connector")
		return
	}
	geom, ok := e.connectorOf(obj)
	if !ok {
		return
	}
	if end != EndEnd {
		end = EndStart
	}
	e.begin(&gesture{kind: gestureEndpoint, primary: id, connector: &geom, end: end})
}

// endpointGeometry places the moving end at point, or at the bound object's
// anchor when binding names an object on the board.
func (e *Engine) endpointGeometry(g *gesture, point domain.Point, binding *Binding) domain.ConnectorGeometry {
	geom := g.connector.Clone()

	var boundID *uuid.UUID
	var anchor domain.Anchor
	if binding != nil && binding.ObjectID != g.primary {
		if target, ok := e.objects[binding.ObjectID]; ok && target.Kind.Positioned() {
			anchor = binding.Anchor
			if !anchor.Valid() {
				anchor = domain.AnchorCenter
			}
			point = e.boundsOf(target).Anchor(anchor)
			id := target.ID
			boundID = &id
		}
	}

	if g.end == EndEnd {
		geom.End, geom.ToObjectID, geom.ToAnchor = point, boundID, anchor
	} else {
		geom.Start, geom.FromObjectID, geom.FromAnchor = point, boundID, anchor
	}
	return geom
}

// MoveEndpoint shows the edited end at point, snapped to binding if given.
func (e *Engine) MoveEndpoint(ctx context.Context, id uuid.UUID, point domain.Point, binding *Binding) {
	e.mu.Lock()
	g := e.current(gestureEndpoint, id)
	if g == nil {
		e.mu.Unlock()
		return
	}

	geom := e.endpointGeometry(g, point, binding)
	e.connectors.Set(id, geom, ModeActive)
	var frames []Entry
	if e.throttle.Allow(id) {
		frames = append(frames, PatchEntry(id, domain.Patch{}, domain.Patch{Connector: &geom}))
	}
	st := e.stage(frames, commitOptions{})
	e.mu.Unlock()

	e.publish(ctx, st)
}

// EndEndpoint settles the edited end as one undoable step. Endpoints and
// bindings commit together.
func (e *Engine) EndEndpoint(ctx context.Context, id uuid.UUID, point domain.Point, binding *Binding, label string) error {
	e.mu.Lock()
	g := e.current(gestureEndpoint, id)
	if g == nil {
		e.mu.Unlock()
		return nil
	}
	e.gesture = nil

	start := g.connector.Clone()
	geom := e.endpointGeometry(g, point, binding)
	e.connectors.Set(id, geom, ModePending)

	st := e.stage([]Entry{PatchEntry(id, domain.Patch{Connector: &start}, domain.Patch{Connector: &geom})},
		commitOptions{recordHistory: true, logActivity: true, label: label})
	e.mu.Unlock()

	return e.send(ctx, st)
}
