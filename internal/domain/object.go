package domain

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

type ObjectKind string

const (
	KindStickyNote ObjectKind = "sticky_note"
	KindShape      ObjectKind = "shape"
	KindFrame      ObjectKind = "frame"
	KindConnector  ObjectKind = "connector"
	KindText       ObjectKind = "text"
)

// Valid reports whether k is one of the known object kinds.
func (k ObjectKind) Valid() bool {
	switch k {
	case KindStickyNote, KindShape, KindFrame, KindConnector, KindText:
		return true
	default:
		return false
	}
}

// Positioned reports whether objects of this kind are placed by position/size.
// Connectors are placed by their endpoints instead.
func (k ObjectKind) Positioned() bool {
	return k.Valid() && k != KindConnector
}

// ConnectorGeometry bundles a connector's endpoints and bindings. The fields
// commit together so a connector never renders with one end updated and the
// other stale.
type ConnectorGeometry struct {
	Start        Point      `json:"start"`
	End          Point      `json:"end"`
	FromObjectID *uuid.UUID `json:"from_object_id,omitempty"`
	ToObjectID   *uuid.UUID `json:"to_object_id,omitempty"`
	FromAnchor   Anchor     `json:"from_anchor,omitempty"`
	ToAnchor     Anchor     `json:"to_anchor,omitempty"`
}

// Matches reports whether both endpoints are within epsilon of other's and
// the four binding fields are exactly equal.
func (g ConnectorGeometry) Matches(other ConnectorGeometry, epsilon float64) bool {
	return g.Start.Near(other.Start, epsilon) &&
		g.End.Near(other.End, epsilon) &&
		sameID(g.FromObjectID, other.FromObjectID) &&
		sameID(g.ToObjectID, other.ToObjectID) &&
		g.FromAnchor == other.FromAnchor &&
		g.ToAnchor == other.ToAnchor
}

// Translate moves both endpoints by delta and drops the bindings.
func (g ConnectorGeometry) Translate(delta Point) ConnectorGeometry {
	return ConnectorGeometry{
		Start: g.Start.Add(delta),
		End:   g.End.Add(delta),
	}
}

// Clone returns a copy that shares no pointers with g.
func (g ConnectorGeometry) Clone() ConnectorGeometry {
	g.FromObjectID = cloneID(g.FromObjectID)
	g.ToObjectID = cloneID(g.ToObjectID)
	return g
}

// BoardObject is one item on a board. FrameID is a back-reference to the
// enclosing frame; frames do not own their members.
type BoardObject struct {
	ID        uuid.UUID          `json:"id"`
	BoardID   uuid.UUID          `json:"board_id"`
	Kind      ObjectKind         `json:"kind"`
	Position  Point              `json:"position"`
	Size      Size               `json:"size"`
	Rotation  float64            `json:"rotation"`
	ZIndex    int                `json:"z_index"`
	FrameID   *uuid.UUID         `json:"frame_id,omitempty"`
	Connector *ConnectorGeometry `json:"connector,omitempty"`
	Text      string             `json:"text,omitempty"`
	Color     string             `json:"color,omitempty"`
	Version   int64              `json:"version"`
	UpdatedAt time.Time          `json:"updated_at"`
	UpdatedBy string             `json:"updated_by,omitempty"`
}

// Bounds returns the axis-aligned rectangle of a positioned object.
func (o *BoardObject) Bounds() Rect {
	return Rect{Position: o.Position, Size: o.Size}
}

// Clone returns a deep copy of o.
func (o BoardObject) Clone() BoardObject {
	o.FrameID = cloneID(o.FrameID)
	if o.Connector != nil {
		g := o.Connector.Clone()
		o.Connector = &g
	}
	return o
}

// Validate reports whether o carries every field required to render it.
func (o *BoardObject) Validate() error {
	if o.ID == uuid.Nil {
		return fmt.Errorf("object: id is required: %w", ErrInvalidObject)
	}
	if o.BoardID == uuid.Nil {
		return fmt.Errorf("object %s: board id is required: %w", o.ID, ErrInvalidObject)
	}
	if !o.Kind.Valid() {
		return fmt.Errorf("object %s: unknown kind %q: %w", o.ID, o.Kind, ErrInvalidObject)
	}
	if !finite(o.Rotation) {
		return fmt.Errorf("object %s: rotation is not finite: %w", o.ID, ErrInvalidObject)
	}

	if o.Kind == KindConnector {
		if o.Connector == nil {
			return fmt.Errorf("object %s: connector geometry is required: %w", o.ID, ErrInvalidObject)
		}
		if !o.Connector.Start.finite() || !o.Connector.End.finite() {
			return fmt.Errorf("object %s: connector endpoints are not finite: %w", o.ID, ErrInvalidObject)
		}
		return nil
	}

	if !o.Position.finite() || !finite(o.Size.Width) || !finite(o.Size.Height) {
		return fmt.Errorf("object %s: geometry is not finite: %w", o.ID, ErrInvalidObject)
	}
	if o.Size.Width < 0 || o.Size.Height < 0 {
		return fmt.Errorf("object %s: negative size: %w", o.ID, ErrInvalidObject)
	}
	return nil
}

// NormalizeRotation maps deg into [0, 360).
func NormalizeRotation(deg float64) float64 {
	r := math.Mod(deg, 360)
	if r < 0 {
		r += 360
	}
	if r >= 360 {
		r = 0
	}
	return r
}

// RotationNear reports whether two angles are within epsilon degrees,
// treating 359.9 and 0.1 as neighbours.
func RotationNear(a, b, epsilon float64) bool {
	d := math.Abs(NormalizeRotation(a) - NormalizeRotation(b))
	if d > 180 {
		d = 360 - d
	}
	return d <= epsilon
}

// ObjectRepository persists board objects. Patch merges the given fields and
// returns the new version; it never rejects a stale expectedVersion.
type ObjectRepository interface {
	Create(ctx context.Context, o *BoardObject) error
	GetByID(ctx context.Context, id uuid.UUID) (*BoardObject, error)
	ListByBoard(ctx context.Context, boardID uuid.UUID) ([]*BoardObject, error)
	Patch(ctx context.Context, id uuid.UUID, p Patch, expectedVersion int64, actor string) (*BoardObject, error)
	Delete(ctx context.Context, id uuid.UUID) (*BoardObject, error)
}

var errNoBoard = fmt.Errorf("object: board id is required: %w", ErrInvalidObject) //nolint:gochecknoglobals // sentinel error

// NewObject creates a BoardObject with a fresh id and validated fields.
func NewObject(boardID uuid.UUID, kind ObjectKind, rect Rect) (*BoardObject, error) {
	if boardID == uuid.Nil {
		return nil, errNoBoard
	}
	o := &BoardObject{
		ID:       uuid.New(),
		BoardID:  boardID,
		Kind:     kind,
		Position: rect.Position,
		Size:     rect.Size,
	}
	if kind == KindConnector {
		o.Position = Point{}
		o.Size = Size{}
		o.Connector = &ConnectorGeometry{
			Start: rect.Position,
			End:   rect.Position.Add(Point{X: rect.Size.Width, Y: rect.Size.Height}),
		}
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
