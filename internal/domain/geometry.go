package domain

import "math"

// Point is a world-space coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Near reports whether p and q differ by at most epsilon on each axis.
func (p Point) Near(q Point, epsilon float64) bool {
	return math.Abs(p.X-q.X) <= epsilon && math.Abs(p.Y-q.Y) <= epsilon
}

func (p Point) finite() bool { return finite(p.X) && finite(p.Y) }

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Near reports whether s and t differ by at most epsilon in each dimension.
func (s Size) Near(t Size, epsilon float64) bool {
	return math.Abs(s.Width-t.Width) <= epsilon && math.Abs(s.Height-t.Height) <= epsilon
}

// Rect is an axis-aligned rectangle anchored at its top-left corner.
type Rect struct {
	Position Point `json:"position"`
	Size     Size  `json:"size"`
}

func (r Rect) Right() float64  { return r.Position.X + r.Size.Width }
func (r Rect) Bottom() float64 { return r.Position.Y + r.Size.Height }
func (r Rect) Area() float64   { return r.Size.Width * r.Size.Height }

func (r Rect) Center() Point {
	return Point{X: r.Position.X + r.Size.Width/2, Y: r.Position.Y + r.Size.Height/2}
}

// Contains reports whether inner lies entirely inside r. Shared edges count
// as inside.
func (r Rect) Contains(inner Rect) bool {
	return inner.Position.X >= r.Position.X &&
		inner.Position.Y >= r.Position.Y &&
		inner.Right() <= r.Right() &&
		inner.Bottom() <= r.Bottom()
}

// Anchor names an attachment point on an object's bounds.
type Anchor string

const (
	AnchorTop    Anchor = "top"
	AnchorBottom Anchor = "bottom"
	AnchorLeft   Anchor = "left"
	AnchorRight  Anchor = "right"
	AnchorCenter Anchor = "center"
)

func (a Anchor) Valid() bool {
	switch a {
	case AnchorTop, AnchorBottom, AnchorLeft, AnchorRight, AnchorCenter:
		return true
	default:
		return false
	}
}

// Anchor returns the world position of anchor a on r. Unknown anchors resolve
// to the center.
func (r Rect) Anchor(a Anchor) Point {
	c := r.Center()
	switch a {
	case AnchorTop:
		return Point{X: c.X, Y: r.Position.Y}
	case AnchorBottom:
		return Point{X: c.X, Y: r.Bottom()}
	case AnchorLeft:
		return Point{X: r.Position.X, Y: c.Y}
	case AnchorRight:
		return Point{X: r.Right(), Y: c.Y}
	default:
		return c
	}
}
