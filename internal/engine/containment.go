package engine

import (
	"github.com/google/uuid"

	"github.com/gosuda/canvas/internal/domain"
)

// FrameCandidate is a frame considered by ResolveFrame.
type FrameCandidate struct {
	ID     uuid.UUID
	Bounds domain.Rect
	ZIndex int
}

// ResolveFrame returns the frame that fully contains bounds, or nil. The
// object itself is never its own frame. When several frames contain it the
// topmost (highest ZIndex) wins; equal ZIndex falls back to the smaller frame
// and then to the lower id so the result is deterministic.
func ResolveFrame(frames []FrameCandidate, objectID uuid.UUID, bounds domain.Rect) *uuid.UUID {
	var best *FrameCandidate
	for i := range frames {
		f := &frames[i]
		if f.ID == objectID || !f.Bounds.Contains(bounds) {
			continue
		}
		if best == nil || frameAbove(f, best) {
			best = f
		}
	}
	if best == nil {
		return nil
	}
	id := best.ID
	return &id
}

func frameAbove(a, b *FrameCandidate) bool {
	if a.ZIndex != b.ZIndex {
		return a.ZIndex > b.ZIndex
	}
	if a.Bounds.Area() != b.Bounds.Area() {
		return a.Bounds.Area() < b.Bounds.Area()
	}
	return a.ID.String() < b.ID.String()
}
