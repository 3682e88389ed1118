package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/canvas/internal/domain"
)

// ReconcileStats counts what one snapshot did to the override maps.
type ReconcileStats struct {
	Kept      int
	Dropped   int
	Expired   int
	Demoted   int
	Malformed int
}

func (s *ReconcileStats) add(o ReconcileStats) {
	s.Kept += o.Kept
	s.Dropped += o.Dropped
	s.Expired += o.Expired
	s.Demoted += o.Demoted
	s.Malformed += o.Malformed
}

// matchFunc reports whether the snapshot has caught up with an override value.
type matchFunc[T any] func(value T, obj *domain.BoardObject) bool

// reconcile runs one pass over a single override map against an indexed
// snapshot. owned reports whether the current local gesture drives id.
func reconcile[T any](
	s *OverrideStore[T],
	index map[uuid.UUID]*domain.BoardObject,
	matches matchFunc[T],
	owned func(uuid.UUID) bool,
	now time.Time,
	timeout time.Duration,
) ReconcileStats {
	var stats ReconcileStats
	for _, id := range s.IDs() {
		ov, _ := s.Get(id)
		obj, exists := index[id]

		switch {
		case !exists:
			s.Clear(id)
			stats.Dropped++
		case matches(ov.Value, obj):
			s.Clear(id)
			stats.Dropped++
		case ov.Mode == ModePending && now.Sub(ov.UpdatedAt) > timeout:
			s.Clear(id)
			stats.Expired++
		case ov.Mode == ModeActive && !owned(id):
			s.Demote(id)
			stats.Demoted++
		default:
			stats.Kept++
		}
	}
	return stats
}

// expire drops pending overrides older than timeout. It is the timeout half
// of reconcile, run when no snapshot has arrived for a while.
func expire[T any](s *OverrideStore[T], now time.Time, timeout time.Duration) int {
	n := 0
	for _, id := range s.IDs() {
		ov, _ := s.Get(id)
		if ov.Mode == ModePending && now.Sub(ov.UpdatedAt) > timeout {
			s.Clear(id)
			n++
		}
	}
	return n
}
