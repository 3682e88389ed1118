package engine

import (
	"time"

	"github.com/google/uuid"
)

// Mode is the lifecycle stage of a local override.
type Mode string

const (
	// ModeActive marks an override driven by a gesture in progress on this client.
	ModeActive Mode = "active"
	// ModePending marks an override whose gesture ended locally but whose
	// commit has not been observed in a snapshot yet.
	ModePending Mode = "pending"
)

// Override is a locally-known-better value that shadows the snapshot.
type Override[T any] struct {
	Value     T
	Mode      Mode
	UpdatedAt time.Time
}

// OverrideStore holds overrides of one field family keyed by object id.
// It performs no validation and is not safe for concurrent use; the engine
// serializes access.
type OverrideStore[T any] struct {
	entries  map[uuid.UUID]Override[T]
	now      func() time.Time
	onChange func()
}

func NewOverrideStore[T any](now func() time.Time, onChange func()) *OverrideStore[T] {
	if onChange == nil {
		onChange = func() {}
	}
	return &OverrideStore[T]{
		entries:  make(map[uuid.UUID]Override[T]),
		now:      now,
		onChange: onChange,
	}
}

func (s *OverrideStore[T]) Get(id uuid.UUID) (Override[T], bool) {
	ov, ok := s.entries[id]
	return ov, ok
}

// Set stores value for id in the given mode, stamped with the current time.
func (s *OverrideStore[T]) Set(id uuid.UUID, value T, mode Mode) {
	s.entries[id] = Override[T]{Value: value, Mode: mode, UpdatedAt: s.now()}
	s.onChange()
}

// Clear removes the override for id and reports whether one existed.
func (s *OverrideStore[T]) Clear(id uuid.UUID) bool {
	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	s.onChange()
	return true
}

// Demote turns an active override into a pending one with a fresh timestamp.
func (s *OverrideStore[T]) Demote(id uuid.UUID) bool {
	ov, ok := s.entries[id]
	if !ok || ov.Mode != ModeActive {
		return false
	}
	s.Set(id, ov.Value, ModePending)
	return true
}

func (s *OverrideStore[T]) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}

func (s *OverrideStore[T]) Len() int { return len(s.entries) }
