package engine

import (
	"github.com/google/uuid"

	"github.com/gosuda/canvas/internal/domain"
)

// DefaultHistoryLimit caps the undo stack; the oldest entries fall off.
const DefaultHistoryLimit = 200

type EntryKind string

const (
	EntryCreate EntryKind = "create"
	EntryDelete EntryKind = "delete"
	EntryPatch  EntryKind = "patch"
	EntryBatch  EntryKind = "batch"
)

// Entry is one undoable step. Create and delete carry the full object so a
// delete can be restored faithfully; patch carries only the changed fields in
// both directions; batch groups entries that undo as a single step.
type Entry struct {
	Kind     EntryKind
	Label    string
	Object   domain.BoardObject
	ObjectID uuid.UUID
	Before   domain.Patch
	After    domain.Patch
	Entries  []Entry
}

func CreateEntry(o domain.BoardObject) Entry {
	return Entry{Kind: EntryCreate, Object: o.Clone(), ObjectID: o.ID}
}

func DeleteEntry(o domain.BoardObject) Entry {
	return Entry{Kind: EntryDelete, Object: o.Clone(), ObjectID: o.ID}
}

func PatchEntry(id uuid.UUID, before, after domain.Patch) Entry {
	return Entry{Kind: EntryPatch, ObjectID: id, Before: before, After: after}
}

// BatchEntry wraps entries into one step. A single entry is returned as is,
// carrying the label.
func BatchEntry(label string, entries []Entry) Entry {
	if len(entries) == 1 {
		e := entries[0]
		e.Label = label
		return e
	}
	return Entry{Kind: EntryBatch, Label: label, Entries: append([]Entry(nil), entries...)}
}

// Inverse returns the entry that undoes e.
func (e Entry) Inverse() Entry {
	switch e.Kind {
	case EntryCreate:
		inv := e
		inv.Kind = EntryDelete
		return inv
	case EntryDelete:
		inv := e
		inv.Kind = EntryCreate
		return inv
	case EntryPatch:
		inv := e
		inv.Before, inv.After = e.After, e.Before
		return inv
	case EntryBatch:
		children := make([]Entry, len(e.Entries))
		for i, child := range e.Entries {
			children[len(e.Entries)-1-i] = child.Inverse()
		}
		return Entry{Kind: EntryBatch, Label: e.Label, Entries: children}
	default:
		return e
	}
}

// Flatten expands nested batches into the ordered list of leaf entries.
func (e Entry) Flatten() []Entry {
	if e.Kind != EntryBatch {
		return []Entry{e}
	}
	var out []Entry
	for _, child := range e.Entries {
		out = append(out, child.Flatten()...)
	}
	return out
}

// History is a linear undo/redo log. Pushing a new entry clears the redo side.
type History struct {
	past   []Entry
	future []Entry
	limit  int
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

func (h *History) Push(e Entry) {
	h.past = append(h.past, e)
	if over := len(h.past) - h.limit; over > 0 {
		h.past = append([]Entry(nil), h.past[over:]...)
	}
	h.future = nil
}

// Undo moves the latest entry to the redo stack and returns it. The caller
// applies its inverse.
func (h *History) Undo() (Entry, bool) {
	if len(h.past) == 0 {
		return Entry{}, false
	}
	e := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.future = append(h.future, e)
	return e, true
}

// Redo moves the latest undone entry back to the undo stack and returns it.
// The caller applies it as is.
func (h *History) Redo() (Entry, bool) {
	if len(h.future) == 0 {
		return Entry{}, false
	}
	e := h.future[len(h.future)-1]
	h.future = h.future[:len(h.future)-1]
	h.past = append(h.past, e)
	return e, true
}

func (h *History) CanUndo() bool { return len(h.past) > 0 }
func (h *History) CanRedo() bool { return len(h.future) > 0 }
func (h *History) Len() int      { return len(h.past) }
