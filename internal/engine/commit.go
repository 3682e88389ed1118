package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/canvas/internal/domain"
)

// commitOptions selects the side effects of one commit. Intermediate gesture
// frames and history replays leave both off.
type commitOptions struct {
	recordHistory bool
	logActivity   bool
	label         string
}

// write is one store call prepared under the engine lock.
type write struct {
	kind     EntryKind
	id       uuid.UUID
	object   domain.BoardObject
	patch    domain.Patch
	expected int64
}

type staged struct {
	writes   []write
	activity *domain.ActivityEntry
}

// stage applies entries to local state and prepares the store writes. It must
// be called with e.mu held. Patches update the override maps as pending so
// the edit shows immediately; an active override is left alone because a
// gesture is still driving it. Deleted objects are hidden until a snapshot
// drops them. A zero-delta step is still recorded so that undo after a
// gesture always reverts that gesture.
func (e *Engine) stage(entries []Entry, opts commitOptions) staged {
	var st staged
	for _, en := range entries {
		switch en.Kind {
		case EntryCreate:
			delete(e.hidden, en.Object.ID)
			st.writes = append(st.writes, write{kind: EntryCreate, id: en.Object.ID, object: en.Object.Clone()})
		case EntryDelete:
			e.forget(en.ObjectID)
			e.hidden[en.ObjectID] = e.now()
			st.writes = append(st.writes, write{kind: EntryDelete, id: en.ObjectID})
		case EntryPatch:
			e.overlay(en.ObjectID, en.After)
			st.writes = append(st.writes, write{
				kind:     EntryPatch,
				id:       en.ObjectID,
				patch:    en.After,
				expected: e.versions[en.ObjectID],
			})
		}
	}

	if opts.recordHistory && len(entries) > 0 {
		e.history.Push(BatchEntry(opts.label, entries))
	}
	if opts.logActivity && e.activity != nil && len(entries) > 0 {
		st.activity = e.activityFor(entries, opts.label)
	}
	e.changed()
	return st
}

// send issues the staged writes in order. It must be called without e.mu
// held. A patch or delete against a document that no longer exists is a
// silent no-op; any other failure is returned after the remaining writes
// have been attempted. Local overrides are never rolled back.
func (e *Engine) send(ctx context.Context, st staged) error {
	var errs []error
	for _, w := range st.writes {
		var err error
		switch w.kind {
		case EntryCreate:
			err = e.store.CommitCreate(ctx, w.object)
		case EntryDelete:
			err = e.store.CommitDelete(ctx, w.id)
		case EntryPatch:
			var version int64
			version, err = e.store.CommitPatch(ctx, w.id, w.patch, w.expected)
			if err == nil {
				e.observeVersion(w.id, version)
			}
		}
		if errors.Is(err, domain.ErrNotFound) && w.kind != EntryCreate {
			log.Debug().Str("object_id", w.id.String()).Str("kind", string(w.kind)).Msg("engine.Engine.send: object vanished, write dropped")
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("engine.Engine.send: %s %s: %w", w.kind, w.id, err))
		}
	}

	if st.activity != nil && len(errs) == 0 {
		if err := e.activity.Record(ctx, st.activity); err != nil {
			log.Warn().Err(err).Str("board_id", e.boardID.String()).Msg("engine.Engine.send: failed to record activity")
		}
	}

	return errors.Join(errs...)
}

func (e *Engine) observeVersion(id uuid.UUID, version int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if version > e.versions[id] {
		e.versions[id] = version
	}
}

func (e *Engine) overlay(id uuid.UUID, p domain.Patch) {
	if p.Position != nil {
		setPending(e.positions, id, *p.Position)
	}
	if p.Size != nil {
		setPending(e.sizes, id, *p.Size)
	}
	if p.Rotation != nil {
		setPending(e.rotations, id, domain.NormalizeRotation(*p.Rotation))
	}
	if p.Connector != nil {
		setPending(e.connectors, id, p.Connector.Clone())
	}
}

func setPending[T any](s *OverrideStore[T], id uuid.UUID, v T) {
	if ov, ok := s.Get(id); ok && ov.Mode == ModeActive {
		return
	}
	s.Set(id, v, ModePending)
}

// forget drops every piece of local state held for a deleted object.
func (e *Engine) forget(id uuid.UUID) {
	e.positions.Clear(id)
	e.sizes.Clear(id)
	e.rotations.Clear(id)
	e.connectors.Clear(id)
	e.throttle.Forget(id)
	delete(e.selection, id)
	if e.gesture != nil && e.gesture.primary == id {
		e.gesture = nil
	}
}

func (e *Engine) activityFor(entries []Entry, label string) *domain.ActivityEntry {
	action := domain.ActivityUpdate
	creates := 0
	fields := map[string]bool{}
	ids := make([]uuid.UUID, 0, len(entries))
	for _, en := range entries {
		switch en.Kind {
		case EntryCreate:
			creates++
		case EntryDelete:
			action = domain.ActivityDelete
		case EntryPatch:
			for _, f := range en.After.Fields() {
				fields[f] = true
			}
		}
		ids = append(ids, en.ObjectID)
	}
	if creates == len(entries) {
		action = domain.ActivityCreate
	}

	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}

	return &domain.ActivityEntry{
		ID:        uuid.New(),
		BoardID:   e.boardID,
		Actor:     e.actor,
		Action:    action,
		Label:     label,
		ObjectIDs: ids,
		Details:   map[string]any{"fields": names, "count": len(entries)},
		CreatedAt: e.now(),
	}
}

// CreateObject commits a new object as one undoable step. A missing id or
// board id is filled in. A positioned object dropped inside a frame is
// attached to it.
func (e *Engine) CreateObject(ctx context.Context, o domain.BoardObject, label string) (domain.BoardObject, error) {
	e.mu.Lock()

	o = o.Clone()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.BoardID == uuid.Nil {
		o.BoardID = e.boardID
	}
	if o.BoardID != e.boardID {
		e.mu.Unlock()
		return domain.BoardObject{}, fmt.Errorf("engine.Engine.CreateObject: board %s: %w", o.BoardID, domain.ErrInvalidObject)
	}
	if err := o.Validate(); err != nil {
		e.mu.Unlock()
		return domain.BoardObject{}, fmt.Errorf("engine.Engine.CreateObject: %w", err)
	}
	o.Rotation = domain.NormalizeRotation(o.Rotation)
	if o.FrameID == nil && o.Kind.Positioned() && o.Kind != domain.KindFrame {
		o.FrameID = ResolveFrame(e.frameCandidates(), o.ID, o.Bounds())
	}
	o.UpdatedBy = e.actor
	o.UpdatedAt = e.now()

	st := e.stage([]Entry{CreateEntry(o)}, commitOptions{recordHistory: true, logActivity: true, label: label})
	e.mu.Unlock()

	return o, e.send(ctx, st)
}

// UpdateObject commits a field patch on one object as one undoable step. A
// position or size change re-resolves the enclosing frame unless the patch
// sets FrameID itself.
func (e *Engine) UpdateObject(ctx context.Context, id uuid.UUID, p domain.Patch, label string) error {
	e.mu.Lock()

	obj, ok := e.lookup(id)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("engine.Engine.UpdateObject: %s: %w", id, ErrUnknownObject)
	}
	if p.IsEmpty() {
		e.mu.Unlock()
		return nil
	}

	current := e.resolved(obj)
	after := p
	if (p.Position != nil || p.Size != nil) && p.FrameID == nil {
		next := p.Apply(current)
		after.FrameID = e.frameChange(obj, next.Bounds())
	}
	before := after.Capture(current)

	st := e.stage([]Entry{PatchEntry(id, before, after)}, commitOptions{recordHistory: true, logActivity: true, label: label})
	e.mu.Unlock()

	return e.send(ctx, st)
}

// DeleteObjects removes objects as one undoable step. Deleting a frame
// detaches its remaining members in the same step so undo restores both.
func (e *Engine) DeleteObjects(ctx context.Context, ids []uuid.UUID, label string) error {
	e.mu.Lock()

	doomed := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if _, ok := e.lookup(id); ok {
			doomed[id] = true
		}
	}
	if len(doomed) == 0 {
		e.mu.Unlock()
		return nil
	}
	ordered := make([]uuid.UUID, 0, len(doomed))
	for id := range doomed {
		ordered = append(ordered, id)
	}
	sortIDs(ordered)

	var detaches, deletes []Entry
	for _, id := range ordered {
		obj := e.objects[id]
		if obj.Kind == domain.KindFrame {
			for _, memberID := range e.membersOf(id) {
				if doomed[memberID] {
					continue
				}
				frameID := id
				detaches = append(detaches, PatchEntry(memberID,
					domain.Patch{FrameID: &frameID},
					domain.Patch{FrameID: frameRef(nil)},
				))
			}
		}
		deletes = append(deletes, DeleteEntry(e.resolved(obj)))
	}

	st := e.stage(append(detaches, deletes...), commitOptions{recordHistory: true, logActivity: true, label: label})
	e.mu.Unlock()

	return e.send(ctx, st)
}

// membersOf lists the objects whose FrameID points at frameID.
func (e *Engine) membersOf(frameID uuid.UUID) []uuid.UUID {
	var ids []uuid.UUID
	for _, o := range e.objects {
		if o.ID != frameID && o.FrameID != nil && *o.FrameID == frameID && !e.isHidden(o.ID) {
			ids = append(ids, o.ID)
		}
	}
	sortIDs(ids)
	return ids
}

// Undo reverts the latest step. It returns once the inverse writes have been
// issued. Replaying does not record history or activity.
func (e *Engine) Undo(ctx context.Context) error {
	e.mu.Lock()
	en, ok := e.history.Undo()
	if !ok {
		e.mu.Unlock()
		return nil
	}
	st := e.stage(en.Inverse().Flatten(), commitOptions{})
	e.mu.Unlock()

	if err := e.send(ctx, st); err != nil {
		return fmt.Errorf("engine.Engine.Undo: %w", err)
	}
	return nil
}

// Redo re-applies the latest undone step.
func (e *Engine) Redo(ctx context.Context) error {
	e.mu.Lock()
	en, ok := e.history.Redo()
	if !ok {
		e.mu.Unlock()
		return nil
	}
	st := e.stage(en.Flatten(), commitOptions{})
	e.mu.Unlock()

	if err := e.send(ctx, st); err != nil {
		return fmt.Errorf("engine.Engine.Redo: %w", err)
	}
	return nil
}
