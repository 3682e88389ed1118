// Package session runs one user's board engine behind a JSON command stream.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/gosuda/canvas/internal/domain"
	"github.com/gosuda/canvas/internal/engine"
)

var (
	ErrUnknownCommand = errors.New("session: unknown command") //nolint:gochecknoglobals // sentinel error
	ErrBadCommand     = errors.New("session: malformed command") //nolint:gochecknoglobals // sentinel error
)

// Conn is a bidirectional message stream. The ws package adapts a
// websocket connection to it.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, payload []byte) error
}

// Feed delivers board snapshots. *docstore.Store satisfies this interface.
type Feed interface {
	Subscribe(ctx context.Context, boardID uuid.UUID, fn func([]domain.BoardObject)) error
}

type Session struct {
	engine  *engine.Engine
	changed chan struct{}
}

// New creates a session for actor on boardID. cfg.OnChange is replaced.
func New(boardID uuid.UUID, actor string, store engine.DocumentStore, activity engine.ActivityRecorder, cfg engine.Config) *Session {
	s := &Session{changed: make(chan struct{}, 1)}
	cfg.OnChange = s.notify
	s.engine = engine.New(boardID, actor, store, activity, cfg)
	return s
}

func (s *Session) Engine() *engine.Engine { return s.engine }

// notify runs under the engine lock, so it only flags the change.
func (s *Session) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Changed fires at least once after any change to the resolved view.
func (s *Session) Changed() <-chan struct{} { return s.changed }

// View renders the current resolved board.
func (s *Session) View() Message {
	return Message{
		Type:      MsgView,
		Objects:   s.engine.View(),
		Selection: s.engine.Selection(),
		CanUndo:   s.engine.CanUndo(),
		CanRedo:   s.engine.CanRedo(),
	}
}

// Handle decodes and runs one command and returns the reply. Commit
// failures are reported in an error message, never as a Go error; the
// session stays usable.
func (s *Session) Handle(ctx context.Context, raw []byte) Message {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Message{Type: MsgError, Error: fmt.Errorf("%w: %w", ErrBadCommand, err).Error()}
	}

	reply := Message{Type: MsgAck, Seq: cmd.Seq}
	created, err := s.dispatch(ctx, cmd)
	if err != nil {
		log.Debug().Err(err).Str("command", string(cmd.Type)).Msg("session.Session.Handle")
		return Message{Type: MsgError, Seq: cmd.Seq, Error: err.Error()}
	}
	reply.Created = created
	return reply
}

func (s *Session) dispatch(ctx context.Context, cmd Command) (*domain.BoardObject, error) {
	e := s.engine
	switch cmd.Type {
	case CmdSelect:
		e.Select(cmd.IDs)

	case CmdDragBegin:
		p, err := needPoint(cmd)
		if err != nil {
			return nil, err
		}
		e.BeginDrag(cmd.ID, p)
	case CmdDragMove:
		p, err := needPoint(cmd)
		if err != nil {
			return nil, err
		}
		e.MoveDrag(ctx, cmd.ID, p)
	case CmdDragEnd:
		p, err := needPoint(cmd)
		if err != nil {
			return nil, err
		}
		return nil, e.EndDrag(ctx, cmd.ID, p, labelOr(cmd, "Move"))

	case CmdResizeBegin:
		e.BeginResize(cmd.ID)
	case CmdResizeMove:
		r, err := needRect(cmd)
		if err != nil {
			return nil, err
		}
		e.MoveResize(ctx, cmd.ID, r)
	case CmdResizeEnd:
		r, err := needRect(cmd)
		if err != nil {
			return nil, err
		}
		return nil, e.CommitResize(ctx, cmd.ID, r, labelOr(cmd, "Resize"))

	case CmdRotateBegin:
		p, err := needPoint(cmd)
		if err != nil {
			return nil, err
		}
		e.BeginRotate(cmd.ID, p)
	case CmdRotateMove:
		p, err := needPoint(cmd)
		if err != nil {
			return nil, err
		}
		e.MoveRotate(ctx, cmd.ID, p)
	case CmdRotateEnd:
		p, err := needPoint(cmd)
		if err != nil {
			return nil, err
		}
		return nil, e.EndRotate(ctx, cmd.ID, p, labelOr(cmd, "Rotate"))
	case CmdRotateStep:
		return nil, e.RotateSelection(ctx, cmd.Direction, labelOr(cmd, "Rotate"))

	case CmdEndpointBegin:
		e.BeginEndpoint(cmd.ID, cmd.End)
	case CmdEndpointMove:
		p, err := needPoint(cmd)
		if err != nil {
			return nil, err
		}
		e.MoveEndpoint(ctx, cmd.ID, p, cmd.Binding)
	case CmdEndpointEnd:
		p, err := needPoint(cmd)
		if err != nil {
			return nil, err
		}
		return nil, e.EndEndpoint(ctx, cmd.ID, p, cmd.Binding, labelOr(cmd, "Connect"))

	case CmdCreate:
		if cmd.Object == nil {
			return nil, fmt.Errorf("%w: create needs object", ErrBadCommand)
		}
		o, err := e.CreateObject(ctx, *cmd.Object, labelOr(cmd, "Create"))
		if err != nil {
			return nil, err
		}
		return &o, nil
	case CmdUpdate:
		if cmd.Patch == nil {
			return nil, fmt.Errorf("%w: update needs patch", ErrBadCommand)
		}
		return nil, e.UpdateObject(ctx, cmd.ID, *cmd.Patch, labelOr(cmd, "Edit"))
	case CmdDelete:
		ids := cmd.IDs
		if len(ids) == 0 && cmd.ID != uuid.Nil {
			ids = []uuid.UUID{cmd.ID}
		}
		return nil, e.DeleteObjects(ctx, ids, labelOr(cmd, "Delete"))

	case CmdUndo:
		return nil, e.Undo(ctx)
	case CmdRedo:
		return nil, e.Redo(ctx)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	return nil, nil
}

func needPoint(cmd Command) (domain.Point, error) {
	if cmd.Point == nil {
		return domain.Point{}, fmt.Errorf("%w: %s needs point", ErrBadCommand, cmd.Type)
	}
	return *cmd.Point, nil
}

func needRect(cmd Command) (domain.Rect, error) {
	if cmd.Rect == nil {
		return domain.Rect{}, fmt.Errorf("%w: %s needs rect", ErrBadCommand, cmd.Type)
	}
	return *cmd.Rect, nil
}

func labelOr(cmd Command, fallback string) string {
	if cmd.Label != "" {
		return cmd.Label
	}
	return fallback
}

// Run serves the session over conn until ctx is done or conn fails. It feeds
// board snapshots into the engine, answers every command, pushes the
// resolved view after changes, and sweeps stale pending overrides every
// expireEvery.
func (s *Session) Run(ctx context.Context, conn Conn, feed Feed, expireEvery time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	replies := make(chan Message, 16)

	g.Go(func() error {
		err := feed.Subscribe(ctx, s.engine.BoardID(), func(objs []domain.BoardObject) {
			s.engine.ApplySnapshot(objs)
		})
		if err != nil {
			return fmt.Errorf("session.Session.Run: feed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		for {
			raw, err := conn.Read(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("session.Session.Run: read: %w", err)
			}
			reply := s.Handle(ctx, raw)
			select {
			case replies <- reply:
			case <-ctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		if expireEvery <= 0 {
			expireEvery = time.Second
		}
		ticker := time.NewTicker(expireEvery)
		defer ticker.Stop()

		for {
			var msg Message
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := s.engine.ExpirePending(); n > 0 {
					log.Debug().Int("expired", n).Str("board_id", s.engine.BoardID().String()).Msg("session.Session.Run: pending overrides expired")
				}
				continue
			case reply := <-replies:
				msg = reply
			case <-s.changed:
				msg = s.View()
			}

			payload, err := json.Marshal(msg)
			if err != nil {
				return fmt.Errorf("session.Session.Run: marshal: %w", err)
			}
			if err := conn.Write(ctx, payload); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("session.Session.Run: write: %w", err)
			}
		}
	})

	return g.Wait()
}
