// Package docstore is the remote document store seen by board sessions. It
// persists objects through an ObjectRepository and announces every committed
// write on the board's pub/sub channel so that subscribers reload.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/canvas/internal/domain"
	redisstore "github.com/gosuda/canvas/internal/store/redis"
)

// PubSub is the notice transport. *redis.PubSub satisfies this interface.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

type NoticeKind string

const (
	NoticeCreated NoticeKind = "created"
	NoticePatched NoticeKind = "patched"
	NoticeDeleted NoticeKind = "deleted"
)

// Notice announces one committed write. It carries no object state;
// subscribers reload the whole board.
type Notice struct {
	Kind     NoticeKind `json:"kind"`
	BoardID  uuid.UUID  `json:"board_id"`
	ObjectID uuid.UUID  `json:"object_id"`
	Version  int64      `json:"version"`
	Actor    string     `json:"actor"`
	At       time.Time  `json:"at"`
}

type Store struct {
	objects domain.ObjectRepository
	pubsub  PubSub
}

func New(objects domain.ObjectRepository, pubsub PubSub) *Store {
	return &Store{objects: objects, pubsub: pubsub}
}

// List returns every object on a board.
func (s *Store) List(ctx context.Context, boardID uuid.UUID) ([]domain.BoardObject, error) {
	objs, err := s.objects.ListByBoard(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("docstore.Store.List: %w", err)
	}
	out := make([]domain.BoardObject, 0, len(objs))
	for _, o := range objs {
		out = append(out, *o)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*domain.BoardObject, error) {
	o, err := s.objects.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("docstore.Store.Get: %w", err)
	}
	return o, nil
}

func (s *Store) Create(ctx context.Context, o *domain.BoardObject, actor string) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("docstore.Store.Create: %w", err)
	}
	o.UpdatedBy = actor
	if err := s.objects.Create(ctx, o); err != nil {
		return fmt.Errorf("docstore.Store.Create: %w", err)
	}
	s.announce(ctx, NoticeCreated, o, actor)
	return nil
}

// Patch merges p into the stored object. The write always succeeds against
// an existing object; expectedVersion only moves the new version forward.
func (s *Store) Patch(ctx context.Context, id uuid.UUID, p domain.Patch, expectedVersion int64, actor string) (*domain.BoardObject, error) {
	if p.IsEmpty() {
		return s.Get(ctx, id)
	}
	o, err := s.objects.Patch(ctx, id, p, expectedVersion, actor)
	if err != nil {
		return nil, fmt.Errorf("docstore.Store.Patch: %w", err)
	}
	s.announce(ctx, NoticePatched, o, actor)
	return o, nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID, actor string) (*domain.BoardObject, error) {
	o, err := s.objects.Delete(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("docstore.Store.Delete: %w", err)
	}
	s.announce(ctx, NoticeDeleted, o, actor)
	return o, nil
}

// announce publishes a notice for a committed write. The write already
// happened, so a failed publish is logged and not returned.
func (s *Store) announce(ctx context.Context, kind NoticeKind, o *domain.BoardObject, actor string) {
	payload, err := json.Marshal(Notice{
		Kind:     kind,
		BoardID:  o.BoardID,
		ObjectID: o.ID,
		Version:  o.Version,
		Actor:    actor,
		At:       time.Now(),
	})
	if err != nil {
		log.Error().Err(err).Msg("docstore.Store.announce: marshal notice")
		return
	}
	if err := s.pubsub.Publish(ctx, redisstore.BoardChannel(o.BoardID), payload); err != nil {
		log.Warn().Err(err).
			Str("board_id", o.BoardID.String()).
			Str("object_id", o.ID.String()).
			Msg("docstore.Store.announce: publish failed")
	}
}

// Writer commits on behalf of one actor. It satisfies engine.DocumentStore.
type Writer struct {
	store *Store
	actor string
}

func (s *Store) Writer(actor string) *Writer {
	return &Writer{store: s, actor: actor}
}

func (w *Writer) CommitCreate(ctx context.Context, o domain.BoardObject) error {
	o = o.Clone()
	return w.store.Create(ctx, &o, w.actor)
}

func (w *Writer) CommitPatch(ctx context.Context, id uuid.UUID, p domain.Patch, expectedVersion int64) (int64, error) {
	o, err := w.store.Patch(ctx, id, p, expectedVersion, w.actor)
	if err != nil {
		return 0, err
	}
	return o.Version, nil
}

func (w *Writer) CommitDelete(ctx context.Context, id uuid.UUID) error {
	_, err := w.store.Delete(ctx, id, w.actor)
	return err
}
