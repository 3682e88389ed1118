package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/canvas/internal/domain"
	redisstore "github.com/gosuda/canvas/internal/store/redis"
)

// ErrSubscriptionClosed is returned by Subscribe when the notice stream ends
// before ctx does.
var ErrSubscriptionClosed = errors.New("docstore: subscription closed") //nolint:gochecknoglobals // sentinel error

// Subscribe delivers full snapshots of boardID to fn until ctx is done: one
// right away, then one after every burst of change notices. Notices that
// arrive while a reload is running fold into the next reload. fn runs on the
// calling goroutine.
func (s *Store) Subscribe(ctx context.Context, boardID uuid.UUID, fn func([]domain.BoardObject)) error {
	// Subscribe before the first load so no write can slip between them.
	notices, cleanup, err := s.pubsub.Subscribe(ctx, redisstore.BoardChannel(boardID))
	if err != nil {
		return fmt.Errorf("docstore.Store.Subscribe: %w", err)
	}
	defer cleanup()

	snapshot, err := s.List(ctx, boardID)
	if err != nil {
		return fmt.Errorf("docstore.Store.Subscribe: initial load: %w", err)
	}
	fn(snapshot)

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-notices:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("docstore.Store.Subscribe: %w", ErrSubscriptionClosed)
			}
		}

		drain(notices)

		snapshot, err := s.List(ctx, boardID)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// The next notice retries.
			log.Warn().Err(err).Str("board_id", boardID.String()).Msg("docstore.Store.Subscribe: reload failed")
			continue
		}
		fn(snapshot)
	}
}

// drain discards notices already queued.
func drain(ch <-chan []byte) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
