package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gosuda/canvas/internal/docstore"
	"github.com/gosuda/canvas/internal/engine"
	"github.com/gosuda/canvas/internal/server/middleware"
	"github.com/gosuda/canvas/internal/session"
	redisstore "github.com/gosuda/canvas/internal/store/redis"
)

// SessionConfig tunes the sessions started by ServeSession.
type SessionConfig struct {
	Engine engine.Config
	// ExpireEvery is how often a session sweeps stale pending overrides.
	ExpireEvery time.Duration
	// OriginPatterns are passed to websocket.Accept. Empty accepts only
	// same-origin handshakes.
	OriginPatterns []string
}

// Hub manages WebSocket connections backed by Redis pub/sub.
type Hub struct {
	pubsub   docstore.PubSub
	store    *docstore.Store
	activity engine.ActivityRecorder
	cfg      SessionConfig
}

// NewHub creates a new WebSocket hub. activity may be nil.
func NewHub(pubsub docstore.PubSub, store *docstore.Store, activity engine.ActivityRecorder, cfg SessionConfig) *Hub {
	return &Hub{pubsub: pubsub, store: store, activity: activity, cfg: cfg}
}

func (h *Hub) accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.cfg.OriginPatterns})
}

func boardIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	boardID, err := uuid.Parse(chi.URLParam(r, "boardID"))
	if err != nil {
		http.Error(w, "invalid board id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return boardID, true
}

// ServeBoard handles WebSocket connections for raw board change notices.
// Subscribes to Redis channel "board:<boardID>" and forwards every notice
// as a text message.
func (h *Hub) ServeBoard(w http.ResponseWriter, r *http.Request) {
	boardID, ok := boardIDParam(w, r)
	if !ok {
		return
	}

	conn, err := h.accept(w, r)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	// Notices flow one way; CloseRead handles pings and cancels ctx when
	// the client goes away.
	ctx := conn.CloseRead(r.Context())

	messages, cleanup, err := h.pubsub.Subscribe(ctx, redisstore.BoardChannel(boardID))
	if err != nil {
		log.Error().Err(err).Msg("websocket subscribe")
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case msg, msgOK := <-messages:
			if !msgOK {
				_ = conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}
			if writeErr := conn.Write(ctx, websocket.MessageText, msg); writeErr != nil {
				log.Debug().Err(writeErr).Msg("websocket write")
				return
			}
		}
	}
}

// ServeSession runs an interactive board session over the connection. The
// actor comes from the Actor middleware.
func (h *Hub) ServeSession(w http.ResponseWriter, r *http.Request) {
	boardID, ok := boardIDParam(w, r)
	if !ok {
		return
	}
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor", http.StatusUnauthorized)
		return
	}

	conn, err := h.accept(w, r)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	s := session.New(boardID, actor, h.store.Writer(actor), h.activity, h.cfg.Engine)

	log.Info().Str("board_id", boardID.String()).Str("actor", actor).Msg("ws.Hub.ServeSession: session started")

	err = s.Run(r.Context(), newSocket(conn), h.store, h.cfg.ExpireEvery)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		_ = conn.Close(websocket.StatusNormalClosure, "session closed")
	case websocket.CloseStatus(err) != -1:
		// The client closed the connection.
	default:
		log.Warn().Err(err).Str("board_id", boardID.String()).Str("actor", actor).Msg("ws.Hub.ServeSession: session ended")
		_ = conn.Close(websocket.StatusInternalError, "session failed")
	}
}
