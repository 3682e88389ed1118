package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/canvas/internal/api/v1"
	"github.com/gosuda/canvas/internal/api/ws"
	"github.com/gosuda/canvas/internal/docstore"
	"github.com/gosuda/canvas/internal/store/postgres"
)

func registerAPIRoutes(api huma.API, docs *docstore.Store, store *postgres.Store) {
	v1.RegisterObjectRoutes(api, docs, store.Activity())
	v1.RegisterActivityRoutes(api, store.Activity())
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/board/{boardID}", hub.ServeBoard)
	r.Get("/session/{boardID}", hub.ServeSession)
}
