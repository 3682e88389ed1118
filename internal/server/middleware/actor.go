package middleware

import (
	"context"
	"net/http"
	"strings"
	"unicode/utf8"
)

const (
	ActorHeader = "X-Canvas-Actor"
	// ActorQuery is read when the header is absent. Browsers cannot set
	// headers on a websocket handshake.
	ActorQuery = "actor"
	// LocalActor is assumed for anonymous requests on a self-hosted server.
	LocalActor = "local"

	maxActorLen = 128
)

// Actor identifies the user behind a request and stores it in the context.
// Without an identity the request is rejected unless selfHosted is set, in
// which case it runs as LocalActor.
func Actor(selfHosted bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := extractActor(r)
			switch {
			case actor == "" && selfHosted:
				actor = LocalActor
			case actor == "":
				http.Error(w, `{"title":"Unauthorized","status":401,"detail":"missing actor"}`, http.StatusUnauthorized)
				return
			case utf8.RuneCountInString(actor) > maxActorLen:
				http.Error(w, `{"title":"Bad Request","status":400,"detail":"actor too long"}`, http.StatusBadRequest)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyActor, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractActor(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(ActorHeader)); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get(ActorQuery))
}
