package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/TheOliver413/taskmanager-back/internal/config"
	"github.com/TheOliver413/taskmanager-back/internal/logger"
)

type actorCtxKey struct{}

// publicPaths are exempt from authentication.
var publicPaths = map[string]bool{
	"/health":       true,
	"/health/ready": true,
}

// Auth returns middleware that resolves the acting user id from a bearer
// token and stores it in the request context. When auth is disabled the
// configured default actor is injected instead.
func Auth(verifier *TokenVerifier, cfg config.Auth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), cfg.DefaultActorID)))
				return
			}

			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			var token string
			if r.URL.Path == "/ws" {
				// Browsers cannot set headers on a websocket handshake.
				token = r.URL.Query().Get("token")
			} else {
				header := r.Header.Get("Authorization")
				token = strings.TrimPrefix(header, "Bearer ")
				if header != "" && token == header {
					writeJSONError(w, http.StatusUnauthorized, "invalid authorization header")
					return
				}
			}
			if token == "" {
				writeJSONError(w, http.StatusUnauthorized, "authorization required")
				return
			}

			actorID, err := verifier.Verify(token)
			if err != nil {
				msg := ErrInvalidToken.Error()
				if errors.Is(err, ErrExpiredToken) {
					msg = ErrExpiredToken.Error()
				}
				writeJSONError(w, http.StatusUnauthorized, msg)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actorID)))
		})
	}
}

// WithActor stores the acting user id in ctx, for handlers and for logs.
func WithActor(ctx context.Context, actorID int64) context.Context {
	ctx = context.WithValue(ctx, actorCtxKey{}, actorID)
	return logger.WithActorID(ctx, actorID)
}

// ActorFromContext returns the acting user id, if authenticated.
func ActorFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(actorCtxKey{}).(int64)
	return id, ok && id > 0
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
