package api

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/tagyard/tagyard-server/internal/auth"
	"github.com/tagyard/tagyard-server/internal/domain"
	domainerrors "github.com/tagyard/tagyard-server/internal/errors"
)

// ctxKey is the type for context keys to avoid collisions.
type ctxKey string

// actorKey is the context key for the authenticated actor.
const actorKey ctxKey = "actor"

// ActorFrom returns the authenticated actor stored in ctx.
func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(domain.Actor)
	return actor, ok && actor.UserID != ""
}

// RequireActor returns the authenticated actor or a 401 error.
func RequireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFrom(ctx)
	if !ok {
		return domain.Actor{}, domainerrors.Unauthorized("Authentication required")
	}
	return actor, nil
}

func withActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// authMiddleware validates Bearer tokens and stores the actor in context.
// Requests without a valid token continue anonymously; handlers call
// RequireActor when they need one.
func authMiddleware(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok || tokens == nil {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := tokens.Verify(token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := withActor(r.Context(), claims.Actor(clientIP(r)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// identify resolves the stream subscriber for the SSE handler.
func identify(r *http.Request) (userID string, isModerator bool, ok bool) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		return "", false, false
	}
	return actor.UserID, actor.IsModerator(), true
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

// clientIP strips the port from RemoteAddr, which RealIP has already rewritten
// from forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
