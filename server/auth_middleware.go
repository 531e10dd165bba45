package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/charger-dashboard/internal/errors"
	"github.com/jrsteele09/charger-dashboard/sessions"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeySession stores the authenticated *sessions.Session
const ContextKeySession ContextKey = "session"

// RequireSession rejects requests without an authenticated session and puts the session
// into the request context.
func (s *Server) RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := s.sessions.Load(r.Context(), r)
		if err != nil {
			if !isUnauthenticated(err) {
				log.Err(err).Msg("[RequireSession] failed to load session")
				writeError(w, http.StatusInternalServerError, "Failed to load session")
				return
			}
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeySession, session)
		next(w, r.WithContext(ctx))
	}
}

func isUnauthenticated(err error) bool {
	return errors.Is(err, errors.ErrNotAuthenticated) ||
		errors.Is(err, errors.ErrInvalidCookie) ||
		errors.Is(err, errors.ErrSessionNotFound) ||
		errors.Is(err, errors.ErrSessionExpired)
}

// sessionFrom returns the session stored by RequireSession.
func sessionFrom(ctx context.Context) *sessions.Session {
	session, _ := ctx.Value(ContextKeySession).(*sessions.Session)
	return session
}
