package api

import (
	"context"
	"net/http"
	"time"

	"github.com/qrdesk/qrdesk/pkg/domain"
)

type contextKey string

const sessionContextKey contextKey = "session"

// requestLogger logs incoming HTTP requests.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("remote", r.RemoteAddr).
			WithField("duration", time.Since(start)).
			Debug("Request handled")
	})
}

// requireAuth resolves the session cookie and injects the session into the
// request context.
func (s *server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{Error: "authentication required"})

			return
		}

		session, err := s.store.GetSessionByToken(r.Context(), cookie.Value)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{Error: "invalid or expired session"})

			return
		}

		if time.Now().UTC().After(session.ExpiresAt) {
			_ = s.store.DeleteSession(r.Context(), cookie.Value)
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{Error: "session expired"})

			return
		}

		// Client sessions die with their account's blocked flag.
		if domain.Role(session.Role) == domain.RoleClient {
			acc, err := s.directory.FindByPhone(
				r.Context(), session.Phone, domain.RoleClient,
			)
			if err != nil || acc.Blocked {
				_ = s.store.DeleteSession(r.Context(), cookie.Value)
				writeJSON(w, http.StatusUnauthorized,
					errorResponse{Error: "session revoked"})

				return
			}
		}

		if session.LastActiveAt == nil ||
			time.Since(*session.LastActiveAt) > 5*time.Minute {
			go func() {
				if err := s.store.UpdateSessionLastActive(
					context.Background(), session.ID, time.Now().UTC(),
				); err != nil {
					s.log.WithError(err).
						Warn("Failed to update session last active")
				}
			}()
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, session.ToDomain())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole rejects sessions below min.
func (s *server) requireRole(min domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := domain.Authorize(sessionFromContext(r.Context()), min); err != nil {
				s.writeError(w, err)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// sessionFromContext extracts the authenticated session from the request
// context.
func sessionFromContext(ctx context.Context) *domain.Session {
	session, _ := ctx.Value(sessionContextKey).(*domain.Session)

	return session
}
