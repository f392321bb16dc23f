package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/qrdesk/qrdesk/pkg/auth"
	"github.com/qrdesk/qrdesk/pkg/config"
	"github.com/qrdesk/qrdesk/pkg/domain"
	"github.com/qrdesk/qrdesk/pkg/lockout"
	"github.com/qrdesk/qrdesk/pkg/store"
)

const (
	sessionTokenBytes = 32
	sessionCookieName = "qrdesk_session"
)

// generateSessionToken creates a cryptographically random session token.
func generateSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}

	return hex.EncodeToString(b), nil
}

type loginRequest struct {
	Role     string `json:"role"`
	Password string `json:"password,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

type loginResponse struct {
	Session   *domain.Session `json:"session"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// lockoutKey returns the lockout counter a request is charged against.
func (s *server) lockoutKey(r *http.Request) string {
	if s.cfg.Auth.Lockout.Scope == config.LockoutScopeClient {
		return s.clientIP(r)
	}

	return lockout.GlobalKey
}

// handleLogin resolves a role login and creates a session.
func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{Error: "invalid request body"})

		return
	}

	session, err := s.auth.Login(r.Context(), auth.Attempt{
		Key:      s.lockoutKey(r),
		Role:     domain.Role(strings.ToLower(strings.TrimSpace(req.Role))),
		Password: req.Password,
		Phone:    req.Phone,
	})
	if err != nil {
		s.writeError(w, err)

		return
	}

	token, err := generateSessionToken()
	if err != nil {
		s.writeError(w, err)

		return
	}

	ttl := s.cfg.Auth.SessionTTLDuration()
	expiresAt := time.Now().UTC().Add(ttl)

	if err := s.store.CreateSession(r.Context(), &store.Session{
		Token:     token,
		Role:      string(session.Role),
		Identity:  session.Identity,
		Phone:     session.Phone,
		ExpiresAt: expiresAt,
	}); err != nil {
		s.writeError(w, err)

		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		MaxAge:   int(ttl.Seconds()),
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Session:   session,
		ExpiresAt: expiresAt,
	})
}

// handleLogout destroys the current session. Lockout state is untouched.
func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil {
		_ = s.store.DeleteSession(r.Context(), cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMe returns the current session.
func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	session := sessionFromContext(r.Context())
	if session == nil {
		writeJSON(w, http.StatusUnauthorized,
			errorResponse{Error: "not authenticated"})

		return
	}

	writeJSON(w, http.StatusOK, session)
}
