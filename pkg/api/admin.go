package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/qrdesk/qrdesk/pkg/domain"
)

// --- User management ---

// handleListUsers returns all directory accounts.
func (s *server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.directory.ListUsers(r.Context(), sessionFromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, users)
}

type createUserRequest struct {
	Username string `json:"username"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
}

// handleCreateUser registers a new account.
func (s *server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{Error: "invalid request body"})

		return
	}

	nu := domain.NewUser{Username: req.Username, Phone: req.Phone}

	if req.Role != "" {
		role, err := domain.ParseRole(req.Role)
		if err != nil {
			s.writeError(w, domain.InvalidField("role"))

			return
		}

		nu.Role = role
	}

	user, err := s.directory.CreateUser(r.Context(), sessionFromContext(r.Context()), nu)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// handleToggleBlock flips the blocked flag of an account.
func (s *server) handleToggleBlock(w http.ResponseWriter, r *http.Request) {
	user, err := s.directory.ToggleBlock(
		r.Context(), sessionFromContext(r.Context()), chi.URLParam(r, "phone"),
	)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, user)
}
