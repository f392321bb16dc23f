package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/qrdesk/qrdesk/pkg/domain"
)

// errorResponse is a standard error payload. Core failures carry their kind
// and parameters next to the message.
type errorResponse struct {
	Error             string      `json:"error"`
	Kind              domain.Kind `json:"kind,omitempty"`
	Field             string      `json:"field,omitempty"`
	Ref               string      `json:"ref,omitempty"`
	RemainingSeconds  int         `json:"remaining_seconds,omitempty"`
	AttemptsRemaining int         `json:"attempts_remaining,omitempty"`
	RequiredLevel     int         `json:"required_level,omitempty"`
}

// statusFor maps a core error kind to its HTTP status.
func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindLockedOut, domain.KindTooManyAttempts:
		return http.StatusTooManyRequests
	case domain.KindInvalidCredential:
		return http.StatusUnauthorized
	case domain.KindAccountNotFound, domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindAccountBlocked, domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindMissingField, domain.KindInvalidField:
		return http.StatusBadRequest
	case domain.KindDuplicatePhone, domain.KindDuplicateID:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a JSON error. Anything that is not a core error
// is logged and reported as an internal error.
func (s *server) writeError(w http.ResponseWriter, err error) {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		s.log.WithError(err).Error("Request failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{Error: "internal error"})

		return
	}

	if derr.Kind == domain.KindLockedOut || derr.Kind == domain.KindTooManyAttempts {
		w.Header().Set("Retry-After", strconv.Itoa(derr.RemainingSeconds))
	}

	writeJSON(w, statusFor(derr.Kind), errorResponse{
		Error:             derr.Error(),
		Kind:              derr.Kind,
		Field:             derr.Field,
		Ref:               derr.Ref,
		RemainingSeconds:  derr.RemainingSeconds,
		AttemptsRemaining: derr.AttemptsRemaining,
		RequiredLevel:     derr.RequiredLevel,
	})
}
