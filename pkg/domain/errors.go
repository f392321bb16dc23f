package domain

import (
	"errors"
	"fmt"
)

// Kind discriminates the recoverable failures of the core operations.
type Kind string

// Error kinds.
const (
	KindLockedOut         Kind = "locked_out"
	KindInvalidCredential Kind = "invalid_credential"
	KindTooManyAttempts   Kind = "too_many_attempts"
	KindAccountNotFound   Kind = "account_not_found"
	KindAccountBlocked    Kind = "account_blocked"
	KindMissingField      Kind = "missing_field"
	KindInvalidField      Kind = "invalid_field"
	KindDuplicatePhone    Kind = "duplicate_phone"
	KindDuplicateID       Kind = "duplicate_id"
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
)

// Error is a core failure together with its parameters. Only the fields
// relevant to Kind are populated.
type Error struct {
	Kind              Kind   `json:"kind"`
	Field             string `json:"field,omitempty"`
	Ref               string `json:"ref,omitempty"`
	RemainingSeconds  int    `json:"remaining_seconds,omitempty"`
	AttemptsRemaining int    `json:"attempts_remaining,omitempty"`
	RequiredLevel     int    `json:"required_level,omitempty"`
}

// Sentinels for errors.Is matching by kind.
var (
	ErrLockedOut         = &Error{Kind: KindLockedOut}
	ErrInvalidCredential = &Error{Kind: KindInvalidCredential}
	ErrTooManyAttempts   = &Error{Kind: KindTooManyAttempts}
	ErrAccountNotFound   = &Error{Kind: KindAccountNotFound}
	ErrAccountBlocked    = &Error{Kind: KindAccountBlocked}
	ErrMissingField      = &Error{Kind: KindMissingField}
	ErrInvalidField      = &Error{Kind: KindInvalidField}
	ErrDuplicatePhone    = &Error{Kind: KindDuplicatePhone}
	ErrDuplicateID       = &Error{Kind: KindDuplicateID}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrForbidden         = &Error{Kind: KindForbidden}
)

func (e *Error) Error() string {
	switch e.Kind {
	case KindLockedOut:
		return fmt.Sprintf("login locked, retry in %d seconds", e.RemainingSeconds)
	case KindInvalidCredential:
		return fmt.Sprintf("invalid credential, %d attempts remaining", e.AttemptsRemaining)
	case KindTooManyAttempts:
		return "too many failed attempts, login locked"
	case KindAccountNotFound:
		return "account not found"
	case KindAccountBlocked:
		return "account is blocked"
	case KindMissingField:
		return fmt.Sprintf("missing required field %q", e.Field)
	case KindInvalidField:
		return fmt.Sprintf("invalid value for field %q", e.Field)
	case KindDuplicatePhone:
		return fmt.Sprintf("phone %q is already registered", e.Ref)
	case KindDuplicateID:
		return fmt.Sprintf("duplicate id %q", e.Ref)
	case KindNotFound:
		return fmt.Sprintf("%q not found", e.Ref)
	case KindForbidden:
		return fmt.Sprintf("forbidden, requires role level %d", e.RequiredLevel)
	default:
		return string(e.Kind)
	}
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Kind == e.Kind
}

// KindOf returns the kind of a core error, or "" for any other error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return ""
}

func LockedOut(remainingSeconds int) error {
	return &Error{Kind: KindLockedOut, RemainingSeconds: remainingSeconds}
}

func InvalidCredential(attemptsRemaining int) error {
	return &Error{Kind: KindInvalidCredential, AttemptsRemaining: attemptsRemaining}
}

func TooManyAttempts(remainingSeconds int) error {
	return &Error{Kind: KindTooManyAttempts, RemainingSeconds: remainingSeconds}
}

func AccountNotFound(phone string) error {
	return &Error{Kind: KindAccountNotFound, Ref: phone}
}

func AccountBlocked(phone string) error {
	return &Error{Kind: KindAccountBlocked, Ref: phone}
}

func MissingField(field string) error {
	return &Error{Kind: KindMissingField, Field: field}
}

func InvalidField(field string) error {
	return &Error{Kind: KindInvalidField, Field: field}
}

func DuplicatePhone(phone string) error {
	return &Error{Kind: KindDuplicatePhone, Ref: phone}
}

func DuplicateID(id string) error {
	return &Error{Kind: KindDuplicateID, Ref: id}
}

func NotFound(ref string) error {
	return &Error{Kind: KindNotFound, Ref: ref}
}

func Forbidden(requiredLevel int) error {
	return &Error{Kind: KindForbidden, RequiredLevel: requiredLevel}
}
