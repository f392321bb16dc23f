package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/qrdesk/qrdesk/pkg/domain"
	"github.com/qrdesk/qrdesk/pkg/lockout"
)

// State is the login state of a Terminal.
type State int

// Terminal states.
const (
	StateRoleSelectionPending State = iota
	StateRoleSelected
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateRoleSelectionPending:
		return "role-selection-pending"
	case StateRoleSelected:
		return "role-selected"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyAuthenticated is returned by operations that need a
	// logged-out terminal.
	ErrAlreadyAuthenticated = errors.New("terminal already authenticated")

	// ErrNoRoleSelected is returned by Login before a role was selected.
	ErrNoRoleSelected = errors.New("no role selected")
)

// Terminal is a single-user login screen. It holds at most one session and
// always uses the global lockout counter.
type Terminal struct {
	auth *Authenticator

	mu       sync.Mutex
	state    State
	role     domain.Role
	password string
	phone    string
	session  *domain.Session
}

// NewTerminal creates a logged-out terminal.
func NewTerminal(a *Authenticator) *Terminal {
	return &Terminal{auth: a}
}

// SelectRole picks the role to log in as. It has no effect on lockout state.
func (t *Terminal) SelectRole(role domain.Role) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateAuthenticated {
		return ErrAlreadyAuthenticated
	}

	if !role.Valid() {
		return domain.InvalidField("role")
	}

	t.role = role
	t.state = StateRoleSelected

	return nil
}

// SetPassword sets the password input.
func (t *Terminal) SetPassword(password string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.password = password
}

// SetPhone sets the phone input.
func (t *Terminal) SetPhone(phone string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.phone = phone
}

// Login submits the current inputs. The password input is cleared after
// every staff attempt.
func (t *Terminal) Login(ctx context.Context) (*domain.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateAuthenticated:
		return nil, ErrAlreadyAuthenticated
	case StateRoleSelectionPending:
		return nil, ErrNoRoleSelected
	}

	at := Attempt{
		Key:      lockout.GlobalKey,
		Role:     t.role,
		Password: t.password,
		Phone:    t.phone,
	}

	if t.role != domain.RoleClient {
		t.password = ""
	}

	session, err := t.auth.Login(ctx, at)
	if err != nil {
		return nil, err
	}

	t.session = session
	t.state = StateAuthenticated

	return session, nil
}

// Logout drops the session and every login input. Lockout state is kept.
func (t *Terminal) Logout() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.session = nil
	t.role = ""
	t.password = ""
	t.phone = ""
	t.state = StateRoleSelectionPending
}

// Session returns the active session, or nil.
func (t *Terminal) Session() *domain.Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.session
}

// State returns the current state.
func (t *Terminal) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

// SelectedRole returns the role picked with SelectRole.
func (t *Terminal) SelectedRole() domain.Role {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.role
}
