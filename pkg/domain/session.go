package domain

// Session is the authenticated context attached to every authorized call.
type Session struct {
	Role Role `json:"role"`
	// Identity is the client's username for client sessions and the role
	// tag for staff sessions.
	Identity string `json:"identity"`
	// Phone is set for client sessions only and drives the item view filter.
	Phone string `json:"phone,omitempty"`
}

// NewStaffSession returns a session for a password-authenticated role.
func NewStaffSession(role Role) *Session {
	return &Session{Role: role, Identity: string(role)}
}

// NewClientSession returns a session bound to a client account.
func NewClientSession(account *UserAccount) *Session {
	return &Session{
		Role:     RoleClient,
		Identity: account.Username,
		Phone:    account.Phone,
	}
}

// IsClient reports whether the session belongs to a client.
func (s *Session) IsClient() bool {
	return s != nil && s.Role == RoleClient
}
