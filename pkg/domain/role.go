package domain

import (
	"fmt"
	"strings"
)

// Role is a position in the counter's privilege hierarchy.
type Role string

// Roles ordered from least to most privileged.
const (
	RoleClient      Role = "client"
	RoleCashier     Role = "cashier"
	RoleHeadCashier Role = "head-cashier"
	RoleAdmin       Role = "admin"
	RoleCreator     Role = "creator"
	RoleNikitovsky  Role = "nikitovsky"
	RoleRole24      Role = "role24"
)

// roleOrder is the total order over roles. The index is the role level.
var roleOrder = []Role{
	RoleClient,
	RoleCashier,
	RoleHeadCashier,
	RoleAdmin,
	RoleCreator,
	RoleNikitovsky,
	RoleRole24,
}

// Roles returns all roles ordered by level.
func Roles() []Role {
	out := make([]Role, len(roleOrder))
	copy(out, roleOrder)

	return out
}

// ParseRole converts a string into a known Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}

	return r, nil
}

// Valid reports whether r is part of the hierarchy.
func (r Role) Valid() bool {
	return r.Level() >= 0
}

// Level returns the integer rank of r, or -1 for an unknown role.
func (r Role) Level() int {
	for i, candidate := range roleOrder {
		if candidate == r {
			return i
		}
	}

	return -1
}

// AtLeast reports whether r is at least as privileged as min.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && r.Level() >= min.Level()
}

// IsStaff reports whether r logs in with a password.
func (r Role) IsStaff() bool {
	return r.Valid() && r != RoleClient
}

// TopRole is the most privileged role.
func TopRole() Role {
	return roleOrder[len(roleOrder)-1]
}

func (r Role) String() string {
	return string(r)
}

// Authorize returns a Forbidden error unless the session holds at least min.
func Authorize(s *Session, min Role) error {
	if s == nil || !s.Role.AtLeast(min) {
		return Forbidden(min.Level())
	}

	return nil
}
