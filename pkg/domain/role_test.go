package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRole_Level(t *testing.T) {
	tests := []struct {
		role  Role
		level int
	}{
		{RoleClient, 0},
		{RoleCashier, 1},
		{RoleHeadCashier, 2},
		{RoleAdmin, 3},
		{RoleCreator, 4},
		{RoleNikitovsky, 5},
		{RoleRole24, 6},
		{Role("janitor"), -1},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.level, tt.role.Level())
		})
	}
}

func TestRoles_TotalOrder(t *testing.T) {
	roles := Roles()
	require.Len(t, roles, 7)

	for i := 1; i < len(roles); i++ {
		assert.Greater(t, roles[i].Level(), roles[i-1].Level())
	}

	assert.Equal(t, RoleRole24, TopRole())
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Head-Cashier ")
	require.NoError(t, err)
	assert.Equal(t, RoleHeadCashier, r)

	_, err = ParseRole("janitor")
	require.Error(t, err)
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name    string
		session *Session
		min     Role
		allowed bool
	}{
		{name: "nil session", session: nil, min: RoleClient, allowed: false},
		{name: "client reads", session: &Session{Role: RoleClient}, min: RoleClient, allowed: true},
		{name: "client cannot issue", session: &Session{Role: RoleClient}, min: RoleCashier, allowed: false},
		{name: "cashier issues", session: &Session{Role: RoleCashier}, min: RoleCashier, allowed: true},
		{name: "cashier cannot accept", session: &Session{Role: RoleCashier}, min: RoleHeadCashier, allowed: false},
		{name: "admin accepts", session: &Session{Role: RoleAdmin}, min: RoleHeadCashier, allowed: true},
		{name: "creator cannot manage users", session: &Session{Role: RoleCreator}, min: RoleNikitovsky, allowed: false},
		{name: "role24 manages users", session: &Session{Role: RoleRole24}, min: RoleNikitovsky, allowed: true},
		{name: "unknown role", session: &Session{Role: "janitor"}, min: RoleClient, allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.session, tt.min)
			if tt.allowed {
				assert.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, ErrForbidden)

			var derr *Error
			require.True(t, errors.As(err, &derr))
			assert.Equal(t, tt.min.Level(), derr.RequiredLevel)
		})
	}
}
