// Package credential verifies staff role secrets.
package credential

import (
	"fmt"
	"strings"

	"github.com/qrdesk/qrdesk/pkg/domain"
	"golang.org/x/crypto/bcrypt"
)

// DefaultSecrets is the built-in secret table, used when no secrets are
// configured.
var DefaultSecrets = map[domain.Role]string{
	domain.RoleCashier:     "25",
	domain.RoleHeadCashier: "202520",
	domain.RoleAdmin:       "2025",
	domain.RoleCreator:     "202505",
	domain.RoleNikitovsky:  "20252025",
	domain.RoleRole24:      "20252024",
}

// Verifier checks role secrets.
type Verifier interface {
	// Verify reports whether input is the secret of role.
	Verify(role domain.Role, input string) bool
	// Resolve checks input against every role reachable from the entry
	// point in order and returns the first role whose secret matches.
	Resolve(entry domain.Role, input string) (domain.Role, bool)
}

// sharedEntries lists roles that log in through another role's entry
// point, in the order their secrets are tried.
var sharedEntries = map[domain.Role][]domain.Role{
	domain.RoleNikitovsky: {domain.RoleNikitovsky, domain.RoleRole24},
}

// EntryPoint returns the entry point a role logs in through.
func EntryPoint(role domain.Role) domain.Role {
	for entry, roles := range sharedEntries {
		for _, r := range roles {
			if r == role {
				return entry
			}
		}
	}

	return role
}

// Candidates returns the roles resolvable from an entry point, in order.
func Candidates(entry domain.Role) []domain.Role {
	entry = EntryPoint(entry)
	if roles, ok := sharedEntries[entry]; ok {
		return roles
	}

	return []domain.Role{entry}
}

// Option configures a Table.
type Option func(*Table)

// WithCost sets the bcrypt cost used when hashing plain secrets.
func WithCost(cost int) Option {
	return func(t *Table) {
		t.cost = cost
	}
}

// Table is a Verifier backed by bcrypt hashes held in memory.
type Table struct {
	hashes map[domain.Role][]byte
	cost   int
}

// Compile-time interface check.
var _ Verifier = (*Table)(nil)

// NewTable builds a Table. Secrets that already look like bcrypt hashes are
// stored as-is; anything else is hashed.
func NewTable(secrets map[domain.Role]string, opts ...Option) (*Table, error) {
	t := &Table{
		hashes: make(map[domain.Role][]byte, len(secrets)),
		cost:   bcrypt.DefaultCost,
	}

	for _, opt := range opts {
		opt(t)
	}

	for role, secret := range secrets {
		if !role.IsStaff() {
			return nil, fmt.Errorf("role %q cannot carry a secret", role)
		}

		if secret == "" {
			return nil, fmt.Errorf("empty secret for role %q", role)
		}

		if isBcryptHash(secret) {
			t.hashes[role] = []byte(secret)

			continue
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(secret), t.cost)
		if err != nil {
			return nil, fmt.Errorf("hashing secret for %q: %w", role, err)
		}

		t.hashes[role] = hash
	}

	return t, nil
}

// HasCredential reports whether role has a secret. Clients never do.
func (t *Table) HasCredential(role domain.Role) bool {
	_, ok := t.hashes[role]

	return ok
}

func (t *Table) Verify(role domain.Role, input string) bool {
	hash, ok := t.hashes[role]
	if !ok || input == "" {
		return false
	}

	return bcrypt.CompareHashAndPassword(hash, []byte(input)) == nil
}

func (t *Table) Resolve(entry domain.Role, input string) (domain.Role, bool) {
	for _, role := range Candidates(entry) {
		if t.Verify(role, input) {
			return role, true
		}
	}

	return "", false
}

func isBcryptHash(s string) bool {
	return len(s) == 60 &&
		(strings.HasPrefix(s, "$2a$") ||
			strings.HasPrefix(s, "$2b$") ||
			strings.HasPrefix(s, "$2y$"))
}
