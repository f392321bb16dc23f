// Package directory manages client accounts keyed by phone number.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/qrdesk/qrdesk/pkg/config"
	"github.com/qrdesk/qrdesk/pkg/domain"
	"github.com/qrdesk/qrdesk/pkg/store"
	"github.com/sirupsen/logrus"
)

// ManagerRole is the minimum role for account management.
const ManagerRole = domain.RoleNikitovsky

// Directory creates, lists and blocks accounts.
type Directory struct {
	log   logrus.FieldLogger
	store store.Store
}

// New creates a Directory over st.
func New(log logrus.FieldLogger, st store.Store) *Directory {
	return &Directory{
		log:   log.WithField("component", "directory"),
		store: st,
	}
}

// CreateUser registers a new account. Only the top role may assign a role
// other than client.
func (d *Directory) CreateUser(
	ctx context.Context, s *domain.Session, nu domain.NewUser,
) (*domain.UserAccount, error) {
	if err := domain.Authorize(s, ManagerRole); err != nil {
		return nil, err
	}

	if nu.Username == "" {
		return nil, domain.MissingField("username")
	}

	if nu.Phone == "" {
		return nil, domain.MissingField("phone")
	}

	if nu.Role == "" {
		nu.Role = domain.RoleClient
	}

	if !nu.Role.Valid() {
		return nil, domain.InvalidField("role")
	}

	if nu.Role != domain.RoleClient && s.Role != domain.TopRole() {
		return nil, domain.Forbidden(domain.TopRole().Level())
	}

	user := &store.User{
		Username: nu.Username,
		Phone:    nu.Phone,
		Role:     string(nu.Role),
		Source:   store.SourceAdmin,
	}

	if err := d.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, domain.DuplicatePhone(nu.Phone)
		}

		return nil, err
	}

	d.log.WithFields(logrus.Fields{
		"by":   s.Identity,
		"role": nu.Role,
	}).Info("User created")

	return user.ToDomain(), nil
}

// ToggleBlock flips the blocked flag of the account with phone. Accounts at
// the manager level or above can only be toggled by the top role.
func (d *Directory) ToggleBlock(
	ctx context.Context, s *domain.Session, phone string,
) (*domain.UserAccount, error) {
	if err := domain.Authorize(s, ManagerRole); err != nil {
		return nil, err
	}

	user, err := d.store.ToggleUserBlocked(ctx, phone, func(u *store.User) error {
		if domain.Role(u.Role).AtLeast(ManagerRole) && s.Role != domain.TopRole() {
			return domain.Forbidden(domain.TopRole().Level())
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.NotFound(phone)
		}

		return nil, err
	}

	d.log.WithFields(logrus.Fields{
		"by":      s.Identity,
		"blocked": user.Blocked,
	}).Info("User block toggled")

	return user.ToDomain(), nil
}

// FindByPhone looks up the account registered under phone with the given
// role. It is not gated: the client login path uses it before a session
// exists. An account registered under another role is reported as
// AccountNotFound.
func (d *Directory) FindByPhone(
	ctx context.Context, phone string, role domain.Role,
) (*domain.UserAccount, error) {
	user, err := d.store.GetUserByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.AccountNotFound(phone)
		}

		return nil, fmt.Errorf("looking up account: %w", err)
	}

	if domain.Role(user.Role) != role {
		return nil, domain.AccountNotFound(phone)
	}

	return user.ToDomain(), nil
}

// ListUsers returns every account.
func (d *Directory) ListUsers(
	ctx context.Context, s *domain.Session,
) ([]domain.UserAccount, error) {
	if err := domain.Authorize(s, ManagerRole); err != nil {
		return nil, err
	}

	users, err := d.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.UserAccount, 0, len(users))
	for i := range users {
		out = append(out, *users[i].ToDomain())
	}

	return out, nil
}

// Seed inserts the configured accounts. Existing phones are left as they are.
func (d *Directory) Seed(ctx context.Context, users []config.DirectoryUser) error {
	if len(users) == 0 {
		return nil
	}

	if err := d.store.SeedUsers(ctx, users); err != nil {
		return fmt.Errorf("seeding directory: %w", err)
	}

	return nil
}
