// Package auth resolves login attempts into sessions.
package auth

import (
	"context"

	"github.com/qrdesk/qrdesk/pkg/credential"
	"github.com/qrdesk/qrdesk/pkg/domain"
	"github.com/qrdesk/qrdesk/pkg/lockout"
	"github.com/sirupsen/logrus"
)

// AccountFinder looks up directory accounts for the client login path.
type AccountFinder interface {
	FindByPhone(
		ctx context.Context, phone string, role domain.Role,
	) (*domain.UserAccount, error)
}

// Attempt is a single login attempt.
type Attempt struct {
	// Key selects the lockout counter. Empty means the global counter.
	Key      string
	Role     domain.Role
	Password string
	Phone    string
}

// Authenticator turns login attempts into sessions. It holds no state of
// its own apart from the lockout policy and is safe for concurrent use.
type Authenticator struct {
	log      logrus.FieldLogger
	verifier credential.Verifier
	policy   *lockout.Policy
	accounts AccountFinder
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(
	log logrus.FieldLogger,
	verifier credential.Verifier,
	policy *lockout.Policy,
	accounts AccountFinder,
) *Authenticator {
	return &Authenticator{
		log:      log.WithField("component", "auth"),
		verifier: verifier,
		policy:   policy,
		accounts: accounts,
	}
}

// Policy returns the lockout policy backing the authenticator.
func (a *Authenticator) Policy() *lockout.Policy {
	return a.policy
}

// Login evaluates at. A locked key is rejected before the role or any
// credential is looked at. Client logins are checked against the directory and never
// count towards the lockout. Staff logins are checked against the role
// secrets and every mismatch is recorded by the lockout policy.
func (a *Authenticator) Login(
	ctx context.Context, at Attempt,
) (*domain.Session, error) {
	key := at.Key
	if key == "" {
		key = lockout.GlobalKey
	}

	if err := a.policy.Check(key); err != nil {
		return nil, err
	}

	if at.Role == "" {
		return nil, domain.MissingField("role")
	}

	if !at.Role.Valid() {
		return nil, domain.InvalidField("role")
	}

	if at.Role == domain.RoleClient {
		return a.loginClient(ctx, at.Phone)
	}

	entry := credential.EntryPoint(at.Role)

	role, ok := a.verifier.Resolve(entry, at.Password)
	if !ok {
		a.log.WithFields(logrus.Fields{
			"entry": entry,
			"key":   key,
		}).Debug("Credential mismatch")

		return nil, a.policy.Fail(key)
	}

	a.policy.Succeed(key)

	a.log.WithFields(logrus.Fields{
		"role": role,
		"key":  key,
	}).Info("Staff login")

	return domain.NewStaffSession(role), nil
}

func (a *Authenticator) loginClient(
	ctx context.Context, phone string,
) (*domain.Session, error) {
	if phone == "" {
		return nil, domain.MissingField("phone")
	}

	account, err := a.accounts.FindByPhone(ctx, phone, domain.RoleClient)
	if err != nil {
		return nil, err
	}

	if account.Blocked {
		a.log.WithField("user", account.Username).
			Info("Blocked client login rejected")

		return nil, domain.AccountBlocked(phone)
	}

	a.log.WithField("user", account.Username).Info("Client login")

	return domain.NewClientSession(account), nil
}
