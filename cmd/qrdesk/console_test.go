package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/qrdesk/qrdesk/pkg/auth"
	"github.com/qrdesk/qrdesk/pkg/config"
	"github.com/qrdesk/qrdesk/pkg/domain"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runScript(t *testing.T, script ...string) string {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	log = logger

	cfg, err := config.Load()
	require.NoError(t, err)

	cfg.Auth.BcryptCost = 4
	cfg.Directory.Users = []config.DirectoryUser{
		{Username: "ivanov", Phone: "+7900", Role: "client"},
	}

	svc, err := newServices(context.Background(), logger, cfg)
	require.NoError(t, err)

	t.Cleanup(svc.close)

	var out bytes.Buffer

	c := newConsole(strings.NewReader(strings.Join(script, "\n")+"\n"), &out,
		auth.NewTerminal(svc.auth), svc.ledger, svc.directory)

	require.NoError(t, c.run(context.Background()))

	return out.String()
}

func TestConsole_AcceptAndIssue(t *testing.T) {
	out := runScript(t,
		"role head-cashier",
		"login",
		"202520",
		"accept",
		"Passport",
		"",
		"Ivanov",
		"+7900",
		"",
		"150",
		"items",
		"logout",
		"role client",
		"login",
		"+7900",
		"items",
		"quit",
	)

	assert.Contains(t, out, "logged in as head-cashier (head-cashier)")
	assert.Contains(t, out, "accepted ")
	assert.Contains(t, out, "Passport")
	assert.Contains(t, out, "logged in as ivanov (client)")
	assert.NotContains(t, out, "error:")
}

func TestConsole_Lockout(t *testing.T) {
	out := runScript(t,
		"role admin",
		"login", "a",
		"login", "b",
		"login", "c",
		"login", "2025",
		"quit",
	)

	assert.Contains(t, out, "invalid credential, 2 attempts remaining")
	assert.Contains(t, out, "invalid credential, 1 attempts remaining")
	assert.Contains(t, out, "too many failed attempts, login locked for about a minute (90s)")
	assert.Contains(t, out, "login locked, try again in")
}

func TestConsole_Forbidden(t *testing.T) {
	out := runScript(t,
		"role cashier",
		"login", "25",
		"accept",
		"users",
		"quit",
	)

	assert.Contains(t, out, "not allowed, requires head-cashier or above")
	assert.Contains(t, out, "not allowed, requires nikitovsky or above")
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "account is blocked", describe(domain.AccountBlocked("+7900")))
	assert.Equal(t, assert.AnError.Error(), describe(assert.AnError))
	assert.Equal(t, "not allowed, requires role24 or above",
		describe(domain.Forbidden(domain.RoleRole24.Level())))
}
