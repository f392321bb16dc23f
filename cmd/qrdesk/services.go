package main

import (
	"context"
	"fmt"

	"github.com/qrdesk/qrdesk/pkg/auth"
	"github.com/qrdesk/qrdesk/pkg/config"
	"github.com/qrdesk/qrdesk/pkg/credential"
	"github.com/qrdesk/qrdesk/pkg/directory"
	"github.com/qrdesk/qrdesk/pkg/ledger"
	"github.com/qrdesk/qrdesk/pkg/lockout"
	"github.com/qrdesk/qrdesk/pkg/store"
	"github.com/sirupsen/logrus"
)

// services wires the core components over one store.
type services struct {
	store     store.Store
	auth      *auth.Authenticator
	directory *directory.Directory
	ledger    *ledger.Ledger
}

// loadConfig loads and validates the configuration from --config. Without
// files the defaults and QRDESK_ environment overrides apply.
func loadConfig(cmdLogLevelSet bool) (*config.Config, error) {
	cfg, err := config.Load(cfgFiles...)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// The flag wins over the config file.
	if !cmdLogLevelSet && cfg.Global.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.Global.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("global.log_level: %w", err)
		}

		log.SetLevel(level)
	}

	return cfg, nil
}

// newServices starts the store, seeds the directory and builds the
// authenticator, ledger and directory. Callers must call close.
func newServices(
	ctx context.Context, log logrus.FieldLogger, cfg *config.Config,
) (*services, error) {
	secrets, err := cfg.Auth.RoleSecrets(credential.DefaultSecrets)
	if err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	var credOpts []credential.Option
	if cfg.Auth.BcryptCost > 0 {
		credOpts = append(credOpts, credential.WithCost(cfg.Auth.BcryptCost))
	}

	table, err := credential.NewTable(secrets, credOpts...)
	if err != nil {
		return nil, fmt.Errorf("building credential table: %w", err)
	}

	st := store.NewStore(log, &cfg.Database)
	if err := st.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting store: %w", err)
	}

	dir := directory.New(log, st)

	if err := dir.Seed(ctx, cfg.Directory.Users); err != nil {
		_ = st.Stop()

		return nil, err
	}

	policy := lockout.NewPolicy(log,
		lockout.WithMaxAttempts(cfg.Auth.Lockout.MaxAttempts),
		lockout.WithDuration(cfg.Auth.Lockout.DurationValue()),
	)

	return &services{
		store:     st,
		auth:      auth.NewAuthenticator(log, table, policy, dir),
		directory: dir,
		ledger:    ledger.New(log, st),
	}, nil
}

func (s *services) close() {
	if err := s.store.Stop(); err != nil {
		log.WithError(err).Warn("Failed to stop store")
	}
}
