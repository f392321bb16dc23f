package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/qrdesk/qrdesk/pkg/auth"
	"github.com/qrdesk/qrdesk/pkg/config"
	"github.com/qrdesk/qrdesk/pkg/domain"
	"github.com/qrdesk/qrdesk/pkg/export"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	exportRole      string
	exportPassword  string
	exportPreflight bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write JSON snapshots of the ledger",
	Long: `Write items.json and archive.json snapshots of the ledger to every
target enabled under export: in the config. Requires a persistent database
and a staff login at admin level or above. Without --password the secret is
read from the terminal. With --preflight nothing is exported; every target
is only checked for writability.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportRole, "role", string(domain.RoleAdmin),
		"staff role to log in as")
	exportCmd.Flags().StringVar(&exportPassword, "password", "",
		"role secret (prompted when empty)")
	exportCmd.Flags().BoolVar(&exportPreflight, "preflight", false,
		"only check that every target is writable")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags().Changed("log-level"))
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	sinks, err := export.NewSinks(log, &cfg.Export)
	if err != nil {
		return err
	}

	if exportPreflight {
		if err := export.Preflight(ctx, sinks); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "preflight ok: %d target(s) writable\n", len(sinks))

		return nil
	}

	if err := requirePersistentDatabase(&cfg.Database); err != nil {
		return err
	}

	role, err := domain.ParseRole(exportRole)
	if err != nil {
		return err
	}

	password := exportPassword
	if password == "" {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("--password is required when stdin is not a terminal")
		}

		fmt.Fprint(cmd.ErrOrStderr(), "password: ")

		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())

		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}

		password = string(b)
	}

	svc, err := newServices(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer svc.close()

	session, err := svc.auth.Login(ctx, auth.Attempt{
		Role:     role,
		Password: password,
	})
	if err != nil {
		return fmt.Errorf("login: %s", describe(err))
	}

	res, err := export.NewExporter(log, svc.ledger, sinks).Run(ctx, session)
	if err != nil {
		return fmt.Errorf("export: %s", describe(err))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "exported run %s: %d active, %d archived to %d target(s)\n",
		res.Run, res.Active, res.Archived, res.Sinks)

	return nil
}

// requirePersistentDatabase rejects in-memory SQLite, which would always
// export empty snapshots from a fresh process.
func requirePersistentDatabase(db *config.DatabaseConfig) error {
	if db.Driver != "sqlite" {
		return nil
	}

	path := db.SQLite.Path
	if strings.Contains(path, ":memory:") || strings.Contains(path, "mode=memory") {
		return fmt.Errorf("export needs a persistent database: "+
			"database.sqlite.path is %q, which holds no data outside this process", path)
	}

	return nil
}
