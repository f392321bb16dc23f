package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/qrdesk/qrdesk/pkg/api"
	"github.com/spf13/cobra"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the qrdesk HTTP API for logins, the item ledger and user management.`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags().Changed("log-level"))
	if err != nil {
		return err
	}

	// Set up context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	svc, err := newServices(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer svc.close()

	srv := api.NewServer(log, cfg, api.Services{
		Store:     svc.store,
		Auth:      svc.auth,
		Ledger:    svc.ledger,
		Directory: svc.directory,
	})

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}

	// Wait for shutdown signal.
	sig := <-sigCh
	log.WithField("signal", sig).Info("Shutting down API server")
	cancel()

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stopping api server: %w", err)
	}

	return nil
}
