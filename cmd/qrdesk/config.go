package main

import (
	"fmt"

	"github.com/qrdesk/qrdesk/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Load every --config file plus QRDESK_ environment overrides, validate
the result and print it as YAML. Secrets are masked.`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags().Changed("log-level"))
	if err != nil {
		return err
	}

	maskSecrets(cfg)

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	_, err = cmd.OutOrStdout().Write(out)

	return err
}

const maskedSecret = "********"

// maskSecrets replaces every credential in cfg in place.
func maskSecrets(cfg *config.Config) {
	for role := range cfg.Auth.Secrets {
		cfg.Auth.Secrets[role] = maskedSecret
	}

	if cfg.Database.Postgres.Password != "" {
		cfg.Database.Postgres.Password = maskedSecret
	}

	if cfg.Export.S3 != nil && cfg.Export.S3.SecretAccessKey != "" {
		cfg.Export.S3.SecretAccessKey = maskedSecret
	}
}
