package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/autodialer/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Audit database management commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the audit tables",
		Long:  "Connects to the configured audit database and migrates the call session and call log tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "autodialer.yaml", "path to autodialer config file")
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Audit.Driver == "" {
		return fmt.Errorf("audit is disabled: set audit.driver in %s", configPath)
	}

	if _, err := connectAudit(cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables in %s database\n", len(db.AllModels()), cfg.Audit.Driver)
	return nil
}
