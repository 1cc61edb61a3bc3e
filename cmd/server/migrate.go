package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"carebear/internal/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the issue store schema to postgres",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		pool, err := initDatabase(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("database initialization failed: %w", err)
		}
		defer pool.Close()

		if err := repository.NewPostgresIssueStore(pool).Migrate(cmd.Context()); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		logger.Info("Schema applied", "database", cfg.DB.Name)
		return nil
	},
}
