package main

import (
	"errors"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/open-sspm/intreg/internal/config"
	"github.com/spf13/cobra"
)

var (
	migrateSource string
	migrateDown   bool
)

var migrateCmd = &cobra.Command{
	Use:         "migrate",
	Short:       "Apply the secrets store database migrations.",
	Args:        cobra.NoArgs,
	Annotations: structuredLog(),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := commandLogger(cmd, os.Stderr)
		if err != nil {
			return err
		}
		cfg, err := config.LoadRequireDB()
		if err != nil {
			return err
		}

		m, err := migrate.New(migrateSource, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer m.Close()

		step := m.Up
		if migrateDown {
			step = m.Down
		}
		if err := step(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				logger.Info("no changes to apply")
				return nil
			}
			return err
		}

		logger.Info("migrations applied successfully", "down", migrateDown)
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateSource, "source", "file://db/migrations", "Migration source URL")
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "Roll back every migration")
}
