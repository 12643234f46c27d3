package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/liamcoop/intakehub/internal/config"
	"github.com/liamcoop/intakehub/internal/logger"
)

var (
	databaseURL    string
	migrationsPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "intakehub-migrate",
		Short:         "Apply or roll back the intakehub schema",
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database", "", "Database URL (defaults to DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&migrationsPath, "path", "", "Path to migrations directory (defaults to MIGRATIONS_PATH)")

	rootCmd.AddCommand(upCmd(), downCmd(), versionCmd(), forceCmd())

	if err := rootCmd.Execute(); err != nil {
		logger.Fatal("command failed", slog.String("error", err.Error()))
	}
}

// newMigrate resolves flags against the environment and opens a migrator.
func newMigrate() (*migrate.Migrate, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log, _ := logger.Setup(logger.Options{Level: cfg.LogLevel, Format: "text"})

	if databaseURL == "" {
		databaseURL = cfg.DatabaseURL
	}
	if databaseURL == "" {
		return nil, nil, fmt.Errorf("database URL is required: use --database or DATABASE_URL")
	}
	if migrationsPath == "" {
		migrationsPath = cfg.MigrationsPath
	}

	log.Info("connecting to database", slog.String("migrations", migrationsPath))
	m, err := migrate.New("file://"+migrationsPath, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, log, nil
}

func upCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, log, err := newMigrate()
			if err != nil {
				return err
			}
			defer m.Close()

			err = m.Up()
			switch {
			case errors.Is(err, migrate.ErrNoChange):
				log.Info("no migrations to run, database is up to date")
			case err != nil:
				return fmt.Errorf("failed to run migrations: %w", err)
			default:
				log.Info("migrations completed")
			}
			return nil
		},
	}
}

func downCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, log, err := newMigrate()
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("failed to roll back migrations: %w", err)
			}
			log.Info("rollback completed")
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, log, err := newMigrate()
			if err != nil {
				return err
			}
			defer m.Close()

			version, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				log.Info("no migrations applied")
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to get version: %w", err)
			}
			log.Info("current version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
			return nil
		},
	}
}

func forceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version number %q: %w", args[0], err)
			}

			m, log, err := newMigrate()
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Force(version); err != nil {
				return fmt.Errorf("failed to force version: %w", err)
			}
			log.Info("forced version", slog.Int("version", version))
			return nil
		},
	}
}
