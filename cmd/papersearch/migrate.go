package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/helixir/paper-search-engine/internal/app"
	"github.com/helixir/paper-search-engine/internal/database"
	"github.com/helixir/paper-search-engine/internal/observability"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the paper store schema",
	Long: `Migrate applies or rolls back the PostgreSQL schema of the paper store.
Migrations are compiled into the binary; --path reads them from a directory
instead.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up [n]",
	Short: "Apply every pending migration, or the next n",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := stepCount(args)
		if err != nil {
			return err
		}
		return withMigrator(cmd, func(m *database.Migrator) error {
			if n == 0 {
				return m.Up()
			}
			return m.Steps(n)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [n]",
	Short: "Roll back every migration, or the last n",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := stepCount(args)
		if err != nil {
			return err
		}
		return withMigrator(cmd, func(m *database.Migrator) error {
			if n == 0 {
				return m.Down()
			}
			return m.Steps(-n)
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, func(*database.Migrator) error { return nil })
	},
}

// stepCount parses the optional step argument; zero means all.
func stepCount(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("step count must be a positive integer, got %q", args[0])
	}
	return n, nil
}

func init() {
	migrateCmd.PersistentFlags().String("path", "", "read migrations from this directory")

	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}

// withMigrator connects to the configured database, runs fn and prints the
// resulting schema version.
func withMigrator(cmd *cobra.Command, fn func(*database.Migrator) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := observability.NewLogger(app.LoggingConfig(cfg.Logging)).
		With().Str("component", "migrate").Logger()

	path, _ := cmd.Flags().GetString("path")
	if path == "" {
		path = cfg.Database.MigrationPath
	}

	ctx := cmd.Context()
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, path, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	if err := fn(migrator); err != nil {
		return err
	}

	version, dirty, err := migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		version, dirty, err = 0, false, nil
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), struct {
		Version uint `json:"version"`
		Dirty   bool `json:"dirty"`
	}{version, dirty})
}
