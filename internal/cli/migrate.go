package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/PabloGalante/suma-triage/internal/adapters/storage/sqlstore"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQL schema (sqlite and postgres backends)",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(opts, func(m *migrate.Migrate) error {
					if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(opts, func(m *migrate.Migrate) error {
					if err := m.Steps(-1); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Rolled back one migration.")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(opts, func(m *migrate.Migrate) error {
					v, dirty, err := m.Version()
					if errors.Is(err, migrate.ErrNilVersion) {
						fmt.Fprintln(cmd.OutOrStdout(), "No migrations applied.")
						return nil
					}
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Version %d (dirty=%t)\n", v, dirty)
					return nil
				})
			},
		},
	)
	return cmd
}

func withMigrator(opts *rootOptions, fn func(*migrate.Migrate) error) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	if cfg.StorageBackend != "sqlite" && cfg.StorageBackend != "postgres" {
		return fmt.Errorf("storage backend %q has no SQL schema", cfg.StorageBackend)
	}

	d, dsn := sqlTarget(cfg)
	if d.Name == sqlstore.SQLite.Name {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o700); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
	}
	m, err := sqlstore.NewMigrator(d, dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}
