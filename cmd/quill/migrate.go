// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package main

import (
	"os"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/quillnotes/quill/internal/config"
	"github.com/quillnotes/quill/internal/store"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Manage the schema of the PostgreSQL database. With no subcommand, applies all pending migrations.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				cmd.Println("Running migrations...")
				if err := m.Up(); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "up").Wrap(err)
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(m *store.Migrator) error {
					if err := m.Down(); err != nil {
						return oops.Code("MIGRATION_FAILED").With("operation", "down").Wrap(err)
					}
					cmd.Println("Rollback completed")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "steps <n>",
			Short: "Apply n migrations (negative rolls back)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return oops.Code("CONFIG_INVALID").Errorf("steps argument must be an integer, got %q", args[0])
				}
				return withMigrator(cmd, func(m *store.Migrator) error {
					if err := m.Steps(n); err != nil {
						return oops.Code("MIGRATION_FAILED").With("operation", "steps").With("n", n).Wrap(err)
					}
					cmd.Println("Migration steps applied")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the current migration version",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(m *store.Migrator) error {
					version, dirty, err := m.Version()
					if err != nil {
						return oops.Code("MIGRATION_FAILED").With("operation", "version").Wrap(err)
					}
					cmd.Printf("version: %d dirty: %t\n", version, dirty)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Force the migration version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return oops.Code("CONFIG_INVALID").Errorf("version argument must be an integer, got %q", args[0])
				}
				return withMigrator(cmd, func(m *store.Migrator) error {
					if err := m.Force(v); err != nil {
						return oops.Code("MIGRATION_FAILED").With("operation", "force").With("version", v).Wrap(err)
					}
					cmd.Println("Migration version forced")
					return nil
				})
			},
		},
	)

	return cmd
}

// resolveDatabaseURL reads the database URL from the config file or the
// DATABASE_URL environment variable. The admin subcommands need only the
// URL, not a fully validated service configuration.
func resolveDatabaseURL() (string, error) {
	cfg, err := config.Load(configPath(), nil)
	if err != nil {
		return "", err
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
	if cfg.Database.URL == "" {
		return "", oops.Code("CONFIG_INVALID").Errorf("database.url or DATABASE_URL environment variable is required")
	}
	return cfg.Database.URL, nil
}

func withMigrator(cmd *cobra.Command, fn func(*store.Migrator) error) error {
	databaseURL, err := resolveDatabaseURL()
	if err != nil {
		return err
	}

	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			cmd.PrintErrf("warning: closing migrator: %v\n", closeErr)
		}
	}()

	return fn(migrator)
}
