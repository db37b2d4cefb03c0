package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/siteflow/server/internal/config"
	"github.com/siteflow/server/internal/jobs"
	"github.com/siteflow/server/internal/storage"
	"github.com/siteflow/server/internal/storage/postgres"
)

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Apply, roll back or inspect the bundled schema migrations for the database
named by DATABASE_URL (PostgreSQL or SQLite).

Examples:
  server migrate up
  server migrate down --steps 1
  server migrate version`,
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			return withStore(cmd.Context(), opts, func(ctx context.Context, cfg config.Config, store storage.Store) error {
				if err := storage.MigrateDown(store, cfg.Database.URL, steps); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
				return nil
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd.Context(), opts, func(ctx context.Context, cfg config.Config, store storage.Store) error {
					if err := storage.MigrateUp(store, cfg.Database.URL); err != nil {
						return err
					}
					if pg, ok := store.(*postgres.Store); ok && cfg.Jobs.Enabled {
						if err := jobs.Migrate(ctx, pg.Pool()); err != nil {
							return err
						}
					}
					return printVersion(cmd, cfg, store)
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd.Context(), opts, func(ctx context.Context, cfg config.Config, store storage.Store) error {
					return printVersion(cmd, cfg, store)
				})
			},
		},
	)
	return cmd
}

func printVersion(cmd *cobra.Command, cfg config.Config, store storage.Store) error {
	version, dirty, err := storage.MigrationVersion(store, cfg.Database.URL)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if version == 0 {
		fmt.Fprintln(out, "schema version: none")
		return nil
	}
	if dirty {
		fmt.Fprintf(out, "schema version: %d (dirty)\n", version)
		return nil
	}
	fmt.Fprintf(out, "schema version: %d\n", version)
	return nil
}

// withStore opens the configured database without applying migrations.
func withStore(ctx context.Context, opts *globalOptions, fn func(context.Context, config.Config, storage.Store) error) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	dbCfg := cfg.Database
	dbCfg.AutoMigrate = false

	store, err := storage.Open(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer func() { _ = store.Close() }()
	return fn(ctx, cfg, store)
}
