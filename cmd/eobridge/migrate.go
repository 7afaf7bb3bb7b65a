package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-enocean/migrations"
)

// migrateFunc runs one schema operation against the history database.
type migrateFunc func(ctx context.Context, db *database.DB, out io.Writer) error

// newMigrateCmd builds "eobridge migrate {up,down,status}". The database
// path comes from the configuration file even when database.enabled is off,
// so a schema can be prepared before history is switched on.
func newMigrateCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the history database schema",
	}

	cmd.AddCommand(
		migrateSubcommand(opts, "up", "Apply every pending migration", migrateUp),
		migrateSubcommand(opts, "down", "Roll back the most recent migration", migrateDown),
		migrateSubcommand(opts, "status", "List applied and pending migrations", migrateStatus),
	)
	return cmd
}

func migrateSubcommand(opts *options, use, short string, fn migrateFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return withDatabase(cmd.Context(), cfg.Database, func(ctx context.Context, db *database.DB) error {
				return fn(ctx, db, cmd.OutOrStdout())
			})
		},
	}
}

// withDatabase opens the database without migrating it and closes it after fn.
func withDatabase(ctx context.Context, cfg config.DatabaseConfig, fn func(context.Context, *database.DB) error) error {
	db, err := database.Open(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	return fn(ctx, db)
}

func migrateUp(ctx context.Context, db *database.DB, out io.Writer) error {
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	fmt.Fprintln(out, "migrations applied")
	return nil
}

func migrateDown(ctx context.Context, db *database.DB, out io.Writer) error {
	applied, _, err := db.MigrationStatus(ctx, migrations.FS)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(out, "nothing to roll back")
		return nil
	}
	if err := db.MigrateDown(ctx, migrations.FS); err != nil {
		return fmt.Errorf("rolling back %s: %w", applied[len(applied)-1].Version, err)
	}
	fmt.Fprintf(out, "rolled back %s\n", applied[len(applied)-1].Version)
	return nil
}

func migrateStatus(ctx context.Context, db *database.DB, out io.Writer) error {
	applied, pending, err := db.MigrationStatus(ctx, migrations.FS)
	if err != nil {
		return err
	}
	for _, r := range applied {
		fmt.Fprintf(out, "applied  %s  %s\n", r.Version, r.AppliedAt.Format("2006-01-02 15:04:05"))
	}
	for _, m := range pending {
		fmt.Fprintf(out, "pending  %s  %s\n", m.Version, m.Name)
	}
	return nil
}
