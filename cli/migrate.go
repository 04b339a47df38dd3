package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ordercore/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect and move the SQLite schema version",
		Long: `Applies or rolls back SQLite schema migrations at --sqlite-path.
Other backends manage their own schema and are rejected.`,
		// the store is not opened here; opening it would migrate it
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.configure(); err != nil {
				return err
			}
			if kind := a.v.GetString("store"); kind != "sqlite" {
				return fmt.Errorf("migrate: store %q has no versioned schema, use --store sqlite", kind)
			}
			return nil
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withSchema(cmd, func(ctx context.Context, db *sql.DB) error { return nil })
			},
		},
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withSchema(cmd, store.ApplyMigrations)
			},
		},
		newMigrateDownCmd(a),
	)
	return cmd
}

func newMigrateDownCmd(a *app) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the newest migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return errors.New("--steps must be at least 1")
			}
			return a.withSchema(cmd, func(ctx context.Context, db *sql.DB) error {
				for i := 0; i < steps; i++ {
					if err := store.RollbackMigration(ctx, db); err != nil {
						return err
					}
					v, err := store.SchemaVersion(ctx, db)
					if err != nil {
						return err
					}
					a.logger.Info("migration rolled back", zap.String("version", v))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

// withSchema runs fn against the configured SQLite database and prints the
// resulting schema version.
func (a *app) withSchema(cmd *cobra.Command, fn func(context.Context, *sql.DB) error) error {
	path := a.v.GetString("sqlite-path")
	db, err := store.OpenSQLite(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if err := fn(ctx, db); err != nil {
		return err
	}
	v, err := store.SchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %s (latest %s)\n", v, store.CurrentSchemaVersion)
	return nil
}
