package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/alem-hub/student-insights/config"
	"github.com/alem-hub/student-insights/internal/infrastructure/persistence/postgres"
)

type migrateOptions struct {
	status   bool
	rollback bool
}

// NewMigrateCmd creates the migrate command.
func NewMigrateCmd() *cobra.Command {
	var opts migrateOptions

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.status, "status", false, "list migrations and their state (postgres only)")
	cmd.Flags().BoolVar(&opts.rollback, "rollback", false, "revert the last applied migration (postgres only)")
	cmd.MarkFlagsMutuallyExclusive("status", "rollback")
	return cmd
}

func runMigrate(ctx context.Context, opts migrateOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return migrate(ctx, cfg, opts, os.Stdout)
}

func migrate(ctx context.Context, cfg *config.Config, opts migrateOptions, out io.Writer) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	if opts.status || opts.rollback {
		pg, ok := a.store.(*postgres.Store)
		if !ok {
			return fmt.Errorf("--status and --rollback require the postgres driver")
		}
		if opts.rollback {
			if err := pg.Migrator().Rollback(ctx); err != nil {
				return fmt.Errorf("rolling back: %w", err)
			}
			fmt.Fprintln(out, color.GreenString("Rolled back the last migration"))
			return nil
		}
		migrations, err := pg.Migrator().Status(ctx)
		if err != nil {
			return fmt.Errorf("reading migration status: %w", err)
		}
		for _, m := range migrations {
			state := color.YellowString("pending")
			if m.IsApplied {
				state = color.GreenString("applied %s", m.AppliedAt.Format("2006-01-02 15:04"))
			}
			fmt.Fprintf(out, "%03d  %-28s %s\n", m.Version, m.Name, state)
		}
		return nil
	}

	n, err := a.store.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrating: %w", err)
	}
	if n == 0 {
		fmt.Fprintln(out, "Schema is up to date.")
		return nil
	}
	fmt.Fprintln(out, color.GreenString("Applied %d migration(s)", n))
	return nil
}
