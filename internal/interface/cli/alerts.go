package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/alem-hub/student-insights/config"
	"github.com/alem-hub/student-insights/internal/application/command"
	"github.com/alem-hub/student-insights/internal/application/query"
)

// NewAlertsCmd creates the alerts command group.
func NewAlertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List and resolve persisted alerts",
	}
	cmd.AddCommand(newAlertsListCmd(), newAlertsResolveCmd())
	return cmd
}

type alertsListOptions struct {
	studentID  int64
	unresolved bool
	limit      int
	asJSON     bool
}

func newAlertsListCmd() *cobra.Command {
	var opts alertsListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return listAlerts(cmd.Context(), cfg, opts, os.Stdout)
		},
	}
	cmd.Flags().Int64Var(&opts.studentID, "student", 0, "only alerts for this student")
	cmd.Flags().BoolVar(&opts.unresolved, "unresolved", false, "hide resolved alerts")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "maximum number of alerts (default 50)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print as JSON")
	return cmd
}

func listAlerts(ctx context.Context, cfg *config.Config, opts alertsListOptions, out io.Writer) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	res, err := query.NewListAlertsHandler(a.store).Handle(ctx, query.ListAlertsQuery{
		StudentID:      opts.studentID,
		UnresolvedOnly: opts.unresolved,
		Limit:          opts.limit,
	})
	if err != nil {
		return err
	}

	if opts.asJSON {
		return writeJSON(out, res)
	}
	renderAlerts(out, res.Alerts, time.Now())
	if len(res.Alerts) > 0 {
		fmt.Fprintf(out, "\n%d alert(s), %d unresolved\n", len(res.Alerts), res.Unresolved)
	}
	return nil
}

func newAlertsResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <alert-id>",
		Short: "Mark an alert as resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid alert id %q", args[0])
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return resolveAlert(cmd.Context(), cfg, id, os.Stdout)
		},
	}
}

func resolveAlert(ctx context.Context, cfg *config.Config, id int64, out io.Writer) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	if err := a.buildBus(ctx); err != nil {
		return err
	}

	resolved, err := command.NewResolveAlertHandler(a.store, a.bus, a.logger).
		Handle(ctx, command.ResolveAlertCommand{AlertID: id})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, color.GreenString("Alert #%d resolved at %s", resolved.ID, resolved.ResolvedAt.Format("2006-01-02 15:04:05")))
	return nil
}
