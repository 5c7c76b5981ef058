package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/alem-hub/student-insights/config"
	"github.com/alem-hub/student-insights/internal/application/command"
	"github.com/alem-hub/student-insights/pkg/timeutil"
)

type ingestOptions struct {
	rebase bool
}

// NewIngestCmd creates the ingest command.
func NewIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <file.yaml>",
		Short: "Load students and metric records from a YAML document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return ingest(cmd.Context(), cfg, args[0], opts, os.Stdout)
		},
	}
	cmd.Flags().BoolVar(&opts.rebase, "rebase", false, "shift every date so that as_of becomes today")
	return cmd
}

func ingest(ctx context.Context, cfg *config.Config, path string, opts ingestOptions, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	cmd, err := command.ParseIngestFile(data)
	if err != nil {
		return err
	}
	cmd.Rebase = opts.rebase

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	res, err := command.NewIngestRecordsHandler(a.store, a.logger).Handle(ctx, cmd)
	if err != nil {
		return err
	}

	codes := make([]string, 0, len(res.StudentIDs))
	for code := range res.StudentIDs {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	bold := color.New(color.Bold)
	_, _ = bold.Fprintln(out, "Students:")
	for _, code := range codes {
		fmt.Fprintf(out, "  %-10s id %d\n", code, res.StudentIDs[code])
	}
	fmt.Fprintf(out, "\n%s %d scores, %d attendance marks, %d engagement events\n",
		color.GreenString("Loaded"), res.Scores, res.Attendance, res.Engagement)
	if res.Shift != 0 {
		fmt.Fprintf(out, "Dates shifted by %d day(s)\n", timeutil.WholeDays(res.Shift))
	}
	return nil
}
