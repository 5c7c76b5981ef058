package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/alem-hub/student-insights/config"
)

type analyzeOptions struct {
	studentID int64
	strategy  string
	asJSON    bool
}

// NewAnalyzeCmd creates the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the insights pipeline for one student",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), opts)
		},
	}
	cmd.Flags().Int64Var(&opts.studentID, "student", 0, "student ID to analyze")
	cmd.Flags().StringVar(&opts.strategy, "strategy", "", "execution strategy: workflow or direct (default from PIPELINE_STRATEGY)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the result as JSON")
	_ = cmd.MarkFlagRequired("student")
	return cmd
}

func runAnalyze(ctx context.Context, opts analyzeOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return analyze(ctx, cfg, opts, os.Stdout)
}

func analyze(ctx context.Context, cfg *config.Config, opts analyzeOptions, out io.Writer) error {
	if opts.studentID <= 0 {
		return fmt.Errorf("--student must be a positive ID")
	}
	if opts.strategy != "" {
		cfg.Pipeline.Strategy = opts.strategy
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	if err := a.buildPipeline(ctx); err != nil {
		return err
	}

	res, err := a.pipeline.Run(ctx, opts.studentID)
	if err != nil {
		return fmt.Errorf("analyzing student %d: %w", opts.studentID, err)
	}

	if opts.asJSON {
		return writeJSON(out, res)
	}
	renderResult(out, res, a.pipeline.Strategy())
	return nil
}
