package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alem-hub/student-insights/internal/interface/cli"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "insights",
		Short: "Student performance insights and early-warning alerts",
		Long: `Insights analyzes each student's academic scores, attendance and LMS
engagement over a rolling window, classifies trends, and raises
severity-ranked alerts for students who need attention.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		cli.NewAnalyzeCmd(),
		cli.NewWorkerCmd(),
		cli.NewMigrateCmd(),
		cli.NewAlertsCmd(),
		cli.NewIngestCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
