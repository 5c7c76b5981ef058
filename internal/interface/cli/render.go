package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/alem-hub/student-insights/internal/application/pipeline"
	"github.com/alem-hub/student-insights/internal/domain/alert"
	"github.com/alem-hub/student-insights/pkg/timeutil"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func statusLabel(status string) string {
	switch alert.OverallStatus(status) {
	case alert.StatusGood:
		return color.GreenString("GOOD")
	case alert.StatusAttentionNeeded:
		return color.YellowString("ATTENTION NEEDED")
	case alert.StatusCritical:
		return color.RedString("CRITICAL")
	default:
		return color.RedString("ERROR")
	}
}

func severityLabel(s alert.Severity) string {
	label := strings.ToUpper(string(s))
	switch s {
	case alert.SeverityCritical, alert.SeverityHigh:
		return color.RedString(label)
	case alert.SeverityMedium:
		return color.YellowString(label)
	default:
		return color.CyanString(label)
	}
}

func stageLine(name string, ok bool, errMsg string) string {
	if ok {
		return fmt.Sprintf("  %-12s %s", name, color.GreenString("ok"))
	}
	return fmt.Sprintf("  %-12s %s %s", name, color.RedString("failed"), errMsg)
}

// renderResult prints a human-readable pipeline result.
func renderResult(w io.Writer, res pipeline.Result, strategy string) {
	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(w, "Student %d: %s\n", res.StudentID, statusLabel(res.OverallStatus()))
	fmt.Fprintf(w, "Strategy: %s\n\n", strategy)

	_, _ = bold.Fprintln(w, "Stages:")
	fmt.Fprintln(w, stageLine("academic", res.Academic.OK(), res.Academic.Error))
	fmt.Fprintln(w, stageLine("attendance", res.Attendance.OK(), res.Attendance.Error))
	fmt.Fprintln(w, stageLine("engagement", res.Engagement.OK(), res.Engagement.Error))
	fmt.Fprintln(w, stageLine("analysis", res.Analysis.OK(), res.Analysis.Error))

	if an := res.Analysis.Analysis; an != nil {
		if len(an.Insights) > 0 {
			fmt.Fprintln(w)
			_, _ = bold.Fprintln(w, "Insights:")
			for _, in := range an.Insights {
				fmt.Fprintf(w, "  - %s\n", in)
			}
		}
		if len(an.Alerts) > 0 {
			fmt.Fprintln(w)
			_, _ = bold.Fprintln(w, "Alerts:")
			for _, a := range an.Alerts {
				fmt.Fprintf(w, "  [%s] %s: %s\n", severityLabel(a.Severity), a.Type, a.Message)
			}
		}
		fmt.Fprintf(w, "\nSummary: %s\n", an.Summary)
	}

	if len(res.Errors) > 0 {
		fmt.Fprintln(w)
		_, _ = bold.Fprintln(w, "Errors:")
		for _, e := range res.Errors {
			fmt.Fprintf(w, "  %s\n", color.RedString(e))
		}
	}
}

// renderAlerts prints an alert table.
func renderAlerts(w io.Writer, alerts []*alert.Alert, now time.Time) {
	if len(alerts) == 0 {
		fmt.Fprintln(w, "No alerts.")
		return
	}
	for _, a := range alerts {
		state := color.YellowString("open")
		if a.IsResolved {
			state = color.GreenString("resolved")
		}
		fmt.Fprintf(w, "#%-5d student %-6d %-8s %-18s %-10s %-14s %s\n",
			a.ID, a.StudentID, severityLabel(a.Severity), a.Type, state,
			timeutil.FormatRelative(a.CreatedAt, now), a.Message)
	}
}
