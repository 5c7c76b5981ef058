// Package synthesis turns the three domain snapshots of one pipeline run
// into insights, alerts, an overall status and a summary line, and persists
// the alerts it raises.
package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alem-hub/student-insights/internal/domain/alert"
	"github.com/alem-hub/student-insights/internal/domain/insight"
	"github.com/alem-hub/student-insights/internal/domain/metrics"
	"github.com/alem-hub/student-insights/internal/domain/shared"
)

// NoDataSummary is the summary when no domain fetch succeeded.
const NoDataSummary = "No data available"

// ══════════════════════════════════════════════════════════════════════════════
// TYPES
// ══════════════════════════════════════════════════════════════════════════════

// Input carries the snapshots of the domains whose fetch succeeded. A nil
// snapshot means the domain failed and does not contribute.
type Input struct {
	StudentID  int64
	Academic   *metrics.AcademicSnapshot
	Attendance *metrics.AttendanceSnapshot
	Engagement *metrics.EngagementSnapshot
}

// Analysis is the synthesized outcome of one run.
type Analysis struct {
	OverallStatus alert.OverallStatus  `json:"overall_status"`
	Insights      []string             `json:"insights"`
	Alerts        []insight.FiredAlert `json:"alerts"`
	Summary       string               `json:"summary"`
}

// DedupPolicy controls whether repeated alerts are persisted.
type DedupPolicy string

const (
	// DedupAlways persists every firing, keeping a full audit trail.
	DedupAlways DedupPolicy = "always"

	// DedupWindow persists a firing only if the same rule has not been
	// persisted for the student within the dedup window.
	DedupWindow DedupPolicy = "window"
)

// Config holds synthesizer settings.
type Config struct {
	Policy DedupPolicy
	Window time.Duration
}

// DefaultConfig returns the audit-trail configuration.
func DefaultConfig() Config {
	return Config{Policy: DedupAlways, Window: 24 * time.Hour}
}

// ══════════════════════════════════════════════════════════════════════════════
// SYNTHESIZER
// ══════════════════════════════════════════════════════════════════════════════

// Synthesizer applies a rule set to snapshots and persists the raised alerts.
type Synthesizer struct {
	rules  *insight.RuleSet
	sink   alert.Sink
	guard  alert.DedupGuard
	events shared.EventPublisher
	logger *slog.Logger
	config Config
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithDedupGuard sets the guard consulted under DedupWindow.
func WithDedupGuard(g alert.DedupGuard) Option {
	return func(s *Synthesizer) { s.guard = g }
}

// WithEventPublisher publishes an AlertRaisedEvent for every persisted alert.
func WithEventPublisher(p shared.EventPublisher) Option {
	return func(s *Synthesizer) { s.events = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synthesizer) { s.logger = l }
}

// New creates a Synthesizer. A nil rule set uses insight.Default().
func New(rules *insight.RuleSet, sink alert.Sink, config Config, opts ...Option) (*Synthesizer, error) {
	if sink == nil {
		return nil, shared.NewDomainError("synthesis", "New", shared.ErrInvalidInput, "alert sink is required")
	}
	if rules == nil {
		rules = insight.Default()
	}
	if config.Policy == "" {
		config.Policy = DedupAlways
	}
	s := &Synthesizer{rules: rules, sink: sink, config: config, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if config.Policy == DedupWindow && s.guard == nil {
		return nil, shared.NewDomainError("synthesis", "New", shared.ErrInvalidInput, "window dedup policy requires a dedup guard")
	}
	if config.Policy != DedupAlways && config.Policy != DedupWindow {
		return nil, shared.NewDomainError("synthesis", "New", shared.ErrInvalidInput, fmt.Sprintf("unknown dedup policy %q", config.Policy))
	}
	return s, nil
}

// firing pairs a fired alert with the rule that raised it.
type firing struct {
	rule  string
	alert insight.FiredAlert
}

// Synthesize evaluates the rule table for every present snapshot, persists
// the raised alerts in one transaction and returns the analysis. Any
// failure is reported as a synthesis error; nothing is persisted then.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) (Analysis, error) {
	analysis := Analysis{
		Insights: []string{},
		Alerts:   []insight.FiredAlert{},
	}

	var firings []firing
	var summary []string

	evaluate := func(domain metrics.Domain, facts insight.Facts) error {
		findings, err := s.rules.Evaluate(domain, facts)
		if err != nil {
			return err
		}
		for _, f := range findings {
			analysis.Insights = append(analysis.Insights, f.Insight)
			if f.Alert != nil {
				analysis.Alerts = append(analysis.Alerts, *f.Alert)
				firings = append(firings, firing{rule: f.Rule, alert: *f.Alert})
			}
		}
		return nil
	}

	if in.Academic != nil {
		if err := evaluate(metrics.DomainAcademic, insight.AcademicFacts(*in.Academic)); err != nil {
			return Analysis{}, synthesisError("Evaluate", err)
		}
		summary = append(summary, fmt.Sprintf("Academic average: %.1f%%", in.Academic.AverageScore))
	}
	if in.Attendance != nil {
		if err := evaluate(metrics.DomainAttendance, insight.AttendanceFacts(*in.Attendance)); err != nil {
			return Analysis{}, synthesisError("Evaluate", err)
		}
		summary = append(summary, fmt.Sprintf("Attendance: %.1f%%", in.Attendance.AttendancePercentage))
	}
	if in.Engagement != nil {
		if err := evaluate(metrics.DomainEngagement, insight.EngagementFacts(*in.Engagement)); err != nil {
			return Analysis{}, synthesisError("Evaluate", err)
		}
		summary = append(summary, fmt.Sprintf("LMS logins: %d", in.Engagement.LoginCount))
	}

	if err := s.persist(ctx, in.StudentID, firings); err != nil {
		return Analysis{}, synthesisError("Persist", err)
	}

	severities := make([]alert.Severity, len(analysis.Alerts))
	for i, a := range analysis.Alerts {
		severities[i] = a.Severity
	}
	analysis.OverallStatus = alert.Rollup(severities)

	analysis.Summary = NoDataSummary
	if len(summary) > 0 {
		analysis.Summary = strings.Join(summary, " | ")
	}
	return analysis, nil
}

// persist stores the alerts admitted by the dedup policy in one SaveAlerts call.
func (s *Synthesizer) persist(ctx context.Context, studentID int64, firings []firing) error {
	if len(firings) == 0 {
		return nil
	}

	pending := make([]*alert.Alert, 0, len(firings))
	var reserved []alert.Key
	for _, f := range firings {
		a, err := alert.New(studentID, f.alert.Type, f.alert.Severity, f.alert.Message)
		if err != nil {
			s.release(ctx, reserved)
			return err
		}
		if s.config.Policy == DedupWindow {
			key := alert.KeyFor(a, f.rule)
			ok, err := s.guard.Admit(ctx, key, s.config.Window)
			if err != nil {
				s.release(ctx, reserved)
				return fmt.Errorf("dedup guard: %w", err)
			}
			if !ok {
				s.logger.Debug("alert suppressed by dedup window",
					"student_id", studentID, "rule", f.rule, "alert_type", a.Type)
				continue
			}
			reserved = append(reserved, key)
		}
		pending = append(pending, a)
	}

	if len(pending) == 0 {
		return nil
	}
	if err := s.sink.SaveAlerts(ctx, pending); err != nil {
		s.release(ctx, reserved)
		return err
	}

	s.logger.Info("alerts persisted", "student_id", studentID, "count", len(pending))
	if s.events != nil {
		for _, a := range pending {
			ev := shared.NewAlertRaisedEvent(a.ID, a.StudentID, string(a.Type), string(a.Severity), a.Message)
			if err := s.events.Publish(ev); err != nil {
				s.logger.Warn("failed to publish alert event", "alert_id", a.ID, "error", err)
			}
		}
	}
	return nil
}

func (s *Synthesizer) release(ctx context.Context, keys []alert.Key) {
	for _, k := range keys {
		if err := s.guard.Release(ctx, k); err != nil {
			s.logger.Warn("failed to release dedup reservation", "student_id", k.StudentID, "rule", k.Rule, "error", err)
		}
	}
}

func synthesisError(op string, err error) error {
	return shared.WrapError("synthesis", op, shared.ErrSynthesisFailed, "analysis failed", err)
}
