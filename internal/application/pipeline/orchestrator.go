// Package pipeline runs the staged student analysis: three independent
// domain fetches followed by synthesis. Every invocation owns a private
// State; stage failures are recorded as data and never abort the run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/student-insights/internal/domain/shared"
	"github.com/alem-hub/student-insights/internal/infrastructure/telemetry"
)

// Config selects the execution strategy.
type Config struct {
	// Strategy is StrategyWorkflow or StrategyDirect.
	Strategy string

	// ConcurrentFetch runs the three fetches of the direct strategy in parallel.
	ConcurrentFetch bool
}

// DefaultConfig prefers the workflow engine.
func DefaultConfig() Config {
	return Config{Strategy: StrategyWorkflow}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithEventPublisher publishes analysis.completed and analysis.fallback events.
func WithEventPublisher(p shared.EventPublisher) Option {
	return func(o *Orchestrator) { o.events = p }
}

// WithMetrics records run, stage and alert metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides time.Now for the evaluation instant.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

// WithRunIDs overrides the run id generator.
func WithRunIDs(next func() string) Option {
	return func(o *Orchestrator) { o.newRunID = next }
}

// Orchestrator owns the strategy chosen at construction and runs it once per
// invocation.
type Orchestrator struct {
	strategy Strategy
	logger   *slog.Logger
	events   shared.EventPublisher
	metrics  *telemetry.Metrics
	clock    func() time.Time
	newRunID func() string
}

// New builds an orchestrator. The workflow strategy is wrapped in a fallback
// to direct execution; if its graph cannot be built, direct execution is
// used from the start.
func New(deps Deps, cfg Config, opts ...Option) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, shared.WrapError("pipeline", "New", shared.ErrInvalidInput, "invalid dependencies", err)
	}

	o := &Orchestrator{
		logger:   slog.Default(),
		clock:    time.Now,
		newRunID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(o)
	}

	st := &stageSet{deps: deps, logger: o.logger, metrics: o.metrics}
	direct := &directSequential{stages: st, concurrent: cfg.ConcurrentFetch}

	switch cfg.Strategy {
	case StrategyDirect:
		o.strategy = direct
	case StrategyWorkflow, "":
		engine, err := newWorkflowEngine(st, o.logger)
		if err != nil {
			o.logger.Warn("workflow engine unavailable, using direct strategy", "error", err)
			o.strategy = direct
			break
		}
		o.strategy = &fallback{
			primary:   engine,
			secondary: direct,
			logger:    o.logger,
			events:    o.events,
			metrics:   o.metrics,
		}
	default:
		return nil, shared.NewDomainError("pipeline", "New", shared.ErrInvalidInput,
			fmt.Sprintf("unknown strategy %q", cfg.Strategy))
	}
	return o, nil
}

// Strategy returns the name of the selected strategy.
func (o *Orchestrator) Strategy() string {
	return o.strategy.Name()
}

// Run analyzes one student at the current instant.
func (o *Orchestrator) Run(ctx context.Context, studentID int64) (Result, error) {
	return o.RunAt(ctx, studentID, o.clock().UTC())
}

// RunAt analyzes one student with now as the evaluation instant for every
// stage. Only invalid input is returned as an error; stage failures are
// part of the result.
func (o *Orchestrator) RunAt(ctx context.Context, studentID int64, now time.Time) (Result, error) {
	if studentID <= 0 {
		return Result{}, shared.ErrInvalidStudentID
	}

	start := time.Now()
	state := NewState(o.newRunID(), studentID, now)
	logger := o.logger.With("run_id", state.RunID, "student_id", studentID)
	logger.Debug("pipeline started", "strategy", o.strategy.Name())

	if err := o.strategy.Run(ctx, state); err != nil {
		return Result{}, shared.WrapError("pipeline", "Run", shared.ErrWorkflowFailed, "all strategies failed", err)
	}

	result := state.Result()
	status := result.OverallStatus()
	alertCount := 0
	if result.Analysis.Analysis != nil {
		alertCount = len(result.Analysis.Analysis.Alerts)
		for _, a := range result.Analysis.Analysis.Alerts {
			o.metrics.RecordAlert(ctx, string(a.Type), string(a.Severity))
		}
	}
	o.metrics.RecordRun(ctx, o.strategy.Name(), status, time.Since(start))

	logger.Info("pipeline completed",
		"strategy", o.strategy.Name(),
		"overall_status", status,
		"alerts", alertCount,
		"errors", len(result.Errors),
		"duration", time.Since(start),
	)

	if o.events != nil {
		ev := shared.NewAnalysisCompletedEvent(state.RunID, studentID, status, alertCount, len(result.Errors), o.strategy.Name())
		if err := o.events.Publish(ev); err != nil {
			logger.Warn("failed to publish analysis event", "error", err)
		}
	}
	return result, nil
}
