package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/student-insights/internal/domain/metrics"
	"github.com/alem-hub/student-insights/internal/domain/shared"
	"github.com/alem-hub/student-insights/internal/infrastructure/telemetry"
	"github.com/alem-hub/student-insights/internal/infrastructure/workflow"
)

// Strategy names.
const (
	StrategyWorkflow = "workflow"
	StrategyDirect   = "direct"
)

// Strategy executes the four stages against a state.
type Strategy interface {
	Name() string
	Run(ctx context.Context, s *State) error
}

// ══════════════════════════════════════════════════════════════════════════════
// DIRECT SEQUENTIAL
// ══════════════════════════════════════════════════════════════════════════════

// directSequential calls the stages in order. With concurrent set, the three
// fetches run in parallel and are joined before analysis; their results are
// applied in stage order so the error list matches the sequential run.
type directSequential struct {
	stages     *stageSet
	concurrent bool
}

func (d *directSequential) Name() string { return StrategyDirect }

func (d *directSequential) Run(ctx context.Context, s *State) error {
	if d.concurrent {
		d.fetchConcurrently(ctx, s)
	} else {
		_ = d.stages.fetchAcademic(ctx, s)
		_ = d.stages.fetchAttendance(ctx, s)
		_ = d.stages.fetchEngagement(ctx, s)
	}
	return d.stages.analyze(ctx, s)
}

func (d *directSequential) fetchConcurrently(ctx context.Context, s *State) {
	var (
		academic   DomainResult[metrics.AcademicSnapshot]
		attendance DomainResult[metrics.AttendanceSnapshot]
		engagement DomainResult[metrics.EngagementSnapshot]
		msgs       [3]string
	)

	st := d.stages
	var g errgroup.Group
	g.Go(func() error {
		academic, msgs[0] = fetchDomain(ctx, st, StageFetchAcademic, metrics.DomainAcademic, st.deps.Academic, s)
		return nil
	})
	g.Go(func() error {
		attendance, msgs[1] = fetchDomain(ctx, st, StageFetchAttendance, metrics.DomainAttendance, st.deps.Attendance, s)
		return nil
	})
	g.Go(func() error {
		engagement, msgs[2] = fetchDomain(ctx, st, StageFetchEngagement, metrics.DomainEngagement, st.deps.Engagement, s)
		return nil
	})
	_ = g.Wait()

	s.Academic, s.Attendance, s.Engagement = academic, attendance, engagement
	for _, msg := range msgs {
		if msg != "" {
			s.appendError(msg)
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// WORKFLOW ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// workflowEngine runs the stages as nodes of a compiled graph with fixed
// edges in stage order.
type workflowEngine struct {
	graph *workflow.Runnable[State]
}

func newWorkflowEngine(st *stageSet, logger *slog.Logger) (*workflowEngine, error) {
	g, err := workflow.New[State]().
		AddNode(StageFetchAcademic, st.fetchAcademic).
		AddNode(StageFetchAttendance, st.fetchAttendance).
		AddNode(StageFetchEngagement, st.fetchEngagement).
		AddNode(StageAnalyze, st.analyze).
		SetEntry(StageFetchAcademic).
		AddEdge(StageFetchAcademic, StageFetchAttendance).
		AddEdge(StageFetchAttendance, StageFetchEngagement).
		AddEdge(StageFetchEngagement, StageAnalyze).
		AddEdge(StageAnalyze, workflow.End).
		Compile(workflow.WithLogger(logger), workflow.WithMaxSteps(len(Stages)))
	if err != nil {
		return nil, err
	}
	logger.Debug("workflow engine ready", "steps", g.Steps())
	return &workflowEngine{graph: g}, nil
}

func (w *workflowEngine) Name() string { return StrategyWorkflow }

func (w *workflowEngine) Run(ctx context.Context, s *State) error {
	return w.graph.Invoke(ctx, s)
}

// ══════════════════════════════════════════════════════════════════════════════
// FALLBACK
// ══════════════════════════════════════════════════════════════════════════════

// fallback runs primary and, if it fails, reruns the invocation with
// secondary on a fresh state. The failure is logged and published but never
// returned. A cancelled run is not rerun: the stages that never ran are
// marked failed and the partial state is kept.
type fallback struct {
	primary   Strategy
	secondary Strategy
	logger    *slog.Logger
	events    shared.EventPublisher
	metrics   *telemetry.Metrics
}

func (f *fallback) Name() string { return f.primary.Name() }

func (f *fallback) Run(ctx context.Context, s *State) error {
	err := f.primary.Run(ctx, s)
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		f.logger.Warn("strategy cancelled, skipping fallback",
			"run_id", s.RunID,
			"student_id", s.StudentID,
			"strategy", f.primary.Name(),
			"error", err,
		)
		s.failPending(ctxErr)
		return nil
	}

	f.logger.Warn("strategy failed, falling back",
		"run_id", s.RunID,
		"student_id", s.StudentID,
		"strategy", f.primary.Name(),
		"fallback", f.secondary.Name(),
		"error", err,
	)
	f.metrics.RecordFallback(ctx, f.primary.Name())
	if f.events != nil {
		if perr := f.events.Publish(shared.NewAnalysisFallbackEvent(s.RunID, s.StudentID, err.Error())); perr != nil {
			f.logger.Warn("failed to publish fallback event", "run_id", s.RunID, "error", perr)
		}
	}

	fresh := NewState(s.RunID, s.StudentID, s.Now)
	if err := f.secondary.Run(ctx, fresh); err != nil {
		return err
	}
	*s = *fresh
	return nil
}
