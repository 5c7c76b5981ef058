package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/alem-hub/student-insights/internal/application/synthesis"
	"github.com/alem-hub/student-insights/internal/domain/metrics"
	"github.com/alem-hub/student-insights/internal/infrastructure/telemetry"
)

// Stage names, in execution order.
const (
	StageFetchAcademic   = "fetch_academic"
	StageFetchAttendance = "fetch_attendance"
	StageFetchEngagement = "fetch_engagement"
	StageAnalyze         = "analyze"
)

// Stages lists the stage names in execution order.
var Stages = []string{StageFetchAcademic, StageFetchAttendance, StageFetchEngagement, StageAnalyze}

// Fetcher loads and summarizes one domain for a student.
type Fetcher[T any] interface {
	Fetch(ctx context.Context, studentID int64, now time.Time) (T, error)
}

// Synthesizer turns the successful snapshots into an analysis.
type Synthesizer interface {
	Synthesize(ctx context.Context, in synthesis.Input) (synthesis.Analysis, error)
}

// Deps are the collaborators every strategy runs.
type Deps struct {
	Academic    Fetcher[metrics.AcademicSnapshot]
	Attendance  Fetcher[metrics.AttendanceSnapshot]
	Engagement  Fetcher[metrics.EngagementSnapshot]
	Synthesizer Synthesizer
}

func (d Deps) validate() error {
	switch {
	case d.Academic == nil:
		return fmt.Errorf("academic fetcher is required")
	case d.Attendance == nil:
		return fmt.Errorf("attendance fetcher is required")
	case d.Engagement == nil:
		return fmt.Errorf("engagement fetcher is required")
	case d.Synthesizer == nil:
		return fmt.Errorf("synthesizer is required")
	}
	return nil
}

// stageSet binds the four stages to their collaborators. Each stage records
// its own failure in the state and never returns an error, so a failed or
// panicking stage never stops the run.
type stageSet struct {
	deps    Deps
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

func (st *stageSet) fetchAcademic(ctx context.Context, s *State) error {
	r, msg := fetchDomain(ctx, st, StageFetchAcademic, metrics.DomainAcademic, st.deps.Academic, s)
	s.Academic = r
	if msg != "" {
		s.appendError(msg)
	}
	return nil
}

func (st *stageSet) fetchAttendance(ctx context.Context, s *State) error {
	r, msg := fetchDomain(ctx, st, StageFetchAttendance, metrics.DomainAttendance, st.deps.Attendance, s)
	s.Attendance = r
	if msg != "" {
		s.appendError(msg)
	}
	return nil
}

func (st *stageSet) fetchEngagement(ctx context.Context, s *State) error {
	r, msg := fetchDomain(ctx, st, StageFetchEngagement, metrics.DomainEngagement, st.deps.Engagement, s)
	s.Engagement = r
	if msg != "" {
		s.appendError(msg)
	}
	return nil
}

func (st *stageSet) analyze(ctx context.Context, s *State) error {
	start := time.Now()
	analysis, err := st.synthesize(ctx, s)
	st.metrics.RecordStage(ctx, StageAnalyze, err != nil, time.Since(start))
	if err != nil {
		st.logger.Warn("analysis failed",
			"run_id", s.RunID, "student_id", s.StudentID, "error", err)
		s.Analysis = AnalysisResult{Status: StatusError, Error: cause(err)}
		s.appendError("Analysis error: " + cause(err))
		return nil
	}
	s.Analysis = AnalysisResult{Status: StatusSuccess, Analysis: &analysis}
	return nil
}

// fetchDomain runs one fetcher and returns the tagged result plus the error
// list entry, if any. It reads s but never writes it, so fetches may run
// concurrently.
func fetchDomain[T any](ctx context.Context, st *stageSet, stage string, domain metrics.Domain, f Fetcher[T], s *State) (DomainResult[T], string) {
	start := time.Now()
	snap, err := callFetch(ctx, st, stage, f, s)
	st.metrics.RecordStage(ctx, stage, err != nil, time.Since(start))
	if err != nil {
		st.logger.Warn("fetch failed",
			"run_id", s.RunID, "student_id", s.StudentID, "domain", domain, "error", err)
		return failed[T](err), fmt.Sprintf("%s fetch error: %s", domain.Title(), cause(err))
	}
	return succeeded(snap), ""
}

func callFetch[T any](ctx context.Context, st *stageSet, stage string, f Fetcher[T], s *State) (snap T, err error) {
	defer st.recoverStage(s, stage, &err)
	return f.Fetch(ctx, s.StudentID, s.Now)
}

func (st *stageSet) synthesize(ctx context.Context, s *State) (analysis synthesis.Analysis, err error) {
	defer st.recoverStage(s, StageAnalyze, &err)
	return st.deps.Synthesizer.Synthesize(ctx, s.synthesisInput())
}

// recoverStage turns a collaborator panic into the stage error.
func (st *stageSet) recoverStage(s *State, stage string, err *error) {
	rec := recover()
	if rec == nil {
		return
	}
	st.logger.Error("stage panicked",
		"run_id", s.RunID,
		"student_id", s.StudentID,
		"stage", stage,
		"panic", rec,
		"stack", string(debug.Stack()),
	)
	*err = fmt.Errorf("panic: %v", rec)
}
