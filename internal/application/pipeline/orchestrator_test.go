package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/alem-hub/student-insights/internal/application/fetcher"
	"github.com/alem-hub/student-insights/internal/application/synthesis"
	"github.com/alem-hub/student-insights/internal/domain/alert"
	"github.com/alem-hub/student-insights/internal/domain/metrics"
	"github.com/alem-hub/student-insights/internal/domain/shared"
	"github.com/alem-hub/student-insights/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var now = time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

func ago(days int) time.Time { return now.Add(-time.Duration(days) * metrics.Day) }

type recorder struct {
	mu     sync.Mutex
	events []shared.Event
}

func (r *recorder) Publish(e shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []shared.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]shared.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType()
	}
	return out
}

func depsFor(t *testing.T, store *testutil.MemoryStore) Deps {
	t.Helper()
	synth, err := synthesis.New(nil, store, synthesis.DefaultConfig())
	require.NoError(t, err)
	return Deps{
		Academic:    fetcher.NewAcademic(store, nil),
		Attendance:  fetcher.NewAttendance(store, nil),
		Engagement:  fetcher.NewEngagement(store, nil),
		Synthesizer: synth,
	}
}

func fixedRunIDs() Option {
	return WithRunIDs(func() string { return "run-1" })
}

// seed stores a student with 40 attendance marks (95% effective presence),
// three scores averaging 68.33% and 10 logins with 3 submissions.
func seed(t *testing.T, store *testutil.MemoryStore) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.SaveStudent(ctx, &metrics.Student{ID: 1, FullName: "Aru", IsActive: true}))

	require.NoError(t, store.AddAcademicScores(ctx, []*metrics.AcademicScore{
		{StudentID: 1, Subject: "Math", Percentage: 60, Date: ago(2)},
		{StudentID: 1, Subject: "Physics", Percentage: 70, Date: ago(4)},
		{StudentID: 1, Subject: "Math", Percentage: 75, Date: ago(6)},
	}))

	// Absences fall in the previous trend window so attendance is improving.
	var marks []*metrics.AttendanceRecord
	add := func(n int, status metrics.AttendanceStatus, firstDay int) {
		for i := 0; i < n; i++ {
			marks = append(marks, &metrics.AttendanceRecord{
				StudentID: 1, Status: status, ClassName: "Math", Date: ago(firstDay + i%12),
			})
		}
	}
	add(32, metrics.AttendancePresent, 0)
	add(4, metrics.AttendanceLate, 2)
	add(2, metrics.AttendanceExcused, 4)
	add(2, metrics.AttendanceAbsent, 20)
	require.NoError(t, store.AddAttendanceRecords(ctx, marks))

	var logs []*metrics.EngagementLog
	for i := 0; i < 10; i++ {
		logs = append(logs, &metrics.EngagementLog{StudentID: 1, ActivityType: metrics.ActivityLogin, Timestamp: ago(1).Add(-time.Duration(i) * time.Hour)})
	}
	for i := 0; i < 3; i++ {
		logs = append(logs, &metrics.EngagementLog{StudentID: 1, ActivityType: metrics.ActivityAssignmentSubmitted, Timestamp: ago(2).Add(-time.Duration(i) * time.Hour)})
	}
	require.NoError(t, store.AddEngagementLogs(ctx, logs))
}

func alertsOfType(alerts []alert.Alert, t alert.Type) int {
	n := 0
	for _, a := range alerts {
		if a.Type == t {
			n++
		}
	}
	return n
}

func TestOrchestrator_EndToEnd(t *testing.T) {
	for _, strategy := range []string{StrategyWorkflow, StrategyDirect} {
		t.Run(strategy, func(t *testing.T) {
			store := testutil.NewMemoryStore()
			seed(t, store)
			events := &recorder{}

			o, err := New(depsFor(t, store), Config{Strategy: strategy}, fixedRunIDs(), WithEventPublisher(events))
			require.NoError(t, err)
			assert.Equal(t, strategy, o.Strategy())

			res, err := o.RunAt(context.Background(), 1, now)
			require.NoError(t, err)

			assert.Empty(t, res.Errors)
			require.True(t, res.Attendance.OK())
			assert.Equal(t, 40, res.Attendance.Data.TotalClasses)
			assert.Equal(t, 95.0, res.Attendance.Data.AttendancePercentage)

			require.True(t, res.Academic.OK())
			assert.Equal(t, 68.33, res.Academic.Data.AverageScore)

			require.True(t, res.Analysis.OK())
			a := res.Analysis.Analysis
			assert.Equal(t, alert.StatusCritical, a.OverallStatus)
			assert.Contains(t, a.Insights, "✅ Attendance is excellent")
			assert.Equal(t, "Academic average: 68.3% | Attendance: 95.0% | LMS logins: 10", a.Summary)

			saved := store.Alerts()
			assert.Equal(t, 1, alertsOfType(saved, alert.TypeGradeDrop))
			assert.Equal(t, 0, alertsOfType(saved, alert.TypeAttendanceDrop))
			assert.Equal(t, 1, alertsOfType(saved, alert.TypeEngagementDrop))
			assert.Equal(t, 1, alertsOfType(saved, alert.TypeMissingAssignment))
			assert.Equal(t, "Average score is 68.3%, which is below the threshold of 70%", saved[0].Message)

			assert.Equal(t, []shared.EventType{shared.EventAnalysisCompleted}, events.types())
		})
	}
}

func TestOrchestrator_FetchFailureIsolated(t *testing.T) {
	store := testutil.NewMemoryStore()
	seed(t, store)
	store.FailReads(metrics.DomainAcademic, errors.New("connection refused"))

	o, err := New(depsFor(t, store), DefaultConfig(), fixedRunIDs())
	require.NoError(t, err)

	res, err := o.RunAt(context.Background(), 1, now)
	require.NoError(t, err)

	assert.Equal(t, []string{"Academic fetch error: connection refused"}, res.Errors)
	assert.False(t, res.Academic.OK())
	assert.Nil(t, res.Academic.Data)
	assert.Equal(t, 40, res.Attendance.Data.TotalClasses)
	assert.Equal(t, 13, res.Engagement.Data.TotalActivities)

	a := res.Analysis.Analysis
	require.NotNil(t, a)
	assert.Equal(t, "Attendance: 95.0% | LMS logins: 10", a.Summary)
	assert.Equal(t, alert.StatusAttentionNeeded, a.OverallStatus)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.JSONEq(t, `{"status":"error","error":"connection refused"}`, string(doc["academic"]))
}

func TestOrchestrator_AllFetchesFail(t *testing.T) {
	store := testutil.NewMemoryStore()
	boom := errors.New("store unreachable")
	for _, d := range metrics.Domains {
		store.FailReads(d, boom)
	}

	o, err := New(depsFor(t, store), Config{Strategy: StrategyDirect, ConcurrentFetch: true}, fixedRunIDs())
	require.NoError(t, err)

	res, err := o.RunAt(context.Background(), 9, now)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Academic fetch error: store unreachable",
		"Attendance fetch error: store unreachable",
		"Engagement fetch error: store unreachable",
	}, res.Errors)
	assert.Equal(t, synthesis.NoDataSummary, res.Analysis.Analysis.Summary)
	assert.Equal(t, "good", res.OverallStatus())
}

func TestOrchestrator_SynthesisFailure(t *testing.T) {
	store := testutil.NewMemoryStore()
	seed(t, store)
	store.FailSave(errors.New("disk full"))

	o, err := New(depsFor(t, store), DefaultConfig(), fixedRunIDs())
	require.NoError(t, err)

	res, err := o.RunAt(context.Background(), 1, now)
	require.NoError(t, err)

	assert.Equal(t, []string{"Analysis error: disk full"}, res.Errors)
	assert.True(t, res.Academic.OK())
	assert.Equal(t, "error", res.OverallStatus())

	raw, err := json.Marshal(res.Analysis)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"error","error":"disk full"}`, string(raw))
}

func TestOrchestrator_StrategiesProduceIdenticalResults(t *testing.T) {
	configs := []Config{
		{Strategy: StrategyWorkflow},
		{Strategy: StrategyDirect},
		{Strategy: StrategyDirect, ConcurrentFetch: true},
	}

	var outputs [][]byte
	for _, cfg := range configs {
		store := testutil.NewMemoryStore()
		seed(t, store)
		store.FailReads(metrics.DomainEngagement, errors.New("timeout"))

		o, err := New(depsFor(t, store), cfg, fixedRunIDs())
		require.NoError(t, err)
		res, err := o.RunAt(context.Background(), 1, now)
		require.NoError(t, err)

		raw, err := json.Marshal(res)
		require.NoError(t, err)
		outputs = append(outputs, raw)
	}

	assert.Equal(t, string(outputs[0]), string(outputs[1]))
	assert.Equal(t, string(outputs[0]), string(outputs[2]))
}

type panickingAcademic struct {
	calls atomic.Int32
}

func (f *panickingAcademic) Fetch(context.Context, int64, time.Time) (metrics.AcademicSnapshot, error) {
	f.calls.Add(1)
	var m map[string]int
	m["x"] = 1
	return metrics.AcademicSnapshot{}, nil
}

type panickingSynthesizer struct{}

func (panickingSynthesizer) Synthesize(context.Context, synthesis.Input) (synthesis.Analysis, error) {
	panic("engine bug")
}

func TestOrchestrator_FetcherPanicIsolated(t *testing.T) {
	configs := []Config{
		{Strategy: StrategyWorkflow},
		{Strategy: StrategyDirect},
		{Strategy: StrategyDirect, ConcurrentFetch: true},
	}
	for _, cfg := range configs {
		t.Run(fmt.Sprintf("%s/concurrent=%v", cfg.Strategy, cfg.ConcurrentFetch), func(t *testing.T) {
			store := testutil.NewMemoryStore()
			seed(t, store)
			events := &recorder{}

			deps := depsFor(t, store)
			academic := &panickingAcademic{}
			deps.Academic = academic

			o, err := New(deps, cfg, fixedRunIDs(), WithEventPublisher(events))
			require.NoError(t, err)

			var res Result
			assert.NotPanics(t, func() {
				res, err = o.RunAt(context.Background(), 1, now)
			})
			require.NoError(t, err)

			assert.Equal(t, int32(1), academic.calls.Load())
			assert.False(t, res.Academic.OK())
			assert.Equal(t, "panic: assignment to entry in nil map", res.Academic.Error)
			assert.Equal(t, []string{"Academic fetch error: panic: assignment to entry in nil map"}, res.Errors)
			assert.True(t, res.Attendance.OK())
			assert.True(t, res.Engagement.OK())
			assert.True(t, res.Analysis.OK())
			assert.Equal(t, []shared.EventType{shared.EventAnalysisCompleted}, events.types())
		})
	}
}

func TestOrchestrator_SynthesizerPanicIsolated(t *testing.T) {
	for _, strategy := range []string{StrategyWorkflow, StrategyDirect} {
		t.Run(strategy, func(t *testing.T) {
			store := testutil.NewMemoryStore()
			seed(t, store)
			events := &recorder{}

			deps := depsFor(t, store)
			deps.Synthesizer = panickingSynthesizer{}

			o, err := New(deps, Config{Strategy: strategy}, fixedRunIDs(), WithEventPublisher(events))
			require.NoError(t, err)

			var res Result
			assert.NotPanics(t, func() {
				res, err = o.RunAt(context.Background(), 1, now)
			})
			require.NoError(t, err)

			assert.True(t, res.Academic.OK())
			assert.Equal(t, []string{"Analysis error: panic: engine bug"}, res.Errors)
			assert.Equal(t, "error", res.OverallStatus())
			assert.Equal(t, []shared.EventType{shared.EventAnalysisCompleted}, events.types())
		})
	}
}

type countingAcademic struct {
	next  Fetcher[metrics.AcademicSnapshot]
	calls atomic.Int32
}

func (f *countingAcademic) Fetch(ctx context.Context, studentID int64, now time.Time) (metrics.AcademicSnapshot, error) {
	f.calls.Add(1)
	return f.next.Fetch(ctx, studentID, now)
}

func TestOrchestrator_CancelledRunSkipsFallback(t *testing.T) {
	store := testutil.NewMemoryStore()
	seed(t, store)
	events := &recorder{}

	deps := depsFor(t, store)
	academic := &countingAcademic{next: deps.Academic}
	deps.Academic = academic

	o, err := New(deps, DefaultConfig(), fixedRunIDs(), WithEventPublisher(events))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := o.RunAt(ctx, 1, now)
	require.NoError(t, err)

	assert.Zero(t, academic.calls.Load())
	assert.Equal(t, []string{
		"Academic fetch error: context canceled",
		"Attendance fetch error: context canceled",
		"Engagement fetch error: context canceled",
		"Analysis error: context canceled",
	}, res.Errors)
	assert.Equal(t, "error", res.OverallStatus())
	assert.Equal(t, []shared.EventType{shared.EventAnalysisCompleted}, events.types())

	assert.Zero(t, store.SaveCalls())
}

// ══════════════════════════════════════════════════════════════════════════════
// FALLBACK
// ══════════════════════════════════════════════════════════════════════════════

type stubStrategy struct {
	calls int
	run   func(ctx context.Context, s *State) error
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) Run(ctx context.Context, st *State) error {
	s.calls++
	return s.run(ctx, st)
}

func TestFallback_RerunsOnFreshState(t *testing.T) {
	store := testutil.NewMemoryStore()
	seed(t, store)
	events := &recorder{}

	primary := &stubStrategy{run: func(_ context.Context, s *State) error {
		s.Academic = failed[metrics.AcademicSnapshot](errors.New("half done"))
		s.appendError("Academic fetch error: half done")
		return errors.New("engine broke")
	}}
	st := &stageSet{deps: depsFor(t, store), logger: slog.Default()}
	f := &fallback{
		primary:   primary,
		secondary: &directSequential{stages: st},
		logger:    slog.Default(),
		events:    events,
	}

	s := NewState("run-1", 1, now)
	require.NoError(t, f.Run(context.Background(), s))

	assert.Equal(t, 1, primary.calls)
	assert.Empty(t, s.Errors)
	assert.True(t, s.Academic.OK())
	assert.True(t, s.Analysis.OK())
	assert.Equal(t, []shared.EventType{shared.EventAnalysisFallback}, events.types())
}

func TestFallback_CancelledKeepsPartialState(t *testing.T) {
	store := testutil.NewMemoryStore()
	seed(t, store)
	events := &recorder{}
	deps := depsFor(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	primary := &stubStrategy{run: func(ctx context.Context, s *State) error {
		snap, err := deps.Academic.Fetch(ctx, s.StudentID, s.Now)
		require.NoError(t, err)
		s.Academic = succeeded(snap)
		cancel()
		return ctx.Err()
	}}
	secondary := &stubStrategy{run: func(context.Context, *State) error { return nil }}
	f := &fallback{primary: primary, secondary: secondary, logger: slog.Default(), events: events}

	s := NewState("run-1", 1, now)
	require.NoError(t, f.Run(ctx, s))

	assert.Zero(t, secondary.calls)
	assert.Empty(t, events.types())
	assert.True(t, s.Academic.OK())
	assert.Equal(t, "context canceled", s.Attendance.Error)
	assert.Equal(t, []string{
		"Attendance fetch error: context canceled",
		"Engagement fetch error: context canceled",
		"Analysis error: context canceled",
	}, s.Errors)
}

func TestOrchestrator_Validation(t *testing.T) {
	store := testutil.NewMemoryStore()

	_, err := New(Deps{}, DefaultConfig())
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = New(depsFor(t, store), Config{Strategy: "parallel"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	o, err := New(depsFor(t, store), DefaultConfig())
	require.NoError(t, err)
	_, err = o.Run(context.Background(), 0)
	assert.ErrorIs(t, err, shared.ErrInvalidStudentID)
}

func TestOrchestrator_RunIDsAreUnique(t *testing.T) {
	store := testutil.NewMemoryStore()
	events := &recorder{}
	o, err := New(depsFor(t, store), DefaultConfig(), WithEventPublisher(events))
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		_, err := o.Run(context.Background(), int64(i+1))
		require.NoError(t, err)
	}
	for _, e := range events.events {
		id := e.(shared.AnalysisCompletedEvent).CorrelationID
		assert.False(t, seen[id], fmt.Sprintf("duplicate run id %s", id))
		seen[id] = true
	}
	assert.Len(t, seen, 5)
}

func TestWorkflowEngine_StepsFollowStageOrder(t *testing.T) {
	store := testutil.NewMemoryStore()
	st := &stageSet{deps: depsFor(t, store), logger: slog.Default()}

	engine, err := newWorkflowEngine(st, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, Stages, engine.graph.Steps())

	s := NewState("run-1", 1, now)
	require.NoError(t, engine.Run(context.Background(), s))
	assert.True(t, s.Analysis.OK())
}
