package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/student-insights/internal/domain/alert"
	"github.com/alem-hub/student-insights/internal/domain/metrics"
	"github.com/alem-hub/student-insights/internal/domain/shared"
)

var now = time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "insights.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func addStudent(t *testing.T, s *Store, code string, active bool) int64 {
	t.Helper()
	st := &metrics.Student{Code: code, FullName: "Student " + code, Email: code + "@example.com", IsActive: active}
	require.NoError(t, s.SaveStudent(context.Background(), st))
	require.NotZero(t, st.ID)
	return st.ID
}

func TestOpen_MigratesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "insights.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Migrate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestSaveStudent_UpsertsByCode(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id := addStudent(t, s, "STU001", true)
	again := &metrics.Student{Code: "STU001", FullName: "Renamed", Email: "x@example.com", IsActive: false}
	require.NoError(t, s.SaveStudent(ctx, again))
	assert.Equal(t, id, again.ID)

	addStudent(t, s, "STU002", true)
	ids, err := s.ActiveStudentIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	err = s.SaveStudent(ctx, &metrics.Student{})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestReaders_FilterAndOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := addStudent(t, s, "STU001", true)
	other := addStudent(t, s, "STU002", true)

	require.NoError(t, s.AddAcademicScores(ctx, []*metrics.AcademicScore{
		{StudentID: id, Subject: "Math", AssessmentType: "exam", Score: 45, MaxScore: 50, Percentage: 90, Date: now.Add(-100 * metrics.Day)},
		{StudentID: id, Subject: "Physics", AssessmentType: "quiz", Score: 7, MaxScore: 10, Percentage: 70, Date: now.Add(-1 * metrics.Day)},
		{StudentID: other, Subject: "Math", AssessmentType: "exam", Score: 1, MaxScore: 10, Percentage: 10, Date: now},
	}))
	scores, err := s.AcademicScores(ctx, id, nil)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, "Physics", scores[0].Subject)
	assert.Equal(t, now.Add(-1*metrics.Day), scores[0].Date)

	since := now.Add(-metrics.LookbackWindow)
	require.NoError(t, s.AddAttendanceRecords(ctx, []*metrics.AttendanceRecord{
		{StudentID: id, Date: since, Status: metrics.AttendancePresent, ClassName: "Math"},
		{StudentID: id, Date: since.Add(-time.Nanosecond), Status: metrics.AttendanceAbsent, ClassName: "Math"},
	}))
	marks, err := s.AttendanceRecords(ctx, id, &since)
	require.NoError(t, err)
	require.Len(t, marks, 1)
	assert.Equal(t, metrics.AttendancePresent, marks[0].Status)

	require.NoError(t, s.AddEngagementLogs(ctx, []*metrics.EngagementLog{
		{StudentID: id, ActivityType: metrics.ActivityLogin, Timestamp: now.Add(-time.Hour)},
		{StudentID: id, ActivityType: metrics.ActivityQuizTaken, ActivityDetails: "quiz 3", Timestamp: now.Add(-2 * time.Hour)},
	}))
	logs, err := s.EngagementLogs(ctx, id, &since)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, metrics.ActivityLogin, logs[0].ActivityType)
	assert.Equal(t, "quiz 3", logs[1].ActivityDetails)

	empty, err := s.EngagementLogs(ctx, other, &since)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestWriters_UnknownStudent(t *testing.T) {
	s := openTestStore(t)
	err := s.AddAttendanceRecords(context.Background(), []*metrics.AttendanceRecord{
		{StudentID: 404, Date: now, Status: metrics.AttendancePresent, ClassName: "Math"},
	})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAlerts_SaveListResolve(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := addStudent(t, s, "STU001", true)

	a1, err := alert.New(id, alert.TypeGradeDrop, alert.SeverityHigh, "Average score is 62.0%")
	require.NoError(t, err)
	a2, err := alert.New(id, alert.TypeMissingAssignment, alert.SeverityMedium, "Only 2 assignments")
	require.NoError(t, err)
	require.NoError(t, s.SaveAlerts(ctx, []*alert.Alert{a1, a2}))
	assert.NotZero(t, a1.ID)
	assert.False(t, a2.CreatedAt.IsZero())

	list, err := s.ListAlerts(ctx, alert.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a2.ID, list[0].ID)

	resolved, err := s.ResolveAlert(ctx, a1.ID, now)
	require.NoError(t, err)
	assert.True(t, resolved.IsResolved)
	assert.Equal(t, now, *resolved.ResolvedAt)

	got, err := s.GetAlert(ctx, a1.ID)
	require.NoError(t, err)
	assert.True(t, got.IsResolved)
	assert.Equal(t, now, *got.ResolvedAt)

	_, err = s.ResolveAlert(ctx, a1.ID, now)
	assert.ErrorIs(t, err, shared.ErrAlertAlreadyResolved)

	_, err = s.ResolveAlert(ctx, 12345, now)
	assert.ErrorIs(t, err, shared.ErrAlertNotFound)

	open, err := s.ListAlerts(ctx, alert.ListFilter{StudentID: id, UnresolvedOnly: true, Limit: 10})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, alert.TypeMissingAssignment, open[0].Type)
}

func TestSaveAlerts_Atomic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := addStudent(t, s, "STU001", true)

	good, err := alert.New(id, alert.TypeGradeDrop, alert.SeverityHigh, "ok")
	require.NoError(t, err)
	orphan := &alert.Alert{StudentID: 404, Type: alert.TypeGradeDrop, Severity: alert.SeverityHigh, Message: "orphan"}

	require.Error(t, s.SaveAlerts(ctx, []*alert.Alert{good, orphan}))

	list, err := s.ListAlerts(ctx, alert.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}
