package metrics

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var evalTime = time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

func daysAgo(d int) time.Time {
	return evalTime.Add(-time.Duration(d) * Day)
}

// ══════════════════════════════════════════════════════════════════════════════
// EMPTY SNAPSHOTS
// ══════════════════════════════════════════════════════════════════════════════

func TestEmptySnapshots(t *testing.T) {
	academic := SummarizeAcademic(nil, evalTime)
	assert.Zero(t, academic.TotalAssessments)
	assert.Zero(t, academic.AverageScore)
	assert.Equal(t, TrendNoData, academic.Trend)
	assert.NotNil(t, academic.Subjects)
	assert.NotNil(t, academic.RecentScores)

	attendance := SummarizeAttendance(nil, evalTime)
	assert.Zero(t, attendance.TotalClasses)
	assert.Zero(t, attendance.AttendancePercentage)
	assert.Equal(t, TrendNoData, attendance.Trend)

	engagement := SummarizeEngagement(nil, evalTime)
	assert.Zero(t, engagement.TotalActivities)
	assert.Zero(t, engagement.LoginCount)
	assert.Equal(t, TrendNoData, engagement.Trend)

	raw, err := json.Marshal(engagement)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"total_activities": 0,
		"login_count": 0,
		"assignment_submissions": 0,
		"video_watched": 0,
		"quiz_taken": 0,
		"activity_breakdown": {},
		"daily_engagement": [],
		"trend": "no_data"
	}`, string(raw))
}

// ══════════════════════════════════════════════════════════════════════════════
// ACADEMIC
// ══════════════════════════════════════════════════════════════════════════════

func TestSummarizeAcademic(t *testing.T) {
	scores := []AcademicScore{
		{Subject: "Math", AssessmentType: "quiz", Score: 6, MaxScore: 10, Percentage: 60, Date: daysAgo(2)},
		{Subject: "Math", AssessmentType: "exam", Score: 70, MaxScore: 100, Percentage: 70, Date: daysAgo(10)},
		{Subject: "History", AssessmentType: "project", Score: 75, MaxScore: 100, Percentage: 75, Date: daysAgo(40)},
	}

	snap := SummarizeAcademic(scores, evalTime)

	assert.Equal(t, 3, snap.TotalAssessments)
	assert.Equal(t, 68.33, snap.AverageScore)
	assert.Equal(t, TrendDeclining, snap.Trend)

	require.Contains(t, snap.Subjects, "Math")
	assert.Equal(t, 2, snap.Subjects["Math"].Count)
	assert.Equal(t, 65.0, snap.Subjects["Math"].Average)
	assert.Len(t, snap.Subjects["Math"].RecentScores, 2)
	assert.Equal(t, 1, snap.Subjects["History"].Count)

	require.Len(t, snap.RecentScores, 3)
	assert.Equal(t, "quiz", snap.RecentScores[0].Type)
	assert.Equal(t, "History", snap.RecentScores[2].Subject)
}

func TestSummarizeAcademic_RecentScoresCapped(t *testing.T) {
	scores := make([]AcademicScore, 0, 15)
	for i := 0; i < 15; i++ {
		scores = append(scores, AcademicScore{Subject: "Math", Percentage: 90, Date: daysAgo(i)})
	}

	snap := SummarizeAcademic(scores, evalTime)

	assert.Len(t, snap.RecentScores, RecentScoresLimit)
	assert.Equal(t, daysAgo(0).Format(time.RFC3339), snap.RecentScores[0].Date)
	assert.Equal(t, TrendInsufficientData, snap.Trend)
}

func TestSummarizeAcademic_RecentWindowUsesFullHistory(t *testing.T) {
	// Both windows are populated from the unbounded history; the recent
	// window starts exactly 30 days before now.
	scores := []AcademicScore{
		{Subject: "Math", Percentage: 80, Date: daysAgo(30)},
		{Subject: "Math", Percentage: 80, Date: daysAgo(59)},
		{Subject: "Math", Percentage: 10, Date: daysAgo(90)},
	}

	snap := SummarizeAcademic(scores, evalTime)

	assert.Equal(t, TrendStable, snap.Trend)
	assert.Equal(t, 56.67, snap.AverageScore)
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

func attendanceFixture(statuses map[AttendanceStatus]int) []AttendanceRecord {
	var records []AttendanceRecord
	i := 0
	for _, status := range []AttendanceStatus{AttendancePresent, AttendanceLate, AttendanceExcused, AttendanceAbsent} {
		for n := 0; n < statuses[status]; n++ {
			records = append(records, AttendanceRecord{
				Date:      daysAgo(i % 29).Add(-time.Hour),
				Status:    status,
				ClassName: "Math",
			})
			i++
		}
	}
	return records
}

func TestSummarizeAttendance_FortyRecords(t *testing.T) {
	records := attendanceFixture(map[AttendanceStatus]int{
		AttendancePresent: 32,
		AttendanceLate:    4,
		AttendanceExcused: 2,
		AttendanceAbsent:  2,
	})
	require.Len(t, records, 40)

	snap := SummarizeAttendance(records, evalTime)

	assert.Equal(t, 40, snap.TotalClasses)
	assert.Equal(t, 32, snap.PresentCount)
	assert.Equal(t, 4, snap.LateCount)
	assert.Equal(t, 2, snap.ExcusedCount)
	assert.Equal(t, 2, snap.AbsentCount)
	assert.Equal(t, 95.0, snap.AttendancePercentage)
	assert.LessOrEqual(t, len(snap.DailyAttendance), DailyRollupLimit)

	var total int
	for i, day := range snap.DailyAttendance {
		total += day.Total
		assert.Equal(t, day.Present+day.Absent+day.Late+day.Excused, day.Total)
		if i > 0 {
			assert.Greater(t, snap.DailyAttendance[i-1].Date, day.Date)
		}
	}
	assert.Equal(t, 40, total)
}

func TestSummarizeAttendance_Trend(t *testing.T) {
	records := []AttendanceRecord{
		{Date: daysAgo(1), Status: AttendancePresent},
		{Date: daysAgo(2), Status: AttendanceLate},
		{Date: daysAgo(20), Status: AttendancePresent},
		{Date: daysAgo(21), Status: AttendanceAbsent},
	}

	snap := SummarizeAttendance(records, evalTime)

	assert.Equal(t, TrendImproving, snap.Trend)
	assert.Equal(t, 75.0, snap.AttendancePercentage)
}

func TestSummarizeAttendance_DailyRollupCapped(t *testing.T) {
	var records []AttendanceRecord
	for i := 0; i < 45; i++ {
		records = append(records, AttendanceRecord{Date: daysAgo(i), Status: AttendancePresent})
	}

	snap := SummarizeAttendance(records, evalTime)

	assert.Len(t, snap.DailyAttendance, DailyRollupLimit)
	assert.Equal(t, daysAgo(0).Format(time.DateOnly), snap.DailyAttendance[0].Date)
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGAGEMENT
// ══════════════════════════════════════════════════════════════════════════════

func TestSummarizeEngagement(t *testing.T) {
	var logs []EngagementLog
	add := func(kind string, n int, day int) {
		for i := 0; i < n; i++ {
			logs = append(logs, EngagementLog{ActivityType: kind, Timestamp: daysAgo(day)})
		}
	}
	add(ActivityLogin, 10, 3)
	add(ActivityAssignmentSubmitted, 3, 4)
	add(ActivityVideoWatched, 2, 20)
	add(ActivityQuizTaken, 1, 21)
	add("forum_post", 1, 22)

	snap := SummarizeEngagement(logs, evalTime)

	assert.Equal(t, 17, snap.TotalActivities)
	assert.Equal(t, 10, snap.LoginCount)
	assert.Equal(t, 3, snap.AssignmentSubmissions)
	assert.Equal(t, 2, snap.VideoWatched)
	assert.Equal(t, 1, snap.QuizTaken)
	assert.Equal(t, 1, snap.ActivityBreakdown["forum_post"])
	assert.Equal(t, TrendImproving, snap.Trend)

	require.Len(t, snap.DailyEngagement, 5)
	assert.Equal(t, DailyEngagement{Date: daysAgo(3).Format(time.DateOnly), Activities: 10, Logins: 10}, snap.DailyEngagement[0])
	assert.Equal(t, 3, snap.DailyEngagement[1].Assignments)
}

func TestSummarizeEngagement_CountTrend(t *testing.T) {
	logs := []EngagementLog{
		{ActivityType: ActivityLogin, Timestamp: daysAgo(1)},
		{ActivityType: ActivityLogin, Timestamp: daysAgo(16)},
		{ActivityType: ActivityLogin, Timestamp: daysAgo(17)},
	}

	assert.Equal(t, TrendDeclining, SummarizeEngagement(logs, evalTime).Trend)

	logs = append(logs, EngagementLog{ActivityType: ActivityQuizTaken, Timestamp: daysAgo(2)})
	assert.Equal(t, TrendStable, SummarizeEngagement(logs, evalTime).Trend)
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "Academic", DomainAcademic.Title())
	assert.Equal(t, "Engagement", DomainEngagement.Title())
	assert.NoError(t, DomainAttendance.Validate())
	assert.Error(t, Domain("finance").Validate())
	assert.True(t, AttendanceExcused.CountsAsPresent())
	assert.False(t, AttendanceAbsent.CountsAsPresent())
}
