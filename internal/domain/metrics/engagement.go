package metrics

import (
	"slices"
	"strings"
	"time"
)

// DailyEngagement counts the activity recorded on one calendar date.
type DailyEngagement struct {
	Date        string `json:"date"`
	Activities  int    `json:"activities"`
	Logins      int    `json:"logins"`
	Assignments int    `json:"assignments"`
}

// EngagementSnapshot is the aggregated LMS activity view over the lookback window.
type EngagementSnapshot struct {
	TotalActivities       int               `json:"total_activities"`
	LoginCount            int               `json:"login_count"`
	AssignmentSubmissions int               `json:"assignment_submissions"`
	VideoWatched          int               `json:"video_watched"`
	QuizTaken             int               `json:"quiz_taken"`
	ActivityBreakdown     map[string]int    `json:"activity_breakdown"`
	DailyEngagement       []DailyEngagement `json:"daily_engagement"`
	Trend                 Trend             `json:"trend"`
}

// EmptyEngagementSnapshot returns the zero-value snapshot.
func EmptyEngagementSnapshot() EngagementSnapshot {
	return EngagementSnapshot{
		ActivityBreakdown: map[string]int{},
		DailyEngagement:   []DailyEngagement{},
		Trend:             TrendNoData,
	}
}

// SummarizeEngagement aggregates engagement logs evaluated at now. The trend
// scalar is the number of events per window.
func SummarizeEngagement(logs []EngagementLog, now time.Time) EngagementSnapshot {
	if len(logs) == 0 {
		return EmptyEngagementSnapshot()
	}

	snap := EngagementSnapshot{
		TotalActivities:   len(logs),
		ActivityBreakdown: make(map[string]int),
	}
	days := make(map[string]*DailyEngagement)
	for _, l := range logs {
		snap.ActivityBreakdown[l.ActivityType]++

		key := dateKey(l.Timestamp)
		day, ok := days[key]
		if !ok {
			day = &DailyEngagement{Date: key}
			days[key] = day
		}
		day.Activities++

		switch l.ActivityType {
		case ActivityLogin:
			snap.LoginCount++
			day.Logins++
		case ActivityAssignmentSubmitted:
			snap.AssignmentSubmissions++
			day.Assignments++
		case ActivityVideoWatched:
			snap.VideoWatched++
		case ActivityQuizTaken:
			snap.QuizTaken++
		}
	}

	snap.DailyEngagement = make([]DailyEngagement, 0, len(days))
	for _, d := range days {
		snap.DailyEngagement = append(snap.DailyEngagement, *d)
	}
	slices.SortFunc(snap.DailyEngagement, func(a, b DailyEngagement) int {
		return strings.Compare(b.Date, a.Date)
	})
	if len(snap.DailyEngagement) > DailyRollupLimit {
		snap.DailyEngagement = snap.DailyEngagement[:DailyRollupLimit]
	}

	snap.Trend = ClassifyTrend(logs, now, EngagementWindow,
		func(l EngagementLog) time.Time { return l.Timestamp },
		func(window []EngagementLog) float64 { return float64(len(window)) },
	)
	return snap
}
