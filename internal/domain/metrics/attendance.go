package metrics

import (
	"slices"
	"strings"
	"time"
)

// DailyRollupLimit caps the per-day rollups of attendance and engagement.
const DailyRollupLimit = 30

// DailyAttendance counts the marks recorded on one calendar date.
type DailyAttendance struct {
	Date    string `json:"date"`
	Present int    `json:"present"`
	Absent  int    `json:"absent"`
	Late    int    `json:"late"`
	Excused int    `json:"excused"`
	Total   int    `json:"total"`
}

// AttendanceSnapshot is the aggregated attendance view over the lookback window.
type AttendanceSnapshot struct {
	TotalClasses         int               `json:"total_classes"`
	PresentCount         int               `json:"present_count"`
	AbsentCount          int               `json:"absent_count"`
	LateCount            int               `json:"late_count"`
	ExcusedCount         int               `json:"excused_count"`
	AttendancePercentage float64           `json:"attendance_percentage"`
	DailyAttendance      []DailyAttendance `json:"daily_attendance"`
	Trend                Trend             `json:"trend"`
}

// EmptyAttendanceSnapshot returns the zero-value snapshot.
func EmptyAttendanceSnapshot() AttendanceSnapshot {
	return AttendanceSnapshot{
		DailyAttendance: []DailyAttendance{},
		Trend:           TrendNoData,
	}
}

// SummarizeAttendance aggregates attendance records evaluated at now. Late
// and excused marks count toward effective presence.
func SummarizeAttendance(records []AttendanceRecord, now time.Time) AttendanceSnapshot {
	if len(records) == 0 {
		return EmptyAttendanceSnapshot()
	}

	snap := AttendanceSnapshot{TotalClasses: len(records)}
	days := make(map[string]*DailyAttendance)
	for _, r := range records {
		key := dateKey(r.Date)
		day, ok := days[key]
		if !ok {
			day = &DailyAttendance{Date: key}
			days[key] = day
		}
		day.Total++

		switch r.Status {
		case AttendancePresent:
			snap.PresentCount++
			day.Present++
		case AttendanceAbsent:
			snap.AbsentCount++
			day.Absent++
		case AttendanceLate:
			snap.LateCount++
			day.Late++
		case AttendanceExcused:
			snap.ExcusedCount++
			day.Excused++
		}
	}

	snap.AttendancePercentage = round2(presenceRate(records))

	snap.DailyAttendance = make([]DailyAttendance, 0, len(days))
	for _, d := range days {
		snap.DailyAttendance = append(snap.DailyAttendance, *d)
	}
	slices.SortFunc(snap.DailyAttendance, func(a, b DailyAttendance) int {
		return strings.Compare(b.Date, a.Date)
	})
	if len(snap.DailyAttendance) > DailyRollupLimit {
		snap.DailyAttendance = snap.DailyAttendance[:DailyRollupLimit]
	}

	snap.Trend = ClassifyTrend(records, now, AttendanceWindow,
		func(r AttendanceRecord) time.Time { return r.Date },
		presenceRate,
	)
	return snap
}

// presenceRate is the effective-presence percentage of records.
func presenceRate(records []AttendanceRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	var present int
	for _, r := range records {
		if r.Status.CountsAsPresent() {
			present++
		}
	}
	return float64(present) / float64(len(records)) * 100
}
