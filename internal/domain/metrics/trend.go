package metrics

import "time"

// Trend is the categorical result of comparing two adjacent windows.
type Trend string

const (
	TrendImproving        Trend = "improving"
	TrendDeclining        Trend = "declining"
	TrendStable           Trend = "stable"
	TrendInsufficientData Trend = "insufficient_data"
	TrendNoData           Trend = "no_data"
)

// IsValid reports whether t is one of the five classifications.
func (t Trend) IsValid() bool {
	switch t {
	case TrendImproving, TrendDeclining, TrendStable, TrendInsufficientData, TrendNoData:
		return true
	}
	return false
}

// Window holds the sizes of the recent and previous comparison windows.
type Window struct {
	Recent   time.Duration
	Previous time.Duration
}

// Per-domain comparison windows.
var (
	AcademicWindow   = Window{Recent: 30 * Day, Previous: 30 * Day}
	AttendanceWindow = Window{Recent: 15 * Day, Previous: 15 * Day}
	EngagementWindow = Window{Recent: 15 * Day, Previous: 15 * Day}
)

// Bounds returns the start of the previous window and the start of the
// recent window for the evaluation instant now.
func (w Window) Bounds(now time.Time) (previousStart, recentStart time.Time) {
	recentStart = now.Add(-w.Recent)
	previousStart = recentStart.Add(-w.Previous)
	return previousStart, recentStart
}

// Split partitions records into the recent window [recentStart, now] and the
// previous window [previousStart, recentStart). Records outside both windows
// are dropped.
func Split[T any](records []T, now time.Time, w Window, at func(T) time.Time) (recent, previous []T) {
	previousStart, recentStart := w.Bounds(now)
	for _, r := range records {
		t := at(r)
		switch {
		case !t.Before(recentStart) && !t.After(now):
			recent = append(recent, r)
		case !t.Before(previousStart) && t.Before(recentStart):
			previous = append(previous, r)
		}
	}
	return recent, previous
}

// ClassifyTrend classifies the direction of value across the two windows.
// An empty record set yields TrendNoData; an empty window yields
// TrendInsufficientData.
func ClassifyTrend[T any](records []T, now time.Time, w Window, at func(T) time.Time, value func([]T) float64) Trend {
	if len(records) == 0 {
		return TrendNoData
	}
	recent, previous := Split(records, now, w, at)
	if len(recent) == 0 || len(previous) == 0 {
		return TrendInsufficientData
	}
	return Compare(value(recent), value(previous))
}

// Compare maps two window scalars onto a trend using strict inequality.
func Compare(recent, previous float64) Trend {
	switch {
	case recent > previous:
		return TrendImproving
	case recent < previous:
		return TrendDeclining
	default:
		return TrendStable
	}
}
