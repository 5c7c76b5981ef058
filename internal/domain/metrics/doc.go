// Package metrics holds the per-student metric records (academic scores,
// attendance marks, engagement events) and the pure aggregation that turns
// them into domain snapshots.
//
// # Snapshots
//
// Every fetch produces exactly one snapshot per domain. A student with no
// records still gets a snapshot: counts and percentages are zero, list and
// map fields are empty, and the trend is TrendNoData.
//
// # Trends
//
// ClassifyTrend compares two adjacent windows ending at the evaluation
// instant. The recent window is closed at now; the previous window is
// half-open and ends where the recent one starts:
//
//	previous: [now-R-P, now-R)
//	recent:   [now-R,   now]
//
// Window sizes are fixed per domain (see AcademicWindow, AttendanceWindow,
// EngagementWindow). If either window is empty the trend is
// TrendInsufficientData; otherwise the per-window scalars are compared
// with strict inequality.
//
// The package has no dependencies outside the standard library and the
// shared domain package. Storage lives behind the Reader interface.
package metrics
