package insight

import (
	"github.com/alem-hub/student-insights/internal/domain/alert"
	"github.com/alem-hub/student-insights/internal/domain/metrics"
)

// Headline thresholds of the default rule table.
const (
	AcademicLowThreshold    = 70
	AcademicStrongThreshold = 80
	AttendanceLowThreshold  = 75
	AttendanceGoodThreshold = 85
	MinLoginsPerWindow      = 15
	MinAssignmentsPerWindow = 5
)

func trendIs(label metrics.Trend) Condition {
	return Condition{Fact: FactTrend, Op: OpEqual, Label: string(label)}
}

// DefaultRules returns the built-in rule table. configs/rules.yaml carries
// the same table in file form.
func DefaultRules() []Rule {
	return []Rule{
		// Academic
		{
			Name:    "academic_below_average",
			Domain:  metrics.DomainAcademic,
			When:    []Condition{{Fact: FactAverageScore, Op: OpLess, Value: AcademicLowThreshold}},
			Insight: "⚠️ Academic performance is below average (below 70%)",
			Alert: &AlertSpec{
				Type:     alert.TypeGradeDrop,
				Severity: alert.SeverityHigh,
				Message:  "Average score is {{pct .average_score}}, which is below the threshold of 70%",
			},
		},
		{
			Name:   "academic_satisfactory",
			Domain: metrics.DomainAcademic,
			When: []Condition{
				{Fact: FactAverageScore, Op: OpGreaterEqual, Value: AcademicLowThreshold},
				{Fact: FactAverageScore, Op: OpLess, Value: AcademicStrongThreshold},
			},
			Insight: "📊 Academic performance is satisfactory but could improve",
		},
		{
			Name:    "academic_strong",
			Domain:  metrics.DomainAcademic,
			When:    []Condition{{Fact: FactAverageScore, Op: OpGreaterEqual, Value: AcademicStrongThreshold}},
			Insight: "✅ Academic performance is strong",
		},
		{
			Name:    "academic_declining",
			Domain:  metrics.DomainAcademic,
			When:    []Condition{trendIs(metrics.TrendDeclining)},
			Insight: "📉 Academic performance is showing a declining trend",
			Alert: &AlertSpec{
				Type:     alert.TypeGradeDrop,
				Severity: alert.SeverityMedium,
				Message:  "Academic scores are declining compared to previous period",
			},
		},

		// Attendance
		{
			Name:    "attendance_below_threshold",
			Domain:  metrics.DomainAttendance,
			When:    []Condition{{Fact: FactAttendancePercentage, Op: OpLess, Value: AttendanceLowThreshold}},
			Insight: "⚠️ Attendance is below threshold ({{pct .attendance_percentage}})",
			Alert: &AlertSpec{
				Type:     alert.TypeAttendanceDrop,
				Severity: alert.SeverityHigh,
				Message:  "Attendance is {{pct .attendance_percentage}}, below the 75% threshold",
			},
		},
		{
			Name:   "attendance_acceptable",
			Domain: metrics.DomainAttendance,
			When: []Condition{
				{Fact: FactAttendancePercentage, Op: OpGreaterEqual, Value: AttendanceLowThreshold},
				{Fact: FactAttendancePercentage, Op: OpLess, Value: AttendanceGoodThreshold},
			},
			Insight: "📊 Attendance is acceptable but could be better",
		},
		{
			Name:    "attendance_excellent",
			Domain:  metrics.DomainAttendance,
			When:    []Condition{{Fact: FactAttendancePercentage, Op: OpGreaterEqual, Value: AttendanceGoodThreshold}},
			Insight: "✅ Attendance is excellent",
		},
		{
			Name:    "attendance_declining",
			Domain:  metrics.DomainAttendance,
			When:    []Condition{trendIs(metrics.TrendDeclining)},
			Insight: "📉 Attendance trend is declining",
			Alert: &AlertSpec{
				Type:     alert.TypeAttendanceDrop,
				Severity: alert.SeverityMedium,
				Message:  "Attendance is showing a declining trend",
			},
		},

		// Engagement
		{
			Name:    "engagement_low_logins",
			Domain:  metrics.DomainEngagement,
			When:    []Condition{{Fact: FactLoginCount, Op: OpLess, Value: MinLoginsPerWindow}},
			Insight: "⚠️ Low LMS login activity detected",
			Alert: &AlertSpec{
				Type:     alert.TypeEngagementDrop,
				Severity: alert.SeverityMedium,
				Message:  "Only {{int .login_count}} logins in the last 30 days",
			},
		},
		{
			Name:    "engagement_low_submissions",
			Domain:  metrics.DomainEngagement,
			When:    []Condition{{Fact: FactAssignmentSubmissions, Op: OpLess, Value: MinAssignmentsPerWindow}},
			Insight: "⚠️ Low assignment submission rate",
			Alert: &AlertSpec{
				Type:     alert.TypeMissingAssignment,
				Severity: alert.SeverityMedium,
				Message:  "Only {{int .assignment_submissions}} assignments submitted in the last 30 days",
			},
		},
		{
			Name:    "engagement_declining",
			Domain:  metrics.DomainEngagement,
			When:    []Condition{trendIs(metrics.TrendDeclining)},
			Insight: "📉 Engagement is showing a declining trend",
			Alert: &AlertSpec{
				Type:     alert.TypeEngagementDrop,
				Severity: alert.SeverityMedium,
				Message:  "Engagement activity is declining compared to previous period",
			},
		},
		{
			Name:    "engagement_improving",
			Domain:  metrics.DomainEngagement,
			When:    []Condition{trendIs(metrics.TrendImproving)},
			Insight: "✅ Engagement is improving",
		},
	}
}

// Default returns the compiled built-in rule table.
func Default() *RuleSet {
	rs, err := NewRuleSet(DefaultRules())
	if err != nil {
		panic("insight: built-in rule table is invalid: " + err.Error())
	}
	return rs
}
