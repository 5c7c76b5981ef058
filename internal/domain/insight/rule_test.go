package insight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/student-insights/internal/domain/alert"
	"github.com/alem-hub/student-insights/internal/domain/metrics"
	"github.com/alem-hub/student-insights/internal/domain/shared"
)

func academic(avg float64, trend metrics.Trend) Facts {
	return AcademicFacts(metrics.AcademicSnapshot{AverageScore: avg, Trend: trend})
}

func TestDefault_Academic(t *testing.T) {
	rs := Default()

	tests := []struct {
		name     string
		facts    Facts
		insights []string
		alerts   []FiredAlert
	}{
		{
			name:     "below average",
			facts:    academic(68.3, metrics.TrendStable),
			insights: []string{"⚠️ Academic performance is below average (below 70%)"},
			alerts: []FiredAlert{{
				Type:     alert.TypeGradeDrop,
				Severity: alert.SeverityHigh,
				Message:  "Average score is 68.3%, which is below the threshold of 70%",
			}},
		},
		{
			name:     "satisfactory lower bound",
			facts:    academic(70, metrics.TrendImproving),
			insights: []string{"📊 Academic performance is satisfactory but could improve"},
		},
		{
			name:     "strong",
			facts:    academic(80, metrics.TrendNoData),
			insights: []string{"✅ Academic performance is strong"},
		},
		{
			name:  "below average and declining",
			facts: academic(55, metrics.TrendDeclining),
			insights: []string{
				"⚠️ Academic performance is below average (below 70%)",
				"📉 Academic performance is showing a declining trend",
			},
			alerts: []FiredAlert{
				{Type: alert.TypeGradeDrop, Severity: alert.SeverityHigh, Message: "Average score is 55.0%, which is below the threshold of 70%"},
				{Type: alert.TypeGradeDrop, Severity: alert.SeverityMedium, Message: "Academic scores are declining compared to previous period"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings, err := rs.Evaluate(metrics.DomainAcademic, tt.facts)
			require.NoError(t, err)

			var insights []string
			var alerts []FiredAlert
			for _, f := range findings {
				insights = append(insights, f.Insight)
				if f.Alert != nil {
					alerts = append(alerts, *f.Alert)
				}
			}
			assert.Equal(t, tt.insights, insights)
			assert.Equal(t, tt.alerts, alerts)
		})
	}
}

func TestDefault_Attendance(t *testing.T) {
	rs := Default()

	findings, err := rs.Evaluate(metrics.DomainAttendance, AttendanceFacts(metrics.AttendanceSnapshot{
		AttendancePercentage: 72.5,
		Trend:                metrics.TrendDeclining,
	}))
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, "⚠️ Attendance is below threshold (72.5%)", findings[0].Insight)
	assert.Equal(t, "Attendance is 72.5%, below the 75% threshold", findings[0].Alert.Message)
	assert.Equal(t, "📉 Attendance trend is declining", findings[1].Insight)
	assert.Equal(t, alert.SeverityMedium, findings[1].Alert.Severity)

	findings, err = rs.Evaluate(metrics.DomainAttendance, AttendanceFacts(metrics.AttendanceSnapshot{
		AttendancePercentage: 95,
		Trend:                metrics.TrendStable,
	}))
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "✅ Attendance is excellent", findings[0].Insight)
	assert.Nil(t, findings[0].Alert)
}

func TestDefault_Engagement(t *testing.T) {
	rs := Default()

	findings, err := rs.Evaluate(metrics.DomainEngagement, EngagementFacts(metrics.EngagementSnapshot{
		LoginCount:            10,
		AssignmentSubmissions: 3,
		Trend:                 metrics.TrendImproving,
	}))
	require.NoError(t, err)
	require.Len(t, findings, 3)

	assert.Equal(t, "Only 10 logins in the last 30 days", findings[0].Alert.Message)
	assert.Equal(t, alert.TypeEngagementDrop, findings[0].Alert.Type)
	assert.Equal(t, "Only 3 assignments submitted in the last 30 days", findings[1].Alert.Message)
	assert.Equal(t, alert.TypeMissingAssignment, findings[1].Alert.Type)
	assert.Equal(t, "✅ Engagement is improving", findings[2].Insight)
	assert.Nil(t, findings[2].Alert)
}

func TestEvaluate_OtherDomainsIgnored(t *testing.T) {
	rs, err := NewRuleSet([]Rule{{
		Name:    "only_engagement",
		Domain:  metrics.DomainEngagement,
		When:    []Condition{{Fact: FactLoginCount, Op: OpGreaterEqual, Value: 0}},
		Insight: "seen",
	}})
	require.NoError(t, err)

	findings, err := rs.Evaluate(metrics.DomainAcademic, academic(10, metrics.TrendStable))
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestNewRuleSet_Validation(t *testing.T) {
	valid := Rule{
		Name:    "ok",
		Domain:  metrics.DomainAcademic,
		When:    []Condition{{Fact: FactAverageScore, Op: OpLess, Value: 70}},
		Insight: "low",
	}

	tests := []struct {
		name   string
		mutate func(r *Rule)
	}{
		{"missing name", func(r *Rule) { r.Name = " " }},
		{"unknown domain", func(r *Rule) { r.Domain = "finance" }},
		{"no conditions", func(r *Rule) { r.When = nil }},
		{"bad operator", func(r *Rule) { r.When[0].Op = "between" }},
		{"ordered label", func(r *Rule) { r.When = []Condition{{Fact: FactTrend, Op: OpLess, Label: "declining"}} }},
		{"empty insight", func(r *Rule) { r.Insight = "" }},
		{"bad template", func(r *Rule) { r.Insight = "{{pct .average_score" }},
		{"unknown fact", func(r *Rule) { r.When[0].Fact = "avg_score" }},
		{"fact of another domain", func(r *Rule) { r.When[0].Fact = FactLoginCount }},
		{"label fact compared by value", func(r *Rule) { r.When = []Condition{{Fact: FactTrend, Op: OpEqual, Value: 1}} }},
		{"numeric fact compared by label", func(r *Rule) { r.When[0] = Condition{Fact: FactAverageScore, Op: OpEqual, Label: "low"} }},
		{"unknown trend label", func(r *Rule) { r.When = []Condition{{Fact: FactTrend, Op: OpEqual, Label: "declning"}} }},
		{"template field typo", func(r *Rule) { r.Insight = "Average {{pct .avg_score}}" }},
		{"template helper on label", func(r *Rule) { r.Insight = "Trend {{int .trend}}" }},
		{"alert template of another domain", func(r *Rule) {
			r.Alert = &AlertSpec{Type: alert.TypeGradeDrop, Severity: alert.SeverityHigh, Message: "{{int .login_count}} logins"}
		}},
		{"bad alert severity", func(r *Rule) {
			r.Alert = &AlertSpec{Type: alert.TypeGradeDrop, Severity: "urgent", Message: "m"}
		}},
		{"bad alert type", func(r *Rule) {
			r.Alert = &AlertSpec{Type: "grade_spike", Severity: alert.SeverityLow, Message: "m"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			r.When = append([]Condition(nil), valid.When...)
			tt.mutate(&r)

			_, err := NewRuleSet([]Rule{r})
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrInvalidRule)
			assert.True(t, shared.IsValidation(err))
		})
	}

	_, err := NewRuleSet([]Rule{valid, valid})
	assert.ErrorIs(t, err, shared.ErrInvalidRule)
}

func TestDefaultRules_AreValid(t *testing.T) {
	rs := Default()
	assert.Len(t, rs.Rules(), 12)
	for _, r := range rs.Rules() {
		assert.NoError(t, r.Validate(), r.Name)
	}
}
