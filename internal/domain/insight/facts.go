package insight

import (
	"fmt"

	"github.com/alem-hub/student-insights/internal/domain/metrics"
)

// Fact names a value extracted from a domain snapshot.
type Fact string

const (
	FactAverageScore          Fact = "average_score"
	FactTotalAssessments      Fact = "total_assessments"
	FactAttendancePercentage  Fact = "attendance_percentage"
	FactTotalClasses          Fact = "total_classes"
	FactLoginCount            Fact = "login_count"
	FactAssignmentSubmissions Fact = "assignment_submissions"
	FactVideoWatched          Fact = "video_watched"
	FactQuizTaken             Fact = "quiz_taken"
	FactTotalActivities       Fact = "total_activities"
	FactTrend                 Fact = "trend"
)

// Facts is the set of named values a rule may test.
type Facts struct {
	numbers map[Fact]float64
	labels  map[Fact]string
}

// NewFacts builds a fact set from numeric and label values.
func NewFacts(numbers map[Fact]float64, labels map[Fact]string) Facts {
	return Facts{numbers: numbers, labels: labels}
}

// Number returns a numeric fact.
func (f Facts) Number(name Fact) (float64, bool) {
	v, ok := f.numbers[name]
	return v, ok
}

// Label returns a label fact.
func (f Facts) Label(name Fact) (string, bool) {
	v, ok := f.labels[name]
	return v, ok
}

func (f Facts) templateData() map[string]any {
	data := make(map[string]any, len(f.numbers)+len(f.labels))
	for k, v := range f.numbers {
		data[string(k)] = v
	}
	for k, v := range f.labels {
		data[string(k)] = v
	}
	return data
}

// AcademicFacts extracts the facts of an academic snapshot.
func AcademicFacts(s metrics.AcademicSnapshot) Facts {
	return NewFacts(map[Fact]float64{
		FactAverageScore:     s.AverageScore,
		FactTotalAssessments: float64(s.TotalAssessments),
	}, map[Fact]string{
		FactTrend: string(s.Trend),
	})
}

// AttendanceFacts extracts the facts of an attendance snapshot.
func AttendanceFacts(s metrics.AttendanceSnapshot) Facts {
	return NewFacts(map[Fact]float64{
		FactAttendancePercentage: s.AttendancePercentage,
		FactTotalClasses:         float64(s.TotalClasses),
	}, map[Fact]string{
		FactTrend: string(s.Trend),
	})
}

// EngagementFacts extracts the facts of an engagement snapshot.
func EngagementFacts(s metrics.EngagementSnapshot) Facts {
	return NewFacts(map[Fact]float64{
		FactLoginCount:            float64(s.LoginCount),
		FactAssignmentSubmissions: float64(s.AssignmentSubmissions),
		FactVideoWatched:          float64(s.VideoWatched),
		FactQuizTaken:             float64(s.QuizTaken),
		FactTotalActivities:       float64(s.TotalActivities),
	}, map[Fact]string{
		FactTrend: string(s.Trend),
	})
}

// CatalogFor returns the facts of an empty snapshot of domain: every fact the
// domain exposes, at its zero value.
func CatalogFor(domain metrics.Domain) (Facts, error) {
	switch domain {
	case metrics.DomainAcademic:
		return AcademicFacts(metrics.AcademicSnapshot{}), nil
	case metrics.DomainAttendance:
		return AttendanceFacts(metrics.AttendanceSnapshot{}), nil
	case metrics.DomainEngagement:
		return EngagementFacts(metrics.EngagementSnapshot{}), nil
	}
	return Facts{}, fmt.Errorf("unknown domain %q", domain)
}
