package metrics

import (
	"math"
	"time"

	"github.com/alem-hub/student-insights/internal/domain/shared"
)

// Day is a calendar day as used by lookback and trend windows.
const Day = 24 * time.Hour

// LookbackWindow bounds the attendance and engagement fetches.
const LookbackWindow = 30 * Day

// Domain identifies one independent metric category.
type Domain string

const (
	DomainAcademic   Domain = "academic"
	DomainAttendance Domain = "attendance"
	DomainEngagement Domain = "engagement"
)

// Domains lists every domain in pipeline order.
var Domains = []Domain{DomainAcademic, DomainAttendance, DomainEngagement}

// Title returns the capitalized domain name used in error messages.
func (d Domain) Title() string {
	switch d {
	case DomainAcademic:
		return "Academic"
	case DomainAttendance:
		return "Attendance"
	case DomainEngagement:
		return "Engagement"
	default:
		return string(d)
	}
}

// Validate checks that d is a known domain.
func (d Domain) Validate() error {
	switch d {
	case DomainAcademic, DomainAttendance, DomainEngagement:
		return nil
	}
	return shared.ErrUnknownDomain
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORDS
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceStatus is the mark recorded for one class session.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceExcused AttendanceStatus = "excused"
)

// CountsAsPresent reports whether the mark counts toward effective presence.
func (s AttendanceStatus) CountsAsPresent() bool {
	return s == AttendancePresent || s == AttendanceLate || s == AttendanceExcused
}

// IsValid reports whether s is one of the four known marks.
func (s AttendanceStatus) IsValid() bool {
	return s == AttendancePresent || s == AttendanceAbsent || s == AttendanceLate || s == AttendanceExcused
}

// Engagement activity kinds with dedicated counters.
const (
	ActivityLogin               = "login"
	ActivityAssignmentSubmitted = "assignment_submitted"
	ActivityVideoWatched        = "video_watched"
	ActivityQuizTaken           = "quiz_taken"
)

// Student is a tracked learner.
type Student struct {
	ID             int64     `json:"id" yaml:"id"`
	Code           string    `json:"student_code" yaml:"student_code"`
	FullName       string    `json:"full_name" yaml:"full_name"`
	Email          string    `json:"email" yaml:"email"`
	IsActive       bool      `json:"is_active" yaml:"is_active"`
	EnrollmentDate time.Time `json:"enrollment_date" yaml:"enrollment_date"`
}

// AcademicScore is one graded assessment.
type AcademicScore struct {
	ID             int64     `json:"id" yaml:"id"`
	StudentID      int64     `json:"student_id" yaml:"student_id"`
	Subject        string    `json:"subject" yaml:"subject"`
	AssessmentType string    `json:"assessment_type" yaml:"assessment_type"`
	Score          float64   `json:"score" yaml:"score"`
	MaxScore       float64   `json:"max_score" yaml:"max_score"`
	Percentage     float64   `json:"percentage" yaml:"percentage"`
	Date           time.Time `json:"date" yaml:"date"`
}

// AttendanceRecord is one attendance mark.
type AttendanceRecord struct {
	ID        int64            `json:"id" yaml:"id"`
	StudentID int64            `json:"student_id" yaml:"student_id"`
	Date      time.Time        `json:"date" yaml:"date"`
	Status    AttendanceStatus `json:"status" yaml:"status"`
	ClassName string           `json:"class_name" yaml:"class_name"`
}

// EngagementLog is one LMS activity event.
type EngagementLog struct {
	ID              int64     `json:"id" yaml:"id"`
	StudentID       int64     `json:"student_id" yaml:"student_id"`
	ActivityType    string    `json:"activity_type" yaml:"activity_type"`
	ActivityDetails string    `json:"activity_details,omitempty" yaml:"activity_details"`
	Timestamp       time.Time `json:"timestamp" yaml:"timestamp"`
}

// round2 rounds to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func dateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}
