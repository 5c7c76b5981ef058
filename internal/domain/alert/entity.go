// Package alert contains the Alert entity raised by insight rules, the
// severity ordering used for the overall status rollup, and the persistence
// ports implemented by the infrastructure layer.
package alert

import (
	"time"

	"github.com/alem-hub/student-insights/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Type classifies what an alert is about.
type Type string

const (
	TypeGradeDrop         Type = "grade_drop"
	TypeAttendanceDrop    Type = "attendance_drop"
	TypeEngagementDrop    Type = "engagement_drop"
	TypeMissingAssignment Type = "missing_assignment"
)

// IsValid reports whether t is a known alert type.
func (t Type) IsValid() bool {
	switch t {
	case TypeGradeDrop, TypeAttendanceDrop, TypeEngagementDrop, TypeMissingAssignment:
		return true
	}
	return false
}

// Severity is the ordinal priority of an alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordinal position of s, or 0 for unknown values.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// IsValid reports whether s is a known severity.
func (s Severity) IsValid() bool {
	return s.Rank() > 0
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Alert is a persisted notice that a rule fired for a student.
type Alert struct {
	ID         int64      `json:"id"`
	StudentID  int64      `json:"student_id"`
	Type       Type       `json:"alert_type"`
	Severity   Severity   `json:"severity"`
	Message    string     `json:"message"`
	IsResolved bool       `json:"is_resolved"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at"`
}

// New creates an unresolved alert. ID and CreatedAt are assigned by the sink.
func New(studentID int64, t Type, severity Severity, message string) (*Alert, error) {
	if studentID <= 0 {
		return nil, shared.ErrInvalidStudentID
	}
	if !t.IsValid() {
		return nil, shared.ErrInvalidAlertType
	}
	if !severity.IsValid() {
		return nil, shared.ErrInvalidSeverity
	}
	return &Alert{
		StudentID: studentID,
		Type:      t,
		Severity:  severity,
		Message:   message,
	}, nil
}

// Resolve marks the alert as resolved at the given instant.
func (a *Alert) Resolve(at time.Time) error {
	if a.IsResolved {
		return shared.ErrAlertAlreadyResolved
	}
	a.IsResolved = true
	resolved := at.UTC()
	a.ResolvedAt = &resolved
	return nil
}

// Key identifies repeated firings of the same rule for a student.
type Key struct {
	StudentID int64
	Type      Type
	Severity  Severity
	Rule      string
}

// KeyFor returns the dedup key of a and the rule that raised it.
func KeyFor(a *Alert, rule string) Key {
	return Key{StudentID: a.StudentID, Type: a.Type, Severity: a.Severity, Rule: rule}
}
