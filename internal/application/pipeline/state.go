package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/student-insights/internal/application/synthesis"
	"github.com/alem-hub/student-insights/internal/domain/metrics"
	"github.com/alem-hub/student-insights/internal/domain/shared"
)

// Status tags a stage result.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ══════════════════════════════════════════════════════════════════════════════
// STAGE RESULTS
// ══════════════════════════════════════════════════════════════════════════════

// DomainResult is the outcome of one fetch stage: either a snapshot or an
// error message.
type DomainResult[T any] struct {
	Status Status `json:"status"`
	Data   *T     `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// OK reports whether the fetch succeeded.
func (r DomainResult[T]) OK() bool {
	return r.Status == StatusSuccess
}

func succeeded[T any](v T) DomainResult[T] {
	return DomainResult[T]{Status: StatusSuccess, Data: &v}
}

func failed[T any](err error) DomainResult[T] {
	return DomainResult[T]{Status: StatusError, Error: cause(err)}
}

// AnalysisResult is the outcome of the synthesis stage. On success it
// serializes as the analysis itself; on failure as {status, error}.
type AnalysisResult struct {
	Status   Status
	Analysis *synthesis.Analysis
	Error    string
}

// OK reports whether synthesis succeeded.
func (r AnalysisResult) OK() bool {
	return r.Status == StatusSuccess
}

// MarshalJSON implements json.Marshaler.
func (r AnalysisResult) MarshalJSON() ([]byte, error) {
	if r.Status == StatusError {
		return json.Marshal(struct {
			Status Status `json:"status"`
			Error  string `json:"error"`
		}{r.Status, r.Error})
	}
	if r.Analysis == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.Analysis)
}

// ══════════════════════════════════════════════════════════════════════════════
// STATE
// ══════════════════════════════════════════════════════════════════════════════

// State is the private, typed state of one invocation. Stages write their
// own slot and append to Errors; nothing is ever removed.
type State struct {
	RunID     string
	StudentID int64
	Now       time.Time

	Academic   DomainResult[metrics.AcademicSnapshot]
	Attendance DomainResult[metrics.AttendanceSnapshot]
	Engagement DomainResult[metrics.EngagementSnapshot]
	Analysis   AnalysisResult

	Errors []string
}

// NewState creates the initial state of a run.
func NewState(runID string, studentID int64, now time.Time) *State {
	return &State{
		RunID:     runID,
		StudentID: studentID,
		Now:       now,
		Errors:    []string{},
	}
}

func (s *State) appendError(msg string) {
	s.Errors = append(s.Errors, msg)
}

// failPending marks every stage that never ran as failed with err, in stage
// order. Slots already written are kept.
func (s *State) failPending(err error) {
	if s.Academic.Status == "" {
		s.Academic = failed[metrics.AcademicSnapshot](err)
		s.appendError(fmt.Sprintf("%s fetch error: %s", metrics.DomainAcademic.Title(), cause(err)))
	}
	if s.Attendance.Status == "" {
		s.Attendance = failed[metrics.AttendanceSnapshot](err)
		s.appendError(fmt.Sprintf("%s fetch error: %s", metrics.DomainAttendance.Title(), cause(err)))
	}
	if s.Engagement.Status == "" {
		s.Engagement = failed[metrics.EngagementSnapshot](err)
		s.appendError(fmt.Sprintf("%s fetch error: %s", metrics.DomainEngagement.Title(), cause(err)))
	}
	if s.Analysis.Status == "" {
		s.Analysis = AnalysisResult{Status: StatusError, Error: cause(err)}
		s.appendError("Analysis error: " + cause(err))
	}
}

// synthesisInput passes only the successful snapshots on.
func (s *State) synthesisInput() synthesis.Input {
	in := synthesis.Input{StudentID: s.StudentID}
	if s.Academic.OK() {
		in.Academic = s.Academic.Data
	}
	if s.Attendance.OK() {
		in.Attendance = s.Attendance.Data
	}
	if s.Engagement.OK() {
		in.Engagement = s.Engagement.Data
	}
	return in
}

// Result assembles the aggregate returned to callers.
func (s *State) Result() Result {
	errs := make([]string, len(s.Errors))
	copy(errs, s.Errors)
	return Result{
		StudentID:  s.StudentID,
		Academic:   s.Academic,
		Attendance: s.Attendance,
		Engagement: s.Engagement,
		Analysis:   s.Analysis,
		Errors:     errs,
	}
}

// Result is the aggregate of one pipeline invocation.
type Result struct {
	StudentID  int64                                   `json:"student_id"`
	Academic   DomainResult[metrics.AcademicSnapshot]   `json:"academic"`
	Attendance DomainResult[metrics.AttendanceSnapshot] `json:"attendance"`
	Engagement DomainResult[metrics.EngagementSnapshot] `json:"engagement"`
	Analysis   AnalysisResult                          `json:"analysis"`
	Errors     []string                                `json:"errors"`
}

// OverallStatus returns the analysis status, or "error" when synthesis failed.
func (r Result) OverallStatus() string {
	if !r.Analysis.OK() || r.Analysis.Analysis == nil {
		return string(StatusError)
	}
	return string(r.Analysis.Analysis.OverallStatus)
}

// cause returns the message of the innermost wrapped error of a domain
// error, so results carry the store's message rather than the wrapper's.
func cause(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) && de.Err != nil {
		return de.Err.Error()
	}
	return err.Error()
}
