// Package fetcher contains the three domain fetchers. Each one queries the
// metric store for a single domain and reduces the records to a snapshot.
// Fetchers never panic on empty results; store failures are returned as
// errors for the pipeline to record.
package fetcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/alem-hub/student-insights/internal/domain/metrics"
	"github.com/alem-hub/student-insights/internal/domain/shared"
)

// Academic fetches the full assessment history of a student.
type Academic struct {
	reader metrics.Reader
	logger *slog.Logger
}

// NewAcademic creates an academic fetcher.
func NewAcademic(reader metrics.Reader, logger *slog.Logger) *Academic {
	if logger == nil {
		logger = slog.Default()
	}
	return &Academic{reader: reader, logger: logger}
}

// Fetch returns the academic snapshot for studentID evaluated at now.
func (f *Academic) Fetch(ctx context.Context, studentID int64, now time.Time) (metrics.AcademicSnapshot, error) {
	scores, err := f.reader.AcademicScores(ctx, studentID, nil)
	if err != nil {
		return metrics.AcademicSnapshot{}, fetchError(metrics.DomainAcademic, err)
	}
	f.logger.Debug("academic records loaded", "student_id", studentID, "count", len(scores))
	return metrics.SummarizeAcademic(scores, now), nil
}

// Attendance fetches the attendance marks of the lookback window.
type Attendance struct {
	reader metrics.Reader
	logger *slog.Logger
}

// NewAttendance creates an attendance fetcher.
func NewAttendance(reader metrics.Reader, logger *slog.Logger) *Attendance {
	if logger == nil {
		logger = slog.Default()
	}
	return &Attendance{reader: reader, logger: logger}
}

// Fetch returns the attendance snapshot for studentID evaluated at now.
func (f *Attendance) Fetch(ctx context.Context, studentID int64, now time.Time) (metrics.AttendanceSnapshot, error) {
	since := now.Add(-metrics.LookbackWindow)
	records, err := f.reader.AttendanceRecords(ctx, studentID, &since)
	if err != nil {
		return metrics.AttendanceSnapshot{}, fetchError(metrics.DomainAttendance, err)
	}
	f.logger.Debug("attendance records loaded", "student_id", studentID, "count", len(records))
	return metrics.SummarizeAttendance(records, now), nil
}

// Engagement fetches the LMS activity of the lookback window.
type Engagement struct {
	reader metrics.Reader
	logger *slog.Logger
}

// NewEngagement creates an engagement fetcher.
func NewEngagement(reader metrics.Reader, logger *slog.Logger) *Engagement {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engagement{reader: reader, logger: logger}
}

// Fetch returns the engagement snapshot for studentID evaluated at now.
func (f *Engagement) Fetch(ctx context.Context, studentID int64, now time.Time) (metrics.EngagementSnapshot, error) {
	since := now.Add(-metrics.LookbackWindow)
	logs, err := f.reader.EngagementLogs(ctx, studentID, &since)
	if err != nil {
		return metrics.EngagementSnapshot{}, fetchError(metrics.DomainEngagement, err)
	}
	f.logger.Debug("engagement records loaded", "student_id", studentID, "count", len(logs))
	return metrics.SummarizeEngagement(logs, now), nil
}

func fetchError(domain metrics.Domain, err error) error {
	return shared.WrapError(string(domain), "Fetch", shared.ErrFetchFailed, "query failed", err)
}
