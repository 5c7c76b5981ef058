// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alem-hub/student-insights/internal/domain/metrics"
	"github.com/alem-hub/student-insights/internal/domain/shared"
	"github.com/alem-hub/student-insights/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// INGEST RECORDS COMMAND
// Loads students and their metric records into the store.
// ══════════════════════════════════════════════════════════════════════════════

// StudentRecords is one student with the records to attach to it. Records
// reference their student by position, so student_id is ignored on input.
type StudentRecords struct {
	metrics.Student `yaml:",inline"`

	Scores     []metrics.AcademicScore    `yaml:"scores"`
	Attendance []metrics.AttendanceRecord `yaml:"attendance"`
	Engagement []metrics.EngagementLog    `yaml:"engagement"`
}

// IngestRecordsCommand contains the data to load.
type IngestRecordsCommand struct {
	// AsOf is the instant the records were captured relative to.
	AsOf time.Time `yaml:"as_of"`

	// Rebase shifts every date by (now - AsOf) so that fixtures stay inside
	// the analysis lookback window. Requires AsOf.
	Rebase bool `yaml:"-"`

	Students []StudentRecords `yaml:"students"`
}

// ParseIngestFile decodes an ingest document.
func ParseIngestFile(data []byte) (IngestRecordsCommand, error) {
	var cmd IngestRecordsCommand
	if err := yaml.Unmarshal(data, &cmd); err != nil {
		return cmd, fmt.Errorf("ingest: failed to parse document: %w", err)
	}
	return cmd, nil
}

// Validate validates the command.
func (c IngestRecordsCommand) Validate() error {
	if len(c.Students) == 0 {
		return errors.New("ingest: no students to load")
	}
	if c.Rebase && c.AsOf.IsZero() {
		return errors.New("ingest: rebase requires as_of")
	}

	seen := make(map[string]bool, len(c.Students))
	for i, s := range c.Students {
		if s.Code == "" {
			return fmt.Errorf("ingest: student %d: student_code is required", i)
		}
		if seen[s.Code] {
			return fmt.Errorf("ingest: student %s listed twice", s.Code)
		}
		seen[s.Code] = true

		for j, sc := range s.Scores {
			if sc.Subject == "" {
				return fmt.Errorf("ingest: student %s score %d: subject is required", s.Code, j)
			}
			if sc.MaxScore <= 0 || sc.Score < 0 || sc.Score > sc.MaxScore {
				return fmt.Errorf("ingest: student %s score %d: score must be within [0, max_score]", s.Code, j)
			}
			if sc.Date.IsZero() {
				return fmt.Errorf("ingest: student %s score %d: date is required", s.Code, j)
			}
		}
		for j, a := range s.Attendance {
			if !a.Status.IsValid() {
				return fmt.Errorf("ingest: student %s attendance %d: invalid status %q", s.Code, j, a.Status)
			}
			if a.Date.IsZero() {
				return fmt.Errorf("ingest: student %s attendance %d: date is required", s.Code, j)
			}
		}
		for j, e := range s.Engagement {
			if e.ActivityType == "" {
				return fmt.Errorf("ingest: student %s engagement %d: activity_type is required", s.Code, j)
			}
			if e.Timestamp.IsZero() {
				return fmt.Errorf("ingest: student %s engagement %d: timestamp is required", s.Code, j)
			}
		}
	}
	return nil
}

// IngestRecordsResult reports what was loaded.
type IngestRecordsResult struct {
	// StudentIDs maps student codes to store IDs.
	StudentIDs map[string]int64

	Scores     int
	Attendance int
	Engagement int

	// Shift is the offset applied to every date when rebasing.
	Shift time.Duration
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// IngestRecordsHandler handles the IngestRecordsCommand.
type IngestRecordsHandler struct {
	writer metrics.Writer
	logger *slog.Logger
	clock  func() time.Time
}

// NewIngestRecordsHandler creates a new IngestRecordsHandler.
func NewIngestRecordsHandler(writer metrics.Writer, logger *slog.Logger) *IngestRecordsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestRecordsHandler{writer: writer, logger: logger, clock: time.Now}
}

// Handle executes the ingest command. Students are upserted by code; records
// are always appended.
func (h *IngestRecordsHandler) Handle(ctx context.Context, cmd IngestRecordsCommand) (*IngestRecordsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("command", "IngestRecords", shared.ErrValidation, "invalid ingest document", err)
	}

	result := &IngestRecordsResult{StudentIDs: make(map[string]int64, len(cmd.Students))}
	if cmd.Rebase {
		result.Shift = h.clock().UTC().Sub(cmd.AsOf).Truncate(timeutil.Day)
	}
	shift := func(t time.Time) time.Time { return t.Add(result.Shift).UTC() }

	for _, sr := range cmd.Students {
		st := sr.Student
		st.ID = 0
		if err := h.writer.SaveStudent(ctx, &st); err != nil {
			return result, fmt.Errorf("ingest: failed to save student %s: %w", st.Code, err)
		}
		result.StudentIDs[st.Code] = st.ID

		if n := len(sr.Scores); n > 0 {
			scores := make([]*metrics.AcademicScore, n)
			for i := range sr.Scores {
				sc := sr.Scores[i]
				sc.ID, sc.StudentID, sc.Date = 0, st.ID, shift(sc.Date)
				if sc.Percentage == 0 {
					sc.Percentage = sc.Score * 100 / sc.MaxScore
				}
				scores[i] = &sc
			}
			if err := h.writer.AddAcademicScores(ctx, scores); err != nil {
				return result, fmt.Errorf("ingest: failed to add scores for %s: %w", st.Code, err)
			}
			result.Scores += n
		}

		if n := len(sr.Attendance); n > 0 {
			records := make([]*metrics.AttendanceRecord, n)
			for i := range sr.Attendance {
				a := sr.Attendance[i]
				a.ID, a.StudentID, a.Date = 0, st.ID, shift(a.Date)
				records[i] = &a
			}
			if err := h.writer.AddAttendanceRecords(ctx, records); err != nil {
				return result, fmt.Errorf("ingest: failed to add attendance for %s: %w", st.Code, err)
			}
			result.Attendance += n
		}

		if n := len(sr.Engagement); n > 0 {
			logs := make([]*metrics.EngagementLog, n)
			for i := range sr.Engagement {
				e := sr.Engagement[i]
				e.ID, e.StudentID, e.Timestamp = 0, st.ID, shift(e.Timestamp)
				logs[i] = &e
			}
			if err := h.writer.AddEngagementLogs(ctx, logs); err != nil {
				return result, fmt.Errorf("ingest: failed to add engagement for %s: %w", st.Code, err)
			}
			result.Engagement += n
		}

		h.logger.Debug("student ingested",
			"student_code", st.Code,
			"student_id", st.ID,
			"scores", len(sr.Scores),
			"attendance", len(sr.Attendance),
			"engagement", len(sr.Engagement),
		)
	}

	h.logger.Info("ingest completed",
		"students", len(result.StudentIDs),
		"scores", result.Scores,
		"attendance", result.Attendance,
		"engagement", result.Engagement,
	)
	return result, nil
}
