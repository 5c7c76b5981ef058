package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/student-insights/internal/domain/metrics"
	"github.com/alem-hub/student-insights/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// METRIC REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// Compile-time interface checks.
var (
	_ metrics.Reader           = (*MetricRepository)(nil)
	_ metrics.Writer           = (*MetricRepository)(nil)
	_ metrics.StudentDirectory = (*MetricRepository)(nil)
)

// MetricRepository reads and writes the three metric tables and students.
type MetricRepository struct {
	conn *Connection
}

// NewMetricRepository creates a new MetricRepository.
func NewMetricRepository(conn *Connection) *MetricRepository {
	return &MetricRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// sinceClause appends the optional lower time bound as parameter $2.
func sinceClause(column string, since *time.Time) (string, []any) {
	if since == nil {
		return "", nil
	}
	return fmt.Sprintf(" AND %s >= $2", column), []any{*since}
}

// AcademicScores returns the scores of a student, newest first.
func (r *MetricRepository) AcademicScores(ctx context.Context, studentID int64, since *time.Time) ([]metrics.AcademicScore, error) {
	where, extra := sinceClause("date", since)
	query := `
		SELECT id, student_id, subject, assessment_type, score, max_score, percentage, date
		FROM academic_scores
		WHERE student_id = $1` + where + `
		ORDER BY date DESC, id DESC
	`

	rows, err := r.conn.Query(ctx, query, append([]any{studentID}, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query academic scores: %w", err)
	}
	defer rows.Close()

	out := []metrics.AcademicScore{}
	for rows.Next() {
		var s metrics.AcademicScore
		if err := rows.Scan(&s.ID, &s.StudentID, &s.Subject, &s.AssessmentType, &s.Score, &s.MaxScore, &s.Percentage, &s.Date); err != nil {
			return nil, fmt.Errorf("failed to scan academic score: %w", err)
		}
		s.Date = s.Date.UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// AttendanceRecords returns the attendance marks of a student, newest first.
func (r *MetricRepository) AttendanceRecords(ctx context.Context, studentID int64, since *time.Time) ([]metrics.AttendanceRecord, error) {
	where, extra := sinceClause("date", since)
	query := `
		SELECT id, student_id, date, status, class_name
		FROM attendance_records
		WHERE student_id = $1` + where + `
		ORDER BY date DESC, id DESC
	`

	rows, err := r.conn.Query(ctx, query, append([]any{studentID}, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance records: %w", err)
	}
	defer rows.Close()

	out := []metrics.AttendanceRecord{}
	for rows.Next() {
		var rec metrics.AttendanceRecord
		var status string
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.Date, &status, &rec.ClassName); err != nil {
			return nil, fmt.Errorf("failed to scan attendance record: %w", err)
		}
		rec.Status = metrics.AttendanceStatus(status)
		rec.Date = rec.Date.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// EngagementLogs returns the LMS activity of a student, newest first.
func (r *MetricRepository) EngagementLogs(ctx context.Context, studentID int64, since *time.Time) ([]metrics.EngagementLog, error) {
	where, extra := sinceClause("timestamp", since)
	query := `
		SELECT id, student_id, activity_type, COALESCE(activity_details, ''), timestamp
		FROM engagement_logs
		WHERE student_id = $1` + where + `
		ORDER BY timestamp DESC, id DESC
	`

	rows, err := r.conn.Query(ctx, query, append([]any{studentID}, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query engagement logs: %w", err)
	}
	defer rows.Close()

	out := []metrics.EngagementLog{}
	for rows.Next() {
		var l metrics.EngagementLog
		if err := rows.Scan(&l.ID, &l.StudentID, &l.ActivityType, &l.ActivityDetails, &l.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan engagement log: %w", err)
		}
		l.Timestamp = l.Timestamp.UTC()
		out = append(out, l)
	}
	return out, rows.Err()
}

// ActiveStudentIDs returns the ids of active students in ascending order.
func (r *MetricRepository) ActiveStudentIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.conn.Query(ctx, `SELECT id FROM students WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active students: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan student id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// SaveStudent inserts or updates a student by code and sets its ID.
func (r *MetricRepository) SaveStudent(ctx context.Context, s *metrics.Student) error {
	if s.Code == "" {
		return shared.NewDomainError("student", "Save", shared.ErrValidation, "student code is required")
	}
	enrolled := s.EnrollmentDate
	if enrolled.IsZero() {
		enrolled = time.Now().UTC()
	}

	query := `
		INSERT INTO students (student_code, full_name, email, enrollment_date, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (student_code) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			email = EXCLUDED.email,
			is_active = EXCLUDED.is_active
		RETURNING id
	`
	if err := r.conn.QueryRow(ctx, query, s.Code, s.FullName, s.Email, enrolled, s.IsActive).Scan(&s.ID); err != nil {
		return fmt.Errorf("failed to save student: %w", err)
	}
	return nil
}

// AddAcademicScores inserts scores in one transaction.
func (r *MetricRepository) AddAcademicScores(ctx context.Context, scores []*metrics.AcademicScore) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		for _, s := range scores {
			err := tx.QueryRow(ctx, `
				INSERT INTO academic_scores (student_id, subject, assessment_type, score, max_score, percentage, date)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING id
			`, s.StudentID, s.Subject, s.AssessmentType, s.Score, s.MaxScore, s.Percentage, s.Date).Scan(&s.ID)
			if err != nil {
				return insertError("academic score", s.StudentID, err)
			}
		}
		return nil
	})
}

// AddAttendanceRecords inserts attendance marks in one transaction.
func (r *MetricRepository) AddAttendanceRecords(ctx context.Context, records []*metrics.AttendanceRecord) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		for _, rec := range records {
			err := tx.QueryRow(ctx, `
				INSERT INTO attendance_records (student_id, date, status, class_name)
				VALUES ($1, $2, $3, $4)
				RETURNING id
			`, rec.StudentID, rec.Date, string(rec.Status), rec.ClassName).Scan(&rec.ID)
			if err != nil {
				return insertError("attendance record", rec.StudentID, err)
			}
		}
		return nil
	})
}

// AddEngagementLogs inserts LMS activity in one transaction.
func (r *MetricRepository) AddEngagementLogs(ctx context.Context, logs []*metrics.EngagementLog) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		for _, l := range logs {
			err := tx.QueryRow(ctx, `
				INSERT INTO engagement_logs (student_id, activity_type, activity_details, timestamp)
				VALUES ($1, $2, NULLIF($3, ''), $4)
				RETURNING id
			`, l.StudentID, l.ActivityType, l.ActivityDetails, l.Timestamp).Scan(&l.ID)
			if err != nil {
				return insertError("engagement log", l.StudentID, err)
			}
		}
		return nil
	})
}

func insertError(what string, studentID int64, err error) error {
	if IsForeignKeyViolation(err) {
		return shared.WrapError("student", "Insert", shared.ErrNotFound, fmt.Sprintf("student %d does not exist", studentID), err)
	}
	return fmt.Errorf("failed to insert %s: %w", what, err)
}
