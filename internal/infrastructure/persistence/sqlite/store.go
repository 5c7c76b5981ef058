// Package sqlite implements the metric store and the alert repository on an
// embedded SQLite database, for local runs and tests without PostgreSQL.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alem-hub/student-insights/internal/domain/alert"
	"github.com/alem-hub/student-insights/internal/domain/metrics"
	"github.com/alem-hub/student-insights/internal/domain/shared"
)

// Compile-time interface checks.
var (
	_ metrics.Reader           = (*Store)(nil)
	_ metrics.Writer           = (*Store)(nil)
	_ metrics.StudentDirectory = (*Store)(nil)
	_ alert.Repository         = (*Store)(nil)
)

// Store is a SQLite-backed metric store and alert repository. Instants are
// stored as UTC unix nanoseconds.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?" + url.Values{
		"_pragma": []string{"foreign_keys(1)", "busy_timeout(10000)", "journal_mode(WAL)"},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if _, err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit transaction: %w", err)
	}
	return nil
}

func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// ══════════════════════════════════════════════════════════════════════════════
// metrics.Reader
// ══════════════════════════════════════════════════════════════════════════════

func sinceClause(column string, since *time.Time) (string, []any) {
	if since == nil {
		return "", nil
	}
	return " AND " + column + " >= ?", []any{toNanos(*since)}
}

// AcademicScores returns the scores of a student, newest first.
func (s *Store) AcademicScores(ctx context.Context, studentID int64, since *time.Time) ([]metrics.AcademicScore, error) {
	where, extra := sinceClause("date", since)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, subject, assessment_type, score, max_score, percentage, date
		FROM academic_scores WHERE student_id = ?`+where+`
		ORDER BY date DESC, id DESC`, append([]any{studentID}, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query academic scores: %w", err)
	}
	defer rows.Close()

	out := []metrics.AcademicScore{}
	for rows.Next() {
		var (
			sc   metrics.AcademicScore
			date int64
		)
		if err := rows.Scan(&sc.ID, &sc.StudentID, &sc.Subject, &sc.AssessmentType, &sc.Score, &sc.MaxScore, &sc.Percentage, &date); err != nil {
			return nil, fmt.Errorf("failed to scan academic score: %w", err)
		}
		sc.Date = fromNanos(date)
		out = append(out, sc)
	}
	return out, rows.Err()
}

// AttendanceRecords returns the attendance marks of a student, newest first.
func (s *Store) AttendanceRecords(ctx context.Context, studentID int64, since *time.Time) ([]metrics.AttendanceRecord, error) {
	where, extra := sinceClause("date", since)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, date, status, class_name
		FROM attendance_records WHERE student_id = ?`+where+`
		ORDER BY date DESC, id DESC`, append([]any{studentID}, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance records: %w", err)
	}
	defer rows.Close()

	out := []metrics.AttendanceRecord{}
	for rows.Next() {
		var (
			rec    metrics.AttendanceRecord
			date   int64
			status string
		)
		if err := rows.Scan(&rec.ID, &rec.StudentID, &date, &status, &rec.ClassName); err != nil {
			return nil, fmt.Errorf("failed to scan attendance record: %w", err)
		}
		rec.Date = fromNanos(date)
		rec.Status = metrics.AttendanceStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// EngagementLogs returns the LMS activity of a student, newest first.
func (s *Store) EngagementLogs(ctx context.Context, studentID int64, since *time.Time) ([]metrics.EngagementLog, error) {
	where, extra := sinceClause("timestamp", since)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, activity_type, COALESCE(activity_details, ''), timestamp
		FROM engagement_logs WHERE student_id = ?`+where+`
		ORDER BY timestamp DESC, id DESC`, append([]any{studentID}, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query engagement logs: %w", err)
	}
	defer rows.Close()

	out := []metrics.EngagementLog{}
	for rows.Next() {
		var (
			l  metrics.EngagementLog
			ts int64
		)
		if err := rows.Scan(&l.ID, &l.StudentID, &l.ActivityType, &l.ActivityDetails, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan engagement log: %w", err)
		}
		l.Timestamp = fromNanos(ts)
		out = append(out, l)
	}
	return out, rows.Err()
}

// ActiveStudentIDs returns the ids of active students in ascending order.
func (s *Store) ActiveStudentIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM students WHERE is_active = 1 ORDER BY id`)
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

// ══════════════════════════════════════════════════════════════════════════════
// metrics.Writer
// ══════════════════════════════════════════════════════════════════════════════

// SaveStudent inserts or updates a student by code and sets its ID.
func (s *Store) SaveStudent(ctx context.Context, st *metrics.Student) error {
	if st.Code == "" {
		return shared.NewDomainError("student", "Save", shared.ErrValidation, "student code is required")
	}
	enrolled := st.EnrollmentDate
	if enrolled.IsZero() {
		enrolled = time.Now()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO students (student_code, full_name, email, enrollment_date, is_active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (student_code) DO UPDATE SET
			full_name = excluded.full_name,
			email = excluded.email,
			is_active = excluded.is_active
		RETURNING id`,
		st.Code, st.FullName, st.Email, toNanos(enrolled), st.IsActive,
	).Scan(&st.ID)
	if err != nil {
		return fmt.Errorf("failed to save student: %w", err)
	}
	return nil
}

// AddAcademicScores inserts scores in one transaction.
func (s *Store) AddAcademicScores(ctx context.Context, scores []*metrics.AcademicScore) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, sc := range scores {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO academic_scores (student_id, subject, assessment_type, score, max_score, percentage, date)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				sc.StudentID, sc.Subject, sc.AssessmentType, sc.Score, sc.MaxScore, sc.Percentage, toNanos(sc.Date))
			if err != nil {
				return insertError("academic score", sc.StudentID, err)
			}
			if sc.ID, err = res.LastInsertId(); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddAttendanceRecords inserts attendance marks in one transaction.
func (s *Store) AddAttendanceRecords(ctx context.Context, records []*metrics.AttendanceRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range records {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO attendance_records (student_id, date, status, class_name)
				VALUES (?, ?, ?, ?)`,
				rec.StudentID, toNanos(rec.Date), string(rec.Status), rec.ClassName)
			if err != nil {
				return insertError("attendance record", rec.StudentID, err)
			}
			if rec.ID, err = res.LastInsertId(); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddEngagementLogs inserts LMS activity in one transaction.
func (s *Store) AddEngagementLogs(ctx context.Context, logs []*metrics.EngagementLog) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, l := range logs {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO engagement_logs (student_id, activity_type, activity_details, timestamp)
				VALUES (?, ?, NULLIF(?, ''), ?)`,
				l.StudentID, l.ActivityType, l.ActivityDetails, toNanos(l.Timestamp))
			if err != nil {
				return insertError("engagement log", l.StudentID, err)
			}
			if l.ID, err = res.LastInsertId(); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertError(what string, studentID int64, err error) error {
	if isForeignKeyViolation(err) {
		return shared.WrapError("student", "Insert", shared.ErrNotFound, fmt.Sprintf("student %d does not exist", studentID), err)
	}
	return fmt.Errorf("failed to insert %s: %w", what, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// alert.Repository
// ══════════════════════════════════════════════════════════════════════════════

const alertColumns = `id, student_id, alert_type, severity, message, is_resolved, created_at, resolved_at`

// SaveAlerts inserts every alert in one transaction and fills in ID and
// CreatedAt.
func (s *Store) SaveAlerts(ctx context.Context, alerts []*alert.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, a := range alerts {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO alerts (student_id, alert_type, severity, message, is_resolved, created_at)
				VALUES (?, ?, ?, ?, 0, ?)`,
				a.StudentID, string(a.Type), string(a.Severity), a.Message, toNanos(now))
			if err != nil {
				return insertError("alert", a.StudentID, err)
			}
			if a.ID, err = res.LastInsertId(); err != nil {
				return err
			}
			a.CreatedAt = now
		}
		return nil
	})
}

// ListAlerts returns alerts newest first.
func (s *Store) ListAlerts(ctx context.Context, filter alert.ListFilter) ([]*alert.Alert, error) {
	var (
		conds []string
		args  []any
	)
	if filter.StudentID != 0 {
		conds = append(conds, "student_id = ?")
		args = append(args, filter.StudentID)
	}
	if filter.UnresolvedOnly {
		conds = append(conds, "is_resolved = 0")
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, filter.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts `+where+` ORDER BY created_at DESC, id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	out := []*alert.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAlert returns one alert by id.
func (s *Store) GetAlert(ctx context.Context, id int64) (*alert.Alert, error) {
	a, err := scanAlert(s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrAlertNotFound
	}
	return a, err
}

// ResolveAlert marks an unresolved alert as resolved at the given instant.
func (s *Store) ResolveAlert(ctx context.Context, id int64, at time.Time) (*alert.Alert, error) {
	var out *alert.Alert
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		a, err := scanAlert(tx.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return shared.ErrAlertNotFound
		}
		if err != nil {
			return err
		}
		if err := a.Resolve(at); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE alerts SET is_resolved = 1, resolved_at = ? WHERE id = ?`, toNanos(*a.ResolvedAt), id); err != nil {
			return fmt.Errorf("failed to resolve alert: %w", err)
		}
		out = a
		return nil
	})
	return out, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(row scanner) (*alert.Alert, error) {
	var (
		a          alert.Alert
		alertType  string
		severity   string
		createdAt  int64
		resolvedAt sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.StudentID, &alertType, &severity, &a.Message, &a.IsResolved, &createdAt, &resolvedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}
	a.Type = alert.Type(alertType)
	a.Severity = alert.Severity(severity)
	a.CreatedAt = fromNanos(createdAt)
	if resolvedAt.Valid {
		t := fromNanos(resolvedAt.Int64)
		a.ResolvedAt = &t
	}
	return &a, nil
}
