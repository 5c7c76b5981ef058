package metrics

import (
	"context"
	"time"
)

// Reader defines read access to stored metric records.
// This interface is implemented by the infrastructure layer.
//
// Every method returns records for one student ordered by time, newest
// first. A nil since means the full history. No rows is an empty slice,
// never an error; errors are reserved for genuine access failures.
type Reader interface {
	// AcademicScores returns graded assessments dated at or after since.
	AcademicScores(ctx context.Context, studentID int64, since *time.Time) ([]AcademicScore, error)

	// AttendanceRecords returns attendance marks dated at or after since.
	AttendanceRecords(ctx context.Context, studentID int64, since *time.Time) ([]AttendanceRecord, error)

	// EngagementLogs returns LMS events timestamped at or after since.
	EngagementLogs(ctx context.Context, studentID int64, since *time.Time) ([]EngagementLog, error)
}

// Writer defines write access used to load records into the store.
type Writer interface {
	// SaveStudent inserts or updates a student.
	SaveStudent(ctx context.Context, s *Student) error

	// AddAcademicScores inserts scores and assigns their IDs.
	AddAcademicScores(ctx context.Context, scores []*AcademicScore) error

	// AddAttendanceRecords inserts attendance marks and assigns their IDs.
	AddAttendanceRecords(ctx context.Context, records []*AttendanceRecord) error

	// AddEngagementLogs inserts LMS events and assigns their IDs.
	AddEngagementLogs(ctx context.Context, logs []*EngagementLog) error
}

// StudentDirectory lists the students eligible for batch analysis.
type StudentDirectory interface {
	// ActiveStudentIDs returns the IDs of all active students in ascending order.
	ActiveStudentIDs(ctx context.Context) ([]int64, error)
}
