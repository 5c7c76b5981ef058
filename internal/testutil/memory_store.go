// Package testutil provides shared test utilities for the insights pipeline.
package testutil

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/student-insights/internal/domain/alert"
	"github.com/alem-hub/student-insights/internal/domain/metrics"
	"github.com/alem-hub/student-insights/internal/domain/shared"
)

// Compile-time interface satisfaction checks.
var (
	_ metrics.Reader           = (*MemoryStore)(nil)
	_ metrics.Writer           = (*MemoryStore)(nil)
	_ metrics.StudentDirectory = (*MemoryStore)(nil)
	_ alert.Repository         = (*MemoryStore)(nil)
)

// MemoryStore is an in-memory metric and alert store for tests. Failures
// can be injected per domain and for alert persistence.
type MemoryStore struct {
	mu         sync.Mutex
	students   map[int64]metrics.Student
	scores     []metrics.AcademicScore
	attendance []metrics.AttendanceRecord
	engagement []metrics.EngagementLog
	alerts     []*alert.Alert
	nextID     int64

	// Clock stamps CreatedAt on saved alerts; time.Now when nil.
	Clock func() time.Time

	failReads map[metrics.Domain]error
	failSave  error
	saveCalls int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		students:  make(map[int64]metrics.Student),
		failReads: make(map[metrics.Domain]error),
	}
}

// FailReads makes every read of domain return err. A nil err clears it.
func (m *MemoryStore) FailReads(domain metrics.Domain, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failReads, domain)
		return
	}
	m.failReads[domain] = err
}

// FailSave makes SaveAlerts return err without storing anything.
func (m *MemoryStore) FailSave(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSave = err
}

// SaveCalls returns how many times SaveAlerts was invoked.
func (m *MemoryStore) SaveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCalls
}

// Alerts returns a copy of the stored alerts in insertion order.
func (m *MemoryStore) Alerts() []alert.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]alert.Alert, len(m.alerts))
	for i, a := range m.alerts {
		out[i] = *a
	}
	return out
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryStore) now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return time.Now().UTC()
}

// ══════════════════════════════════════════════════════════════════════════════
// metrics.Writer
// ══════════════════════════════════════════════════════════════════════════════

// SaveStudent upserts by ID, then by code.
func (m *MemoryStore) SaveStudent(_ context.Context, s *metrics.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 && s.Code != "" {
		for id, existing := range m.students {
			if existing.Code == s.Code {
				s.ID = id
				break
			}
		}
	}
	if s.ID == 0 {
		s.ID = m.id()
	}
	m.students[s.ID] = *s
	return nil
}

func (m *MemoryStore) AddAcademicScores(_ context.Context, scores []*metrics.AcademicScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range scores {
		s.ID = m.id()
		m.scores = append(m.scores, *s)
	}
	return nil
}

func (m *MemoryStore) AddAttendanceRecords(_ context.Context, records []*metrics.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		r.ID = m.id()
		m.attendance = append(m.attendance, *r)
	}
	return nil
}

func (m *MemoryStore) AddEngagementLogs(_ context.Context, logs []*metrics.EngagementLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range logs {
		l.ID = m.id()
		m.engagement = append(m.engagement, *l)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// metrics.Reader
// ══════════════════════════════════════════════════════════════════════════════

func (m *MemoryStore) AcademicScores(_ context.Context, studentID int64, since *time.Time) ([]metrics.AcademicScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failReads[metrics.DomainAcademic]; err != nil {
		return nil, err
	}
	out := []metrics.AcademicScore{}
	for _, s := range m.scores {
		if s.StudentID == studentID && (since == nil || !s.Date.Before(*since)) {
			out = append(out, s)
		}
	}
	slices.SortStableFunc(out, func(a, b metrics.AcademicScore) int { return b.Date.Compare(a.Date) })
	return out, nil
}

func (m *MemoryStore) AttendanceRecords(_ context.Context, studentID int64, since *time.Time) ([]metrics.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failReads[metrics.DomainAttendance]; err != nil {
		return nil, err
	}
	out := []metrics.AttendanceRecord{}
	for _, r := range m.attendance {
		if r.StudentID == studentID && (since == nil || !r.Date.Before(*since)) {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b metrics.AttendanceRecord) int { return b.Date.Compare(a.Date) })
	return out, nil
}

func (m *MemoryStore) EngagementLogs(_ context.Context, studentID int64, since *time.Time) ([]metrics.EngagementLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failReads[metrics.DomainEngagement]; err != nil {
		return nil, err
	}
	out := []metrics.EngagementLog{}
	for _, l := range m.engagement {
		if l.StudentID == studentID && (since == nil || !l.Timestamp.Before(*since)) {
			out = append(out, l)
		}
	}
	slices.SortStableFunc(out, func(a, b metrics.EngagementLog) int { return b.Timestamp.Compare(a.Timestamp) })
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// metrics.StudentDirectory
// ══════════════════════════════════════════════════════════════════════════════

func (m *MemoryStore) ActiveStudentIDs(_ context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.students))
	for id, s := range m.students {
		if s.IsActive {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// alert.Repository
// ══════════════════════════════════════════════════════════════════════════════

func (m *MemoryStore) SaveAlerts(_ context.Context, alerts []*alert.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.failSave != nil {
		return m.failSave
	}
	for _, a := range alerts {
		a.ID = m.id()
		a.CreatedAt = m.now()
		stored := *a
		m.alerts = append(m.alerts, &stored)
	}
	return nil
}

func (m *MemoryStore) ListAlerts(_ context.Context, filter alert.ListFilter) ([]*alert.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*alert.Alert
	for i := len(m.alerts) - 1; i >= 0 && len(out) < filter.EffectiveLimit(); i-- {
		a := m.alerts[i]
		if filter.StudentID != 0 && a.StudentID != filter.StudentID {
			continue
		}
		if filter.UnresolvedOnly && a.IsResolved {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) GetAlert(_ context.Context, id int64) (*alert.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, shared.ErrAlertNotFound
}

func (m *MemoryStore) ResolveAlert(_ context.Context, id int64, at time.Time) (*alert.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.ID == id {
			if err := a.Resolve(at); err != nil {
				return nil, err
			}
			cp := *a
			return &cp, nil
		}
	}
	return nil, shared.ErrAlertNotFound
}
