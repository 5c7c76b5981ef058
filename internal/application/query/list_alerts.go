// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"

	"github.com/alem-hub/student-insights/internal/domain/alert"
	"github.com/alem-hub/student-insights/internal/domain/shared"
)

// MaxListLimit caps ListAlertsQuery.Limit.
const MaxListLimit = 500

// ══════════════════════════════════════════════════════════════════════════════
// LIST ALERTS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// ListAlertsQuery contains the listing parameters.
type ListAlertsQuery struct {
	// StudentID restricts results to one student when non-zero.
	StudentID int64

	// UnresolvedOnly hides resolved alerts.
	UnresolvedOnly bool

	// Limit caps the result size (default alert.DefaultListLimit, max MaxListLimit).
	Limit int
}

// Validate checks the query parameters.
func (q ListAlertsQuery) Validate() error {
	if q.StudentID < 0 {
		return shared.ErrInvalidStudentID
	}
	if q.Limit < 0 || q.Limit > MaxListLimit {
		return shared.NewDomainError("query", "ListAlerts", shared.ErrValueOutOfRange,
			fmt.Sprintf("limit must be between 0 and %d", MaxListLimit))
	}
	return nil
}

// ListAlertsResult is the listing with a per-severity breakdown.
type ListAlertsResult struct {
	Alerts     []*alert.Alert         `json:"alerts"`
	BySeverity map[alert.Severity]int `json:"by_severity"`
	Unresolved int                    `json:"unresolved"`
}

// ListAlertsHandler handles ListAlertsQuery.
type ListAlertsHandler struct {
	repo alert.Repository
}

// NewListAlertsHandler creates a new ListAlertsHandler.
func NewListAlertsHandler(repo alert.Repository) *ListAlertsHandler {
	return &ListAlertsHandler{repo: repo}
}

// Handle runs the query. Alerts are returned newest first.
func (h *ListAlertsHandler) Handle(ctx context.Context, q ListAlertsQuery) (*ListAlertsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	alerts, err := h.repo.ListAlerts(ctx, alert.ListFilter{
		StudentID:      q.StudentID,
		UnresolvedOnly: q.UnresolvedOnly,
		Limit:          q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list_alerts: %w", err)
	}

	result := &ListAlertsResult{
		Alerts:     alerts,
		BySeverity: make(map[alert.Severity]int),
	}
	for _, a := range alerts {
		result.BySeverity[a.Severity]++
		if !a.IsResolved {
			result.Unresolved++
		}
	}
	return result, nil
}
