package alert

import (
	"context"
	"time"
)

// DefaultListLimit is applied when a ListFilter has no limit.
const DefaultListLimit = 50

// Sink persists alerts raised by one synthesis stage.
type Sink interface {
	// SaveAlerts inserts all alerts in a single transaction and assigns
	// ID and CreatedAt on each. Either every alert is stored or none is.
	SaveAlerts(ctx context.Context, alerts []*Alert) error
}

// ListFilter narrows ListAlerts.
type ListFilter struct {
	// StudentID restricts results to one student when non-zero.
	StudentID int64

	// UnresolvedOnly hides resolved alerts.
	UnresolvedOnly bool

	// Limit caps the result size; DefaultListLimit when <= 0.
	Limit int
}

// EffectiveLimit returns the limit to apply.
func (f ListFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// Repository is the full persistence port for alerts.
type Repository interface {
	Sink

	// ListAlerts returns alerts newest first.
	ListAlerts(ctx context.Context, filter ListFilter) ([]*Alert, error)

	// GetAlert returns one alert by ID.
	GetAlert(ctx context.Context, id int64) (*Alert, error)

	// ResolveAlert marks an alert resolved. Resolving an already resolved
	// alert returns shared.ErrAlertAlreadyResolved.
	ResolveAlert(ctx context.Context, id int64, at time.Time) (*Alert, error)
}

// DedupGuard decides whether an alert for a key may be persisted again.
type DedupGuard interface {
	// Admit reserves key for window and reports whether the caller may persist.
	Admit(ctx context.Context, key Key, window time.Duration) (bool, error)

	// Release drops a reservation taken by Admit, used when persisting failed.
	Release(ctx context.Context, key Key) error
}
