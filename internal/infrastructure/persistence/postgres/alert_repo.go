package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/student-insights/internal/domain/alert"
	"github.com/alem-hub/student-insights/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ALERT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

var _ alert.Repository = (*AlertRepository)(nil)

// AlertRepository implements alert.Repository for PostgreSQL.
type AlertRepository struct {
	conn *Connection
}

// NewAlertRepository creates a new AlertRepository.
func NewAlertRepository(conn *Connection) *AlertRepository {
	return &AlertRepository{conn: conn}
}

const alertColumns = `id, student_id, alert_type, severity, message, is_resolved, created_at, resolved_at`

// SaveAlerts inserts every alert in a single transaction and fills in ID
// and CreatedAt. Either all alerts are stored or none.
func (r *AlertRepository) SaveAlerts(ctx context.Context, alerts []*alert.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		for _, a := range alerts {
			err := tx.QueryRow(ctx, `
				INSERT INTO alerts (student_id, alert_type, severity, message, is_resolved)
				VALUES ($1, $2, $3, $4, FALSE)
				RETURNING id, created_at
			`, a.StudentID, string(a.Type), string(a.Severity), a.Message).Scan(&a.ID, &a.CreatedAt)
			if err != nil {
				return insertError("alert", a.StudentID, err)
			}
			a.CreatedAt = a.CreatedAt.UTC()
		}
		return nil
	})
}

// ListAlerts returns alerts newest first.
func (r *AlertRepository) ListAlerts(ctx context.Context, filter alert.ListFilter) ([]*alert.Alert, error) {
	var (
		conds []string
		args  []any
	)
	if filter.StudentID != 0 {
		args = append(args, filter.StudentID)
		conds = append(conds, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.UnresolvedOnly {
		conds = append(conds, "NOT is_resolved")
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, filter.EffectiveLimit())
	query := fmt.Sprintf(`SELECT %s FROM alerts %s ORDER BY created_at DESC, id DESC LIMIT $%d`, alertColumns, where, len(args))

	rows, err := r.conn.Query(ctx, query, args...)
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
func (r *AlertRepository) GetAlert(ctx context.Context, id int64) (*alert.Alert, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	a, err := scanAlert(row)
	if IsNoRows(err) {
		return nil, shared.ErrAlertNotFound
	}
	return a, err
}

// ResolveAlert marks an unresolved alert as resolved at the given instant.
func (r *AlertRepository) ResolveAlert(ctx context.Context, id int64, at time.Time) (*alert.Alert, error) {
	var out *alert.Alert
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		a, err := scanAlert(tx.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1 FOR UPDATE`, id))
		if IsNoRows(err) {
			return shared.ErrAlertNotFound
		}
		if err != nil {
			return err
		}
		if err := a.Resolve(at); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE alerts SET is_resolved = TRUE, resolved_at = $1 WHERE id = $2`, a.ResolvedAt, id); err != nil {
			return fmt.Errorf("failed to resolve alert: %w", err)
		}
		out = a
		return nil
	})
	return out, err
}

func scanAlert(row pgx.Row) (*alert.Alert, error) {
	var (
		a          alert.Alert
		alertType  string
		severity   string
		resolvedAt *time.Time
	)
	err := row.Scan(&a.ID, &a.StudentID, &alertType, &severity, &a.Message, &a.IsResolved, &a.CreatedAt, &resolvedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}
	a.Type = alert.Type(alertType)
	a.Severity = alert.Severity(severity)
	a.CreatedAt = a.CreatedAt.UTC()
	if resolvedAt != nil {
		t := resolvedAt.UTC()
		a.ResolvedAt = &t
	}
	return &a, nil
}
