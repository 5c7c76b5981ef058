package postgres

import (
	"context"

	"github.com/alem-hub/student-insights/internal/domain/alert"
	"github.com/alem-hub/student-insights/internal/domain/metrics"
)

var (
	_ metrics.Reader           = (*Store)(nil)
	_ metrics.Writer           = (*Store)(nil)
	_ metrics.StudentDirectory = (*Store)(nil)
	_ alert.Repository         = (*Store)(nil)
)

// Store bundles the metric and alert repositories over one pool.
type Store struct {
	*MetricRepository
	*AlertRepository

	conn     *Connection
	migrator *Migrator
}

// Open connects to the database described by cfg.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	conn, err := NewConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewStore(conn), nil
}

// NewStore wraps an open connection.
func NewStore(conn *Connection) *Store {
	return &Store{
		MetricRepository: NewMetricRepository(conn),
		AlertRepository:  NewAlertRepository(conn),
		conn:             conn,
		migrator:         NewMigrator(conn),
	}
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Migrate applies pending migrations and returns how many ran.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	return s.migrator.Migrate(ctx)
}

// Migrator exposes rollback and status.
func (s *Store) Migrator() *Migrator {
	return s.migrator
}

// Close closes the pool.
func (s *Store) Close() error {
	s.conn.Close()
	return nil
}
