// Package resilience decorates store access with a circuit breaker so a
// failing store fails fetches fast instead of piling up slow calls.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alem-hub/student-insights/internal/domain/metrics"
	"github.com/alem-hub/student-insights/internal/domain/shared"
	"github.com/alem-hub/student-insights/pkg/circuitbreaker"
)

var _ metrics.Reader = (*BreakerReader)(nil)

// Config holds breaker settings for the store reader.
type Config struct {
	// FailureThreshold is the number of consecutive failed reads that opens the circuit.
	FailureThreshold int

	// OpenTimeout is how long the circuit stays open before a trial read.
	OpenTimeout time.Duration
}

// DefaultConfig returns the default breaker settings.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// BreakerReader wraps a metrics.Reader with a circuit breaker. Reads
// blocked by an open circuit fail with shared.ErrStoreUnavailable.
type BreakerReader struct {
	next    metrics.Reader
	breaker *circuitbreaker.CircuitBreaker
}

// NewBreakerReader wraps next.
func NewBreakerReader(next metrics.Reader, cfg Config, logger *slog.Logger) *BreakerReader {
	if logger == nil {
		logger = slog.Default()
	}
	breaker := circuitbreaker.New(
		"metric-store",
		circuitbreaker.WithFailureThreshold(cfg.FailureThreshold),
		circuitbreaker.WithTimeout(cfg.OpenTimeout),
		circuitbreaker.WithIsFailure(countsAsFailure),
		circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", string(from),
				"to", string(to),
			)
		}),
	)
	return &BreakerReader{next: next, breaker: breaker}
}

// State returns the breaker state.
func (r *BreakerReader) State() circuitbreaker.State {
	return r.breaker.State()
}

// countsAsFailure ignores caller cancellation and input errors.
func countsAsFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return !shared.IsValidation(err) && !shared.IsNotFound(err)
}

func read[T any](ctx context.Context, r *BreakerReader, op string, fn func(context.Context) ([]T, error)) ([]T, error) {
	rows, err := circuitbreaker.Run(ctx, r.breaker, fn)
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return nil, shared.WrapError("metrics", op, shared.ErrStoreUnavailable, "metric store unavailable", err)
	}
	return rows, err
}

// AcademicScores implements metrics.Reader.
func (r *BreakerReader) AcademicScores(ctx context.Context, studentID int64, since *time.Time) ([]metrics.AcademicScore, error) {
	return read(ctx, r, "AcademicScores", func(ctx context.Context) ([]metrics.AcademicScore, error) {
		return r.next.AcademicScores(ctx, studentID, since)
	})
}

// AttendanceRecords implements metrics.Reader.
func (r *BreakerReader) AttendanceRecords(ctx context.Context, studentID int64, since *time.Time) ([]metrics.AttendanceRecord, error) {
	return read(ctx, r, "AttendanceRecords", func(ctx context.Context) ([]metrics.AttendanceRecord, error) {
		return r.next.AttendanceRecords(ctx, studentID, since)
	})
}

// EngagementLogs implements metrics.Reader.
func (r *BreakerReader) EngagementLogs(ctx context.Context, studentID int64, since *time.Time) ([]metrics.EngagementLog, error) {
	return read(ctx, r, "EngagementLogs", func(ctx context.Context) ([]metrics.EngagementLog, error) {
		return r.next.EngagementLogs(ctx, studentID, since)
	})
}
