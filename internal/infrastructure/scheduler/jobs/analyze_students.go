// Package jobs contains the scheduled jobs run by the insights worker.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/student-insights/internal/application/pipeline"
	"github.com/alem-hub/student-insights/internal/domain/metrics"
	"github.com/alem-hub/student-insights/internal/infrastructure/telemetry"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANALYZE STUDENTS JOB
// ══════════════════════════════════════════════════════════════════════════════

// Analyzer runs the pipeline for one student.
type Analyzer interface {
	Run(ctx context.Context, studentID int64) (pipeline.Result, error)
}

// AnalyzeStudentsConfig contains configuration for the batch analysis job.
type AnalyzeStudentsConfig struct {
	// Concurrency is the number of students analyzed in parallel.
	Concurrency int

	// Timeout bounds one whole batch. Zero means no limit.
	Timeout time.Duration

	// MaxFailureRate fails the job when a larger share of runs errored.
	MaxFailureRate float64
}

// DefaultAnalyzeStudentsConfig returns sensible defaults.
func DefaultAnalyzeStudentsConfig() AnalyzeStudentsConfig {
	return AnalyzeStudentsConfig{
		Concurrency:    4,
		Timeout:        10 * time.Minute,
		MaxFailureRate: 0.5,
	}
}

// BatchStats contains statistics from one batch.
type BatchStats struct {
	StartedAt     time.Time
	CompletedAt   time.Time
	Duration      time.Duration
	TotalStudents int
	Completed     int
	Failed        int

	// ByStatus counts completed runs per overall status.
	ByStatus map[string]int
}

// AnalyzeStudentsJob analyzes every active student with bounded concurrency.
// Each student gets its own pipeline invocation and state.
type AnalyzeStudentsJob struct {
	directory metrics.StudentDirectory
	analyzer  Analyzer
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	config    AnalyzeStudentsConfig

	lastStats atomic.Pointer[BatchStats]
}

// NewAnalyzeStudentsJob creates the batch job.
func NewAnalyzeStudentsJob(
	directory metrics.StudentDirectory,
	analyzer Analyzer,
	m *telemetry.Metrics,
	logger *slog.Logger,
	config AnalyzeStudentsConfig,
) *AnalyzeStudentsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.MaxFailureRate <= 0 {
		config.MaxFailureRate = 0.5
	}
	return &AnalyzeStudentsJob{
		directory: directory,
		analyzer:  analyzer,
		metrics:   m,
		logger:    logger,
		config:    config,
	}
}

// Name returns the job name.
func (j *AnalyzeStudentsJob) Name() string {
	return "analyze_students"
}

// Description returns a human-readable description.
func (j *AnalyzeStudentsJob) Description() string {
	return "Runs the insights pipeline for every active student"
}

// Run executes one batch.
func (j *AnalyzeStudentsJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	ids, err := j.directory.ActiveStudentIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active students: %w", err)
	}

	stats := &BatchStats{
		StartedAt:     startedAt,
		TotalStudents: len(ids),
		ByStatus:      make(map[string]int),
	}
	j.logger.Info("batch analysis started", "students", len(ids), "concurrency", j.config.Concurrency)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.config.Concurrency)

	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := j.analyzer.Run(gctx, id)
			status := "failed"
			if err == nil {
				status = res.OverallStatus()
			}
			j.metrics.RecordBatchStudent(gctx, status)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Failed++
				j.logger.Error("student analysis failed", "student_id", id, "error", err)
				return nil
			}
			stats.Completed++
			stats.ByStatus[status]++
			return nil
		})
	}
	_ = g.Wait()

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastStats.Store(stats)

	j.logger.Info("batch analysis completed",
		"duration", stats.Duration.String(),
		"total", stats.TotalStudents,
		"completed", stats.Completed,
		"failed", stats.Failed,
		"critical", stats.ByStatus["critical"],
	)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("batch analysis interrupted: %w", err)
	}
	if stats.TotalStudents > 0 {
		rate := float64(stats.Failed) / float64(stats.TotalStudents)
		if rate > j.config.MaxFailureRate {
			return fmt.Errorf("analysis failed for %d/%d students", stats.Failed, stats.TotalStudents)
		}
	}
	return nil
}

// LastStats returns statistics from the last batch, or nil before the first.
func (j *AnalyzeStudentsJob) LastStats() *BatchStats {
	return j.lastStats.Load()
}
