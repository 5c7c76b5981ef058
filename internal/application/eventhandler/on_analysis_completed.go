// Package eventhandler contains the reactions of the worker to domain events
// published by the pipeline.
package eventhandler

import (
	"log/slog"
	"sync"

	"github.com/alem-hub/student-insights/internal/domain/alert"
	"github.com/alem-hub/student-insights/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON ANALYSIS COMPLETED HANDLER
// ═══════════════════════════════════════════════════════════════════════════

// OutcomeCounts is a snapshot of the outcomes seen by the handler.
type OutcomeCounts struct {
	Completed int
	Critical  int
	Fallbacks int
	Alerts    int
}

// OnAnalysisCompletedHandler surfaces critical outcomes and fallbacks in the
// worker log and keeps running counts for the health endpoint.
type OnAnalysisCompletedHandler struct {
	logger *slog.Logger

	mu     sync.Mutex
	counts OutcomeCounts
}

// NewOnAnalysisCompletedHandler creates the handler.
func NewOnAnalysisCompletedHandler(logger *slog.Logger) *OnAnalysisCompletedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnAnalysisCompletedHandler{logger: logger.With("handler", "on_analysis_completed")}
}

// Register subscribes the handler to the events it reacts to.
func (h *OnAnalysisCompletedHandler) Register(sub shared.EventSubscriber) error {
	if err := sub.Subscribe(shared.EventAnalysisCompleted, h.Handle); err != nil {
		return err
	}
	if err := sub.Subscribe(shared.EventAnalysisFallback, h.Handle); err != nil {
		return err
	}
	return sub.Subscribe(shared.EventAlertRaised, h.Handle)
}

// Handle processes one event. Unknown events are ignored.
func (h *OnAnalysisCompletedHandler) Handle(event shared.Event) error {
	switch e := event.(type) {
	case shared.AnalysisCompletedEvent:
		h.mu.Lock()
		h.counts.Completed++
		critical := e.OverallStatus == string(alert.StatusCritical)
		if critical {
			h.counts.Critical++
		}
		h.mu.Unlock()

		if critical {
			h.logger.Warn("student needs immediate attention",
				"student_id", e.StudentID,
				"run_id", e.CorrelationID,
				"alerts", e.AlertCount,
			)
		}
		if e.ErrorCount > 0 {
			h.logger.Info("analysis completed with failed stages",
				"student_id", e.StudentID,
				"run_id", e.CorrelationID,
				"errors", e.ErrorCount,
			)
		}

	case shared.AnalysisFallbackEvent:
		h.mu.Lock()
		h.counts.Fallbacks++
		h.mu.Unlock()
		h.logger.Warn("analysis fell back to direct execution",
			"student_id", e.StudentID,
			"run_id", e.CorrelationID,
			"reason", e.Reason,
		)

	case shared.AlertRaisedEvent:
		h.mu.Lock()
		h.counts.Alerts++
		h.mu.Unlock()
		if e.Severity == string(alert.SeverityCritical) {
			h.logger.Warn("critical alert raised",
				"student_id", e.StudentID,
				"alert_id", e.AlertID,
				"alert_type", e.AlertType,
				"message", e.Message,
			)
		}
	}
	return nil
}

// Counts returns a snapshot of the outcome counters.
func (h *OnAnalysisCompletedHandler) Counts() OutcomeCounts {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts
}
