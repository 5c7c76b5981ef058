package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/student-insights/internal/domain/alert"
	"github.com/alem-hub/student-insights/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESOLVE ALERT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// ResolveAlertCommand identifies the alert to resolve.
type ResolveAlertCommand struct {
	AlertID int64
}

// Validate validates the command.
func (c ResolveAlertCommand) Validate() error {
	if c.AlertID <= 0 {
		return shared.NewDomainError("command", "ResolveAlert", shared.ErrInvalidID, "alert id must be positive")
	}
	return nil
}

// ResolveAlertHandler handles the ResolveAlertCommand.
type ResolveAlertHandler struct {
	repo      alert.Repository
	publisher shared.EventPublisher
	logger    *slog.Logger
	clock     func() time.Time
}

// NewResolveAlertHandler creates a new ResolveAlertHandler. The publisher may be nil.
func NewResolveAlertHandler(repo alert.Repository, publisher shared.EventPublisher, logger *slog.Logger) *ResolveAlertHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResolveAlertHandler{repo: repo, publisher: publisher, logger: logger, clock: time.Now}
}

// Handle resolves the alert and publishes an alert.resolved event.
func (h *ResolveAlertHandler) Handle(ctx context.Context, cmd ResolveAlertCommand) (*alert.Alert, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	a, err := h.repo.ResolveAlert(ctx, cmd.AlertID, h.clock().UTC())
	if err != nil {
		return nil, fmt.Errorf("resolve_alert: %w", err)
	}

	if h.publisher != nil && a.ResolvedAt != nil {
		event := shared.NewAlertResolvedEvent(a.ID, a.StudentID, *a.ResolvedAt)
		if err := h.publisher.Publish(event); err != nil {
			h.logger.Warn("failed to publish alert resolved event", "alert_id", a.ID, "error", err)
		}
	}

	h.logger.Info("alert resolved", "alert_id", a.ID, "student_id", a.StudentID)
	return a, nil
}
