// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"strconv"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types.
const (
	// Analysis events
	EventAnalysisCompleted EventType = "analysis.completed"
	EventAnalysisFallback  EventType = "analysis.fallback"

	// Alert events
	EventAlertRaised   EventType = "alert.raised"
	EventAlertResolved EventType = "alert.resolved"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Analysis Events
// ═══════════════════════════════════════════════════════════════════════════

// AnalysisCompletedEvent is emitted after a pipeline run reaches DONE.
type AnalysisCompletedEvent struct {
	BaseEvent
	StudentID     int64  `json:"student_id"`
	OverallStatus string `json:"overall_status"`
	AlertCount    int    `json:"alert_count"`
	ErrorCount    int    `json:"error_count"`
	Strategy      string `json:"strategy"`
}

// Payload implements Event interface.
func (e AnalysisCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":     e.StudentID,
		"overall_status": e.OverallStatus,
		"alert_count":    e.AlertCount,
		"error_count":    e.ErrorCount,
		"strategy":       e.Strategy,
	}
}

// NewAnalysisCompletedEvent creates a new AnalysisCompletedEvent.
func NewAnalysisCompletedEvent(runID string, studentID int64, overallStatus string, alertCount, errorCount int, strategy string) AnalysisCompletedEvent {
	return AnalysisCompletedEvent{
		BaseEvent:     NewBaseEvent(EventAnalysisCompleted, strconv.FormatInt(studentID, 10)).WithCorrelationID(runID),
		StudentID:     studentID,
		OverallStatus: overallStatus,
		AlertCount:    alertCount,
		ErrorCount:    errorCount,
		Strategy:      strategy,
	}
}

// AnalysisFallbackEvent is emitted when the workflow strategy failed and the
// run was repeated with the direct strategy.
type AnalysisFallbackEvent struct {
	BaseEvent
	StudentID int64  `json:"student_id"`
	Reason    string `json:"reason"`
}

// Payload implements Event interface.
func (e AnalysisFallbackEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"reason":     e.Reason,
	}
}

// NewAnalysisFallbackEvent creates a new AnalysisFallbackEvent.
func NewAnalysisFallbackEvent(runID string, studentID int64, reason string) AnalysisFallbackEvent {
	return AnalysisFallbackEvent{
		BaseEvent: NewBaseEvent(EventAnalysisFallback, strconv.FormatInt(studentID, 10)).WithCorrelationID(runID),
		StudentID: studentID,
		Reason:    reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Alert Events
// ═══════════════════════════════════════════════════════════════════════════

// AlertRaisedEvent is emitted for every alert persisted by a run.
type AlertRaisedEvent struct {
	BaseEvent
	AlertID   int64  `json:"alert_id"`
	StudentID int64  `json:"student_id"`
	AlertType string `json:"alert_type"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
}

// Payload implements Event interface.
func (e AlertRaisedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"alert_id":   e.AlertID,
		"student_id": e.StudentID,
		"alert_type": e.AlertType,
		"severity":   e.Severity,
		"message":    e.Message,
	}
}

// NewAlertRaisedEvent creates a new AlertRaisedEvent.
func NewAlertRaisedEvent(alertID, studentID int64, alertType, severity, message string) AlertRaisedEvent {
	return AlertRaisedEvent{
		BaseEvent: NewBaseEvent(EventAlertRaised, strconv.FormatInt(studentID, 10)),
		AlertID:   alertID,
		StudentID: studentID,
		AlertType: alertType,
		Severity:  severity,
		Message:   message,
	}
}

// AlertResolvedEvent is emitted when an alert is marked as resolved.
type AlertResolvedEvent struct {
	BaseEvent
	AlertID    int64     `json:"alert_id"`
	StudentID  int64     `json:"student_id"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Payload implements Event interface.
func (e AlertResolvedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"alert_id":    e.AlertID,
		"student_id":  e.StudentID,
		"resolved_at": e.ResolvedAt,
	}
}

// NewAlertResolvedEvent creates a new AlertResolvedEvent.
func NewAlertResolvedEvent(alertID, studentID int64, resolvedAt time.Time) AlertResolvedEvent {
	return AlertResolvedEvent{
		BaseEvent:  NewBaseEvent(EventAlertResolved, strconv.FormatInt(studentID, 10)),
		AlertID:    alertID,
		StudentID:  studentID,
		ResolvedAt: resolvedAt,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Publishing
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
