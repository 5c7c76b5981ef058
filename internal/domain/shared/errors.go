// Package shared contains common domain types, errors and events that are
// used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrAlreadyProcessed = errors.New("already processed")

	// Pipeline errors
	ErrFetchFailed     = errors.New("fetch failed")
	ErrSynthesisFailed = errors.New("synthesis failed")
	ErrWorkflowFailed  = errors.New("workflow failed")

	// External service errors
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrTimeout          = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "metrics", "alert", "pipeline"
	Op      string // Operation that failed, e.g., "Fetch", "Resolve"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Alert domain errors
var (
	ErrAlertNotFound        = NewDomainError("alert", "Find", ErrNotFound, "alert not found")
	ErrAlertAlreadyResolved = NewDomainError("alert", "Resolve", ErrAlreadyProcessed, "alert already resolved")
	ErrInvalidSeverity      = NewDomainError("alert", "Validate", ErrInvalidInput, "invalid alert severity")
	ErrInvalidAlertType     = NewDomainError("alert", "Validate", ErrInvalidInput, "invalid alert type")
)

// Metrics domain errors
var (
	ErrInvalidStudentID = NewDomainError("metrics", "Validate", ErrInvalidID, "student id must be positive")
	ErrUnknownDomain    = NewDomainError("metrics", "Validate", ErrInvalidInput, "unknown metric domain")
)

// Insight domain errors
var (
	ErrInvalidRule     = NewDomainError("insight", "Validate", ErrValidation, "invalid rule")
	ErrUnknownFact     = NewDomainError("insight", "Evaluate", ErrInvalidInput, "unknown fact")
	ErrInvalidOperator = NewDomainError("insight", "Validate", ErrInvalidInput, "invalid condition operator")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsStoreFailure checks if the error came from the backing store.
func IsStoreFailure(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrTimeout)
}
