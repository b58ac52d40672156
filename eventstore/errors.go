package eventstore

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy shared by every component. Callers match with errors.Is / errors.As.
var (
	// ErrConcurrencyConflict is returned when the expected version of an aggregate does not match its current version.
	ErrConcurrencyConflict = errors.New("concurrency conflict, expected version does not match")

	// ErrValidationFailed is returned when a schema or domain invariant is violated.
	ErrValidationFailed = errors.New("validation failed")

	// ErrStorageUnavailable is returned for transient storage I/O failures, safe to retry with backoff.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrPolicyViolation is returned when a request is rejected by the service-decoupling policy.
	ErrPolicyViolation = errors.New("policy violation")

	// ErrDeliveryExhausted is reported when a routed event exceeded its maximum delivery attempts.
	ErrDeliveryExhausted = errors.New("delivery attempts exhausted")
)

// Errors raised by the store engines for invalid input or configuration.
var (
	ErrEmptyAggregateID      = errors.New("aggregate id must not be empty")
	ErrNoEventsToAppend      = errors.New("at least one event must be supplied")
	ErrEmptyEventType        = errors.New("event type must not be empty")
	ErrEmptyTableName        = errors.New("empty table name supplied")
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")
	ErrSubscriptionClosed    = errors.New("subscription closed")
)

// ConflictError carries the details of a lost optimistic concurrency check.
type ConflictError struct {
	AggregateID     string
	ExpectedVersion uint64
	ActualVersion   uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf(
		"%s: aggregate %q expected version %d, actual version %d",
		ErrConcurrencyConflict.Error(), e.AggregateID, e.ExpectedVersion, e.ActualVersion,
	)
}

// Unwrap lets errors.Is match ErrConcurrencyConflict.
func (e *ConflictError) Unwrap() error {
	return ErrConcurrencyConflict
}

// ValidationError lists every violated rule. It is never retried.
type ValidationError struct {
	Source     string // "schema" or "domain"
	Violations []string
}

// NewDomainViolation builds a ValidationError for a violated domain invariant.
func NewDomainViolation(violations ...string) *ValidationError {
	return &ValidationError{Source: "domain", Violations: violations}
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return ErrValidationFailed.Error()
	}

	return fmt.Sprintf("%s (%s): %s", ErrValidationFailed.Error(), e.Source, strings.Join(e.Violations, "; "))
}

// Unwrap lets errors.Is match ErrValidationFailed.
func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// DeliveryExhaustedError describes a message that was moved to a dead-letter queue.
type DeliveryExhaustedError struct {
	Consumer    string
	EventID     string
	AggregateID string
	Attempts    int
}

func (e *DeliveryExhaustedError) Error() string {
	return fmt.Sprintf(
		"%s: consumer %q event %s (aggregate %q) after %d attempts",
		ErrDeliveryExhausted.Error(), e.Consumer, e.EventID, e.AggregateID, e.Attempts,
	)
}

// Unwrap lets errors.Is match ErrDeliveryExhausted.
func (e *DeliveryExhaustedError) Unwrap() error {
	return ErrDeliveryExhausted
}

// IsRetryable reports whether an error stems from a stale view of state or a transient infrastructure failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) || errors.Is(err, ErrStorageUnavailable)
}
