/*
errors.go - Centralized error types for the ledger

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Idempotence - A marker says the work is already done (silent no-op)
  2. Configuration - Missing leave type or policy; fatal for a whole run
  3. Entity - Bad data for one employee; that employee is skipped
  4. Store - Lookups that found nothing

USAGE:
  Batch processes treat ErrAlreadyProcessed as success:

    if errors.Is(err, generic.ErrAlreadyProcessed) {
        report.AlreadyDone++
    }

SEE ALSO:
  - ledger.go: Returns ErrAlreadyProcessed and ErrInvalidMutation
  - leave/errors.go: Domain errors (missing hire date, malformed schedule)
  - engine/: Classifies errors into run failures
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAlreadyProcessed is returned when a mutation's marker already exists.
	// Callers treat it as a no-op.
	ErrAlreadyProcessed = errors.New("already processed")

	// ErrInvalidMutation is returned when a mutation is missing its target or rule.
	ErrInvalidMutation = errors.New("invalid mutation")

	// ErrPolicyNotFound is returned when a referenced policy doesn't exist.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrEntityNotFound is returned when a referenced employee doesn't exist.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrResourceNotFound is returned when a referenced leave type doesn't exist.
	ErrResourceNotFound = errors.New("leave type not found")

	// ErrScheduleNotFound is returned when a referenced work schedule doesn't exist.
	ErrScheduleNotFound = errors.New("work schedule not found")

	// ErrRequestNotFound is returned when a leave request doesn't exist.
	ErrRequestNotFound = errors.New("leave request not found")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("conflict")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConfigError is a missing or broken configuration record. A run that hits
// one aborts before mutating any balance.
type ConfigError struct {
	Kind string // "leave type", "policy"
	Name string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s %q: %v", e.Kind, e.Name, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// EntityError is a data problem with a single employee.
type EntityError struct {
	EntityID EntityID
	Err      error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("employee %s: %v", e.EntityID, e.Err)
}

func (e *EntityError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConfigError returns true if err aborts a whole run.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidMutation) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrConflict)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPolicyNotFound) ||
		errors.Is(err, ErrEntityNotFound) ||
		errors.Is(err, ErrResourceNotFound) ||
		errors.Is(err, ErrScheduleNotFound) ||
		errors.Is(err, ErrRequestNotFound)
}
