package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error classes. Handlers branch on the class with errors.Is; the concrete
// error keeps the detail for the log line and the user-facing message.
var (
	// ErrValidation marks malformed user input: the current flow step is
	// re-prompted and storage is never touched.
	ErrValidation = errors.New("validation")
	// ErrNotFound marks a referenced product, unit, or location that no
	// longer exists or is already sold.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a unit claimed by a concurrent settlement. The whole
	// transaction is rolled back and the contested lines are reported.
	ErrConflict = errors.New("conflict")
	// ErrTransient marks an unreachable storage or oracle. Side effects of the
	// current step are rolled back before the error is surfaced.
	ErrTransient = errors.New("transient")
	// ErrFatalState marks inconsistent conversation state. This is the only
	// class allowed to forcibly clear a session.
	ErrFatalState = errors.New("fatal state")
	// ErrRateUnavailable is the "rate unavailable" condition: the oracle could
	// not supply an exchange rate and callers must not guess one.
	ErrRateUnavailable = fmt.Errorf("exchange rate unavailable: %w", ErrTransient)
)

// ValidationError rejects a user input with a reason suitable for re-prompting.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap classifies the error as ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Code implements the error-code contract used by the handler summary logger.
func (e *ValidationError) Code() string { return "VALIDATION" }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	Ref    string
}

func (e *NotFoundError) Error() string {
	if e.Ref == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.Ref)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Code implements the error-code contract used by the handler summary logger.
func (e *NotFoundError) Code() string { return "NOT_FOUND" }

// ConflictError reports stock units that could not be claimed because a
// concurrent settlement committed them first.
type ConflictError struct {
	UnitCodes []string
}

func (e *ConflictError) Error() string {
	return "units no longer available: " + strings.Join(e.UnitCodes, ", ")
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Code implements the error-code contract used by the handler summary logger.
func (e *ConflictError) Code() string { return "CONFLICT" }

// TransientError wraps an infrastructure failure that the user may retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return ErrTransient }

// Code implements the error-code contract used by the handler summary logger.
func (e *TransientError) Code() string { return "TRANSIENT" }

// FatalStateError reports a conversation session whose collected fields are
// inconsistent with its step.
type FatalStateError struct {
	Step    string
	Missing string
}

func (e *FatalStateError) Error() string {
	return fmt.Sprintf("conversation state broken at %s: missing %s", e.Step, e.Missing)
}

func (e *FatalStateError) Unwrap() error { return ErrFatalState }

// Code implements the error-code contract used by the handler summary logger.
func (e *FatalStateError) Code() string { return "FATAL_STATE" }

// Transient wraps err as a TransientError unless it already belongs to a
// domain class.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) || errors.Is(err, ErrFatalState) {
		return err
	}
	return &TransientError{Op: op, Err: err}
}
