package store

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input detected before any write:
// missing key components, zero timestamps, intervals ending at or before
// their start, an empty update with nothing to change, or a cell creation
// without an explicit value. A validation failure anywhere in a batch means
// nothing from that batch was applied.
type ValidationError struct {
	// Field names the offending input field, when one can be named.
	Field string

	// Index is the position of the offending item in a batch call,
	// or -1 for call-level failures.
	Index int

	// Message is a human-readable description.
	Message string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Field != "" && e.Index >= 0:
		return fmt.Sprintf("validation: item %d: %s: %s", e.Index, e.Field, e.Message)
	case e.Field != "":
		return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
	case e.Index >= 0:
		return fmt.Sprintf("validation: item %d: %s", e.Index, e.Message)
	}
	return "validation: " + e.Message
}

func validationf(index int, field, format string, args ...any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Index:   index,
		Message: fmt.Sprintf(format, args...),
	}
}

// NotFoundError reports that a referenced entity does not exist: a series
// id, a batch id, a value id, or a cell key with no versions.
type NotFoundError struct {
	Kind string // "series", "batch", "value", "cell"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

// RetryableError reports that a transaction was rolled back after
// exhausting its retry budget on transient store contention. The whole
// call can be safely re-submitted: already-applied changes are absorbed by
// no-op detection.
type RetryableError struct {
	Attempts int
	Err      error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("transaction failed after %d attempts, safe to retry: %v", e.Attempts, e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsValidation returns true if the error is a validation error.
// Uses errors.As to handle wrapped errors.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound returns true if the error is a not-found error.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// IsRetryable returns true if the error is a retryable-transaction error.
// Uses errors.As to handle wrapped errors.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
