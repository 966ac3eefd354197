package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned while the model has not been loaded.
	ErrNotReady = errors.New("model not ready")

	// ErrNotFound is returned when a ledger record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput is returned by storage for malformed records. Not retried.
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError reports a malformed or missing request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// DegenerateColumnError reports a numeric training column with zero variance.
type DegenerateColumnError struct {
	Column string
	Value  float64
}

func (e *DegenerateColumnError) Error() string {
	return fmt.Sprintf("column %s is degenerate: every value is %g", e.Column, e.Value)
}

// SchemaMismatchError reports a persisted artifact incompatible with the running schema.
type SchemaMismatchError struct {
	Artifact string
	Expected string
	Actual   string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("artifact %s schema mismatch: expected %s, got %s", e.Artifact, e.Expected, e.Actual)
}

// InferenceError reports that the classifier could not score a claim.
type InferenceError struct {
	Reason string
	Err    error
}

func (e *InferenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("inference failed: %s: %v", e.Reason, e.Err)
	}
	return "inference failed: " + e.Reason
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// StorageError reports a ledger operation that failed after retries.
type StorageError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
