// Package errors holds the error definitions shared by every tonestore package.
//
// This file provides:
// - Sentinel errors for store, schema and configuration failures
// - Error category checking functions
// - ErrorToCode mapping used for CLI exit codes
// - Error wrapping utilities
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Exit codes - returned by the tonestore CLI
// ============================================================================

const (
	CodeOK             = 0
	CodeUnknown        = 1
	CodeInvalidRequest = 2
	CodeNotFound       = 3
	CodeNotCompatible  = 4
	CodeShapeMismatch  = 5
	CodeCorrupt        = 6
	CodeAlreadyExists  = 7
	CodeClosed         = 8
	CodeInternal       = 9
)

// CodeName returns a human-readable name for an exit code.
func CodeName(code int) string {
	switch code {
	case CodeOK:
		return "OK"
	case CodeUnknown:
		return "Unknown"
	case CodeInvalidRequest:
		return "InvalidRequest"
	case CodeNotFound:
		return "NotFound"
	case CodeNotCompatible:
		return "NotCompatible"
	case CodeShapeMismatch:
		return "ShapeMismatch"
	case CodeCorrupt:
		return "Corrupt"
	case CodeAlreadyExists:
		return "AlreadyExists"
	case CodeClosed:
		return "Closed"
	case CodeInternal:
		return "Internal"
	default:
		return fmt.Sprintf("Code(%d)", code)
	}
}

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Lookup errors
	ErrDatasetNotFound = errors.New("dataset not found")
	ErrGroupNotFound   = errors.New("group not found")
	ErrIndexOutOfRange = errors.New("row index out of range")
	ErrUnknownTable    = errors.New("unknown table")

	// Type errors
	ErrDatasetNotCompatible = errors.New("dataset not compatible")

	// Shape errors
	ErrWidthMismatch = errors.New("row width mismatch")
	ErrShapeMismatch = errors.New("values do not match batch shape")

	// Creation errors
	ErrDatasetAlreadyExists = errors.New("dataset already exists")
	ErrGroupAlreadyExists   = errors.New("group already exists")

	// File errors
	ErrCorruptStore     = errors.New("corrupt store file")
	ErrUnsupportedStore = errors.New("unsupported store version")
	ErrStoreClosed      = errors.New("store is closed")
	ErrReadOnly         = errors.New("store is read-only")

	// Validation errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingField  = errors.New("missing required field")
	ErrInvalidInput  = errors.New("invalid input")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// New is a convenience wrapper for errors.New
var New = errors.New

// IsNotFound returns true if err is a lookup failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDatasetNotFound) ||
		errors.Is(err, ErrGroupNotFound) ||
		errors.Is(err, ErrIndexOutOfRange) ||
		errors.Is(err, ErrUnknownTable)
}

// IsIncompatible returns true if a dataset exists but cannot serve the accessor used.
func IsIncompatible(err error) bool {
	return errors.Is(err, ErrDatasetNotCompatible)
}

// IsShape returns true if err is a batch shape or width failure.
func IsShape(err error) bool {
	return errors.Is(err, ErrWidthMismatch) ||
		errors.Is(err, ErrShapeMismatch)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidInput)
}

// IsCorrupt returns true if the store file cannot be trusted.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorruptStore) ||
		errors.Is(err, ErrUnsupportedStore)
}

// ============================================================================
// Error to exit code mapping
// ============================================================================

// ErrorToCode maps an error to the CLI exit code.
func ErrorToCode(err error) int {
	if err == nil {
		return CodeOK
	}

	switch {
	case IsValidation(err):
		return CodeInvalidRequest
	case IsNotFound(err):
		return CodeNotFound
	case IsIncompatible(err):
		return CodeNotCompatible
	case IsShape(err):
		return CodeShapeMismatch
	case IsCorrupt(err):
		return CodeCorrupt
	case Is(err, ErrDatasetAlreadyExists), Is(err, ErrGroupAlreadyExists):
		return CodeAlreadyExists
	case Is(err, ErrStoreClosed), Is(err, ErrReadOnly):
		return CodeClosed
	default:
		return CodeInternal
	}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewDatasetNotFound reports a dataset missing from the store.
// A missing catalog dataset means the file is corrupt, from another schema
// version, or was never initialized.
func NewDatasetNotFound(path string) error {
	return fmt.Errorf("dataset '%s': %w", path, ErrDatasetNotFound)
}

// NewNotCompatible reports a dataset whose stored layout disagrees with the accessor.
func NewNotCompatible(path, reason string) error {
	return fmt.Errorf("dataset '%s': %s: %w", path, reason, ErrDatasetNotCompatible)
}

// NewWidthMismatch reports a 2-D append whose row width differs from the dataset's.
func NewWidthMismatch(path string, want, got int) error {
	return fmt.Errorf("dataset '%s': width %d, got %d: %w", path, want, got, ErrWidthMismatch)
}

// NewShapeMismatch reports a batch whose value count disagrees with its shape.
func NewShapeMismatch(path string, want, got int) error {
	return fmt.Errorf("dataset '%s': shape needs %d values, got %d: %w", path, want, got, ErrShapeMismatch)
}

// NewIndexOutOfRange reports a read past the end of a dataset.
func NewIndexOutOfRange(path string, index, rows int64) error {
	return fmt.Errorf("dataset '%s': index %d, rows %d: %w", path, index, rows, ErrIndexOutOfRange)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the collected errors for errors.Is/As support.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
