// Package errors provides standardized error types and helpers for the Amanuensis codebase.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine's failure taxonomy
var (
	// ErrMalformedStructure indicates an input document that cannot be parsed
	ErrMalformedStructure = errors.New("malformed structure")
	// ErrProviderUnavailable indicates a suggestion provider that failed or timed out
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrStructuralConflict indicates a locator that no longer resolves in the tree
	ErrStructuralConflict = errors.New("structural conflict")
	// ErrPersistenceFailure indicates a dictionary write that could not be made durable
	ErrPersistenceFailure = errors.New("persistence failure")
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
)

// MalformedStructureError reports an unparsable document with context
type MalformedStructureError struct {
	Path    string // File path, if known
	Message string // Parser error details
	Err     error  // Underlying error, if any
}

func (e *MalformedStructureError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("malformed document %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("malformed document: %s", e.Message)
}

func (e *MalformedStructureError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrMalformedStructure
}

func (e *MalformedStructureError) Is(target error) bool {
	return target == ErrMalformedStructure
}

// ProviderError reports a failed suggestion-provider call
type ProviderError struct {
	Provider string // Provider name (e.g., "lexicon", "pattern", "langmodel")
	Key      string // Normalized key being queried
	Err      error  // Underlying error
}

func (e *ProviderError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("provider %s failed for %q: %v", e.Provider, e.Key, e.Err)
	}
	return fmt.Sprintf("provider %s failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrProviderUnavailable
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderUnavailable
}

// ConflictError reports a locator that no longer resolves to the node
// it was issued for, typically because the tree shape changed.
type ConflictError struct {
	Locator string // Locator path that failed to resolve
	Reason  string // Why resolution failed
}

func (e *ConflictError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("locator %s: %s", e.Locator, e.Reason)
	}
	return fmt.Sprintf("locator %s no longer resolves", e.Locator)
}

func (e *ConflictError) Unwrap() error {
	return ErrStructuralConflict
}

// PersistenceError reports a dictionary-store write or flush failure
type PersistenceError struct {
	Operation string // Operation being performed (e.g., "upsert", "flush")
	Table     string // Table involved, if applicable
	Err       error  // Underlying error
}

func (e *PersistenceError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("dictionary %s on %s failed: %v", e.Operation, e.Table, e.Err)
	}
	return fmt.Sprintf("dictionary %s failed: %v", e.Operation, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrPersistenceFailure
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistenceFailure
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// Helper functions for creating common errors

// NewMalformed creates a MalformedStructureError
func NewMalformed(path, message string, err error) *MalformedStructureError {
	return &MalformedStructureError{Path: path, Message: message, Err: err}
}

// NewProvider creates a ProviderError
func NewProvider(provider, key string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Key: key, Err: err}
}

// NewConflict creates a ConflictError
func NewConflict(locator, reason string) *ConflictError {
	return &ConflictError{Locator: locator, Reason: reason}
}

// NewPersistence creates a PersistenceError
func NewPersistence(operation, table string, err error) *PersistenceError {
	return &PersistenceError{Operation: operation, Table: table, Err: err}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
