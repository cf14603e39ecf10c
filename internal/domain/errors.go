// Package domain provides shared domain-level sentinel errors.
package domain

import (
	"errors"
	"sort"
	"strings"
)

// ErrNotFound indicates the requested entity does not exist or is not
// visible to the caller. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("not found")

// ErrForbidden indicates the caller can see the entity but may not perform
// the requested action on it.
var ErrForbidden = errors.New("forbidden")

// ErrValidation indicates malformed or missing input.
var ErrValidation = errors.New("validation failed")

// ErrConflict indicates a concurrent modification conflict.
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ValidationError carries field-level messages. It matches ErrValidation
// under errors.Is.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError returns an empty ValidationError ready for Add.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string][]string)}
}

// Add records a message for field.
func (e *ValidationError) Add(field, msg string) {
	e.Fields[field] = append(e.Fields[field], msg)
}

// HasErrors reports whether any field message was recorded.
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// OrNil returns e when it has errors and nil otherwise, so callers can
// `return v.OrNil()` without the typed-nil pitfall.
func (e *ValidationError) OrNil() error {
	if e == nil || !e.HasErrors() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+strings.Join(e.Fields[f], ", "))
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is(err, ErrValidation) succeed.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// FieldError is a shorthand for a single-field ValidationError.
func FieldError(field, msg string) error {
	v := NewValidationError()
	v.Add(field, msg)
	return v
}
