// Package apperr holds the error taxonomy shared by services and the HTTP
// layer: validation, forbidden, not found, conflict and artifact failures.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
)

// NotFound wraps ErrNotFound with the entity name and identifier.
func NotFound(entity string, id any) error {
	return fmt.Errorf("%s %v: %w", entity, id, ErrNotFound)
}

// Conflict wraps ErrConflict with a message.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}

// ValidationError is a single field-level failure. Err optionally carries a
// typed cause (for example a capacity rejection) reachable via errors.As.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e ValidationError) Unwrap() error { return e.Err }

// ValidationErrors collects every field failure of one request.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) Unwrap() []error {
	out := make([]error, 0, len(v))
	for _, e := range v {
		out = append(out, e)
	}
	return out
}

func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

// AddErr records cause under field, using its text as the message.
func (v *ValidationErrors) AddErr(field string, cause error) {
	*v = append(*v, ValidationError{Field: field, Message: cause.Error(), Err: cause})
}

// Err returns nil when nothing was collected.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// Fields maps field names to messages for JSON responses.
func (v ValidationErrors) Fields() map[string]string {
	out := make(map[string]string, len(v))
	for _, e := range v {
		key := e.Field
		if key == "" {
			key = "_"
		}
		if _, exists := out[key]; !exists {
			out[key] = e.Message
		}
	}
	return out
}

// Invalid is shorthand for a single-field validation failure.
func Invalid(field, format string, args ...any) error {
	return ValidationErrors{{Field: field, Message: fmt.Sprintf(format, args...)}}
}

// ArtifactError reports a document render or store failure. The record it
// belongs to is already committed, so the caller may retry.
type ArtifactError struct {
	Op       string
	SupplyID uint
	Err      error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("supply %d documents: %s: %v", e.SupplyID, e.Op, e.Err)
}

func (e *ArtifactError) Unwrap() error { return e.Err }

func (e *ArtifactError) Retryable() bool { return true }
