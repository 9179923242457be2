package core

import (
	"errors"
	"fmt"
)

// ErrInvalidAmount is returned for amounts that do not parse as a
// non-negative decimal.
var ErrInvalidAmount = errors.New("invalid amount")

// ErrAdvisorUnavailable signals that the external advisory collaborator
// is disabled or unreachable. It maps to 503 at the HTTP boundary and is
// never treated as an engine failure.
var ErrAdvisorUnavailable = errors.New("advisor unavailable")

// ValidationError reports a malformed, missing or out-of-range input
// field. Commands that fail validation never mutate state.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Invalid creates a ValidationError with a message only.
func Invalid(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

// Invalidf creates a formatted ValidationError.
func Invalidf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// InvalidField creates a ValidationError naming the offending field.
func InvalidField(field, problem string) *ValidationError {
	return &ValidationError{
		Message: fmt.Sprintf("%s: %s", field, problem),
		Fields:  map[string]string{field: problem},
	}
}

// NotFoundError reports that a referenced entity does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// NotFound creates a NotFoundError for the given entity kind and id.
func NotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// StorageError wraps a persistence-layer failure. The enclosing
// transaction is aborted, so the caller sees no partial effect.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// StorageFailure wraps err as a StorageError unless it already carries a
// domain error type that must pass through unchanged.
func StorageFailure(op string, err error) error {
	var ve *ValidationError
	var nf *NotFoundError
	if errors.As(err, &ve) || errors.As(err, &nf) || errors.Is(err, ErrAdvisorUnavailable) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
