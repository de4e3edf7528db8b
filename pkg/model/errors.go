package model

import "fmt"

// ErrorCode represents a structured error kind returned across the engine's
// API surface.
type ErrorCode string

const (
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrForbidden     ErrorCode = "FORBIDDEN"
	ErrConflict      ErrorCode = "CONFLICT"
	ErrInvalid       ErrorCode = "INVALID"
	ErrLimitExceeded ErrorCode = "LIMIT_EXCEEDED"
	ErrInternal      ErrorCode = "INTERNAL"
)

// APIError is a structured error with a stable kind, so a caller can branch
// on Code regardless of transport.
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewNotFoundError creates a NOT_FOUND APIError for the given resource/id.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{Code: ErrNotFound, Message: fmt.Sprintf("%s %q not found", resource, id)}
}

// NewForbiddenError creates a FORBIDDEN APIError for a tenant mismatch.
func NewForbiddenError(resource, id string) *APIError {
	return &APIError{Code: ErrForbidden, Message: fmt.Sprintf("%s %q belongs to a different tenant", resource, id)}
}

// NewConflictError creates a CONFLICT APIError, typically for an illegal
// state transition.
func NewConflictError(msg string) *APIError {
	return &APIError{Code: ErrConflict, Message: msg}
}

// NewInvalidError creates an INVALID APIError for malformed input.
func NewInvalidError(msg string) *APIError {
	return &APIError{Code: ErrInvalid, Message: msg}
}

// NewLimitExceededError creates a LIMIT_EXCEEDED APIError.
func NewLimitExceededError(msg string) *APIError {
	return &APIError{Code: ErrLimitExceeded, Message: msg}
}

// NewInternalError creates an INTERNAL APIError, for executor/I-O failures.
func NewInternalError(msg string) *APIError {
	return &APIError{Code: ErrInternal, Message: msg}
}

// InvalidTransitionError is returned when a state transition is illegal for
// the entity's current state.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s → %s (entity %s)", e.Entity, e.From, e.To, e.ID)
}
