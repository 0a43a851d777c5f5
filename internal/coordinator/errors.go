package coordinator

import (
	"errors"
	"fmt"

	"github.com/roach88/teamtask/internal/domain"
)

// ErrorCode categorizes coordinator errors.
type ErrorCode string

const (
	// ErrCodeValidation indicates malformed or missing input.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeDenied indicates the actor may not perform the action.
	ErrCodeDenied ErrorCode = "AUTHORIZATION_DENIED"

	// ErrCodeInvalidTransition indicates an illegal status change.
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"

	// ErrCodeNotFound indicates a referenced entity does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeUnavailable indicates a storage or directory failure.
	ErrCodeUnavailable ErrorCode = "DEPENDENCY_UNAVAILABLE"
)

// Error is the single error type returned by the coordinator.
//
// Only the fields relevant to the code are set:
//   - Entity and ID for NOT_FOUND
//   - From and To for INVALID_TRANSITION
//   - Err for DEPENDENCY_UNAVAILABLE (the underlying failure)
//
// For AUTHORIZATION_DENIED, Message carries the internal reason. Transports
// should log it and show a generic message.
type Error struct {
	Code    ErrorCode
	Message string
	Entity  string
	ID      string
	From    domain.Status
	To      domain.Status
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeInvalidTransition:
		return fmt.Sprintf("%s: cannot move task from %s to %s", e.Code, e.From, e.To)
	case ErrCodeNotFound:
		return fmt.Sprintf("%s: %s %s not found", e.Code, e.Entity, e.ID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool { return hasCode(err, ErrCodeValidation) }

// IsDenied returns true if err is an authorization denial.
func IsDenied(err error) bool { return hasCode(err, ErrCodeDenied) }

// IsInvalidTransition returns true if err is an illegal status change.
func IsInvalidTransition(err error) bool { return hasCode(err, ErrCodeInvalidTransition) }

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsUnavailable returns true if err is a dependency failure.
func IsUnavailable(err error) bool { return hasCode(err, ErrCodeUnavailable) }

// CodeOf returns the error's code, or "" for foreign errors.
func CodeOf(err error) ErrorCode {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

func validationError(msg string) *Error {
	return &Error{Code: ErrCodeValidation, Message: msg}
}

func deniedError(reason string) *Error {
	return &Error{Code: ErrCodeDenied, Message: reason}
}

func notFoundError(entity, id string) *Error {
	return &Error{Code: ErrCodeNotFound, Entity: entity, ID: id}
}

func transitionError(from, to domain.Status) *Error {
	return &Error{Code: ErrCodeInvalidTransition, From: from, To: to}
}

func unavailableError(op string, err error) *Error {
	return &Error{Code: ErrCodeUnavailable, Message: op, Err: err}
}
