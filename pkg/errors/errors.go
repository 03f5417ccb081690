package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	// Exchange engine errors. InvalidState covers any entity that is no
	// longer in the status an operation requires; ConcurrencyConflict is the
	// only kind callers may retry.
	ErrInvalidState        = New("INVALID_STATE", http.StatusConflict, "entity is not in the required state")
	ErrGateClosed          = New("GATE_CLOSED", http.StatusLocked, "exchanges are closed for this date")
	ErrAlreadyListed       = New("ALREADY_LISTED", http.StatusConflict, "an active listing already exists for this shift")
	ErrSelfInterest        = New("SELF_INTEREST", http.StatusBadRequest, "cannot express interest in your own listing")
	ErrShiftNotOwned       = New("SHIFT_NOT_OWNED", http.StatusConflict, "shift is not owned by the expected worker")
	ErrStaleProposal       = New("STALE_PROPOSAL", http.StatusConflict, "proposal refers to shifts that changed ownership")
	ErrConcurrencyConflict = New("CONCURRENCY_CONFLICT", http.StatusConflict, "operation lost a concurrent race, retry")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// IsRetryable reports whether the caller may safely retry the operation.
func IsRetryable(err error) bool {
	e := FromError(err)
	return e != nil && e.Code == ErrConcurrencyConflict.Code
}
