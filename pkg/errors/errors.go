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
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Timing-policy and invariant violations raised by the assessment window engine.
var (
	ErrWindowNotConfigured   = New("WINDOW_NOT_CONFIGURED", http.StatusUnprocessableEntity, "assessment window not configured")
	ErrWindowAlreadyOpen     = New("WINDOW_ALREADY_OPEN", http.StatusUnprocessableEntity, "assessment window has already opened")
	ErrRescheduleStarted     = New("RESCHEDULE_WINDOW_STARTED", http.StatusUnprocessableEntity, "rescheduled window has already started")
	ErrWindowNotOpen         = New("WINDOW_NOT_OPEN", http.StatusUnprocessableEntity, "assessment window is not open yet")
	ErrWindowExpired         = New("WINDOW_EXPIRED", http.StatusUnprocessableEntity, "assessment window has expired")
	ErrSubmittedBeforeWindow = New("SUBMITTED_BEFORE_WINDOW", http.StatusUnprocessableEntity, "submission recorded before the assessment window opened")
	ErrAlreadyStarted        = New("ASSESSMENT_ALREADY_STARTED", http.StatusUnprocessableEntity, "assessment already started or completed")
	ErrDuplicateReschedule   = New("DUPLICATE_RESCHEDULE", http.StatusConflict, "an active reschedule already exists")
	ErrDuplicateSubmission   = New("DUPLICATE_SUBMISSION", http.StatusConflict, "assessment already submitted")
	ErrRescheduleInactive    = New("RESCHEDULE_INACTIVE", http.StatusConflict, "reschedule already cancelled")
	ErrStaleProgress         = New("STALE_PROGRESS", http.StatusConflict, "progress record was modified concurrently")
)

// HasCode reports whether err carries the given error code.
func HasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

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
