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

// Is reports whether target carries the same code, so clones with
// overridden messages still match their sentinel via errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for the enrollment and grading domain.
var (
	ErrValidation            = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInvalidScore          = New("INVALID_SCORE", http.StatusBadRequest, "score must be between 0 and 100")
	ErrUnauthorized          = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrNotAuthorized         = New("NOT_AUTHORIZED", http.StatusForbidden, "not authorized")
	ErrNotFound              = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrCourseNotFound        = New("COURSE_NOT_FOUND", http.StatusNotFound, "course not found")
	ErrStudentNotFound       = New("STUDENT_NOT_FOUND", http.StatusNotFound, "student not found")
	ErrAlreadyEnrolled       = New("ALREADY_ENROLLED", http.StatusConflict, "already enrolled in this course")
	ErrStudentNotEnrolled    = New("STUDENT_NOT_ENROLLED", http.StatusConflict, "student is not enrolled in this course")
	ErrConflictOnWrite       = New("CONFLICT_ON_WRITE", http.StatusConflict, "conflicting concurrent write")
	ErrCourseFull            = New("COURSE_FULL", http.StatusConflict, "course is at capacity")
	ErrDependencyUnavailable = New("DEPENDENCY_UNAVAILABLE", http.StatusServiceUnavailable, "dependency unavailable")
	ErrInternal              = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
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
	clone.Err = nil
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// CloneWrap clones err with a message override and keeps cause for logging.
func CloneWrap(err *Error, cause error, message string) *Error {
	clone := Clone(err, message)
	if clone != nil {
		clone.Err = cause
	}
	return clone
}

// HasCode reports whether err is an *Error with the provided code.
func HasCode(err error, code string) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}
