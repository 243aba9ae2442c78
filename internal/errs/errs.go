package errs

import (
	"errors"
	"net/http"
	"sort"
)

// Code is an application error code.
type Code string

const (
	// InvalidArgument marks input that failed validation. No mutation happened.
	InvalidArgument Code = "invalid_argument"
	// NotFound marks an unknown note, image, or user.
	NotFound Code = "not_found"
	// TooLarge marks a request body over the upload limit.
	TooLarge Code = "too_large"
	// Conflict marks a write that raced with another change to the same note.
	Conflict Code = "conflict"
	// Internal marks storage failures (blob writes, persistence).
	Internal Code = "internal"
)

// Error is a coded application error.
type Error struct {
	Code    Code
	Message string
	// Fields holds per-field validation messages keyed by form field name.
	Fields map[string][]string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// Validation creates an InvalidArgument error carrying field messages.
func Validation(message string, fields map[string][]string) error {
	return &Error{
		Code:    InvalidArgument,
		Message: message,
		Fields:  fields,
	}
}

// CodeOf returns the error code, defaulting to internal.
func CodeOf(err error) Code {
	if err == nil {
		return Internal
	}
	var coded *Error
	if errors.As(err, &coded) {
		if coded.Code == "" {
			return Internal
		}
		return coded.Code
	}
	return Internal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// MessageOf returns a user-facing error message.
// If the error has no typed wrapper, returns "internal error" to prevent
// leaking raw DB errors, file paths, or bucket names to responses.
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	return "internal error"
}

// FieldsOf returns the per-field validation messages, or nil.
func FieldsOf(err error) map[string][]string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Fields
	}
	return nil
}

// FieldNames returns the field keys of err in sorted order.
func FieldNames(err error) []string {
	fields := FieldsOf(err)
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HTTPStatus maps error code to HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case InvalidArgument:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case TooLarge:
		return http.StatusRequestEntityTooLarge
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
