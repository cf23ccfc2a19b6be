// Package apperror defines the application's error taxonomy.
//
// Every layer below the HTTP handlers returns (possibly wrapped) errors from
// this package. The handler layer is the only place that turns them into
// status codes and JSON bodies (see handler/response.go).
//
// THREE SHAPES OF ERROR:
//   - Sentinels (ErrNotFound, ErrUnauthorized, ...) classify an error with errors.Is.
//   - *AppError carries a human-readable detail plus the sentinel it wraps.
//   - FieldErrors and *DuplicateError carry per-field messages, rendered as
//     {"field": ["message", ...]} with status 400.
package apperror

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation error")
	ErrConflict           = errors.New("conflict")
	ErrForbidden          = errors.New("forbidden")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrThrottled          = errors.New("throttled")

	// Per-field duplicates. A *DuplicateError matches every one of these
	// that applies, so callers can test errors.Is(err, ErrDuplicateEmail).
	ErrDuplicateUsername = fmt.Errorf("%w: username", ErrConflict)
	ErrDuplicateEmail    = fmt.Errorf("%w: email", ErrConflict)
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized returns an AppError for missing or unusable credentials.
// HTTP handlers map this to 401 and use Message as the response detail.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// InvalidCredentials is returned by login for both an unknown username and a
// wrong password. The two cases must stay indistinguishable to the client.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "Unable to log in with provided credentials.",
	}
}

// Throttled reports that a caller exceeded an attempt budget.
func Throttled(message string) *AppError {
	return &AppError{
		Err:     ErrThrottled,
		Message: message,
	}
}

// FieldErrors maps a field name to its ordered list of messages.
//
// It is an error in its own right (it unwraps to ErrValidation), which lets
// the validator hand its full result up the stack as a single value.
type FieldErrors map[string][]string

// Add appends a message for field.
func (fe FieldErrors) Add(field, message string) {
	fe[field] = append(fe[field], message)
}

// Error renders the map deterministically (fields sorted) for logs.
func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+strings.Join(fe[f], " "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (fe FieldErrors) Unwrap() error {
	return ErrValidation
}

// DuplicateError is a uniqueness violation on one or more fields of a
// resource. Stores return it after catching a unique-constraint failure.
type DuplicateError struct {
	Resource string
	Fields   []string
}

// Duplicate builds a DuplicateError for the given resource and fields.
func Duplicate(resource string, fields ...string) *DuplicateError {
	return &DuplicateError{Resource: resource, Fields: fields}
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: duplicate %s", e.Resource, strings.Join(e.Fields, ", "))
}

// Unwrap exposes ErrConflict plus one per-field sentinel per known field.
func (e *DuplicateError) Unwrap() []error {
	errs := []error{ErrConflict}
	for _, f := range e.Fields {
		switch f {
		case "username":
			errs = append(errs, ErrDuplicateUsername)
		case "email":
			errs = append(errs, ErrDuplicateEmail)
		}
	}
	return errs
}

// FieldErrors renders the duplicates the way field validation errors are
// rendered: "user with this email already exists.".
func (e *DuplicateError) FieldErrors() FieldErrors {
	fe := FieldErrors{}
	for _, f := range e.Fields {
		fe.Add(f, fmt.Sprintf("%s with this %s already exists.", e.Resource, f))
	}
	return fe
}
