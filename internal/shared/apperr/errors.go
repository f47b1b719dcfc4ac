package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error by what the caller can do about it.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation is malformed or incomplete caller input.
	KindValidation
	// KindNotFound means the targeted key does not exist.
	KindNotFound
	// KindAccess means the backend denied the operation.
	KindAccess
	// KindDependency is any other backend failure.
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAccess:
		return "access"
	case KindDependency:
		return "dependency"
	default:
		return "unknown"
	}
}

// Error is the error type returned by services and store adapters.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func Validation(message string) error {
	return &Error{Kind: KindValidation, Message: message}
}

func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(message string) error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Access(message string, cause error) error {
	return &Error{Kind: KindAccess, Message: message, Cause: cause}
}

func Dependency(message string, cause error) error {
	return &Error{Kind: KindDependency, Message: message, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain.
// Errors that did not come from this package are treated as dependency failures.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindDependency
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsAccess(err error) bool     { return KindOf(err) == KindAccess }

// Message returns the caller-facing message of err without the wrapped cause.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}

// HTTPStatus maps err to the response status used by the HTTP handlers.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAccess:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
