package query

import (
	"errors"
	"fmt"
)

// Error is returned for a query that cannot be executed. It is local to
// one call and never fatal to the store.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Field names the offending field, if any.
	Field string
}

// ErrorCode categorizes query errors.
type ErrorCode string

const (
	// ErrCodeInvalidQuery covers unknown fields, malformed filter values
	// and requests whose shape does not match their kind.
	ErrCodeInvalidQuery ErrorCode = "INVALID_QUERY"

	// ErrCodeUnknownStore indicates the request names a store that is not
	// registered.
	ErrCodeUnknownStore ErrorCode = "UNKNOWN_STORE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Invalid builds an INVALID_QUERY error.
func Invalid(field, format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeInvalidQuery,
		Message: fmt.Sprintf(format, args...),
		Field:   field,
	}
}

// UnknownStore builds an UNKNOWN_STORE error.
func UnknownStore(name string) *Error {
	return &Error{
		Code:    ErrCodeUnknownStore,
		Message: fmt.Sprintf("store %q is not registered", name),
	}
}

// IsInvalidQuery reports whether err is an INVALID_QUERY error.
// Uses errors.As to handle wrapped errors.
func IsInvalidQuery(err error) bool {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code == ErrCodeInvalidQuery
	}
	return false
}

// IsUnknownStore reports whether err is an UNKNOWN_STORE error.
func IsUnknownStore(err error) bool {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code == ErrCodeUnknownStore
	}
	return false
}
