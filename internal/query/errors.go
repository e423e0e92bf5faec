package query

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes query errors.
type ErrorCode string

const (
	// ErrCodeInvalidKey indicates a missing or malformed key.
	ErrCodeInvalidKey ErrorCode = "INVALID_KEY"

	// ErrCodeInvalidType indicates a missing or malformed type reference.
	ErrCodeInvalidType ErrorCode = "INVALID_TYPE"

	// ErrCodeUnknownType indicates a type reference to a key that is not
	// a /type/type thing.
	ErrCodeUnknownType ErrorCode = "UNKNOWN_TYPE"

	// ErrCodeInvalidQuery indicates a query of the wrong shape.
	ErrCodeInvalidQuery ErrorCode = "INVALID_QUERY"

	// ErrCodePermissionDenied indicates the acting account may not write
	// the key.
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
)

// Error is a validation or authorization failure of a query. It is
// returned to writers unchanged.
type Error struct {
	Code    ErrorCode
	Key     string
	Message string
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s (key=%s)", e.Code, e.Message, e.Key)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, key, format string, args ...any) *Error {
	return &Error{Code: code, Key: key, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of a query error, or "" when err is not one.
func CodeOf(err error) ErrorCode {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code
	}
	return ""
}

// IsPermissionDenied reports whether err is an authorization failure.
func IsPermissionDenied(err error) bool {
	return CodeOf(err) == ErrCodePermissionDenied
}

// IsValidation reports whether err rejects the shape or content of a query.
func IsValidation(err error) bool {
	code := CodeOf(err)
	return code != "" && code != ErrCodePermissionDenied
}
