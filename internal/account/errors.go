package account

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes account errors.
type ErrorCode string

const (
	// ErrCodeUsernameTaken indicates the username is already registered.
	ErrCodeUsernameTaken ErrorCode = "USERNAME_TAKEN"

	// ErrCodeInvalidUsername indicates a username that cannot form a key.
	ErrCodeInvalidUsername ErrorCode = "INVALID_USERNAME"

	// ErrCodeBadCredentials indicates an unknown user or wrong password.
	ErrCodeBadCredentials ErrorCode = "BAD_CREDENTIALS"

	// ErrCodeInvalidToken indicates a malformed, forged or expired token.
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"
)

// Error is returned by Manager operations that fail for account reasons.
type Error struct {
	Code     ErrorCode
	Username string
	Message  string
}

func (e *Error) Error() string {
	if e.Username != "" {
		return fmt.Sprintf("%s: %s (user=%s)", e.Code, e.Message, e.Username)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf returns the code of an account error, or "" when err is not one.
func CodeOf(err error) ErrorCode {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsBadCredentials reports whether err is a failed login.
func IsBadCredentials(err error) bool {
	return CodeOf(err) == ErrCodeBadCredentials
}

// IsInvalidToken reports whether err is a rejected token.
func IsInvalidToken(err error) bool {
	return CodeOf(err) == ErrCodeInvalidToken
}
