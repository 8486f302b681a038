package common

import (
	"errors"
	"strings"
)

// AuthCode is a machine-readable authentication failure code.
type AuthCode string

const (
	CodeInvalidEmail    AuthCode = "auth/invalid-email"
	CodeUserNotFound    AuthCode = "auth/user-not-found"
	CodeWrongPassword   AuthCode = "auth/wrong-password"
	CodeTooManyRequests AuthCode = "auth/too-many-requests"
	CodeEmailInUse      AuthCode = "auth/email-already-in-use"
	CodeWeakPassword    AuthCode = "auth/weak-password"
	CodeNetworkFailed   AuthCode = "auth/network-request-failed"
	CodeInternal        AuthCode = "auth/internal-error"
	authCodePrefix               = "auth/"
)

// AuthError is returned by the authentication provider.
type AuthError struct {
	Code AuthCode
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Err.Error()
	}
	return string(e.Code)
}

func (e *AuthError) Unwrap() error { return e.Err }

// NewAuthError builds an AuthError without an underlying cause.
func NewAuthError(code AuthCode) *AuthError {
	return &AuthError{Code: code}
}

// AuthCodeOf extracts the provider code from err, if any.
func AuthCodeOf(err error) (AuthCode, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Code, true
	}
	return "", false
}

// ParseAuthCode recognises a provider code in a plain string, typically a
// gRPC status message.
func ParseAuthCode(s string) (AuthCode, bool) {
	if !strings.HasPrefix(s, authCodePrefix) {
		return "", false
	}
	code, _, _ := strings.Cut(s, ":")
	return AuthCode(strings.TrimSpace(code)), true
}
