// Package autherr defines the typed failure taxonomy shared by every
// protocol in the module. Callers branch on the Code, not the message;
// messages are written for the operator.
package autherr

import (
	"errors"
	"fmt"
)

// Code classifies a failure for programmatic handling.
type Code string

const (
	// CodeUnsupported: the platform credential protocol is absent.
	CodeUnsupported Code = "UNSUPPORTED"
	// CodeNotAllowed: the user cancelled or refused the gesture.
	CodeNotAllowed Code = "NOT_ALLOWED"
	// CodeNotSupportedOnDevice: the platform rejected the requested
	// authenticator class.
	CodeNotSupportedOnDevice Code = "NOT_SUPPORTED_ON_DEVICE"
	// CodeLocked: the dashboard is owned by a different device.
	CodeLocked Code = "LOCKED"
	// CodeRequiresSetup: no owner is registered yet.
	CodeRequiresSetup Code = "REQUIRES_SETUP"
	// CodeConfigError: the verification service is misconfigured.
	CodeConfigError Code = "CONFIG_ERROR"
	// CodeServiceUnavailable: the service answered but cannot serve.
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	// CodeNetworkError: the service could not be reached at all.
	CodeNetworkError Code = "NETWORK_ERROR"
	// CodeVerificationFailed: the service rejected the submitted proof.
	CodeVerificationFailed Code = "VERIFICATION_FAILED"
	// CodeCredentialNotFound: the referenced credential no longer exists
	// on this device.
	CodeCredentialNotFound Code = "CREDENTIAL_NOT_FOUND"
	// CodeNotAuthenticated: the operation needs a session this device
	// does not hold.
	CodeNotAuthenticated Code = "NOT_AUTHENTICATED"
	// CodeInvalidLinkCode: the device-link code was rejected.
	CodeInvalidLinkCode Code = "INVALID_LINK_CODE"
)

// Error is a classified failure with an operator-facing message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the classification from an error chain. Unclassified
// errors report the empty code.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether the error chain carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// Retryable reports whether the failure class may clear on its own, so a
// caller can reasonably offer "try again".
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeNetworkError, CodeServiceUnavailable, CodeNotAllowed:
		return true
	default:
		return false
	}
}
