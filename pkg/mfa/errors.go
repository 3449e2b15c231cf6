package mfa

import (
	"errors"
	"fmt"
)

// Kind tags every SDK-level failure with its position in the error
// taxonomy. Validation and precondition kinds are raised synchronously
// before any network call and are never retryable as-is.
type Kind string

const (
	// Input validation.
	KindFieldRequired       Kind = "field_required"
	KindInvalidOtpFormat    Kind = "invalid_otp_format"
	KindInvalidRecoveryCode Kind = "invalid_recovery_code_format"

	// State and precondition violations.
	KindAlreadyEnrolled      Kind = "already_enrolled"
	KindNotEnrolled          Kind = "not_enrolled"
	KindEnrollmentNotAllowed Kind = "enrollment_not_allowed"
	KindInvalidEnrollment    Kind = "invalid_enrollment"
	KindInvalidState         Kind = "invalid_state"
	KindUnexpectedInput      Kind = "unexpected_input"

	// Capability gaps between the request and server-advertised methods.
	KindFactorNotFound           Kind = "factor_not_found"
	KindMethodNotFound           Kind = "method_not_found"
	KindAuthMethodDisabled       Kind = "auth_method_disabled"
	KindEnrollmentMethodDisabled Kind = "enrollment_method_disabled"
	KindNoMethodAvailable        Kind = "no_method_available"

	// Credential lifecycle; both demand a fresh bootstrap.
	KindCredentialsExpired Kind = "credentials_expired"
	KindInvalidToken       Kind = "invalid_token"

	// Remote/transport failures, wrapped as-is from the service.
	KindRemote Kind = "remote_error"
)

// Error is the single error shape for every taxonomy kind.
type Error struct {
	Kind       Kind
	Message    string
	Field      string // set for KindFieldRequired
	StatusCode int    // set for KindRemote when the service answered
	Cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("%s: %s (field %q)", e.Kind, e.Message, e.Field)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Kind, e.Message, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match two *Error values by kind alone, so callers
// can compare against the exported sentinel constructors below.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func errFieldRequired(field string) *Error {
	return &Error{Kind: KindFieldRequired, Message: "required field is missing", Field: field}
}

func errInvalidOtpFormat() *Error {
	return &Error{Kind: KindInvalidOtpFormat, Message: "otp code must be exactly 6 digits"}
}

func errInvalidRecoveryCodeFormat() *Error {
	return &Error{Kind: KindInvalidRecoveryCode, Message: "recovery code must be exactly 24 alphanumeric characters"}
}

func errAlreadyEnrolled() *Error {
	return &Error{Kind: KindAlreadyEnrolled, Message: "transaction already has a confirmed enrollment"}
}

func errNotEnrolled() *Error {
	return &Error{Kind: KindNotEnrolled, Message: "transaction has no confirmed enrollment"}
}

func errEnrollmentNotAllowed(factor string) *Error {
	return &Error{Kind: KindEnrollmentNotAllowed, Message: fmt.Sprintf("enrollment with factor %q is not currently allowed", factor)}
}

func errInvalidEnrollment(detail string) *Error {
	return &Error{Kind: KindInvalidEnrollment, Message: detail}
}

func errInvalidState(detail string) *Error {
	return &Error{Kind: KindInvalidState, Message: detail}
}

func errFactorNotFound(factor string) *Error {
	return &Error{Kind: KindFactorNotFound, Message: fmt.Sprintf("no such factor %q", factor)}
}

func errMethodNotFound(method string) *Error {
	return &Error{Kind: KindMethodNotFound, Message: fmt.Sprintf("no strategy implements method %q", method)}
}

func errAuthMethodDisabled(method string) *Error {
	return &Error{Kind: KindAuthMethodDisabled, Message: fmt.Sprintf("authentication method %q is not enabled for this transaction", method)}
}

func errEnrollmentMethodDisabled(method string) *Error {
	return &Error{Kind: KindEnrollmentMethodDisabled, Message: fmt.Sprintf("enrollment method %q is not enabled for this transaction", method)}
}

func errNoMethodAvailable() *Error {
	return &Error{Kind: KindNoMethodAvailable, Message: "the transaction advertises no usable method"}
}

func errUnexpectedInput(detail string) *Error {
	return &Error{Kind: KindUnexpectedInput, Message: detail}
}

func errCredentialsExpired() *Error {
	return &Error{Kind: KindCredentialsExpired, Message: "transaction token has expired, restart the flow"}
}

func errInvalidToken(message string) *Error {
	return &Error{Kind: KindInvalidToken, Message: message}
}

func errRemote(cause error, statusCode int) *Error {
	return &Error{Kind: KindRemote, Message: "verification service rejected the request", StatusCode: statusCode, Cause: cause}
}
