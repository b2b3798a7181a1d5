package core

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure in a machine-readable way. Every error
// surfaced by the session manager carries one so callers can branch without
// string matching.
type Kind string

const (
	KindWalletUnavailable   Kind = "wallet_unavailable"
	KindUserRejected        Kind = "user_rejected"
	KindAlreadyRegistered   Kind = "already_registered"
	KindUsernameTooShort    Kind = "username_too_short"
	KindNotRegistered       Kind = "not_registered"
	KindSignatureInvalid    Kind = "signature_invalid"
	KindInvalidOTP          Kind = "invalid_otp"
	KindTransactionReverted Kind = "transaction_reverted"
	KindOperationInProgress Kind = "operation_in_progress"
	KindTooManyAttempts     Kind = "too_many_attempts"
	KindNetworkError        Kind = "network_error"
	KindUnknown             Kind = "unknown"
)

// Error pairs a Kind with a human-readable message. Contract revert reasons
// are passed through verbatim in Message when available.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

// Is matches two kinded errors by Kind, so errors.Is(err, ErrUserRejected)
// works regardless of the wrapped message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// NewError creates a kinded error with the given displayable message.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf creates a kinded error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind and display message to an underlying cause.
func WrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf walks the error chain and returns the first Kind found, or
// KindUnknown when the error carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Sentinels for errors.Is checks against the kinds above.
var (
	ErrWalletUnavailable   = NewError(KindWalletUnavailable, "wallet is not available")
	ErrUserRejected        = NewError(KindUserRejected, "request rejected by wallet owner")
	ErrAlreadyRegistered   = NewError(KindAlreadyRegistered, "user already registered")
	ErrUsernameTooShort    = NewError(KindUsernameTooShort, "username must be at least 3 characters")
	ErrNotRegistered       = NewError(KindNotRegistered, "user not registered")
	ErrSignatureInvalid    = NewError(KindSignatureInvalid, "invalid signature")
	ErrInvalidOTP          = NewError(KindInvalidOTP, "invalid OTP")
	ErrTransactionReverted = NewError(KindTransactionReverted, "transaction reverted")
	ErrOperationInProgress = NewError(KindOperationInProgress, "another operation is in progress")
	ErrTooManyAttempts     = NewError(KindTooManyAttempts, "too many attempts")
	ErrNetworkError        = NewError(KindNetworkError, "network error")
)
