package tokenauth

import (
	"errors"
	"fmt"
)

// ErrorCode represents authentication error categories.
type ErrorCode string

const (
	ErrCodeCredentialMissing   ErrorCode = "credential_missing"
	ErrCodeCredentialExpired   ErrorCode = "credential_expired"
	ErrCodeCredentialIncorrect ErrorCode = "credential_incorrect"
	ErrCodeVerifierUnavailable ErrorCode = "verifier_unavailable"
)

var errorMessages = map[ErrorCode]string{
	ErrCodeCredentialMissing:   "Credential missing",
	ErrCodeCredentialExpired:   "Credential expired",
	ErrCodeCredentialIncorrect: "Credential incorrect",
	ErrCodeVerifierUnavailable: "Verifier unavailable",
}

// Error wraps authentication errors with a stable code and message. Reasons
// holds the verifier's failure reasons, when verification ran.
type Error struct {
	Code    ErrorCode
	Message string
	Reasons FailureReasons
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	base := e.Message
	if base == "" {
		base = string(e.Code)
	}
	if len(e.Reasons) > 0 {
		base = fmt.Sprintf("%s %v", base, e.Reasons.List())
	}
	if e.Err == nil {
		return base
	}
	return fmt.Sprintf("%s: %v", base, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func newError(code ErrorCode, err error) *Error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = string(code)
	}
	return &Error{Code: code, Message: msg, Err: err}
}

func newReasonsError(code ErrorCode, reasons FailureReasons) *Error {
	e := newError(code, nil)
	e.Reasons = reasons.Clone()
	return e
}
