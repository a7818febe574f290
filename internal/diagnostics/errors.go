package diagnostics

import (
	"errors"
	"fmt"
)

// Code is the short machine-readable failure class surfaced to callers.
type Code string

const (
	CodeInvalidInput     Code = "INVALID_INPUT"
	CodeNotFound         Code = "NOT_FOUND"
	CodeRemoteCallFailed Code = "REMOTE_CALL_FAILED"
	CodeBadRequest       Code = "BAD_REQUEST"
)

// Error pairs a failure code with human-readable detail.
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

func (e *Error) Unwrap() error { return e.Err }

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func wrapError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the failure code; unknown errors count as remote
// failures since every non-domain failure here comes from the portal.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeRemoteCallFailed
}
