// Package domainerrors defines the coded error type the workflow services
// return across the core boundary. Callers branch on codes, not message
// strings; the HTTP layer maps codes 1:1 to status codes.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies a domain failure.
type Code string

const (
	// CodeNotFound: dangling reference to a document/session/code/user.
	CodeNotFound Code = "not_found"
	// CodeForbidden: caller is not an authorized party for the entity.
	CodeForbidden Code = "forbidden"
	// CodeUnauthorized: caller identity is missing or unusable.
	CodeUnauthorized Code = "unauthorized"
	// CodeConflict: action raced another writer or was already applied.
	CodeConflict Code = "conflict"
	// CodeInvalidState: action not valid from the entity's current status.
	CodeInvalidState Code = "invalid_state_transition"
	// CodeExpired: token/code past its TTL.
	CodeExpired Code = "expired_credential"
	// CodeRenderFailure: PDF/QR capability error.
	CodeRenderFailure Code = "render_failure"
	// CodeValidation: missing or malformed input.
	CodeValidation Code = "validation_error"
	// CodeInvalidInput: a single field failed parsing at a trust boundary.
	CodeInvalidInput Code = "invalid_input"
	// CodeInvariantViolation: a domain invariant check failed inside a model.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeUnavailable: an external collaborator failed mid-operation.
	CodeUnavailable Code = "unavailable"
	// CodeInternal: unexpected failure; details are logged, not returned.
	CodeInternal Code = "internal"
)

// Error is the concrete coded error. Services construct it with New or Wrap;
// callers inspect it with HasCode.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error with a caller-facing message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error, preserving the
// chain for errors.Is/As.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var coded *Error
	for errors.As(err, &coded) {
		if coded.Code == code {
			return true
		}
		err = coded.Err
		if err == nil {
			return false
		}
	}
	return false
}

// Is is a readability alias for HasCode at call sites that test one code.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf returns the outermost code carried by err, or CodeInternal when err
// carries none.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// HTTPStatus maps a code to the status the transport layer responds with.
func HTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeConflict, CodeInvalidState, CodeInvariantViolation:
		return http.StatusConflict
	case CodeExpired:
		return http.StatusGone
	case CodeRenderFailure, CodeUnavailable:
		return http.StatusBadGateway
	case CodeValidation, CodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
