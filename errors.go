package clamav

import (
	"errors"
	"fmt"
)

// Error codes for machine-readable error classification.
//
// A scan reports exactly one of CodeConnection, CodeTransport or CodeProtocol.
// CodeValidation is only produced while constructing a client.
const (
	CodeConnection = "connection_error"
	CodeTransport  = "transport_error"
	CodeProtocol   = "protocol_error"
	CodeValidation = "validation_error"
)

// Error is the base error type for all client errors.
type Error struct {
	// Code is a machine-readable error code.
	Code string
	// Message is a human-readable error description.
	Message string
	// Reply is the raw clamd reply for protocol errors, if one was received.
	Reply string
	// Cause is the underlying error, if any.
	Cause error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	if e.Reply != "" {
		return fmt.Sprintf("%s: %q", e.Message, e.Reply)
	}
	return e.Message
}

// Unwrap returns the underlying cause for use with errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewConnectionError creates an error indicating the backend could not be reached.
func NewConnectionError(msg string, cause error) *Error {
	return &Error{
		Code:    CodeConnection,
		Message: msg,
		Cause:   cause,
	}
}

// NewTransportError creates an error indicating an I/O failure after the
// connection was established, including failures reading the upload stream.
func NewTransportError(msg string, cause error) *Error {
	return &Error{
		Code:    CodeTransport,
		Message: msg,
		Cause:   cause,
	}
}

// NewProtocolError creates an error indicating a malformed or unexpected reply.
func NewProtocolError(msg, reply string) *Error {
	return &Error{
		Code:    CodeProtocol,
		Message: msg,
		Reply:   reply,
	}
}

// NewValidationError creates an error indicating invalid input.
func NewValidationError(msg string, cause error) *Error {
	return &Error{
		Code:    CodeValidation,
		Message: msg,
		Cause:   cause,
	}
}

// IsConnectionError reports whether err is or wraps a connection error.
func IsConnectionError(err error) bool {
	return hasCode(err, CodeConnection)
}

// IsTransportError reports whether err is or wraps a transport error.
func IsTransportError(err error) bool {
	return hasCode(err, CodeTransport)
}

// IsProtocolError reports whether err is or wraps a protocol error.
func IsProtocolError(err error) bool {
	return hasCode(err, CodeProtocol)
}

// IsValidationError reports whether err is or wraps a validation error.
func IsValidationError(err error) bool {
	return hasCode(err, CodeValidation)
}

// ErrorCode returns the code of the first *Error in err's chain, or "" if there is none.
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func hasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
