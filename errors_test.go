package clamav

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "without cause",
			err:  &Error{Code: CodeConnection, Message: "connection refused"},
			want: "connection refused",
		},
		{
			name: "with cause",
			err:  &Error{Code: CodeConnection, Message: "connection refused", Cause: errors.New("dial tcp")},
			want: "connection refused: dial tcp",
		},
		{
			name: "with reply",
			err:  NewProtocolError("clamd reported an error", "INSTREAM size limit exceeded. ERROR"),
			want: `clamd reported an error: "INSTREAM size limit exceeded. ERROR"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &Error{Code: CodeTransport, Message: "stream failed", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}

	err2 := &Error{Code: CodeProtocol, Message: "bad reply"}
	if err2.Unwrap() != nil {
		t.Error("Unwrap should return nil when no cause")
	}
}

func TestErrorAs(t *testing.T) {
	err := NewConnectionError("connection refused", nil)
	wrapped := fmt.Errorf("scan failed: %w", err)

	var target *Error
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As should find *Error")
	}
	if target.Code != CodeConnection {
		t.Errorf("Code = %q, want %q", target.Code, CodeConnection)
	}
}

func TestConstructors(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name string
		err  *Error
		code string
	}{
		{name: "connection", err: NewConnectionError("cannot reach clamd", cause), code: CodeConnection},
		{name: "transport", err: NewTransportError("stream failed", cause), code: CodeTransport},
		{name: "protocol", err: NewProtocolError("bad reply", "garbage"), code: CodeProtocol},
		{name: "validation", err: NewValidationError("bad address", cause), code: CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if ErrorCode(tt.err) != tt.code {
				t.Errorf("ErrorCode() = %q, want %q", ErrorCode(tt.err), tt.code)
			}
		})
	}

	if got := NewProtocolError("bad reply", "garbage").Reply; got != "garbage" {
		t.Errorf("Reply = %q, want %q", got, "garbage")
	}
}

func TestErrorPredicates(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		isConnection bool
		isTransport  bool
		isProtocol   bool
		isValidation bool
	}{
		{name: "connection", err: NewConnectionError("x", nil), isConnection: true},
		{name: "transport", err: NewTransportError("x", nil), isTransport: true},
		{name: "protocol", err: NewProtocolError("x", ""), isProtocol: true},
		{name: "validation", err: NewValidationError("x", nil), isValidation: true},
		{name: "wrapped transport", err: fmt.Errorf("outer: %w", NewTransportError("x", nil)), isTransport: true},
		{name: "plain error", err: errors.New("x")},
		{name: "nil", err: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConnectionError(tt.err); got != tt.isConnection {
				t.Errorf("IsConnectionError() = %v, want %v", got, tt.isConnection)
			}
			if got := IsTransportError(tt.err); got != tt.isTransport {
				t.Errorf("IsTransportError() = %v, want %v", got, tt.isTransport)
			}
			if got := IsProtocolError(tt.err); got != tt.isProtocol {
				t.Errorf("IsProtocolError() = %v, want %v", got, tt.isProtocol)
			}
			if got := IsValidationError(tt.err); got != tt.isValidation {
				t.Errorf("IsValidationError() = %v, want %v", got, tt.isValidation)
			}
		})
	}

	if ErrorCode(errors.New("x")) != "" {
		t.Error("ErrorCode of a plain error should be empty")
	}
}
