// Package bridge adapts an inbound HTTP request body into the byte stream
// consumed by the clamd client.
package bridge

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrBodyRead marks any failure pulling bytes from the request body.
	ErrBodyRead = errors.New("request body read failed")

	// ErrBodyTooLarge is returned once the body exceeds the configured limit.
	ErrBodyTooLarge = errors.New("request body too large")
)

// ReadError is a transport failure encountered while reading the body:
// a client disconnect, a read timeout or malformed chunked encoding.
type ReadError struct {
	// Offset is the number of bytes successfully read before the failure.
	Offset int64
	// Err is the underlying transport error.
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%v after %d bytes: %v", ErrBodyRead, e.Offset, e.Err)
}

// Unwrap returns both the ErrBodyRead marker and the transport error.
func (e *ReadError) Unwrap() []error {
	return []error{ErrBodyRead, e.Err}
}

// Reader forwards a request body one Read at a time. It never reads more
// than the caller asked for and holds no buffer of its own, so the upstream
// body is only pulled as fast as the downstream consumer drains it.
//
// A Reader is not safe for concurrent use; it belongs to one request.
type Reader struct {
	src   io.Reader
	limit int64
	n     int64
	err   error
}

// NewReader wraps body. A positive limit caps the number of bytes accepted;
// zero or a negative value means no limit.
func NewReader(body io.Reader, limit int64) *Reader {
	if limit < 0 {
		limit = 0
	}
	return &Reader{src: body, limit: limit}
}

// Read implements io.Reader. A bare io.EOF is passed through unchanged; every
// other error, including io.ErrUnexpectedEOF from a truncated fixed-length
// body, is reported as a *ReadError. The first error is sticky.
func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if len(p) == 0 {
		return 0, nil
	}

	// Ask for one byte past the limit so an exactly-sized body still passes.
	if r.limit > 0 {
		if remaining := r.limit - r.n + 1; int64(len(p)) > remaining {
			p = p[:remaining]
		}
	}

	n, err := r.src.Read(p)
	r.n += int64(n)

	if r.limit > 0 && r.n > r.limit {
		r.n = r.limit
		r.err = ErrBodyTooLarge
		return n - 1, r.err
	}

	switch {
	case err == nil:
	case err == io.EOF:
		r.err = io.EOF
	default:
		r.err = &ReadError{Offset: r.n, Err: err}
	}
	return n, r.err
}

// BytesRead returns the number of body bytes delivered to the consumer.
func (r *Reader) BytesRead() int64 {
	return r.n
}
