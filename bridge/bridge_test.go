package bridge

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_PassesBodyThrough(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 10_000)

	r := NewReader(bytes.NewReader(payload), 0)
	got, err := io.ReadAll(r)

	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, int64(len(payload)), r.BytesRead())
}

func TestReader_EmptyBody(t *testing.T) {
	r := NewReader(strings.NewReader(""), 0)

	n, err := r.Read(make([]byte, 16))
	assert.Zero(t, n)
	assert.Equal(t, io.EOF, err)
	assert.Zero(t, r.BytesRead())
}

func TestReader_NeverReadsMoreThanAsked(t *testing.T) {
	src := &countingReader{r: bytes.NewReader(make([]byte, 1000))}
	r := NewReader(src, 0)

	buf := make([]byte, 64)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 64, n)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, int64(64), src.total)
}

func TestReader_WrapsTransportErrors(t *testing.T) {
	tests := []struct {
		name  string
		cause error
	}{
		{name: "client disconnect", cause: errors.New("connection reset by peer")},
		{name: "truncated body", cause: io.ErrUnexpectedEOF},
		{name: "malformed chunk", cause: errors.New("invalid byte in chunk length")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(tt.cause))
			r := NewReader(src, 0)

			got, err := io.ReadAll(r)
			require.Error(t, err)
			assert.Equal(t, []byte("partial"), got)

			var readErr *ReadError
			require.ErrorAs(t, err, &readErr)
			assert.Equal(t, int64(len("partial")), readErr.Offset)
			assert.ErrorIs(t, err, ErrBodyRead)
			assert.ErrorIs(t, err, tt.cause)
			assert.Contains(t, err.Error(), "after 7 bytes")
		})
	}
}

func TestReader_ErrorIsSticky(t *testing.T) {
	cause := errors.New("timeout")
	r := NewReader(iotest.ErrReader(cause), 0)

	_, first := r.Read(make([]byte, 8))
	_, second := r.Read(make([]byte, 8))

	assert.ErrorIs(t, first, cause)
	assert.Same(t, first, second)
}

func TestReader_Limit(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		limit   int64
		bufSize int
		wantErr error
	}{
		{name: "below limit", size: 99, limit: 100, bufSize: 32},
		{name: "exactly at limit", size: 100, limit: 100, bufSize: 32},
		{name: "exactly at limit one read", size: 100, limit: 100, bufSize: 4096},
		{name: "one byte over", size: 101, limit: 100, bufSize: 32, wantErr: ErrBodyTooLarge},
		{name: "far over", size: 10_000, limit: 100, bufSize: 4096, wantErr: ErrBodyTooLarge},
		{name: "negative limit disables", size: 10_000, limit: -1, bufSize: 4096},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(bytes.NewReader(make([]byte, tt.size)), tt.limit)

			var total int
			buf := make([]byte, tt.bufSize)
			var err error
			for {
				var n int
				n, err = r.Read(buf)
				total += n
				if err != nil {
					break
				}
			}

			if tt.wantErr == nil {
				assert.Equal(t, io.EOF, err)
				assert.Equal(t, tt.size, total)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.LessOrEqual(t, int64(total), tt.limit)
			assert.Equal(t, tt.limit, r.BytesRead())
		})
	}
}

func TestReader_ZeroLengthRead(t *testing.T) {
	src := &countingReader{r: strings.NewReader("data")}
	r := NewReader(src, 0)

	n, err := r.Read(nil)
	assert.Zero(t, n)
	assert.NoError(t, err)
	assert.Zero(t, src.calls)
}

type countingReader struct {
	r     io.Reader
	calls int
	total int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.calls++
	n, err := c.r.Read(p)
	c.total += int64(n)
	return n, err
}
