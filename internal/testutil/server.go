// Package testutil provides a fake clamd daemon for tests.
package testutil

import (
	"bufio"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"hash"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
)

// ScanRecord describes one INSTREAM session observed by the mock.
type ScanRecord struct {
	// Bytes is the number of payload bytes received.
	Bytes int64
	// SHA256 is the hex digest of the received payload.
	SHA256 string
	// Frames is the number of non-empty chunks received.
	Frames int
	// MaxFrame is the largest chunk size received.
	MaxFrame int
	// Completed is true when the terminating zero-length chunk arrived.
	Completed bool
}

// VerdictFunc decides the reply for a completed stream. It receives the full
// payload and returns the raw reply without the trailing NUL, e.g. "stream: OK".
type VerdictFunc func(data []byte) string

// MockClamd is an in-process clamd speaking the z-prefixed socket protocol.
type MockClamd struct {
	listener  net.Listener
	verdict   VerdictFunc
	version   string
	maxStream int64

	mu      sync.Mutex
	records []ScanRecord
	conns   map[net.Conn]struct{}
	wg      sync.WaitGroup
}

// MockOption configures a MockClamd.
type MockOption func(*MockClamd)

// WithVerdict sets the function producing INSTREAM replies.
func WithVerdict(fn VerdictFunc) MockOption {
	return func(m *MockClamd) {
		m.verdict = fn
	}
}

// WithStreamMaxLength makes the mock reject streams longer than n bytes the
// way clamd does when StreamMaxLength is exceeded.
func WithStreamMaxLength(n int64) MockOption {
	return func(m *MockClamd) {
		m.maxStream = n
	}
}

// WithVersion sets the VERSION reply.
func WithVersion(v string) MockOption {
	return func(m *MockClamd) {
		m.version = v
	}
}

// NewMockClamd starts a mock on a random loopback port. It is closed with t.Cleanup.
func NewMockClamd(t testing.TB, opts ...MockOption) *MockClamd {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	m := &MockClamd{
		listener: l,
		verdict:  func([]byte) string { return CleanReply },
		version:  "ClamAV 1.3.1/27401/Tue Sep 10 08:35:33 2024",
		conns:    make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.wg.Add(1)
	go m.serve()
	t.Cleanup(m.Close)

	return m
}

// Addr returns the "host:port" address of the mock.
func (m *MockClamd) Addr() string {
	return m.listener.Addr().String()
}

// Close stops the mock, drops open sessions and waits for them to finish.
func (m *MockClamd) Close() {
	_ = m.listener.Close()
	m.mu.Lock()
	for conn := range m.conns {
		_ = conn.Close()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// Records returns a copy of the INSTREAM sessions seen so far.
func (m *MockClamd) Records() []ScanRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ScanRecord(nil), m.records...)
}

func (m *MockClamd) serve() {
	defer m.wg.Done()
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return
		}
		m.mu.Lock()
		m.conns[conn] = struct{}{}
		m.mu.Unlock()

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			defer func() {
				m.mu.Lock()
				delete(m.conns, conn)
				m.mu.Unlock()
				_ = conn.Close()
			}()
			m.handle(conn)
		}()
	}
}

func (m *MockClamd) handle(conn net.Conn) {
	r := bufio.NewReader(conn)
	cmd, err := r.ReadString(0)
	if err != nil {
		return
	}

	switch strings.TrimSuffix(cmd, "\x00") {
	case "zPING":
		_, _ = io.WriteString(conn, "PONG\x00")
	case "zVERSION":
		_, _ = io.WriteString(conn, m.version+"\x00")
	case "zINSTREAM":
		m.instream(r, conn)
	default:
		_, _ = io.WriteString(conn, "UNKNOWN COMMAND\x00")
	}
}

func (m *MockClamd) instream(r io.Reader, w io.Writer) {
	var (
		rec  ScanRecord
		data []byte
		size [4]byte
	)
	digest := sha256.New()

	for {
		if _, err := io.ReadFull(r, size[:]); err != nil {
			m.record(rec, digest)
			return
		}
		n := binary.BigEndian.Uint32(size[:])
		if n == 0 {
			rec.Completed = true
			break
		}
		if m.maxStream > 0 && rec.Bytes+int64(n) > m.maxStream {
			m.record(rec, digest)
			_, _ = io.WriteString(w, "INSTREAM size limit exceeded. ERROR\x00")
			// Drain instead of closing so the client reads the reply instead of a reset.
			_, _ = io.Copy(io.Discard, r)
			return
		}

		chunk := make([]byte, n)
		if _, err := io.ReadFull(r, chunk); err != nil {
			m.record(rec, digest)
			return
		}
		digest.Write(chunk)
		rec.Bytes += int64(n)
		rec.Frames++
		if int(n) > rec.MaxFrame {
			rec.MaxFrame = int(n)
		}
		data = append(data, chunk...)
	}

	// Recorded before replying so callers see the record once they have a verdict.
	m.record(rec, digest)
	_, _ = io.WriteString(w, m.verdict(data)+"\x00")
}

func (m *MockClamd) record(rec ScanRecord, h hash.Hash) {
	rec.SHA256 = hex.EncodeToString(h.Sum(nil))
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
}

// CleanReply is the reply clamd sends for a clean stream.
const CleanReply = "stream: OK"

// FoundReply builds the reply for one or more signatures, one line per match
// as clamd does with AllMatch enabled.
func FoundReply(signatures ...string) string {
	lines := make([]string, len(signatures))
	for i, s := range signatures {
		lines[i] = "stream: " + s + " FOUND"
	}
	return strings.Join(lines, "\n")
}

// EicarReply is the reply for the EICAR test file.
var EicarReply = FoundReply("Eicar-Test-Signature")

// Eicar is the EICAR anti-virus test file.
var Eicar = []byte(`X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`)

// EicarVerdict flags payloads containing the EICAR string and passes everything else.
func EicarVerdict(data []byte) string {
	if strings.Contains(string(data), string(Eicar)) {
		return EicarReply
	}
	return CleanReply
}

// ClosedAddr returns a loopback address nothing listens on.
func ClosedAddr(t testing.TB) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	addr := l.Addr().String()
	if err := l.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		t.Fatalf("failed to close listener: %v", err)
	}
	return addr
}
