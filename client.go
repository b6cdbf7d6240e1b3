package clamav

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	cmdPing     = "zPING\x00"
	cmdVersion  = "zVERSION\x00"
	cmdInstream = "zINSTREAM\x00"

	replyPong    = "PONG"
	streamPrefix = "stream:"

	// frameHeaderSize is the length prefix of every INSTREAM chunk.
	frameHeaderSize = 4
	maxReplySize    = 64 * 1024
)

// Client talks to a clamd daemon over TCP or a unix socket.
// It is safe for concurrent use from multiple goroutines; every call opens its
// own connection.
type Client struct {
	network     string
	address     string
	timeout     time.Duration
	dialTimeout time.Duration
	chunkSize   int
	dialer      *net.Dialer
}

// NewClient creates a clamd client.
// address is "host:port", "tcp://host:port" or "unix:///path/to/clamd.sock".
func NewClient(address string, opts ...ClientOption) (*Client, error) {
	network, addr, err := parseAddress(address)
	if err != nil {
		return nil, err
	}

	c := &Client{
		network:     network,
		address:     addr,
		timeout:     defaultTimeout,
		dialTimeout: defaultDialTimeout,
		chunkSize:   defaultChunkSize,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.dialer == nil {
		c.dialer = &net.Dialer{}
	}

	return c, nil
}

// Address returns the backend address in URL form, e.g. "tcp://clamd:3310".
func (c *Client) Address() string {
	return c.network + "://" + c.address
}

// Ping checks that clamd answers PING with PONG.
func (c *Client) Ping(ctx context.Context) error {
	reply, err := c.command(ctx, cmdPing)
	if err != nil {
		return err
	}
	if reply != replyPong {
		return NewProtocolError("unexpected PING reply", reply)
	}
	return nil
}

// Version returns the clamd engine and signature database versions.
func (c *Client) Version(ctx context.Context) (*VersionResult, error) {
	reply, err := c.command(ctx, cmdVersion)
	if err != nil {
		return nil, err
	}
	return parseVersionReply(reply)
}

// ScanFile scans data held in memory.
func (c *Client) ScanFile(ctx context.Context, data []byte) (*Verdict, error) {
	return c.ScanReader(ctx, bytes.NewReader(data))
}

// ScanFilePath streams a file from disk to clamd.
func (c *Client) ScanFilePath(ctx context.Context, filePath string) (*Verdict, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("failed to open file: %s", filePath), err)
	}
	defer func() { _ = f.Close() }()

	return c.ScanReader(ctx, f)
}

// ScanReader streams r to clamd with the INSTREAM command and returns the verdict.
//
// Each Read from r becomes exactly one frame, so r is never read ahead of what
// the backend connection has accepted. A read error from r aborts the stream
// without the terminating frame and is reported as a transport error.
func (c *Client) ScanReader(ctx context.Context, r io.Reader) (*Verdict, error) {
	s, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer s.close()

	if err := s.write([]byte(cmdInstream)); err != nil {
		return nil, transportError(ctx, "failed to send INSTREAM command", err)
	}

	frame := make([]byte, frameHeaderSize+c.chunkSize)
	for {
		n, readErr := r.Read(frame[frameHeaderSize:])
		if n > 0 {
			binary.BigEndian.PutUint32(frame[:frameHeaderSize], uint32(n))
			if err := s.write(frame[:frameHeaderSize+n]); err != nil {
				return nil, s.writeFailure(ctx, err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, NewTransportError("failed to read upload stream", readErr)
		}
	}

	// A zero-length frame ends the stream.
	if err := s.write(make([]byte, frameHeaderSize)); err != nil {
		return nil, s.writeFailure(ctx, err)
	}

	reply, err := s.readReply()
	if err != nil {
		return nil, transportError(ctx, "failed to read scan reply", err)
	}

	return parseScanReply(reply)
}

// command sends a single NUL-terminated command and returns the reply.
func (c *Client) command(ctx context.Context, cmd string) (string, error) {
	s, err := c.open(ctx)
	if err != nil {
		return "", err
	}
	defer s.close()

	if err := s.write([]byte(cmd)); err != nil {
		return "", transportError(ctx, "failed to send command", err)
	}

	reply, err := s.readReply()
	if err != nil {
		return "", transportError(ctx, "failed to read reply", err)
	}
	return reply, nil
}

// open dials clamd and ties the connection to ctx.
func (c *Client) open(ctx context.Context) (*session, error) {
	d := *c.dialer
	d.Timeout = c.dialTimeout

	conn, err := d.DialContext(ctx, c.network, c.address)
	if err != nil {
		return nil, classifyDialError(err)
	}

	return &session{
		conn:    conn,
		timeout: c.timeout,
		stop:    context.AfterFunc(ctx, func() { _ = conn.Close() }),
	}, nil
}

// session is one backend connection.
type session struct {
	conn    net.Conn
	timeout time.Duration
	stop    func() bool
}

func (s *session) close() {
	s.stop()
	_ = s.conn.Close()
}

func (s *session) write(p []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return err
	}
	_, err := s.conn.Write(p)
	return err
}

func (s *session) readReply() (string, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
		return "", err
	}
	return readReply(s.conn)
}

// writeFailure reports a failed write. clamd closes the connection after
// answering a rejected stream, so its reply is read when one is available.
func (s *session) writeFailure(ctx context.Context, err error) error {
	if ctx.Err() == nil {
		if reply, readErr := s.readReply(); readErr == nil {
			if _, parseErr := parseScanReply(reply); parseErr != nil {
				return parseErr
			}
		}
	}
	return transportError(ctx, "failed to stream data to clamd", err)
}

// readReply reads one NUL-terminated reply. A reply cut short by EOF is
// accepted as long as it is not empty.
func readReply(r io.Reader) (string, error) {
	br := bufio.NewReader(io.LimitReader(r, maxReplySize))
	reply, err := br.ReadString(0)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", err
		}
		if strings.TrimSpace(reply) == "" {
			return "", NewProtocolError("connection closed without a reply", "")
		}
	}
	return strings.TrimSpace(strings.TrimRight(reply, "\x00")), nil
}

// parseScanReply interprets an INSTREAM reply. With AllMatch enabled clamd
// reports one "stream: <signature> FOUND" line per match.
func parseScanReply(reply string) (*Verdict, error) {
	lines := splitReply(reply)
	if len(lines) == 0 {
		return nil, NewProtocolError("empty scan reply", reply)
	}

	var found []string
	clean := false
	for _, line := range lines {
		if strings.HasSuffix(line, " ERROR") {
			return nil, NewProtocolError("clamd reported an error", reply)
		}
		if !strings.HasPrefix(line, streamPrefix) {
			return nil, NewProtocolError("unexpected scan reply", reply)
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, streamPrefix))
		switch {
		case payload == "OK":
			clean = true
		case strings.HasSuffix(payload, " FOUND"):
			signature := strings.TrimSpace(strings.TrimSuffix(payload, " FOUND"))
			if signature == "" {
				return nil, NewProtocolError("FOUND reply without a signature", reply)
			}
			found = append(found, signature)
		default:
			return nil, NewProtocolError("unexpected scan reply", reply)
		}
	}

	if clean && len(found) > 0 {
		return nil, NewProtocolError("contradicting scan reply", reply)
	}
	if len(found) > 0 {
		v := Malignant(found...)
		return &v, nil
	}
	v := Benign()
	return &v, nil
}

func splitReply(reply string) []string {
	fields := strings.FieldsFunc(reply, func(r rune) bool {
		return r == 0 || r == '\n'
	})
	lines := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			lines = append(lines, f)
		}
	}
	return lines
}

// parseVersionReply splits "ClamAV 1.3.1/27401/Tue Sep 10 08:35:33 2024".
func parseVersionReply(reply string) (*VersionResult, error) {
	if !strings.HasPrefix(reply, "ClamAV ") {
		return nil, NewProtocolError("unexpected VERSION reply", reply)
	}

	parts := strings.SplitN(reply, "/", 3)
	result := &VersionResult{
		Raw:    reply,
		Engine: parts[0],
	}
	if len(parts) > 1 {
		result.Database = parts[1]
	}
	if len(parts) > 2 {
		result.DatabaseDate = parts[2]
	}
	return result, nil
}

// parseAddress maps the accepted address forms onto a dial network and address.
func parseAddress(address string) (string, string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", "", NewValidationError("backend address is required", nil)
	}

	if strings.Contains(address, "://") {
		u, err := url.Parse(address)
		if err != nil {
			return "", "", NewValidationError(fmt.Sprintf("invalid backend address: %s", address), err)
		}
		switch u.Scheme {
		case "unix":
			path := u.Host + u.Path
			if path == "" {
				return "", "", NewValidationError(fmt.Sprintf("unix address must include a socket path: %s", address), nil)
			}
			return "unix", path, nil
		case "tcp":
			address = u.Host
		default:
			return "", "", NewValidationError(fmt.Sprintf("unsupported address scheme %q", u.Scheme), nil)
		}
	}

	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return "", "", NewValidationError(fmt.Sprintf("invalid backend address: %s", address), err)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > 65535 {
		return "", "", NewValidationError(fmt.Sprintf("invalid backend port: %q", port), err)
	}

	return "tcp", net.JoinHostPort(host, port), nil
}

// classifyDialError maps dial failures to connection errors.
func classifyDialError(err error) error {
	if errors.Is(err, context.Canceled) {
		return NewConnectionError("dial canceled", err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return NewConnectionError("DNS resolution failed", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewConnectionError("dial timed out", err)
	}

	return NewConnectionError("connection failed", err)
}

// transportError wraps an I/O failure on an established connection. When ctx
// ended first, the context error is the reported cause.
func transportError(ctx context.Context, msg string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return NewTransportError(msg, ctxErr)
	}
	return NewTransportError(msg, err)
}
