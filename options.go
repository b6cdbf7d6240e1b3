package clamav

import (
	"net"
	"time"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultDialTimeout = 5 * time.Second
	defaultChunkSize   = 64 * 1024 // 64KB

	// maxChunkSize keeps a single INSTREAM frame well below clamd's default
	// StreamMaxLength so the backend never rejects a frame on its own.
	maxChunkSize = 8 * 1024 * 1024
)

// ClientOption configures the clamd client.
type ClientOption func(*Client)

// WithTimeout sets the deadline applied to each individual read or write on the
// backend connection. It bounds how long a scan may stall, not how long it may run.
// Non-positive durations are ignored (no-op).
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithDialTimeout sets the timeout for establishing the backend connection.
// Non-positive durations are ignored (no-op).
func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

// WithChunkSize sets the INSTREAM frame size (default: 64KB).
// Values outside (0, 8MB] are ignored.
func WithChunkSize(size int) ClientOption {
	return func(c *Client) {
		if size > 0 && size <= maxChunkSize {
			c.chunkSize = size
		}
	}
}

// WithDialer sets a custom *net.Dialer, for example to control keep-alives.
// The dial timeout option still applies on top of the dialer.
func WithDialer(d *net.Dialer) ClientOption {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}
