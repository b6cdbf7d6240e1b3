package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	clamav "github.com/DevHatRo/clamav-gateway-go"
)

// Scanner streams a payload to the scanning backend and returns its verdict.
// Implementations must be safe for concurrent use. *clamav.Client satisfies it.
type Scanner interface {
	ScanReader(ctx context.Context, r io.Reader) (*clamav.Verdict, error)
}

// Versioner is implemented by scanners that can report the backend version.
// When the scanner implements it, the gateway serves GET /version.
type Versioner interface {
	Version(ctx context.Context) (*clamav.VersionResult, error)
}

// HealthReporter reports the backend health as of the last probe.
type HealthReporter interface {
	Healthy() bool
}

// Gateway is the process-wide state shared by all request handlers. It is
// built once at startup and never modified afterwards.
type Gateway struct {
	scanner      Scanner
	logger       *slog.Logger
	metrics      *Metrics
	health       HealthReporter
	maxBodyBytes int64
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger for access and scan logs.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics enables request and scan metrics and serves them on GET /metrics.
func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithHealthReporter backs GET /healthz with a backend health probe. Without
// one, /healthz only reports that the process is serving.
func WithHealthReporter(h HealthReporter) Option {
	return func(g *Gateway) {
		g.health = h
	}
}

// WithMaxBodyBytes rejects request bodies larger than n bytes with 413.
// Zero or a negative value accepts bodies of any size.
func WithMaxBodyBytes(n int64) Option {
	return func(g *Gateway) {
		if n < 0 {
			n = 0
		}
		g.maxBodyBytes = n
	}
}

// New creates a gateway in front of scanner.
func New(scanner Scanner, opts ...Option) *Gateway {
	g := &Gateway{
		scanner: scanner,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Handler returns the HTTP handler with all routes and middleware installed.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /scan", g.instrument("/scan", g.handleScan))
	mux.HandleFunc("GET /healthz", g.instrument("/healthz", g.handleHealth))
	if v, ok := g.scanner.(Versioner); ok {
		mux.HandleFunc("GET /version", g.instrument("/version", g.handleVersion(v)))
	}
	if g.metrics != nil {
		mux.Handle("GET /metrics", g.metrics.Handler())
	}

	return withRequestID(withAccessLog(g.logger, mux))
}
