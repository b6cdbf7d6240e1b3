package health

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	defaultInterval = 15 * time.Second
	defaultTimeout  = 5 * time.Second

	gracefulStopTimeout = 5 * time.Second

	// ServiceName is the gRPC health service name reporting clamd reachability.
	// The empty service name reports the same status.
	ServiceName = "clamav.gateway.Scanner"
)

// Pinger probes the scanning backend. *clamav.Client satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor periodically pings the backend and publishes the result to the
// gRPC health service, to GET /healthz and to an optional observer.
type Monitor struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	observer func(healthy bool)

	server  *grpchealth.Server
	healthy atomic.Bool
	probed  atomic.Bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the probe interval (default 15s). Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithTimeout bounds a single probe (default 5s). Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogger sets the logger used for health transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithObserver registers a function called with the result of every probe.
func WithObserver(fn func(healthy bool)) Option {
	return func(m *Monitor) {
		m.observer = fn
	}
}

// NewMonitor creates a monitor for p. The backend counts as unhealthy until
// the first probe succeeds.
func NewMonitor(p Pinger, opts ...Option) *Monitor {
	m := &Monitor{
		pinger:   p,
		interval: defaultInterval,
		timeout:  defaultTimeout,
		logger:   slog.New(slog.DiscardHandler),
		server:   grpchealth.NewServer(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.publish(false)
	return m
}

// Healthy reports whether the last probe succeeded.
func (m *Monitor) Healthy() bool {
	return m.healthy.Load()
}

// Check runs one probe and publishes its result.
func (m *Monitor) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.pinger.Ping(ctx)
	healthy := err == nil

	first := !m.probed.Swap(true)
	was := m.healthy.Load()
	switch {
	case healthy && (first || !was):
		m.logger.Info("scanning backend is healthy")
	case !healthy && (first || was):
		m.logger.Warn("scanning backend is unhealthy", "error", err)
	}

	m.publish(healthy)
	return err
}

// Run probes immediately and then every interval until ctx is done. On return
// the gRPC health service reports NOT_SERVING.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	defer m.server.Shutdown()

	_ = m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = m.Check(ctx)
		}
	}
}

// RegisterGRPC registers the grpc.health.v1.Health service on s.
func (m *Monitor) RegisterGRPC(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, m.server)
}

// ServeGRPC serves the health service on l until ctx is done, then stops
// gracefully.
func (m *Monitor) ServeGRPC(ctx context.Context, l net.Listener) error {
	s := grpc.NewServer()
	m.RegisterGRPC(s)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve(l)
	}()

	select {
	case <-ctx.Done():
		// Watch streams never end on their own, so graceful stop is bounded.
		stopped := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(gracefulStopTimeout):
			s.Stop()
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (m *Monitor) publish(healthy bool) {
	m.healthy.Store(healthy)

	status := healthpb.HealthCheckResponse_NOT_SERVING
	if healthy {
		status = healthpb.HealthCheckResponse_SERVING
	}
	m.server.SetServingStatus("", status)
	m.server.SetServingStatus(ServiceName, status)

	if m.observer != nil {
		m.observer(healthy)
	}
}
