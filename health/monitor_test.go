package health

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	clamav "github.com/DevHatRo/clamav-gateway-go"
	"github.com/DevHatRo/clamav-gateway-go/internal/testutil"
)

const bufSize = 1024 * 1024

type stubPinger struct {
	mu    sync.Mutex
	err   error
	calls atomic.Int32
}

func (p *stubPinger) Ping(context.Context) error {
	p.calls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *stubPinger) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func TestMonitor_UnhealthyUntilFirstProbe(t *testing.T) {
	m := NewMonitor(&stubPinger{})
	assert.False(t, m.Healthy())
}

func TestMonitor_Check(t *testing.T) {
	pinger := &stubPinger{}
	var observed []bool
	m := NewMonitor(pinger, WithObserver(func(healthy bool) {
		observed = append(observed, healthy)
	}))

	require.NoError(t, m.Check(context.Background()))
	assert.True(t, m.Healthy())

	pinger.setErr(errors.New("connection refused"))
	require.Error(t, m.Check(context.Background()))
	assert.False(t, m.Healthy())

	// Initial publish plus one per probe.
	assert.Equal(t, []bool{false, true, false}, observed)
}

func TestMonitor_CheckAgainstClamd(t *testing.T) {
	clamd := testutil.NewMockClamd(t)
	client, err := clamav.NewClient(clamd.Addr())
	require.NoError(t, err)

	m := NewMonitor(client)
	require.NoError(t, m.Check(context.Background()))
	assert.True(t, m.Healthy())

	down, err := clamav.NewClient(testutil.ClosedAddr(t))
	require.NoError(t, err)

	m = NewMonitor(down)
	err = m.Check(context.Background())
	assert.True(t, clamav.IsConnectionError(err), "expected connection error, got %v", err)
	assert.False(t, m.Healthy())
}

func TestMonitor_RunProbesOnInterval(t *testing.T) {
	pinger := &stubPinger{}
	m := NewMonitor(pinger, WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return pinger.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, m.Healthy())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMonitor_GRPCHealth(t *testing.T) {
	pinger := &stubPinger{}
	m := NewMonitor(pinger)

	lis := bufconn.Listen(bufSize)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- m.ServeGRPC(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(ServiceName))

	require.NoError(t, m.Check(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(ServiceName))

	pinger.setErr(errors.New("down"))
	_ = m.Check(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(ServiceName))

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("ServeGRPC did not return after cancel")
	}
}

func TestOptions_IgnoreNonPositive(t *testing.T) {
	m := NewMonitor(&stubPinger{}, WithInterval(0), WithTimeout(-time.Second), WithLogger(nil))
	assert.Equal(t, defaultInterval, m.interval)
	assert.Equal(t, defaultTimeout, m.timeout)
	assert.NotNil(t, m.logger)
}
