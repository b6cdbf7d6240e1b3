package main

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clamav "github.com/DevHatRo/clamav-gateway-go"
	"github.com/DevHatRo/clamav-gateway-go/internal/testutil"
)

func execute(ctx context.Context, stdin string, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func TestVersionCmd(t *testing.T) {
	// An invalid environment must not break version output.
	t.Setenv("CLAMAV_GATEWAY_LOG_LEVEL", "loud")

	out, _, err := execute(context.Background(), "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, appName+" "+Version)
}

func TestInvalidConfiguration(t *testing.T) {
	_, _, err := execute(context.Background(), "", "ping", "--chunk-size", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "chunk_size")
}

func TestScanCmd(t *testing.T) {
	clamd := testutil.NewMockClamd(t, testutil.WithVerdict(testutil.EicarVerdict))

	t.Run("clean file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "clean.txt")
		require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o600))

		out, _, err := execute(context.Background(), "", "scan", "--backend-address", clamd.Addr(), path)
		require.NoError(t, err)
		assert.JSONEq(t, `{"virus":null}`, out)
	})

	t.Run("infected stdin", func(t *testing.T) {
		out, _, err := execute(context.Background(), string(testutil.Eicar), "scan", "--backend-address", clamd.Addr())
		require.ErrorIs(t, err, errInfected)
		assert.JSONEq(t, `{"virus":["Eicar-Test-Signature"]}`, out)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := execute(context.Background(), "", "scan", "--backend-address", clamd.Addr(),
			filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, errInfected)
	})

	t.Run("backend down", func(t *testing.T) {
		out, _, err := execute(context.Background(), "data", "scan", "--backend-address", testutil.ClosedAddr(t))
		require.Error(t, err)
		assert.True(t, clamav.IsConnectionError(err), "expected connection error, got %v", err)
		assert.Empty(t, out)
	})
}

func TestPingCmd(t *testing.T) {
	clamd := testutil.NewMockClamd(t, testutil.WithVersion("ClamAV 1.4.0/27500/Mon Oct 14 08:00:00 2024"))

	out, _, err := execute(context.Background(), "", "ping", "--backend-address", clamd.Addr())
	require.NoError(t, err)
	assert.Contains(t, out, "PONG")
	assert.Contains(t, out, "ClamAV 1.4.0/27500")

	_, _, err = execute(context.Background(), "", "ping", "--backend-address", testutil.ClosedAddr(t))
	assert.Error(t, err)
}

func TestServe_ListenFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	_, _, err = execute(context.Background(), "", "serve", "--listen-address", busy.Addr().String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen on")
}

func TestServe_ScanAndShutdown(t *testing.T) {
	clamd := testutil.NewMockClamd(t, testutil.WithVerdict(testutil.EicarVerdict))
	addr := testutil.ClosedAddr(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, _, err := execute(ctx, "", "serve",
			"--listen-address", addr,
			"--backend-address", clamd.Addr(),
			"--health-interval", "50ms",
			"--shutdown-timeout", "5s")
		done <- err
	}()

	url := "http://" + addr
	require.Eventually(t, func() bool {
		resp, err := http.Get(url + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Post(url+"/scan", "application/octet-stream", bytes.NewReader(testutil.Eicar))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"virus":["Eicar-Test-Signature"]}`, body.String())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"service":"clamav-gateway"`)
	assert.Contains(t, out, `"pid":`)

	buf.Reset()
	setupLogger(&buf, "info", "text").Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}
