package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/DevHatRo/clamav-gateway-go/gateway"
	"github.com/DevHatRo/clamav-gateway-go/health"
	"github.com/DevHatRo/clamav-gateway-go/internal/config"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
)

func newServeCmd(a *app) *cobra.Command {
	d := config.Default()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scan gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}

	f := cmd.Flags()
	f.String("listen-address", d.ListenAddress, "HTTP listen address")
	f.Int64("max-body-bytes", d.MaxBodyBytes, "reject uploads larger than this with 413 (0 disables the limit)")
	f.String("grpc-health-address", d.GRPCHealthAddress, "gRPC health service address (empty disables it)")
	f.Duration("health-interval", d.HealthInterval, "interval between clamd health probes")
	f.Duration("shutdown-timeout", d.ShutdownTimeout, "graceful shutdown timeout")
	return cmd
}

// serve runs the HTTP server, the backend health monitor and the optional gRPC
// health server until ctx is done or one of them fails.
func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	logger := a.logger

	client, err := a.newClient()
	if err != nil {
		return err
	}

	metrics := gateway.NewMetrics()
	monitor := health.NewMonitor(client,
		health.WithInterval(cfg.HealthInterval),
		health.WithTimeout(cfg.BackendTimeout),
		health.WithLogger(logger),
		health.WithObserver(metrics.SetBackendUp),
	)
	gw := gateway.New(client,
		gateway.WithLogger(logger),
		gateway.WithMetrics(metrics),
		gateway.WithHealthReporter(monitor),
		gateway.WithMaxBodyBytes(cfg.MaxBodyBytes),
	)

	lis, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddress, err)
	}

	var grpcLis net.Listener
	if cfg.GRPCHealthAddress != "" {
		grpcLis, err = net.Listen("tcp", cfg.GRPCHealthAddress)
		if err != nil {
			_ = lis.Close()
			return fmt.Errorf("listen on %s: %w", cfg.GRPCHealthAddress, err)
		}
	}

	srv := &http.Server{
		Handler:           gw.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	host, port, _ := net.SplitHostPort(lis.Addr().String())
	logger.Info("starting server",
		"ip", host,
		"port", port,
		"backend", client.Address(),
		"max_body_bytes", cfg.MaxBodyBytes,
		"chunk_size", cfg.ChunkSize)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return monitor.Run(gctx)
	})

	if grpcLis != nil {
		logger.Info("serving gRPC health", "address", grpcLis.Addr().String())
		g.Go(func() error {
			if err := monitor.ServeGRPC(gctx, grpcLis); err != nil {
				return fmt.Errorf("grpc health server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "timeout", cfg.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
