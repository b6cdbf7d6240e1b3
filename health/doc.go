// Package health tracks whether the clamd backend is reachable.
//
// A Monitor pings clamd on an interval and publishes the result through the
// standard grpc.health.v1.Health service, so orchestrators can probe the
// gateway with grpc_health_probe, and through Healthy for GET /healthz.
package health
