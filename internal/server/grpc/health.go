// Package grpcserver exposes the gRPC health service. The reported status follows the
// session cache connection.
package grpcserver

import (
	"github.com/and161185/ecoreport/internal/cache"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// CacheService is the health service name tracking the session cache.
const CacheService = "session-cache"

// Health publishes serving status for the whole server ("") and the session cache.
type Health struct {
	hs *health.Server
}

// NewHealth returns a Health reporting the server as serving and the cache as not serving
// until the first cache state arrives.
func NewHealth() *Health {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(CacheService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Health{hs: hs}
}

// SetCacheState maps a cache state to serving statuses. Usable as a cache.Supervisor listener.
// The server stays serving while the cache reconnects; it stops serving once reconnection
// has given up.
func (h *Health) SetCacheState(s cache.State) {
	switch s {
	case cache.StateConnected:
		h.hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		h.hs.SetServingStatus(CacheService, healthpb.HealthCheckResponse_SERVING)
	case cache.StateFailed:
		h.hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		h.hs.SetServingStatus(CacheService, healthpb.HealthCheckResponse_NOT_SERVING)
	default:
		h.hs.SetServingStatus(CacheService, healthpb.HealthCheckResponse_NOT_SERVING)
	}
}

// Shutdown marks everything not serving; in-flight Watch streams observe it.
func (h *Health) Shutdown() { h.hs.Shutdown() }

// NewServer builds a gRPC server with interceptors and the health service registered.
// Reflection is registered when dev is set.
func NewServer(log *zap.Logger, h *Health, dev bool, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(
			RecoverUnary(log),
			LoggingUnary(log),
		),
		grpc.ChainStreamInterceptor(
			RecoverStream(log),
			LoggingStream(log),
		),
	)
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, h.hs)
	if dev {
		reflection.Register(s)
	}
	return s
}
