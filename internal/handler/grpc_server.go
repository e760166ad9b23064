package handler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GRPCOptions configures the gRPC server
type GRPCOptions struct {
	Reflection bool
	DemoMode   bool
}

// NewGRPCServer builds a server with the inventory service, the standard
// health service and optional reflection. Interceptors run outermost first:
// recovery, context, logging, error mapping.
func NewGRPCServer(h *GRPCHandler, opts GRPCOptions, log zerolog.Logger) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		recoveryInterceptor(log),
		contextInterceptor(opts.DemoMode),
		loggingInterceptor(log),
		errorInterceptor,
	))

	RegisterInventoryServer(srv, h)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	if opts.Reflection {
		reflection.Register(srv)
	}
	return srv, hs
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// WatchHealth flips the health status to NOT_SERVING while p fails. It
// returns when ctx is done.
func WatchHealth(ctx context.Context, hs *health.Server, p Pinger, interval time.Duration, log zerolog.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	serving := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pingCtx, cancel := context.WithTimeout(ctx, interval)
		err := p.Ping(pingCtx)
		cancel()

		switch {
		case err != nil && serving:
			log.Warn().Err(err).Msg("Dependency unhealthy, reporting NOT_SERVING")
			hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
			serving = false
		case err == nil && !serving:
			log.Info().Msg("Dependency recovered, reporting SERVING")
			hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
			hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
			serving = true
		}
	}
}
