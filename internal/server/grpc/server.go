// Package grpc runs the gRPC health service of the storage server. Its
// serving status follows a readiness probe over the metadata store.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/lmsstorage/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported alongside the overall ("") status.
const ServiceName = "lmsstorage.Storage"

// Probe reports whether a dependency is usable.
type Probe func(ctx context.Context) error

type GRPCServer struct {
	address  string
	logger   logging.Logger
	probe    Probe
	interval time.Duration
	health   *health.Server
}

// NewGRPCServer builds the health server. probe may be nil, in which case the
// server always reports SERVING.
func NewGRPCServer(a string, l logging.Logger, probe Probe, interval time.Duration) *GRPCServer {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &GRPCServer{
		address:  a,
		logger:   l.With("module", "grpc_server"),
		probe:    probe,
		interval: interval,
		health:   health.NewServer(),
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)

	s.check(ctx)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.Info(ctx, "Stopping gRPC server...")
				s.health.Shutdown()
				srv.GracefulStop()
				return
			case <-ticker.C:
				s.check(ctx)
			}
		}
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}

// check runs the probe and publishes the result.
func (s *GRPCServer) check(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if s.probe != nil {
		pctx, cancel := context.WithTimeout(ctx, s.interval)
		err := s.probe(pctx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn(ctx, "readiness probe failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
