package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the name the protocol host reports under, alongside the
// empty overall service name.
const HealthService = "deficore.Protocol"

// HealthServer exposes grpc.health.v1.Health for orchestrators.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
	logger *slog.Logger
}

func NewHealthServer(logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(otelgrpc.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(otelgrpc.StreamServerInterceptor()),
	)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, hs)
	return &HealthServer{server: server, health: hs, logger: logger}
}

// SetServing flips the reported status for every service name.
func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(HealthService, status)
}

// Serve blocks until ctx is cancelled.
func (h *HealthServer) Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	serveErr := make(chan error, 1)
	go func() {
		h.logger.Info("grpc health listening", slog.String("addr", listener.Addr().String()))
		serveErr <- h.server.Serve(listener)
	}()
	select {
	case <-ctx.Done():
		h.health.Shutdown()
		h.server.GracefulStop()
		return nil
	case err := <-serveErr:
		return err
	}
}
