// Package grpchealth publishes per-model serving status over the standard
// grpc.health.v1 service.
package grpchealth

import (
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/example/agri-inference/internal/registry"
)

// Server is a gRPC server carrying only the health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// New registers one service per model plus the overall "" service, which
// serves while every required model is available.
func New(statuses []registry.Status, logger *zap.Logger) *Server {
	s := &Server{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		logger: logger.Named("grpc_health"),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)

	overall := healthpb.HealthCheckResponse_SERVING
	for _, st := range statuses {
		status := healthpb.HealthCheckResponse_SERVING
		if !st.Available {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			if st.Required {
				overall = healthpb.HealthCheckResponse_NOT_SERVING
			}
		}
		s.health.SetServingStatus(string(st.ID), status)
	}
	s.health.SetServingStatus("", overall)
	return s
}

// Serve blocks accepting connections on lis.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC health listening", zap.String("addr", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

// Shutdown marks every service NOT_SERVING and drains in-flight calls.
func (s *Server) Shutdown() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
