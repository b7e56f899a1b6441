package grpchealth

import (
	"context"
	"net"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/example/agri-inference/internal/predictor"
	"github.com/example/agri-inference/internal/registry"
)

func startServer(t *testing.T, statuses []registry.Status) grpc.DialOption {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := New(statuses, zap.NewNop())
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Shutdown)

	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
}

func TestHealthReportsPerModelStatus(t *testing.T) {
	dialer := startServer(t, []registry.Status{
		{ID: registry.Crop, Kind: predictor.Classifier, Required: true, Available: true},
		{ID: registry.Yield, Kind: predictor.Regressor, Required: true, Available: true},
		{ID: registry.Disease, Kind: predictor.ImageClassifier, Reason: "missing catalog"},
	})
	ctx := context.Background()

	cases := map[string]healthpb.HealthCheckResponse_ServingStatus{
		"":        healthpb.HealthCheckResponse_SERVING,
		"crop":    healthpb.HealthCheckResponse_SERVING,
		"yield":   healthpb.HealthCheckResponse_SERVING,
		"disease": healthpb.HealthCheckResponse_NOT_SERVING,
	}
	for service, want := range cases {
		got, err := Check(ctx, "passthrough:///bufnet", service, zap.NewNop(), dialer)
		if err != nil {
			t.Fatalf("service %q: expected no error, got %v", service, err)
		}
		if got != want {
			t.Fatalf("service %q: expected %v, got %v", service, want, got)
		}
	}
}

func TestHealthOverallNotServingWhenRequiredModelMissing(t *testing.T) {
	dialer := startServer(t, []registry.Status{
		{ID: registry.Crop, Required: true, Available: false},
	})

	got, err := Check(context.Background(), "passthrough:///bufnet", "", zap.NewNop(), dialer)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %v", got)
	}
}

func TestHealthUnknownService(t *testing.T) {
	dialer := startServer(t, nil)

	_, err := Check(context.Background(), "passthrough:///bufnet", "weather", zap.NewNop(), dialer)
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestTargetFillsMissingHost(t *testing.T) {
	cases := map[string]string{
		":9090":          "localhost:9090",
		"10.0.0.5:9090":  "10.0.0.5:9090",
		"dns:///svc:443": "dns:///svc:443",
	}
	for in, want := range cases {
		if got := Target(in); got != want {
			t.Fatalf("Target(%q): expected %q, got %q", in, want, got)
		}
	}
}
