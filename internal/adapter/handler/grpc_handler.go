package handler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the name reported by the gRPC health service.
const ServiceName = "campus.orders.v1.Orders"

// GRPCHandler publishes the standard gRPC health service and keeps its
// serving status in line with the dependency pings.
type GRPCHandler struct {
	health *health.Server
	checks map[string]Pinger

	stopOnce sync.Once
	stop     chan struct{}
}

func NewGRPCHandler(checks map[string]Pinger) *GRPCHandler {
	return &GRPCHandler{
		health: health.NewServer(),
		checks: checks,
		stop:   make(chan struct{}),
	}
}

func (h *GRPCHandler) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.health)
	reflection.Register(s)
}

// Check pings every dependency once and updates the serving status.
func (h *GRPCHandler) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for name, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			slog.Warn("dependency unhealthy", "dependency", name, "err", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
	return status
}

// Watch re-runs Check every interval until Shutdown.
func (h *GRPCHandler) Watch(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		h.Check(ctx)
		cancel()

		select {
		case <-h.stop:
			return
		case <-ticker.C:
		}
	}
}

// Shutdown marks every service NOT_SERVING and stops Watch.
func (h *GRPCHandler) Shutdown() {
	h.stopOnce.Do(func() {
		close(h.stop)
		h.health.Shutdown()
	})
}
