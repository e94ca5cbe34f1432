package server

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// WorkerService is the gRPC health service name tracking the worker loop.
const WorkerService = "docqueue.Worker"

// Probe reports the health of one part of the process.
type Probe func() bool

// Health publishes docqueue liveness over the standard gRPC health protocol.
// The overall status ("") follows ready, WorkerService follows worker.
type Health struct {
	hs     *health.Server
	ready  Probe
	worker Probe
}

// NewHealth creates a Health reporter. Call Update or Run to publish.
func NewHealth(ready, worker Probe) *Health {
	h := &Health{hs: health.NewServer(), ready: ready, worker: worker}
	h.Update()
	return h
}

// Register adds the health service and reflection to gs.
func (h *Health) Register(gs *grpc.Server) {
	healthpb.RegisterHealthServer(gs, h.hs)
	reflection.Register(gs)
}

// Server returns the underlying health server.
func (h *Health) Server() healthpb.HealthServer {
	return h.hs
}

// Update publishes the current probe results.
func (h *Health) Update() {
	h.hs.SetServingStatus("", servingStatus(h.ready()))
	h.hs.SetServingStatus(WorkerService, servingStatus(h.worker()))
}

// Run updates the statuses every interval until ctx ends, then marks
// everything NOT_SERVING.
func (h *Health) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.hs.Shutdown()
			return
		case <-ticker.C:
			h.Update()
		}
	}
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
