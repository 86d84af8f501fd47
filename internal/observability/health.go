package observability

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// CheckFunc reports whether a dependency is usable
type CheckFunc func(ctx context.Context) error

// HealthChecker manages health checks for both gRPC and HTTP
type HealthChecker struct {
	grpcHealth    *health.Server
	logger        *zap.Logger
	mu            sync.RWMutex
	ready         bool
	consumerReady bool
	checks        map[string]CheckFunc
	timeout       time.Duration
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		grpcHealth: health.NewServer(),
		logger:     logger,
		ready:      true,
		checks:     make(map[string]CheckFunc),
		timeout:    2 * time.Second,
	}
}

// RegisterGRPC registers the health service with the gRPC server
func (h *HealthChecker) RegisterGRPC(s *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(s, h.grpcHealth)
	h.updateGRPC()
}

// AddCheck registers a dependency check run on every HTTP health request
func (h *HealthChecker) AddCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// SetConsumerReady sets whether the stream consumer is subscribed
func (h *HealthChecker) SetConsumerReady(ready bool) {
	h.mu.Lock()
	h.consumerReady = ready
	h.mu.Unlock()
	h.updateGRPC()
}

// Shutdown marks the service as not serving
func (h *HealthChecker) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.ready = false
	h.mu.Unlock()
	h.updateGRPC()
	return nil
}

func (h *HealthChecker) updateGRPC() {
	h.mu.RLock()
	serving := h.ready && h.consumerReady
	h.mu.RUnlock()

	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.grpcHealth.SetServingStatus("", status)
}

// Handler returns the HTTP /healthz handler
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(h.handleHealthz)
}

func (h *HealthChecker) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	ready := h.ready
	consumerReady := h.consumerReady
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	checks := make(map[string]CheckFunc, len(h.checks))
	for name, check := range h.checks {
		checks[name] = check
	}
	h.mu.RUnlock()

	if !ready || !consumerReady {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("NOT_READY"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sort.Strings(names)
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "NOT_READY: %s", name)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
