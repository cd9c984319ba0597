// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/carvectf/canary/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker is the dependency the health endpoint reports on.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server wires HTTP routes for the scoring engine's surface.
type Server struct {
	healthHandler *HealthHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(checker HealthChecker) *Server {
	return &Server{
		healthHandler: NewHealthHandler(checker),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/api/health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
}
