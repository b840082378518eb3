// Package statusapi serves the local operational endpoints: liveness,
// readiness, a connection status snapshot, and Prometheus metrics.
// It is meant to listen on loopback only.
package statusapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jkaninda/okapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/chatwire/internal/gateway"
	"github.com/jkaninda/chatwire/internal/observability"
)

// StatusFunc returns the current connection snapshot. The supervising
// runner swaps connections across reconnect attempts, so the server
// holds a closure instead of a connection.
type StatusFunc func() gateway.Status

// Config configures the status API server.
type Config struct {
	ListenAddr string // e.g., "127.0.0.1:8391"

	MetricsRegistry *prometheus.Registry
	HealthChecker   *observability.HealthChecker
	Metrics         *observability.MetricsCollector
	Tracer          trace.Tracer
}

// Server is the status API server.
type Server struct {
	config Config
	status StatusFunc
	logger *slog.Logger
	server *http.Server
	okapi  *okapi.Okapi
}

// New creates a status API server.
func New(cfg Config, status StatusFunc, logger *slog.Logger) *Server {
	return &Server{
		config: cfg,
		status: status,
		logger: logger,
		okapi:  okapi.New(),
	}
}

// HealthResponse is the liveness probe response.
type HealthResponse struct {
	Status string `json:"status"`
}

// Start launches the HTTP server and blocks until it exits or ctx is
// canceled.
func (s *Server) Start(ctx context.Context) error {
	if s.config.Metrics != nil || s.config.Tracer != nil {
		s.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return observability.HTTPMetricsMiddleware(s.config.Metrics, s.config.Tracer, next)
		})
	}

	s.okapi.Get("/healthz", s.handleLiveness)
	s.okapi.Get("/readyz", s.handleReadiness)
	s.okapi.Get("/status", s.handleStatus,
		okapi.DocSummary("Current gateway connection snapshot"),
		okapi.DocResponse(gateway.Status{}),
	)

	if s.config.MetricsRegistry != nil {
		s.okapi.HandleStd("GET", "/metrics",
			promhttp.HandlerFor(s.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}

	s.server = &http.Server{
		Addr:              s.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	s.logger.Info("status api starting", slog.String("addr", s.config.ListenAddr))
	return s.okapi.StartServer(s.server)
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("status api stopping")
	return s.okapi.Shutdown(s.server)
}

func (s *Server) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (s *Server) handleReadiness(c *okapi.Context) error {
	if s.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := s.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

func (s *Server) handleStatus(c *okapi.Context) error {
	return c.OK(s.status())
}
