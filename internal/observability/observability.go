// Package observability provides Prometheus metrics, OpenTelemetry
// tracing, and health checks for chatwire. All components are optional
// and nil-safe — when disabled, call sites skip recording with a single
// nil check.
package observability

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jkaninda/chatwire/internal/config"
)

// Observability is the top-level facade holding all observability components.
// Any field may be nil when that feature is disabled.
type Observability struct {
	Metrics *MetricsCollector
	Tracer  *TracerSetup
	Health  *HealthChecker
}

// New creates an Observability instance from config.
// Returns nil when the config is nil (all features disabled).
func New(cfg *config.ObservabilityConfig, logger *slog.Logger) (*Observability, error) {
	if cfg == nil {
		return nil, nil
	}

	obs := &Observability{}

	if cfg.Metrics {
		obs.Metrics = NewMetricsCollector()
	}

	if cfg.Tracing != nil && cfg.Tracing.Enabled {
		ts, err := NewTracerSetup(cfg.Tracing)
		if err != nil {
			return nil, fmt.Errorf("initializing tracing: %w", err)
		}
		obs.Tracer = ts
	}

	// Health checker is always created; checks are added by the runner.
	obs.Health = NewHealthChecker(logger)

	return obs, nil
}

// MetricsCollectorOrNil returns the collector, tolerating a nil facade.
func (o *Observability) MetricsCollectorOrNil() *MetricsCollector {
	if o == nil {
		return nil
	}
	return o.Metrics
}

// TracerSetupOrNil returns the tracer setup, tolerating a nil facade.
func (o *Observability) TracerSetupOrNil() *TracerSetup {
	if o == nil {
		return nil
	}
	return o.Tracer
}

// Shutdown releases observability resources.
func (o *Observability) Shutdown(ctx context.Context) {
	if o == nil {
		return
	}
	_ = o.Tracer.Shutdown(ctx)
}
