package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for chatwire.
// Uses a custom registry — no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Gateway metrics.
	FramesReceivedTotal   *prometheus.CounterVec
	FramesSentTotal       *prometheus.CounterVec
	FramesDroppedTotal    prometheus.Counter
	EventsDispatchedTotal *prometheus.CounterVec
	DispatchDroppedTotal  *prometheus.CounterVec
	HeartbeatLatency      prometheus.Gauge
	HeartbeatRTT          prometheus.Histogram
	ConnectsTotal         *prometheus.CounterVec
	SessionsInvalidated   prometheus.Counter

	// Task pool metrics.
	PoolQueueDepth   prometheus.Gauge
	PoolTasksTotal   *prometheus.CounterVec
	PoolTasksDropped prometheus.Counter

	// REST client metrics.
	RESTRequestsTotal   *prometheus.CounterVec
	RESTRequestDuration *prometheus.HistogramVec

	// Status API metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	ActiveRequests      prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		FramesReceivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatwire",
			Subsystem: "gateway",
			Name:      "frames_received_total",
			Help:      "Total frames received from the gateway, by opcode.",
		}, []string{"opcode"}),

		FramesSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatwire",
			Subsystem: "gateway",
			Name:      "frames_sent_total",
			Help:      "Total frames written to the gateway, by opcode.",
		}, []string{"opcode"}),

		FramesDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatwire",
			Subsystem: "gateway",
			Name:      "frames_dropped_total",
			Help:      "Malformed frames dropped by the consumer.",
		}),

		EventsDispatchedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatwire",
			Subsystem: "gateway",
			Name:      "events_dispatched_total",
			Help:      "Callback submissions per event type.",
		}, []string{"event"}),

		DispatchDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatwire",
			Subsystem: "gateway",
			Name:      "dispatch_dropped_total",
			Help:      "Callback submissions rejected by the task pool.",
		}, []string{"event"}),

		HeartbeatLatency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatwire",
			Subsystem: "gateway",
			Name:      "heartbeat_latency_ms",
			Help:      "Last observed heartbeat round-trip in milliseconds.",
		}),

		HeartbeatRTT: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chatwire",
			Subsystem: "gateway",
			Name:      "heartbeat_rtt_seconds",
			Help:      "Heartbeat round-trip distribution.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		ConnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatwire",
			Subsystem: "gateway",
			Name:      "connects_total",
			Help:      "Connection attempts, by result.",
		}, []string{"result"}),

		SessionsInvalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatwire",
			Subsystem: "gateway",
			Name:      "sessions_invalidated_total",
			Help:      "Sessions terminated by a server InvalidSession frame.",
		}),

		PoolQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatwire",
			Subsystem: "pool",
			Name:      "queue_depth",
			Help:      "Tasks queued and not yet started.",
		}),

		PoolTasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatwire",
			Subsystem: "pool",
			Name:      "tasks_total",
			Help:      "Tasks executed, by outcome.",
		}, []string{"status"}),

		PoolTasksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatwire",
			Subsystem: "pool",
			Name:      "tasks_dropped_total",
			Help:      "Tasks rejected because the queue was full.",
		}),

		RESTRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatwire",
			Subsystem: "rest",
			Name:      "requests_total",
			Help:      "Total REST API requests.",
		}, []string{"method", "endpoint", "status"}),

		RESTRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatwire",
			Subsystem: "rest",
			Name:      "request_duration_seconds",
			Help:      "REST API request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatwire",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total status API requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatwire",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Status API request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatwire",
			Name:      "active_requests",
			Help:      "Status API requests currently in flight.",
		}),
	}

	reg.MustRegister(
		m.FramesReceivedTotal,
		m.FramesSentTotal,
		m.FramesDroppedTotal,
		m.EventsDispatchedTotal,
		m.DispatchDroppedTotal,
		m.HeartbeatLatency,
		m.HeartbeatRTT,
		m.ConnectsTotal,
		m.SessionsInvalidated,
		m.PoolQueueDepth,
		m.PoolTasksTotal,
		m.PoolTasksDropped,
		m.RESTRequestsTotal,
		m.RESTRequestDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRequests,
	)

	return m
}

// Task pool reporting hooks. Nil-safe so an unmetered pool costs one check.

// TaskQueued records a task entering the queue.
func (m *MetricsCollector) TaskQueued() {
	if m == nil {
		return
	}
	m.PoolQueueDepth.Inc()
}

// TaskStarted records a worker picking a task up.
func (m *MetricsCollector) TaskStarted() {
	if m == nil {
		return
	}
	m.PoolQueueDepth.Dec()
}

// TaskFinished records task completion.
func (m *MetricsCollector) TaskFinished(panicked bool) {
	if m == nil {
		return
	}
	status := "ok"
	if panicked {
		status = "panic"
	}
	m.PoolTasksTotal.WithLabelValues(status).Inc()
}

// TaskDropped records a rejected submission.
func (m *MetricsCollector) TaskDropped() {
	if m == nil {
		return
	}
	m.PoolTasksDropped.Inc()
}
