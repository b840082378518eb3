package observability

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func findFamily(t *testing.T, families []*dto.MetricFamily, name string) *dto.MetricFamily {
	t.Helper()
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric family %q not found", name)
	return nil
}

func TestMetricsRegisteredAndCounted(t *testing.T) {
	m := NewMetricsCollector()

	m.FramesReceivedTotal.WithLabelValues("dispatch").Inc()
	m.FramesReceivedTotal.WithLabelValues("dispatch").Inc()
	m.HeartbeatLatency.Set(42)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	frames := findFamily(t, families, "chatwire_gateway_frames_received_total")
	if got := frames.GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("frames_received_total = %v, want 2", got)
	}

	latency := findFamily(t, families, "chatwire_gateway_heartbeat_latency_ms")
	if got := latency.GetMetric()[0].GetGauge().GetValue(); got != 42 {
		t.Errorf("heartbeat_latency_ms = %v, want 42", got)
	}
}

func TestTaskHooksNilSafe(t *testing.T) {
	var m *MetricsCollector
	m.TaskQueued()
	m.TaskStarted()
	m.TaskFinished(false)
	m.TaskDropped()
}

func TestTaskHooksTrackQueueDepth(t *testing.T) {
	m := NewMetricsCollector()
	m.TaskQueued()
	m.TaskQueued()
	m.TaskStarted()
	m.TaskFinished(true)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	depth := findFamily(t, families, "chatwire_pool_queue_depth")
	if got := depth.GetMetric()[0].GetGauge().GetValue(); got != 1 {
		t.Errorf("queue_depth = %v, want 1", got)
	}

	tasks := findFamily(t, families, "chatwire_pool_tasks_total")
	metric := tasks.GetMetric()
	if len(metric) != 1 || metric[0].GetLabel()[0].GetValue() != "panic" {
		t.Fatalf("unexpected tasks_total metrics: %v", metric)
	}
	if got := metric[0].GetCounter().GetValue(); got != 1 {
		t.Errorf("tasks_total{panic} = %v, want 1", got)
	}
}
