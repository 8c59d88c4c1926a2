package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordSessionStarted()
	m.RecordChunk(OutcomeSuccess, 0.1)
	m.RecordNotification("webhook", nil)
	m.SetEventSubscribers(2)
}

func TestChunkOutcomes(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.ChunkStarted()
	m.ChunkStarted()
	m.RecordChunk(OutcomeSuccess, 0.2)
	m.RecordChunk(OutcomeCancelled, 0.1)
	m.RecordChunkSkipped()

	if got := testutil.ToFloat64(m.ChunkUploads.WithLabelValues(OutcomeSuccess)); got != 1 {
		t.Errorf("Expected 1 success, got %f", got)
	}
	if got := testutil.ToFloat64(m.ChunkUploads.WithLabelValues(OutcomeSkipped)); got != 1 {
		t.Errorf("Expected 1 skipped, got %f", got)
	}
	if got := testutil.ToFloat64(m.ChunkUploadsActive); got != 0 {
		t.Errorf("Expected no uploads in flight, got %f", got)
	}
}

func TestSessionLifecycle(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.RecordSessionStarted()
	if got := testutil.ToFloat64(m.RecordingActive); got != 1 {
		t.Errorf("Expected active recording, got %f", got)
	}
	m.RecordSessionStopped(12)
	if got := testutil.ToFloat64(m.RecordingActive); got != 0 {
		t.Errorf("Expected inactive recording, got %f", got)
	}

	m.RecordAlerts(2, true)
	if got := testutil.ToFloat64(m.AlertsRaised.WithLabelValues("profanity")); got != 2 {
		t.Errorf("Expected 2 profanity alerts, got %f", got)
	}

	m.RecordNotification("redis", errors.New("down"))
	if got := testutil.ToFloat64(m.Notifications.WithLabelValues("redis", OutcomeFailed)); got != 1 {
		t.Errorf("Expected failed notification, got %f", got)
	}
}

func TestSeparateRegistries(t *testing.T) {
	// Registering twice against fresh registries must not panic.
	NewMetricsWith(prometheus.NewRegistry())
	NewMetricsWith(prometheus.NewRegistry())
}
