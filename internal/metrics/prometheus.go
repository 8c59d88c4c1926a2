package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Chunk upload outcomes
const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeSkipped   = "skipped"
)

// Metrics contains all Prometheus metrics for the live-call recorder.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Session metrics
	RecordingActive  prometheus.Gauge
	SessionsStarted  prometheus.Counter
	SessionsStopped  prometheus.Counter
	CallDuration     prometheus.Histogram
	CaptureFailures  *prometheus.CounterVec
	FinalizeRequests *prometheus.CounterVec
	FinalizeDuration prometheus.Histogram

	// Segment metrics
	SegmentsProduced prometheus.Counter
	SegmentSize      prometheus.Histogram
	SegmentDuration  prometheus.Histogram

	// Chunk analysis metrics
	ChunkUploads       *prometheus.CounterVec
	ChunkDuration      prometheus.Histogram
	ChunkUploadsActive prometheus.Gauge
	AlertsRaised       *prometheus.CounterVec

	// Notification metrics
	Notifications *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
	EventSubscribers    prometheus.Gauge
}

// NewMetricsWith creates and registers all metrics with reg
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RecordingActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "livecall_recording_active",
			Help: "1 while a call is being recorded",
		}),
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "livecall_sessions_started_total",
			Help: "Total number of recording sessions started",
		}),
		SessionsStopped: f.NewCounter(prometheus.CounterOpts{
			Name: "livecall_sessions_stopped_total",
			Help: "Total number of recording sessions stopped",
		}),
		CallDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "livecall_call_duration_seconds",
			Help:    "Recorded duration of calls",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10), // 5s to ~43 minutes
		}),
		CaptureFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livecall_capture_failures_total",
			Help: "Total number of failed capture starts",
		}, []string{"reason"}),
		FinalizeRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livecall_finalize_requests_total",
			Help: "Total number of end-of-call submissions",
		}, []string{"outcome"}),
		FinalizeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "livecall_finalize_duration_seconds",
			Help:    "Duration of end-of-call analysis requests",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4 minutes
		}),

		SegmentsProduced: f.NewCounter(prometheus.CounterOpts{
			Name: "livecall_segments_produced_total",
			Help: "Total number of audio segments cut",
		}),
		SegmentSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "livecall_segment_size_bytes",
			Help:    "Encoded size of audio segments",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		SegmentDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "livecall_segment_duration_seconds",
			Help:    "Audio duration of segments",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),

		ChunkUploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livecall_chunk_uploads_total",
			Help: "Chunk analysis uploads by outcome",
		}, []string{"outcome"}),
		ChunkDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "livecall_chunk_duration_seconds",
			Help:    "Duration of chunk analysis requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}),
		ChunkUploadsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "livecall_chunk_uploads_in_flight",
			Help: "Chunk uploads currently in flight",
		}),
		AlertsRaised: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livecall_alerts_total",
			Help: "Alerts raised by chunk analysis",
		}, []string{"kind"}),

		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livecall_notifications_total",
			Help: "Finalized-call notifications by notifier and outcome",
		}, []string{"notifier", "outcome"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livecall_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "livecall_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livecall_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
		EventSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "livecall_event_subscribers",
			Help: "Connected live event subscribers",
		}),
	}
}

// RecordSessionStarted marks a recording as active
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.RecordingActive.Set(1)
}

// RecordSessionStopped marks the recording inactive and records its duration
func (m *Metrics) RecordSessionStopped(durationSeconds float64) {
	if m == nil {
		return
	}
	m.SessionsStopped.Inc()
	m.RecordingActive.Set(0)
	m.CallDuration.Observe(durationSeconds)
}

// RecordCaptureFailure counts a capture start failure
func (m *Metrics) RecordCaptureFailure(reason string) {
	if m == nil {
		return
	}
	m.CaptureFailures.WithLabelValues(reason).Inc()
}

// RecordSegment records a produced segment
func (m *Metrics) RecordSegment(sizeBytes int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SegmentsProduced.Inc()
	m.SegmentSize.Observe(float64(sizeBytes))
	m.SegmentDuration.Observe(durationSeconds)
}

// RecordChunkSkipped counts a segment below the upload threshold
func (m *Metrics) RecordChunkSkipped() {
	if m == nil {
		return
	}
	m.ChunkUploads.WithLabelValues(OutcomeSkipped).Inc()
}

// ChunkStarted tracks an upload entering flight
func (m *Metrics) ChunkStarted() {
	if m == nil {
		return
	}
	m.ChunkUploadsActive.Inc()
}

// RecordChunk records a finished chunk upload
func (m *Metrics) RecordChunk(outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ChunkUploadsActive.Dec()
	m.ChunkUploads.WithLabelValues(outcome).Inc()
	m.ChunkDuration.Observe(durationSeconds)
}

// RecordAlerts counts merged alerts
func (m *Metrics) RecordAlerts(profanity int, anger bool) {
	if m == nil {
		return
	}
	if profanity > 0 {
		m.AlertsRaised.WithLabelValues("profanity").Add(float64(profanity))
	}
	if anger {
		m.AlertsRaised.WithLabelValues("anger").Inc()
	}
}

// RecordFinalize records an end-of-call submission
func (m *Metrics) RecordFinalize(outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.FinalizeRequests.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSkipped {
		m.FinalizeDuration.Observe(durationSeconds)
	}
}

// RecordNotification records the result of a notifier delivery
func (m *Metrics) RecordNotification(notifier string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailed
	}
	m.Notifications.WithLabelValues(notifier, outcome).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}

// SetEventSubscribers sets the number of connected event subscribers
func (m *Metrics) SetEventSubscribers(n int) {
	if m == nil {
		return
	}
	m.EventSubscribers.Set(float64(n))
}
