package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TF-SoftwareEmergentes/livecall/internal/analytics"
	"github.com/TF-SoftwareEmergentes/livecall/internal/config"
	"github.com/TF-SoftwareEmergentes/livecall/internal/metrics"
	"github.com/TF-SoftwareEmergentes/livecall/internal/session"
	"github.com/TF-SoftwareEmergentes/livecall/internal/version"
)

// HTTPServer exposes the recorder over a local HTTP API
type HTTPServer struct {
	server   *http.Server
	router   *mux.Router
	logger   *slog.Logger
	config   *config.Config
	sessions *session.Manager
	backend  *analytics.Client
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer

	startTime time.Time
}

// Option customizes an HTTPServer
type Option func(*HTTPServer)

// WithGatherer serves /metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *HTTPServer) { h.gatherer = g }
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(logger *slog.Logger, appConfig *config.Config, sessions *session.Manager,
	backend *analytics.Client, m *metrics.Metrics, opts ...Option) *HTTPServer {

	h := &HTTPServer{
		router:    mux.NewRouter(),
		logger:    logger.With(slog.String("component", "http")),
		config:    appConfig,
		sessions:  sessions,
		backend:   backend,
		metrics:   m,
		gatherer:  prometheus.DefaultGatherer,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.setupRoutes()

	h.server = &http.Server{
		Addr:        appConfig.HTTP.Addr(),
		Handler:     h.router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
		// finalize blocks for up to the backend's end-call timeout
		WriteTimeout: appConfig.Backend.GetFinalizeTimeoutDuration() + 10*time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes() {
	r := h.router

	r.HandleFunc("/health", h.withMetrics("/health", h.handleHealth)).Methods(http.MethodGet)

	// Session control
	r.HandleFunc("/session", h.withMetrics("/session", h.handleSession)).Methods(http.MethodGet)
	r.HandleFunc("/session/start", h.withMetrics("/session/start", h.handleStart)).Methods(http.MethodPost)
	r.HandleFunc("/session/stop", h.withMetrics("/session/stop", h.handleStop)).Methods(http.MethodPost)
	r.HandleFunc("/session/finalize", h.withMetrics("/session/finalize", h.handleFinalize)).Methods(http.MethodPost)
	r.HandleFunc("/session/reset", h.withMetrics("/session/reset", h.handleReset)).Methods(http.MethodPost)
	r.HandleFunc("/session/audio", h.withMetrics("/session/audio", h.handleAudio)).Methods(http.MethodGet)
	r.HandleFunc("/session/events", h.handleEvents).Methods(http.MethodGet)

	// Backend pass-through for the dashboard
	r.HandleFunc("/records", h.withMetrics("/records", h.handleRecords)).Methods(http.MethodGet)
	r.HandleFunc("/records/{id}", h.withMetrics("/records/{id}", h.handleRecord)).Methods(http.MethodGet)
	r.HandleFunc("/statistics", h.withMetrics("/statistics", h.handleStatistics)).Methods(http.MethodGet)

	r.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats)).Methods(http.MethodGet)

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.HandleFunc("/", h.withMetrics("/", h.handleRoot)).Methods(http.MethodGet)
}

// Handler returns the routed handler, for embedding and tests.
func (h *HTTPServer) Handler() http.Handler {
	return h.router
}

// Addr returns the listen address.
func (h *HTTPServer) Addr() string {
	return h.server.Addr
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := h.sessions.Snapshot()
	clientStats := h.backend.GetStats()

	health := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]any{
			"name":    "livecall",
			"version": version.Version,
		},
		"components": map[string]any{
			"session": map[string]any{
				"status":     st.Status,
				"session_id": st.SessionID,
				"duration":   st.Duration,
				"segments":   st.SegmentCount,
			},
			"backend": map[string]any{
				"base_url":        h.backend.BaseURL(),
				"total_requests":  clientStats.TotalRequests,
				"success_rate":    clientStats.SuccessRate,
				"active_requests": clientStats.ActiveRequests,
			},
		},
	}

	writeJSON(w, http.StatusOK, health)
}

// handleSession implements GET /session
func (h *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.Snapshot())
}

// handleStart implements POST /session/start
func (h *HTTPServer) handleStart(w http.ResponseWriter, r *http.Request) {
	st, err := h.sessions.Start(r.Context())
	if err != nil {
		var cerr *session.CaptureError
		switch {
		case errors.Is(err, session.ErrSessionActive):
			writeError(w, http.StatusConflict, err.Error())
		case errors.As(err, &cerr):
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error":  err.Error(),
				"reason": cerr.Reason(),
			})
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleStop implements POST /session/stop
func (h *HTTPServer) handleStop(w http.ResponseWriter, r *http.Request) {
	st, err := h.sessions.Stop()
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// finalizeRequest is the optional body of POST /session/finalize
type finalizeRequest struct {
	AgentEmail string `json:"agent_email"`
	AgentName  string `json:"agent_name"`
}

// handleFinalize implements POST /session/finalize. Operator fields missing
// from the body fall back to the configured operator.
func (h *HTTPServer) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	op := analytics.Operator{Email: h.config.Operator.Email, Name: h.config.Operator.Name}
	if v := strings.TrimSpace(req.AgentEmail); v != "" {
		op.Email = v
	}
	if v := strings.TrimSpace(req.AgentName); v != "" {
		op.Name = v
	}

	report, err := h.sessions.Finalize(r.Context(), op)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidState):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, session.ErrNoSegments):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.logger.Warn("Finalize request failed", slog.String("error", err.Error()))
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"result":  report,
		"session": h.sessions.Snapshot(),
	})
}

// handleReset implements POST /session/reset
func (h *HTTPServer) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Reset(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.sessions.Snapshot())
}

// handleAudio implements GET /session/audio
func (h *HTTPServer) handleAudio(w http.ResponseWriter, r *http.Request) {
	data, err := h.sessions.Audio()
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	name := "call.wav"
	if id := h.sessions.Snapshot().SessionID; id != "" {
		name = "call-" + id + ".wav"
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Write(data)
}

// backendError maps a backend failure onto a response
func (h *HTTPServer) backendError(w http.ResponseWriter, err error) {
	if errors.Is(err, analytics.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Warn("Backend request failed", slog.String("error", err.Error()))
	writeError(w, http.StatusBadGateway, err.Error())
}

// handleRecords implements GET /records
func (h *HTTPServer) handleRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := analytics.RecordsQuery{AgentEmail: q.Get("agent_email")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		query.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		query.Offset = n
	}

	var records []analytics.Record
	var err error
	switch channel := q.Get("channel"); channel {
	case "":
		records, err = h.backend.ListRecords(r.Context(), query)
	case "caller", "client":
		records, err = h.backend.ListChannelRecords(r.Context(), channel, query)
	default:
		writeError(w, http.StatusBadRequest, "channel must be caller or client")
		return
	}
	if err != nil {
		h.backendError(w, err)
		return
	}
	if records == nil {
		records = []analytics.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// handleRecord implements GET /records/{id}
func (h *HTTPServer) handleRecord(w http.ResponseWriter, r *http.Request) {
	result, err := h.backend.GetRecord(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.backendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleStatistics implements GET /statistics
func (h *HTTPServer) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.backend.Statistics(r.Context())
	if err != nil {
		h.backendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	st := h.sessions.Snapshot()

	stats := map[string]any{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"session": map[string]any{
			"status":           st.Status,
			"segments":         st.SegmentCount,
			"audio_bytes":      st.AudioBytes,
			"chunks":           st.ChunkCount,
			"chunks_skipped":   st.ChunksSkipped,
			"chunks_failed":    st.ChunksFailed,
			"chunks_cancelled": st.ChunksCancelled,
			"alert_count":      st.AlertCount,
			"capture":          st.Capture,
		},
		"backend":           h.backend.GetStats(),
		"event_subscribers": h.sessions.Events().Subscribers(),
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]any{
		"service": "livecall",
		"version": version.Version,
		"endpoints": map[string]string{
			"GET /":                  "API documentation",
			"GET /health":            "Service health check",
			"GET /session":           "Current call state",
			"POST /session/start":    "Start recording",
			"POST /session/stop":     "Stop recording",
			"POST /session/finalize": "Submit the stopped call for the final report",
			"POST /session/reset":    "Discard the stopped or finalized call",
			"GET /session/audio":     "Download the call recording",
			"GET /session/events":    "Live event feed (websocket)",
			"GET /records":           "Stored call history",
			"GET /records/{id}":      "Stored call analysis",
			"GET /statistics":        "History statistics",
			"GET /stats":             "Recorder statistics",
			"GET /metrics":           "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}
