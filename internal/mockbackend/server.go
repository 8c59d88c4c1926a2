package mockbackend

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/TF-SoftwareEmergentes/livecall/internal/analytics"
)

// SilenceBelow is the payload size under which a chunk is reported as
// silence.
const SilenceBelow = 200

// Request is a backend call as the mock received it
type Request struct {
	Method     string
	Path       string
	Query      map[string]string
	Fields     map[string]string
	Filename   string
	AudioBytes int
	Audio      []byte
	ReceivedAt time.Time
}

// Options tune the canned responses
type Options struct {
	// Profanity and Anger are reported as alerts on every chunk with speech.
	Profanity []string
	Anger     bool
	// Latency delays every response.
	Latency time.Duration
}

// Server is an in-process stand-in for the feeling-analytics backend
type Server struct {
	opts   Options
	logger *slog.Logger
	router *mux.Router

	mu       sync.Mutex
	requests []Request
	records  []stored
	failures map[string][]int
	chunks   int
}

type stored struct {
	record analytics.Record
	result analytics.SentimentAnalysisResult
}

// New creates a mock backend
func New(logger *slog.Logger, opts Options) *Server {
	s := &Server{
		opts:     opts,
		logger:   logger.With(slog.String("component", "mock-backend")),
		router:   mux.NewRouter(),
		failures: make(map[string][]int),
	}

	s.router.HandleFunc(analytics.PathAnalyzeChunk, s.handleAnalyzeChunk).Methods(http.MethodPost)
	s.router.HandleFunc(analytics.PathEndCall, s.handleEndCall).Methods(http.MethodPost)
	s.router.HandleFunc(analytics.PathAnalyze, s.handleAnalyze).Methods(http.MethodPost)
	s.router.HandleFunc(analytics.PathRecords, s.handleRecords("")).Methods(http.MethodGet)
	s.router.HandleFunc(analytics.PathCallerRecords, s.handleRecords("caller")).Methods(http.MethodGet)
	s.router.HandleFunc(analytics.PathClientRecords, s.handleRecords("client")).Methods(http.MethodGet)
	s.router.HandleFunc(analytics.PathRecords+"/{id}", s.handleRecord).Methods(http.MethodGet)
	s.router.HandleFunc(analytics.PathStatistics, s.handleStatistics).Methods(http.MethodGet)
	s.router.Use(s.recordRequest)

	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// FailNext makes the next len(codes) requests to path answer with the given
// status codes, in order.
func (s *Server) FailNext(path string, codes ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = append(s.failures[path], codes...)
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestsTo returns the requests received on path.
func (s *Server) RequestsTo(path string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// recordRequest captures the request and applies injected failures.
func (s *Server) recordRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := Request{
			Method:     r.Method,
			Path:       r.URL.Path,
			Query:      flatten(r.URL.Query()),
			Fields:     map[string]string{},
			ReceivedAt: time.Now(),
		}

		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			if err := r.ParseMultipartForm(32 << 20); err != nil {
				http.Error(w, "Error parsing form", http.StatusBadRequest)
				return
			}
			req.Fields = flatten(r.MultipartForm.Value)
			if file, header, err := r.FormFile("audio"); err == nil {
				data, _ := io.ReadAll(file)
				file.Close()
				req.Filename = header.Filename
				req.Audio = data
				req.AudioBytes = len(data)
			}
		}

		s.mu.Lock()
		s.requests = append(s.requests, req)
		var code int
		if queued := s.failures[req.Path]; len(queued) > 0 {
			code = queued[0]
			s.failures[req.Path] = queued[1:]
		}
		s.mu.Unlock()

		s.logger.Debug("Request received",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.Int("audio_bytes", req.AudioBytes),
		)

		if s.opts.Latency > 0 {
			select {
			case <-time.After(s.opts.Latency):
			case <-r.Context().Done():
				return
			}
		}

		if code != 0 {
			writeError(w, code, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAnalyzeChunk(w http.ResponseWriter, r *http.Request) {
	if r.MultipartForm == nil || r.MultipartForm.File["audio"] == nil {
		writeError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	size := int(r.MultipartForm.File["audio"][0].Size)
	channel := r.FormValue("channel")
	if channel == "" {
		channel = analytics.DefaultChannel
	}

	s.mu.Lock()
	s.chunks++
	n := s.chunks
	s.mu.Unlock()

	result := analytics.ChunkResult{
		Channel:      channel,
		FinalScore:   score(size),
		ValenceScore: 0.6,
		ArousalScore: 0.4,
		Advice:       "Keep a calm and friendly tone.",
		AllScores:    map[string]float64{"neutral": 0.7, "joy": 0.2, "anger": 0.1},
	}
	if size < SilenceBelow {
		result.Transcript = analytics.SilenceTranscript
	} else {
		result.Transcript = fmt.Sprintf("segment %d", n)
		if len(s.opts.Profanity) > 0 || s.opts.Anger {
			result.Alerts = &analytics.Alerts{Profanity: append([]string{}, s.opts.Profanity...), Anger: s.opts.Anger}
			result.AlertCount = result.Alerts.Count()
		}
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleEndCall(w http.ResponseWriter, r *http.Request) {
	if r.MultipartForm == nil || r.MultipartForm.File["audio"] == nil {
		writeError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	header := r.MultipartForm.File["audio"][0]
	size := int(header.Size)
	email, name := r.FormValue("agent_email"), r.FormValue("agent_name")

	report := &analytics.FinalReport{
		Filename:   header.Filename,
		Caller:     channelAnalysis("caller", size),
		Client:     channelAnalysis("client", size/2),
		AgentEmail: email,
		AgentName:  name,
		Alerts:     &analytics.Alerts{Profanity: append([]string{}, s.opts.Profanity...), Anger: s.opts.Anger},
	}
	report.AlertCount = report.Alerts.Count()
	report.Comparison = &analytics.Comparison{
		ScoreDifference:    report.Caller.FinalScore - report.Client.FinalScore,
		ValenceDifference:  report.Caller.ValenceScore - report.Client.ValenceScore,
		ArousalDifference:  report.Caller.ArousalScore - report.Client.ArousalScore,
		DominantSpeaker:    "caller",
		EmotionalSynchrony: 0.8,
	}

	if r.FormValue("save") == "true" {
		report.IDCall = s.save(header.Filename, report, email, name)
		report.Saved = true
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": report})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.MultipartForm == nil || r.MultipartForm.File["audio"] == nil {
		writeError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	header := r.MultipartForm.File["audio"][0]
	channels := r.FormValue("analyze_channels")
	if channels == "" {
		channels = "both"
	}

	result := s.analysis(header.Filename, int(header.Size), channels)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) analysis(filename string, size int, channels string) analytics.SentimentAnalysisResult {
	caller := channelAnalysis("caller", size)
	result := analytics.SentimentAnalysisResult{
		IDCall:         fmt.Sprintf("mock-%d", size),
		Filename:       filename,
		CallDate:       time.Now().UTC().Format("2006-01-02"),
		AnalysisType:   channels,
		IsStereo:       channels == "both",
		FinalScore:     caller.FinalScore,
		ValenceScore:   caller.ValenceScore,
		ArousalScore:   caller.ArousalScore,
		TopEmotions:    caller.TopEmotions,
		AllScores:      caller.AllScores,
		Keywords:       caller.Keywords,
		ProcessingTime: 0.1,
		AnalysisDate:   time.Now().UTC().Format(time.RFC3339),
	}
	switch channels {
	case "both":
		result.ChannelsAnalyzed = []string{"caller", "client"}
		result.Caller = caller
		result.Client = channelAnalysis("client", size/2)
	case "client":
		result.ChannelsAnalyzed = []string{"client"}
		result.Client = channelAnalysis("client", size)
	default:
		result.ChannelsAnalyzed = []string{"caller"}
		result.Caller = caller
	}
	return result
}

func (s *Server) save(filename string, report *analytics.FinalReport, email, name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := fmt.Sprintf("call-%d", len(s.records)+1)
	now := time.Now().UTC()
	rec := analytics.Record{
		IDCall:           id,
		Filename:         filename,
		FinalScore:       report.Caller.FinalScore,
		AnalysisDate:     now.Format(time.RFC3339),
		AnalysisType:     "both",
		IsStereo:         true,
		ChannelsAnalyzed: []string{"caller", "client"},
		AgentEmail:       email,
		AgentName:        name,
	}
	res := analytics.SentimentAnalysisResult{
		IDCall:           id,
		Filename:         filename,
		CallDate:         now.Format("2006-01-02"),
		AnalysisType:     "both",
		IsStereo:         true,
		ChannelsAnalyzed: rec.ChannelsAnalyzed,
		FinalScore:       report.Caller.FinalScore,
		ValenceScore:     report.Caller.ValenceScore,
		ArousalScore:     report.Caller.ArousalScore,
		TopEmotions:      report.Caller.TopEmotions,
		AllScores:        report.Caller.AllScores,
		Keywords:         report.Caller.Keywords,
		AnalysisDate:     rec.AnalysisDate,
		Caller:           report.Caller,
		Client:           report.Client,
		Comparison:       report.Comparison,
	}
	s.records = append(s.records, stored{record: rec, result: res})
	return id
}

func (s *Server) handleRecords(channel string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, err := strconv.Atoi(q.Get("limit"))
		if err != nil || limit <= 0 {
			limit = 100
		}
		offset, err := strconv.Atoi(q.Get("offset"))
		if err != nil || offset < 0 {
			offset = 0
		}
		email := q.Get("agent_email")

		s.mu.Lock()
		var matched []analytics.Record
		for _, st := range s.records {
			if email != "" && st.record.AgentEmail != email {
				continue
			}
			rec := st.record
			if channel != "" {
				rec.RecordType = channel
				rec.ChannelName = channel
				ch := st.result.Caller
				if channel == "client" {
					ch = st.result.Client
				}
				if ch != nil {
					rec.FinalScore = ch.FinalScore
				}
			}
			matched = append(matched, rec)
		}
		s.mu.Unlock()

		out := []analytics.Record{}
		if offset < len(matched) {
			end := min(offset+limit, len(matched))
			out = matched[offset:end]
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.records {
		if st.record.IDCall == id {
			writeJSON(w, http.StatusOK, st.result)
			return
		}
	}
	writeError(w, http.StatusNotFound, "record not found")
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := analytics.Statistics{TotalAudios: len(s.records), TopEmotion: "neutral"}
	if n := len(s.records); n > 0 {
		var final, caller, client float64
		var stereo int
		for _, st := range s.records {
			final += st.result.FinalScore
			if st.result.Caller != nil {
				caller += st.result.Caller.FinalScore
			}
			if st.result.Client != nil {
				client += st.result.Client.FinalScore
			}
			if st.result.IsStereo {
				stereo++
			}
		}
		stats.AvgFinalScore = final / float64(n)
		stats.AvgCallerScore = caller / float64(n)
		stats.AvgClientScore = client / float64(n)
		stats.StereoPercentage = 100 * float64(stereo) / float64(n)
	}
	writeJSON(w, http.StatusOK, stats)
}

// score maps a payload size onto a stable value in [0.3, 0.9).
func score(size int) float64 {
	return 0.3 + float64(size%600)/1000
}

func channelAnalysis(channel string, size int) *analytics.ChannelAnalysis {
	return &analytics.ChannelAnalysis{
		Channel:      channel,
		FinalScore:   score(size),
		ValenceScore: 0.6,
		ArousalScore: 0.4,
		TopEmotions: []analytics.Emotion{
			{Emotion: "neutral", Score: 0.7},
			{Emotion: "joy", Score: 0.2},
		},
		AllScores: map[string]float64{"neutral": 0.7, "joy": 0.2, "anger": 0.1},
		Keywords:  []string{"account", "payment"},
	}
}

func flatten(values map[string][]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}
