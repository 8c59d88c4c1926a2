package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TF-SoftwareEmergentes/livecall/internal/analytics"
	"github.com/TF-SoftwareEmergentes/livecall/internal/audio"
	"github.com/TF-SoftwareEmergentes/livecall/internal/capture"
	"github.com/TF-SoftwareEmergentes/livecall/internal/meter"
	"github.com/TF-SoftwareEmergentes/livecall/internal/metrics"
)

// Status is the lifecycle state of the recorder
type Status string

const (
	StatusIdle       Status = "idle"
	StatusRecording  Status = "recording"
	StatusStopped    Status = "stopped"
	StatusFinalizing Status = "finalizing"
	StatusFinalized  Status = "finalized"
)

// State is a consistent snapshot of the current call
type State struct {
	SessionID       string                  `json:"session_id,omitempty"`
	Status          Status                  `json:"status"`
	StartedAt       time.Time               `json:"started_at,omitzero"`
	StoppedAt       time.Time               `json:"stopped_at,omitzero"`
	Duration        int                     `json:"duration"`
	ChunkCount      int                     `json:"chunk_count"`
	SegmentCount    int                     `json:"segment_count"`
	AudioBytes      int                     `json:"audio_bytes"`
	Transcript      string                  `json:"transcript"`
	Alerts          []string                `json:"alerts"`
	AlertCount      int                     `json:"alert_count"`
	Current         *analytics.ChunkResult  `json:"current,omitempty"`
	Report          *analytics.FinalReport  `json:"report,omitempty"`
	LastError       string                  `json:"last_error,omitempty"`
	ChunksSkipped   uint64                  `json:"chunks_skipped"`
	ChunksFailed    uint64                  `json:"chunks_failed"`
	ChunksCancelled uint64                  `json:"chunks_cancelled"`
	Level           *meter.Reading          `json:"level,omitempty"`
	Capture         *audio.AccumulatorStats `json:"capture,omitempty"`
}

// Analyzer scores live chunks and produces the end-of-call report
type Analyzer interface {
	AnalyzeChunk(ctx context.Context, wav []byte, channel string) (*analytics.ChunkResult, error)
	EndCall(ctx context.Context, wav []byte, op analytics.Operator) (*analytics.FinalReport, error)
}

// Session is one recorded call, from Start until it is reset or replaced
type Session struct {
	ID        string
	StartedAt time.Time

	cfg      Config
	analyzer Analyzer
	logger   *slog.Logger
	metrics  *metrics.Metrics
	events   *Bus

	token  *Token
	stream capture.Stream
	acc    *audio.Accumulator
	meter  *meter.Meter

	status     Status
	stoppedAt  time.Time
	duration   int
	segments   []*audio.Segment
	chunkCount int
	transcript string
	alerts     []string
	alertCount int
	current    *analytics.ChunkResult
	report     *analytics.FinalReport
	lastError  string

	chunksSkipped   uint64
	chunksFailed    uint64
	chunksCancelled uint64

	loops   sync.WaitGroup
	uploads sync.WaitGroup
	mu      sync.RWMutex
}

func newSession(m *Manager, stream capture.Stream) *Session {
	id := uuid.NewString()
	lvl, _ := meter.New(m.config.LevelThreshold, 0.3)
	rate := stream.SampleRate()

	return &Session{
		ID:        id,
		StartedAt: time.Now(),
		cfg:       m.config,
		analyzer:  m.analyzer,
		logger:    m.logger.With(slog.String("session_id", id)),
		metrics:   m.metrics,
		events:    m.events,
		token:     newToken(context.Background()),
		stream:    stream,
		acc:       audio.NewAccumulator(m.config.Gain, rate*int(m.config.SegmentInterval/time.Second)),
		meter:     lvl,
		status:    StatusRecording,
		alerts:    []string{},
	}
}

// start launches the capture pump and the periodic tasks. All of them stop
// when the session token is cancelled.
func (s *Session) start() {
	s.loops.Add(4)
	go s.pump()
	go s.every(s.cfg.SegmentInterval, s.cutSegment)
	go s.every(s.cfg.TickInterval, s.tick)
	go s.every(s.cfg.LevelInterval, s.publishLevel)
}

// halt cancels the token and waits for the pump and periodic tasks. Pending
// samples that never reached a segment boundary are dropped. In-flight
// uploads are aborted through the token but not waited for.
func (s *Session) halt() {
	s.token.Cancel()
	s.logger.Debug("Recording token cancelled", slog.String("token", s.token.ID()))
	if err := s.stream.Close(); err != nil {
		s.logger.Warn("Error closing capture stream", slog.String("error", err.Error()))
	}
	s.loops.Wait()

	if n := s.acc.Discard(); n > 0 {
		s.logger.Debug("Discarded partial segment on stop", slog.Int("samples", n))
	}
}

func (s *Session) pump() {
	defer s.loops.Done()

	frames := s.stream.Frames()
	for {
		select {
		case <-s.token.Context().Done():
			return
		case frame, ok := <-frames:
			if !ok {
				if s.token.Cancelled() {
					return
				}
				msg := "capture ended"
				if err := s.stream.Err(); err != nil {
					msg = err.Error()
					s.logger.Warn("Capture stream failed", slog.String("error", msg))
				} else {
					s.logger.Info("Capture stream ended")
				}
				s.mu.Lock()
				s.lastError = msg
				s.mu.Unlock()
				s.publish(EventCaptureEnded, map[string]string{"reason": msg})
				return
			}
			s.acc.Append(frame.Samples)
			s.meter.Observe(frame.Samples)
		}
	}
}

func (s *Session) every(interval time.Duration, fn func()) {
	defer s.loops.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.token.Context().Done():
			return
		case <-ticker.C:
			if s.token.Cancelled() {
				return
			}
			fn()
		}
	}
}

func (s *Session) tick() {
	s.mu.Lock()
	s.duration++
	d := s.duration
	s.mu.Unlock()

	s.publish(EventTick, Tick{Duration: d})
}

func (s *Session) publishLevel() {
	s.publish(EventLevel, s.meter.Read())
}

// cutSegment drains the accumulator into a new segment and hands it to the
// chunk uploader. An empty drain produces nothing.
func (s *Session) cutSegment() {
	samples := s.acc.Drain()
	if samples == nil {
		return
	}

	s.mu.Lock()
	if s.status != StatusRecording || s.token.Cancelled() {
		s.mu.Unlock()
		return
	}
	seg := audio.NewSegment(len(s.segments), samples, s.stream.SampleRate())
	s.segments = append(s.segments, seg)
	s.mu.Unlock()

	s.metrics.RecordSegment(seg.Size(), seg.Duration.Seconds())

	s.publish(EventSegment, SegmentInfo{
		Index:    seg.Index,
		Bytes:    seg.Size(),
		Seconds:  seg.Duration.Seconds(),
		Uploaded: seg.Size() >= s.cfg.MinSegmentBytes,
	})
	s.upload(seg)
}

// upload sends a segment for chunk analysis in the background. Segments
// below the minimum size are kept for finalization but never uploaded.
func (s *Session) upload(seg *audio.Segment) bool {
	if seg.Size() < s.cfg.MinSegmentBytes {
		s.mu.Lock()
		s.chunksSkipped++
		s.mu.Unlock()
		s.metrics.RecordChunkSkipped()
		s.logger.Debug("Segment below upload threshold",
			slog.Int("index", seg.Index),
			slog.Int("bytes", seg.Size()),
			slog.Int("min_bytes", s.cfg.MinSegmentBytes),
		)
		return false
	}

	tok := s.token
	s.uploads.Add(1)
	s.metrics.ChunkStarted()
	go func() {
		defer s.uploads.Done()

		ctx, cancel := context.WithTimeout(tok.Context(), s.cfg.ChunkTimeout)
		defer cancel()

		start := time.Now()
		result, err := s.analyzer.AnalyzeChunk(ctx, seg.Data, s.cfg.Channel)
		s.applyChunk(tok, seg, result, err, time.Since(start))
	}()
	return true
}

// applyChunk merges a chunk result into the session, unless the token that
// issued the upload is no longer current or has been cancelled.
func (s *Session) applyChunk(tok *Token, seg *audio.Segment, result *analytics.ChunkResult, err error, took time.Duration) {
	s.mu.Lock()

	stale := s.token != tok || tok.Cancelled()
	if stale || (err != nil && analytics.IsCancelled(err)) {
		s.chunksCancelled++
		s.mu.Unlock()
		s.metrics.RecordChunk(metrics.OutcomeCancelled, took.Seconds())
		s.logger.Debug("Dropped chunk result after cancellation",
			slog.Int("index", seg.Index),
			slog.String("token", tok.ID()),
		)
		return
	}

	if err != nil {
		s.chunksFailed++
		s.lastError = err.Error()
		s.mu.Unlock()
		s.metrics.RecordChunk(metrics.OutcomeFailed, took.Seconds())
		s.logger.Warn("Chunk analysis failed",
			slog.Int("index", seg.Index),
			slog.Int("bytes", seg.Size()),
			slog.Duration("took", took),
			slog.String("error", err.Error()),
		)
		s.publish(EventChunkError, ChunkFailure{Index: seg.Index, Error: err.Error()})
		return
	}

	s.chunkCount++
	s.current = result
	if result.HasSpeech() {
		text := strings.TrimSpace(result.Transcript)
		if s.transcript == "" {
			s.transcript = text
		} else {
			s.transcript += " " + text
		}
	}
	var profanity int
	var anger bool
	if result.Alerts != nil {
		profanity = len(result.Alerts.Profanity)
		anger = result.Alerts.Anger
		s.alerts = append(s.alerts, result.Alerts.Profanity...)
		if anger {
			s.alerts = append(s.alerts, "anger")
		}
		s.alertCount += result.Alerts.Count()
	}
	update := ChunkUpdate{
		Index:      seg.Index,
		Result:     result,
		ChunkCount: s.chunkCount,
		Transcript: s.transcript,
		Alerts:     append([]string(nil), s.alerts...),
		AlertCount: s.alertCount,
	}
	s.mu.Unlock()

	s.metrics.RecordChunk(metrics.OutcomeSuccess, took.Seconds())
	s.metrics.RecordAlerts(profanity, anger)
	s.logger.Debug("Chunk analyzed",
		slog.Int("index", seg.Index),
		slog.Float64("final_score", result.FinalScore),
		slog.Duration("took", took),
	)
	s.publish(EventChunk, update)
}

// Status returns the lifecycle state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) setStatus(to Status) {
	s.mu.Lock()
	from := s.status
	s.status = to
	if to == StatusStopped && s.stoppedAt.IsZero() {
		s.stoppedAt = time.Now()
	}
	s.mu.Unlock()

	if from != to {
		s.publish(EventState, StateChange{From: from, To: to})
	}
}

// Segments returns the recorded segments in creation order.
func (s *Session) Segments() []*audio.Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*audio.Segment(nil), s.segments...)
}

// Wait blocks until all chunk uploads issued so far have completed.
func (s *Session) Wait() {
	s.uploads.Wait()
}

// Snapshot returns a consistent copy of the session state.
func (s *Session) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, seg := range s.segments {
		total += seg.Size()
	}
	st := State{
		SessionID:       s.ID,
		Status:          s.status,
		StartedAt:       s.StartedAt,
		StoppedAt:       s.stoppedAt,
		Duration:        s.duration,
		ChunkCount:      s.chunkCount,
		SegmentCount:    len(s.segments),
		AudioBytes:      total,
		Transcript:      s.transcript,
		Alerts:          append([]string{}, s.alerts...),
		AlertCount:      s.alertCount,
		Current:         s.current,
		Report:          s.report,
		LastError:       s.lastError,
		ChunksSkipped:   s.chunksSkipped,
		ChunksFailed:    s.chunksFailed,
		ChunksCancelled: s.chunksCancelled,
	}
	if s.status == StatusRecording {
		r := s.meter.Read()
		st.Level = &r
	}
	cs := s.acc.GetStats()
	st.Capture = &cs
	return st
}

func (s *Session) publish(t EventType, data any) {
	s.events.Publish(Event{Type: t, SessionID: s.ID, Data: data})
}
