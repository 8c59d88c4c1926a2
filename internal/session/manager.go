package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/TF-SoftwareEmergentes/livecall/internal/analytics"
	"github.com/TF-SoftwareEmergentes/livecall/internal/audio"
	"github.com/TF-SoftwareEmergentes/livecall/internal/capture"
	"github.com/TF-SoftwareEmergentes/livecall/internal/metrics"
	"github.com/TF-SoftwareEmergentes/livecall/internal/notify"
)

// Config holds the timing and threshold parameters of a live call
type Config struct {
	SegmentInterval time.Duration // how often the accumulator is cut into a segment
	TickInterval    time.Duration // duration counter resolution
	LevelInterval   time.Duration // volume feedback cadence
	LevelThreshold  float64       // RMS above which the operator is speaking
	MinSegmentBytes int           // smaller segments are not uploaded
	Gain            float32
	Channel         string
	ChunkTimeout    time.Duration
	FinalizeTimeout time.Duration
	NotifyTimeout   time.Duration
}

// DefaultConfig returns the standard live-call parameters.
func DefaultConfig() Config {
	return Config{
		SegmentInterval: 5 * time.Second,
		TickInterval:    time.Second,
		LevelInterval:   100 * time.Millisecond,
		LevelThreshold:  0.02,
		MinSegmentBytes: 10000,
		Gain:            audio.DefaultGain,
		Channel:         analytics.DefaultChannel,
		ChunkTimeout:    30 * time.Second,
		FinalizeTimeout: 2 * time.Minute,
		NotifyTimeout:   30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SegmentInterval <= 0 {
		c.SegmentInterval = d.SegmentInterval
	}
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.LevelInterval <= 0 {
		c.LevelInterval = d.LevelInterval
	}
	if c.LevelThreshold <= 0 || c.LevelThreshold > 1 {
		c.LevelThreshold = d.LevelThreshold
	}
	if c.MinSegmentBytes < 0 {
		c.MinSegmentBytes = d.MinSegmentBytes
	}
	if c.Gain <= 0 {
		c.Gain = d.Gain
	}
	if c.Channel == "" {
		c.Channel = d.Channel
	}
	if c.ChunkTimeout <= 0 {
		c.ChunkTimeout = d.ChunkTimeout
	}
	if c.FinalizeTimeout <= 0 {
		c.FinalizeTimeout = d.FinalizeTimeout
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = d.NotifyTimeout
	}
	return c
}

// Manager owns the single live call of this recorder and drives its
// lifecycle: idle, recording, stopped, finalizing, finalized.
type Manager struct {
	config   Config
	source   capture.Source
	analyzer Analyzer
	notifier notify.Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	events   *Bus

	current *Session
	mu      sync.Mutex

	background sync.WaitGroup
}

// Option customizes a Manager
type Option func(*Manager)

// WithNotifier delivers finalized calls to n.
func WithNotifier(n notify.Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithMetrics records session metrics.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// NewManager creates a session manager
func NewManager(logger *slog.Logger, config Config, source capture.Source, analyzer Analyzer, opts ...Option) *Manager {
	m := &Manager{
		config:   config.withDefaults(),
		source:   source,
		analyzer: analyzer,
		logger:   logger.With(slog.String("component", "session")),
		events:   NewBus(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.config
}

// Events returns the bus session events are published on.
func (m *Manager) Events() *Bus {
	return m.events
}

// Subscribe registers for session events.
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	return m.events.Subscribe(buffer)
}

// Start opens the capture source and begins a new call. It is allowed from
// idle, stopped and finalized; any previous call is discarded.
func (m *Manager) Start(ctx context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur := m.current; cur != nil {
		switch st := cur.Status(); st {
		case StatusRecording, StatusFinalizing:
			return cur.Snapshot(), fmt.Errorf("%w (%s)", ErrSessionActive, st)
		}
	}

	stream, err := m.source.Open(ctx)
	if err != nil {
		cerr := &CaptureError{Source: m.source.Name(), Err: err}
		m.metrics.RecordCaptureFailure(cerr.Reason())
		m.logger.Error("Failed to open capture source",
			slog.String("source", m.source.Name()),
			slog.String("reason", cerr.Reason()),
			slog.String("error", err.Error()),
		)
		return m.snapshotLocked(), cerr
	}

	if prev := m.current; prev != nil {
		m.logger.Info("Discarding previous call", slog.String("previous_session_id", prev.ID))
	}

	s := newSession(m, stream)
	m.current = s
	s.start()

	m.metrics.RecordSessionStarted()
	m.logger.Info("Recording started",
		slog.String("session_id", s.ID),
		slog.String("token", s.token.ID()),
		slog.String("source", m.source.Name()),
		slog.Int("sample_rate", stream.SampleRate()),
		slog.Duration("segment_interval", m.config.SegmentInterval),
	)
	s.publish(EventState, StateChange{From: StatusIdle, To: StatusRecording})

	return s.Snapshot(), nil
}

// Stop ends capture. In-flight chunk uploads are cancelled and their results
// discarded; recorded segments are kept for finalization.
func (m *Manager) Stop() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.current
	if s == nil || s.Status() != StatusRecording {
		return m.snapshotLocked(), ErrNotRecording
	}

	s.halt()
	s.setStatus(StatusStopped)

	st := s.Snapshot()
	m.metrics.RecordSessionStopped(float64(st.Duration))
	m.logger.Info("Recording stopped",
		slog.String("session_id", s.ID),
		slog.Int("duration", st.Duration),
		slog.Int("segments", st.SegmentCount),
		slog.Int("chunks", st.ChunkCount),
		slog.Int("alerts", st.AlertCount),
	)
	return st, nil
}

// Finalize submits the full recording for the consolidated report. On
// failure the call returns to stopped with its segments intact, so it can
// be retried.
func (m *Manager) Finalize(ctx context.Context, op analytics.Operator) (*analytics.FinalReport, error) {
	m.mu.Lock()
	s := m.current
	if s == nil || s.Status() != StatusStopped {
		st := StatusIdle
		if s != nil {
			st = s.Status()
		}
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot finalize while %s", ErrInvalidState, st)
	}
	segments := s.Segments()
	if len(segments) == 0 {
		m.mu.Unlock()
		m.metrics.RecordFinalize(metrics.OutcomeSkipped, 0)
		return nil, ErrNoSegments
	}
	s.setStatus(StatusFinalizing)
	m.mu.Unlock()

	data := audio.Concat(segments)
	m.logger.Info("Finalizing call",
		slog.String("session_id", s.ID),
		slog.Int("segments", len(segments)),
		slog.Int("bytes", len(data)),
	)

	fctx, cancel := context.WithTimeout(ctx, m.config.FinalizeTimeout)
	defer cancel()

	start := time.Now()
	report, err := m.analyzer.EndCall(fctx, data, op)
	took := time.Since(start)
	if err != nil {
		s.mu.Lock()
		s.lastError = err.Error()
		s.mu.Unlock()
		s.setStatus(StatusStopped)

		m.metrics.RecordFinalize(metrics.OutcomeFailed, took.Seconds())
		m.logger.Error("Finalize failed",
			slog.String("session_id", s.ID),
			slog.Duration("took", took),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("finalize: %w", err)
	}

	s.mu.Lock()
	s.report = report
	s.lastError = ""
	s.mu.Unlock()
	s.setStatus(StatusFinalized)

	m.metrics.RecordFinalize(metrics.OutcomeSuccess, took.Seconds())
	m.logger.Info("Call finalized",
		slog.String("session_id", s.ID),
		slog.Duration("took", took),
		slog.Bool("saved", report.Saved),
	)
	s.publish(EventFinalized, report)

	m.dispatch(s, data, op, report)
	return report, nil
}

// dispatch hands the finalized call to the notifier in the background.
func (m *Manager) dispatch(s *Session, data []byte, op analytics.Operator, report *analytics.FinalReport) {
	if m.notifier == nil {
		return
	}

	st := s.Snapshot()
	call := &notify.CallCompleted{
		Event:           notify.EventCallFinalized,
		SessionID:       s.ID,
		StartedAt:       st.StartedAt,
		StoppedAt:       st.StoppedAt,
		FinalizedAt:     time.Now(),
		DurationSeconds: st.Duration,
		Operator:        op,
		SegmentCount:    st.SegmentCount,
		ChunkCount:      st.ChunkCount,
		Transcript:      st.Transcript,
		Alerts:          st.Alerts,
		AlertCount:      st.AlertCount,
		Report:          report,
		AudioBytes:      len(data),
		Audio:           data,
	}

	m.background.Add(1)
	go func() {
		defer m.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.config.NotifyTimeout)
		defer cancel()
		if err := m.notifier.Notify(ctx, call); err != nil {
			m.logger.Warn("Finalized call notification incomplete",
				slog.String("session_id", s.ID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Reset discards a stopped or finalized call and returns to idle.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.current
	if s == nil {
		return nil
	}
	switch st := s.Status(); st {
	case StatusRecording, StatusFinalizing:
		return fmt.Errorf("%w (%s)", ErrSessionActive, st)
	}

	prev := s.Status()
	m.current = nil
	m.logger.Info("Call reset", slog.String("session_id", s.ID))
	m.events.Publish(Event{Type: EventState, SessionID: s.ID, Data: StateChange{From: prev, To: StatusIdle}})
	return nil
}

// Snapshot returns the state of the current call, or an idle state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() State {
	if m.current == nil {
		return State{Status: StatusIdle, Alerts: []string{}}
	}
	return m.current.Snapshot()
}

// Current returns the current call, or nil when idle.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Audio returns the concatenated recording of the current call in segment
// order, exactly as it would be submitted at finalization.
func (m *Manager) Audio() ([]byte, error) {
	s := m.Current()
	if s == nil {
		return nil, ErrNoSegments
	}
	segments := s.Segments()
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}
	return audio.Concat(segments), nil
}

// Wait blocks until chunk uploads of the current call and pending
// notifications have completed.
func (m *Manager) Wait() {
	if s := m.Current(); s != nil {
		s.Wait()
	}
	m.background.Wait()
}

// Close stops a recording in progress and waits for background work, up to
// the deadline of ctx.
func (m *Manager) Close(ctx context.Context) error {
	if _, err := m.Stop(); err != nil && !errors.Is(err, ErrNotRecording) {
		return err
	}

	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
