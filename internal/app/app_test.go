package app

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/TF-SoftwareEmergentes/livecall/internal/analytics"
	"github.com/TF-SoftwareEmergentes/livecall/internal/audio"
	"github.com/TF-SoftwareEmergentes/livecall/internal/config"
	"github.com/TF-SoftwareEmergentes/livecall/internal/mockbackend"
	"github.com/TF-SoftwareEmergentes/livecall/internal/notify/artifact"
	"github.com/TF-SoftwareEmergentes/livecall/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeTone writes one second of a 440 Hz tone as a 16 kHz mono WAV.
func writeTone(t *testing.T, dir string) string {
	t.Helper()
	samples := make([]float32, 16000)
	for i := range samples {
		samples[i] = float32(0.09 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	data := audio.EncodeFloat32WAV(samples, 16000)
	path := filepath.Join(dir, "tone.wav")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

func waitFor(t *testing.T, events <-chan session.Event, want session.EventType) session.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == want {
				return ev
			}
		case <-timeout:
			t.Fatalf("Timed out waiting for %s event", want)
			return session.Event{}
		}
	}
}

func TestEndToEndWithNotifiers(t *testing.T) {
	dir := t.TempDir()

	backend := httptest.NewServer(mockbackend.New(testLogger(), mockbackend.Options{}))
	defer backend.Close()

	var hooks atomic.Int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hooks.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	mr := miniredis.RunT(t)

	cfg := config.Default()
	cfg.Backend.BaseURL = backend.URL
	cfg.Audio.SegmentInterval = 0.05
	cfg.Capture.Driver = "file"
	cfg.Capture.FilePath = writeTone(t, dir)
	cfg.Capture.Realtime = false
	cfg.Operator = config.OperatorConfig{Email: "agent@example.com", Name: "Agent"}
	cfg.Notify.Webhook.URL = hook.URL
	cfg.Notify.Redis.URL = "redis://" + mr.Addr()
	cfg.Notify.Archive.Path = filepath.Join(dir, "archive")
	cfg.Notify.Artifact.Enabled = true
	cfg.Notify.Artifact.Dir = filepath.Join(dir, "recordings")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	a, err := New(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close(context.Background())

	if got := strings.Join(a.Notifier.Names(), ","); got != "webhook,redis,archive,artifact" {
		t.Errorf("Notifiers = %s", got)
	}
	if err := a.Redis.Ping(context.Background()); err != nil {
		t.Errorf("Redis ping: %v", err)
	}

	events, unsubscribe := a.Sessions.Subscribe(256)
	defer unsubscribe()

	st, err := a.Sessions.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, events, session.EventChunk)

	if _, err := a.Sessions.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	report, err := a.Sessions.Finalize(context.Background(), a.Operator())
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if report.AgentEmail != "agent@example.com" {
		t.Errorf("Report agent = %q", report.AgentEmail)
	}

	a.Sessions.Wait()

	if hooks.Load() != 1 {
		t.Errorf("Webhook calls = %d, want 1", hooks.Load())
	}

	call, err := a.Archive.Get(st.SessionID)
	if err != nil {
		t.Fatalf("Archive Get: %v", err)
	}
	if call.Operator.Email != "agent@example.com" || call.SegmentCount == 0 {
		t.Errorf("Unexpected archived call %+v", call)
	}

	wav := filepath.Join(cfg.Notify.Artifact.Dir, filepath.FromSlash(artifact.Key("", call)))
	data, err := os.ReadFile(wav)
	if err != nil {
		t.Fatalf("Artifact missing: %v", err)
	}
	if len(data) != call.AudioBytes {
		t.Errorf("Artifact size = %d, want %d", len(data), call.AudioBytes)
	}
}

func TestNewRejectsBadBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Backend.BaseURL = "not a url"
	cfg.Notify.Archive.Enabled = false
	if _, err := New(context.Background(), cfg, testLogger()); err == nil {
		t.Error("Expected error for invalid backend URL")
	}
}

func TestNewSource(t *testing.T) {
	cfg := config.Default()

	src, err := NewSource(cfg)
	if err != nil || !strings.HasPrefix(src.Name(), "ffmpeg") {
		t.Errorf("Expected ffmpeg source, got %v, %v", src, err)
	}

	cfg.Capture.Driver = "file"
	cfg.Capture.FilePath = "call.wav"
	src, err = NewSource(cfg)
	if err != nil || src.Name() != "file:call.wav" {
		t.Errorf("Expected file source, got %v, %v", src, err)
	}

	cfg.Capture.Driver = "portaudio"
	if _, err := NewSource(cfg); err == nil {
		t.Error("Expected error for unknown driver")
	}
}

func TestSessionConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Audio.SegmentInterval = 2.5
	cfg.Backend.Channel = "client"

	sc := SessionConfig(cfg)
	if sc.SegmentInterval != 2500*time.Millisecond {
		t.Errorf("SegmentInterval = %v", sc.SegmentInterval)
	}
	if sc.MinSegmentBytes != 10000 || sc.Gain != 5 || sc.Channel != "client" {
		t.Errorf("Unexpected session config %+v", sc)
	}
	if sc.FinalizeTimeout != 2*time.Minute {
		t.Errorf("FinalizeTimeout = %v", sc.FinalizeTimeout)
	}
}

func TestOperator(t *testing.T) {
	a := &App{Config: config.Default()}
	a.Config.Operator = config.OperatorConfig{Email: "x@example.com", Name: "X"}
	if got := a.Operator(); got != (analytics.Operator{Email: "x@example.com", Name: "X"}) {
		t.Errorf("Operator = %+v", got)
	}
}

func TestNewLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livecall.log")
	logger, closer := NewLogger(config.LoggingConfig{Level: "debug", Format: "json", Output: path})
	logger.Debug("hello", slog.String("k", "v"))
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) || !strings.Contains(string(data), `"source"`) {
		t.Errorf("Unexpected log output %s", data)
	}
}
