package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TF-SoftwareEmergentes/livecall/internal/audio"
)

func writeTestWAV(t *testing.T, samples []float32, rate int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.wav")
	if err := os.WriteFile(path, audio.EncodeFloat32WAV(samples, rate), 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

func collect(t *testing.T, st Stream) []Frame {
	t.Helper()
	var frames []Frame
	timeout := time.After(2 * time.Second)
	for {
		select {
		case f, ok := <-st.Frames():
			if !ok {
				return frames
			}
			frames = append(frames, f)
		case <-timeout:
			t.Fatal("stream did not end")
		}
	}
}

func TestFileSourceFrames(t *testing.T) {
	samples := make([]float32, 10)
	for i := range samples {
		samples[i] = 0.5
	}
	path := writeTestWAV(t, samples, 8000)

	st, err := NewFileSource(path, 4, false).Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()

	if st.SampleRate() != 8000 {
		t.Errorf("Expected 8000 Hz, got %d", st.SampleRate())
	}

	frames := collect(t, st)
	if len(frames) != 3 {
		t.Fatalf("Expected 3 frames, got %d", len(frames))
	}
	sizes := []int{len(frames[0].Samples), len(frames[1].Samples), len(frames[2].Samples)}
	if sizes[0] != 4 || sizes[1] != 4 || sizes[2] != 2 {
		t.Errorf("Unexpected frame sizes %v", sizes)
	}
	if math.Abs(float64(frames[0].Samples[0]-0.5)) > 1e-3 {
		t.Errorf("Expected ~0.5, got %f", frames[0].Samples[0])
	}
	if st.Err() != nil {
		t.Errorf("Unexpected stream error: %v", st.Err())
	}
}

func TestFileSourceMissing(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "nope.wav"), 0, false).Open(context.Background())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestSliceStreamCloseStopsEmission(t *testing.T) {
	st := NewSliceStream(make([]float32, 1<<16), 8000, 16, true)
	<-st.Frames()

	done := make(chan struct{})
	go func() {
		st.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}

	if _, ok := <-st.Frames(); ok {
		t.Error("Expected frames channel to be closed")
	}
}

func TestFFmpegMissing(t *testing.T) {
	src := NewFFmpegSource(FFmpegConfig{Binary: "livecall-no-such-ffmpeg"})
	_, err := src.Open(context.Background())
	if !errors.Is(err, ErrFFmpegMissing) {
		t.Errorf("Expected ErrFFmpegMissing, got %v", err)
	}
}

func TestFFmpegArgs(t *testing.T) {
	src := NewFFmpegSource(FFmpegConfig{Format: "alsa", Device: "hw:0", SampleRate: 22050})
	args := strings.Join(src.Args(), " ")

	for _, want := range []string{"-f alsa", "-i hw:0", "-ac 1", "-ar 22050", "-f f32le -"} {
		if !strings.Contains(args, want) {
			t.Errorf("Expected %q in %q", want, args)
		}
	}
	if src.Name() != "ffmpeg:alsa:hw:0" {
		t.Errorf("Unexpected name %s", src.Name())
	}
}

func TestFFmpegCapture(t *testing.T) {
	src := NewFFmpegSource(FFmpegConfig{Format: "lavfi", Device: "sine=frequency=440:duration=1", SampleRate: 8000, FrameSize: 1024})
	if err := src.CheckFFmpeg(); err != nil {
		t.Skipf("Skipping test: %v", err)
	}

	st, err := src.Open(context.Background())
	if err != nil {
		t.Skipf("Skipping test, lavfi input unavailable: %v", err)
	}
	defer st.Close()

	total := 0
	for _, f := range collect(t, st) {
		total += len(f.Samples)
	}
	if total != 8000 {
		t.Errorf("Expected 8000 samples, got %d", total)
	}
}

func TestDecodeF32LE(t *testing.T) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b, math.Float32bits(0.25))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(-1))

	got := decodeF32LE(b)
	if len(got) != 2 || got[0] != 0.25 || got[1] != -1 {
		t.Errorf("Unexpected decode %v", got)
	}
}

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		stderr string
		want   error
	}{
		{"[avfoundation] Permission denied", ErrPermissionDenied},
		{"pulse: Connection refused", ErrDeviceUnavailable},
		{"", ErrDeviceUnavailable},
	}
	for _, tt := range tests {
		if err := classifyFailure(tt.stderr, errors.New("exit status 1")); !errors.Is(err, tt.want) {
			t.Errorf("classifyFailure(%q) = %v, want %v", tt.stderr, err, tt.want)
		}
	}
}
