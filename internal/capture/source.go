package capture

import (
	"context"
	"errors"
	"time"
)

// DefaultFrameSize is the number of samples delivered per frame.
const DefaultFrameSize = 4096

var (
	// ErrDeviceUnavailable is returned when no usable input device exists.
	ErrDeviceUnavailable = errors.New("audio input device unavailable")
	// ErrPermissionDenied is returned when the OS refuses microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrFFmpegMissing is returned when the ffmpeg binary cannot be found.
	ErrFFmpegMissing = errors.New("ffmpeg not found")
)

// Frame is one block of mono float samples in [-1, 1].
type Frame struct {
	Samples    []float32
	CapturedAt time.Time
}

// Source opens live mono audio streams.
type Source interface {
	Name() string
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open capture. Frames is closed when the stream ends, either
// because Close was called, ctx was cancelled, or the input ran out.
type Stream interface {
	SampleRate() int
	Frames() <-chan Frame
	// Err reports why the stream ended early, or nil.
	Err() error
	Close() error
}
