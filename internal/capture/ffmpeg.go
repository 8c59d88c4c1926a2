package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FFmpegConfig configures microphone capture through an ffmpeg subprocess.
type FFmpegConfig struct {
	Binary       string        // defaults to "ffmpeg"
	Format       string        // input format, e.g. avfoundation, pulse, alsa, dshow
	Device       string        // input device for the format
	SampleRate   int
	FrameSize    int
	StartTimeout time.Duration // how long to wait for the first frame
}

// FFmpegSource captures the default microphone by running ffmpeg and reading
// raw 32-bit float little-endian mono PCM from its stdout.
type FFmpegSource struct {
	config FFmpegConfig
}

// NewFFmpegSource creates an ffmpeg-backed source, filling platform defaults.
func NewFFmpegSource(config FFmpegConfig) *FFmpegSource {
	if config.Binary == "" {
		config.Binary = "ffmpeg"
	}
	if config.Format == "" || config.Device == "" {
		format, device := defaultInput()
		if config.Format == "" {
			config.Format = format
		}
		if config.Device == "" {
			config.Device = device
		}
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}
	if config.FrameSize <= 0 {
		config.FrameSize = DefaultFrameSize
	}
	if config.StartTimeout <= 0 {
		config.StartTimeout = 5 * time.Second
	}
	return &FFmpegSource{config: config}
}

func defaultInput() (format, device string) {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", ":default"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "pulse", "default"
	}
}

// Name implements Source.
func (s *FFmpegSource) Name() string {
	return "ffmpeg:" + s.config.Format + ":" + s.config.Device
}

// CheckFFmpeg reports whether the ffmpeg binary is on PATH.
func (s *FFmpegSource) CheckFFmpeg() error {
	if _, err := exec.LookPath(s.config.Binary); err != nil {
		return fmt.Errorf("%w: install ffmpeg and make sure %q is on PATH", ErrFFmpegMissing, s.config.Binary)
	}
	return nil
}

// Args returns the ffmpeg command line used for capture.
func (s *FFmpegSource) Args() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", s.config.Format,
		"-i", s.config.Device,
		"-ac", "1",
		"-ar", strconv.Itoa(s.config.SampleRate),
		"-f", "f32le",
		"-",
	}
}

// Open starts ffmpeg and blocks until the first frame arrives, so device and
// permission failures surface here rather than mid-call.
func (s *FFmpegSource) Open(ctx context.Context) (Stream, error) {
	if err := s.CheckFFmpeg(); err != nil {
		return nil, err
	}

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, s.config.Binary, s.Args()...)

	stderr := &limitedBuffer{limit: 8192}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: starting ffmpeg: %v", ErrDeviceUnavailable, err)
	}

	st := &ffmpegStream{
		sampleRate: s.config.SampleRate,
		frames:     make(chan Frame, 8),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
		cancel:     cancel,
	}
	go st.run(cmd, stdout, stderr, s.config.FrameSize)

	timer := time.NewTimer(s.config.StartTimeout)
	defer timer.Stop()

	select {
	case <-st.ready:
		return st, nil
	case <-st.done:
		err := st.Err()
		if err == nil {
			err = ErrDeviceUnavailable
		}
		return nil, err
	case <-timer.C:
		st.Close()
		return nil, fmt.Errorf("%w: no audio within %s", ErrDeviceUnavailable, s.config.StartTimeout)
	case <-ctx.Done():
		st.Close()
		return nil, ctx.Err()
	}
}

type ffmpegStream struct {
	sampleRate int
	frames     chan Frame
	ready      chan struct{}
	done       chan struct{}
	cancel     context.CancelFunc

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
	closed    bool
}

func (st *ffmpegStream) run(cmd *exec.Cmd, stdout io.Reader, stderr *limitedBuffer, frameSize int) {
	defer close(st.done)
	defer close(st.frames)

	buf := make([]byte, frameSize*4)
	first := true
	var readErr error
	for {
		n, err := io.ReadFull(stdout, buf)
		if n >= 4 {
			frame := Frame{Samples: decodeF32LE(buf[:n-n%4]), CapturedAt: time.Now()}
			st.frames <- frame
			if first {
				first = false
				close(st.ready)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				readErr = err
			}
			break
		}
	}

	waitErr := cmd.Wait()

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return
	}
	if waitErr != nil || readErr != nil {
		st.err = classifyFailure(stderr.String(), errors.Join(waitErr, readErr))
	}
}

// classifyFailure maps ffmpeg diagnostics to capture sentinels.
func classifyFailure(stderr string, err error) error {
	msg := strings.TrimSpace(stderr)
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "not authorized"),
		strings.Contains(lower, "not permitted"):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, msg)
	case msg != "":
		return fmt.Errorf("%w: %s", ErrDeviceUnavailable, msg)
	default:
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
}

func decodeF32LE(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func (st *ffmpegStream) SampleRate() int      { return st.sampleRate }
func (st *ffmpegStream) Frames() <-chan Frame { return st.frames }

func (st *ffmpegStream) Err() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.err
}

// Close stops ffmpeg and waits for the reader to exit. Frames still
// buffered in the channel are discarded.
func (st *ffmpegStream) Close() error {
	st.closeOnce.Do(func() {
		st.mu.Lock()
		st.closed = true
		st.mu.Unlock()
		st.cancel()
	})
	// Unblock a reader stuck on a full channel.
	for {
		select {
		case <-st.done:
			return nil
		case _, ok := <-st.frames:
			if !ok {
				<-st.done
				return nil
			}
		}
	}
}

// limitedBuffer keeps the first limit bytes written to it.
type limitedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
