package capture

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/TF-SoftwareEmergentes/livecall/internal/audio"
)

// FileSource replays a mono 16-bit WAV file as if it were a live input.
type FileSource struct {
	path      string
	frameSize int
	realtime  bool
}

// NewFileSource creates a WAV replay source. When realtime is set frames are
// paced at the file's sample rate; otherwise they are emitted as fast as the
// consumer reads them.
func NewFileSource(path string, frameSize int, realtime bool) *FileSource {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	return &FileSource{path: path, frameSize: frameSize, realtime: realtime}
}

// Name implements Source.
func (s *FileSource) Name() string {
	return "file:" + s.path
}

// Open decodes the file and starts emitting frames.
func (s *FileSource) Open(ctx context.Context) (Stream, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	pcm, rate, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, s.path, err)
	}
	return NewSliceStream(audio.Int16ToFloat32(pcm), rate, s.frameSize, s.realtime), nil
}

// SliceStream emits a fixed sample slice as frames.
type SliceStream struct {
	sampleRate int
	frames     chan Frame
	stop       chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
}

// NewSliceStream starts emitting samples in frameSize blocks.
func NewSliceStream(samples []float32, sampleRate, frameSize int, realtime bool) *SliceStream {
	st := &SliceStream{
		sampleRate: sampleRate,
		frames:     make(chan Frame),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go st.run(samples, frameSize, realtime)
	return st
}

func (st *SliceStream) run(samples []float32, frameSize int, realtime bool) {
	defer close(st.done)
	defer close(st.frames)

	var ticker *time.Ticker
	if realtime && st.sampleRate > 0 {
		ticker = time.NewTicker(time.Duration(frameSize) * time.Second / time.Duration(st.sampleRate))
		defer ticker.Stop()
	}

	for off := 0; off < len(samples); off += frameSize {
		end := min(off+frameSize, len(samples))
		if ticker != nil {
			select {
			case <-ticker.C:
			case <-st.stop:
				return
			}
		}
		frame := Frame{Samples: samples[off:end:end], CapturedAt: time.Now()}
		select {
		case st.frames <- frame:
		case <-st.stop:
			return
		}
	}
}

func (st *SliceStream) SampleRate() int      { return st.sampleRate }
func (st *SliceStream) Frames() <-chan Frame { return st.frames }
func (st *SliceStream) Err() error           { return nil }

// Close stops emission and waits for the emitter to exit.
func (st *SliceStream) Close() error {
	st.closeOnce.Do(func() { close(st.stop) })
	<-st.done
	return nil
}
