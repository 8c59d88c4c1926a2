package audio

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// Segment is one encoded slice of a live call, produced at a segment tick.
// It is immutable once built.
type Segment struct {
	ID          string        `json:"id"`
	Index       int           `json:"index"`
	CreatedAt   time.Time     `json:"created_at"`
	SampleCount int           `json:"sample_count"`
	SampleRate  int           `json:"sample_rate"`
	Duration    time.Duration `json:"duration"`
	Data        []byte        `json:"-"` // WAV container
}

// NewSegment encodes samples into a WAV container and wraps them as the
// index-th segment of a call.
func NewSegment(index int, samples []float32, sampleRate int) *Segment {
	var dur time.Duration
	if sampleRate > 0 {
		dur = time.Duration(len(samples)) * time.Second / time.Duration(sampleRate)
	}
	return &Segment{
		ID:          uuid.NewString(),
		Index:       index,
		CreatedAt:   time.Now(),
		SampleCount: len(samples),
		SampleRate:  sampleRate,
		Duration:    dur,
		Data:        EncodeFloat32WAV(samples, sampleRate),
	}
}

// Size returns the encoded byte length of the segment.
func (s *Segment) Size() int {
	return len(s.Data)
}

// Concat joins the encoded segments in the given order. Each segment keeps
// its own header, so the result is the byte-for-byte sequence of containers
// that was uploaded during the call.
func Concat(segments []*Segment) []byte {
	total := 0
	for _, s := range segments {
		total += len(s.Data)
	}
	var buf bytes.Buffer
	buf.Grow(total)
	for _, s := range segments {
		buf.Write(s.Data)
	}
	return buf.Bytes()
}
