package audio

import (
	"sync"
	"time"
)

// Accumulator collects amplified mono samples between segment boundaries.
// Every sample appended between two Drain calls is returned by exactly one
// of them.
type Accumulator struct {
	gain    float32
	samples []float32

	// Stats
	totalFrames  uint64
	totalSamples uint64
	drains       uint64
	lastAppend   time.Time

	mu sync.Mutex
}

// AccumulatorStats represents accumulator statistics for monitoring
type AccumulatorStats struct {
	Gain         float32   `json:"gain"`
	Pending      int       `json:"pending_samples"`
	TotalFrames  uint64    `json:"total_frames"`
	TotalSamples uint64    `json:"total_samples"`
	Drains       uint64    `json:"drains"`
	LastAppend   time.Time `json:"last_append"`
}

// NewAccumulator creates an accumulator that multiplies every sample by gain.
// A non-positive gain falls back to DefaultGain.
func NewAccumulator(gain float32, capacityHint int) *Accumulator {
	if gain <= 0 {
		gain = DefaultGain
	}
	return &Accumulator{
		gain:    gain,
		samples: make([]float32, 0, capacityHint),
	}
}

// Append amplifies, clamps and stores a frame. The input slice is not retained.
func (a *Accumulator) Append(frame []float32) {
	if len(frame) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	start := len(a.samples)
	a.samples = append(a.samples, frame...)
	Amplify(a.samples[start:], frame, a.gain)

	a.totalFrames++
	a.totalSamples += uint64(len(frame))
	a.lastAppend = time.Now()
}

// Drain hands over everything collected since the previous drain and leaves
// the accumulator empty. It returns nil when nothing was collected.
func (a *Accumulator) Drain() []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.samples) == 0 {
		return nil
	}

	out := a.samples
	a.samples = make([]float32, 0, cap(out))
	a.drains++
	return out
}

// Discard drops pending samples without producing a segment.
func (a *Accumulator) Discard() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.samples)
	a.samples = a.samples[:0]
	return n
}

// GetStats returns accumulator statistics
func (a *Accumulator) GetStats() AccumulatorStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	return AccumulatorStats{
		Gain:         a.gain,
		Pending:      len(a.samples),
		TotalFrames:  a.totalFrames,
		TotalSamples: a.totalSamples,
		Drains:       a.drains,
		LastAppend:   a.lastAppend,
	}
}
