package meter

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/TF-SoftwareEmergentes/livecall/internal/audio"
)

// Meter tracks the input level of the capture stream for volume feedback.
// It is fed every captured frame and read on its own cadence.
type Meter struct {
	threshold float64 // RMS above which the operator is considered speaking
	smoothing float64 // weight of the newest block in the smoothed level

	level     float64
	peak      float64
	lastFrame time.Time
	observed  bool

	// Statistics
	totalFrames  uint64
	activeFrames uint64

	mu sync.RWMutex
}

// Reading is a single level sample published to observers.
type Reading struct {
	Level     float64   `json:"level"`  // smoothed RMS, 0.0 - 1.0
	Peak      float64   `json:"peak"`   // absolute peak of the latest frame
	Active    bool      `json:"active"` // level above the speaking threshold
	Timestamp time.Time `json:"timestamp"`
}

// Stats represents meter statistics
type Stats struct {
	TotalFrames      uint64    `json:"total_frames"`
	ActiveFrames     uint64    `json:"active_frames"`
	ActivePercentage float64   `json:"active_percentage"`
	LastFrame        time.Time `json:"last_frame"`
	Threshold        float64   `json:"threshold"`
}

// New creates a level meter.
func New(threshold, smoothing float64) (*Meter, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}
	if smoothing <= 0 || smoothing > 1 {
		return nil, fmt.Errorf("smoothing must be in (0, 1], got %f", smoothing)
	}
	return &Meter{
		threshold: threshold,
		smoothing: smoothing,
	}, nil
}

// Observe updates the meter with one frame of amplified samples.
func (m *Meter) Observe(frame []float32) {
	if len(frame) == 0 {
		return
	}
	rms, peak := audio.Level(frame)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.observed {
		rms = m.smoothing*rms + (1-m.smoothing)*m.level
	}
	m.level = math.Min(rms, 1)
	m.peak = peak
	m.observed = true
	m.lastFrame = time.Now()

	m.totalFrames++
	if m.level >= m.threshold {
		m.activeFrames++
	}
}

// Read returns the current level.
func (m *Meter) Read() Reading {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Reading{
		Level:     m.level,
		Peak:      m.peak,
		Active:    m.observed && m.level >= m.threshold,
		Timestamp: time.Now(),
	}
}

// Bars renders the current level as n bar heights in [0, 1], loudest in the
// middle, for simple visualizers.
func (m *Meter) Bars(n int) []float64 {
	return BarsFor(m.Read().Level, n)
}

// BarsFor spreads level over n bars the way Bars does, for observers that
// only receive Readings.
func BarsFor(level float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	bars := make([]float64, n)
	mid := float64(n-1) / 2
	for i := range bars {
		falloff := 1.0
		if mid > 0 {
			falloff = 1 - 0.5*math.Abs(float64(i)-mid)/mid
		}
		bars[i] = level * falloff
	}
	return bars
}

// GetStats returns current meter statistics
func (m *Meter) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pct := float64(0)
	if m.totalFrames > 0 {
		pct = float64(m.activeFrames) / float64(m.totalFrames) * 100
	}
	return Stats{
		TotalFrames:      m.totalFrames,
		ActiveFrames:     m.activeFrames,
		ActivePercentage: pct,
		LastFrame:        m.lastFrame,
		Threshold:        m.threshold,
	}
}

// Reset clears the level and statistics.
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.level = 0
	m.peak = 0
	m.observed = false
	m.totalFrames = 0
	m.activeFrames = 0
	m.lastFrame = time.Time{}
}
