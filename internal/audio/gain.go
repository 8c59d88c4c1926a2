package audio

import "math"

// DefaultGain is the fixed amplification applied to captured frames.
const DefaultGain = 5.0

// Clamp limits a sample to the [-1, 1] range.
func Clamp(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}

// Amplify multiplies each sample by gain and clamps the result, writing into
// dst. dst must be at least len(src) long; the written prefix is returned.
func Amplify(dst, src []float32, gain float32) []float32 {
	dst = dst[:len(src)]
	for i, s := range src {
		dst[i] = Clamp(s * gain)
	}
	return dst
}

// Level returns the RMS and absolute peak of a block of samples.
func Level(samples []float32) (rms, peak float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return math.Sqrt(sum / float64(len(samples))), peak
}
