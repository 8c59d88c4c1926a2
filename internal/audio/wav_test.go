package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestEncodeFloat32WAVHeader(t *testing.T) {
	samples := make([]float32, 100)
	data := EncodeFloat32WAV(samples, 48000)

	if len(data) != HeaderSize+200 {
		t.Fatalf("Expected %d bytes, got %d", HeaderSize+200, len(data))
	}

	checks := []struct {
		name string
		got  uint32
		want uint32
	}{
		{"riff size", binary.LittleEndian.Uint32(data[4:8]), 36 + 200},
		{"fmt size", binary.LittleEndian.Uint32(data[16:20]), 16},
		{"format", uint32(binary.LittleEndian.Uint16(data[20:22])), 1},
		{"channels", uint32(binary.LittleEndian.Uint16(data[22:24])), 1},
		{"sample rate", binary.LittleEndian.Uint32(data[24:28]), 48000},
		{"byte rate", binary.LittleEndian.Uint32(data[28:32]), 96000},
		{"block align", uint32(binary.LittleEndian.Uint16(data[32:34])), 2},
		{"bits", uint32(binary.LittleEndian.Uint16(data[34:36])), 16},
		{"data size", binary.LittleEndian.Uint32(data[40:44]), 200},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: expected %d, got %d", c.name, c.want, c.got)
		}
	}

	if _, _, err := DecodeWAV(data); err != nil {
		t.Errorf("Generated WAV is invalid: %v", err)
	}
}

func TestEncodeFloat32WAVEmpty(t *testing.T) {
	data := EncodeFloat32WAV(nil, 44100)
	if len(data) != HeaderSize {
		t.Fatalf("Expected bare header of %d bytes, got %d", HeaderSize, len(data))
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); got != 0 {
		t.Errorf("Expected zero data length, got %d", got)
	}

	samples, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if len(samples) != 0 || rate != 44100 {
		t.Errorf("Expected 0 samples at 44100, got %d at %d", len(samples), rate)
	}
}

func TestFloatToPCM16(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32768},
		{2, 32767},
		{-3, -32768},
		{0.5, 16383},
		{-0.5, -16384},
	}

	for _, tt := range tests {
		if got := FloatToPCM16(tt.in); got != tt.want {
			t.Errorf("FloatToPCM16(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sampleRate := 16000
	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = float32(0.8 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}

	decoded, rate, err := DecodeWAV(EncodeFloat32WAV(samples, sampleRate))
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != sampleRate {
		t.Errorf("Expected sample rate %d, got %d", sampleRate, rate)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded))
	}

	back := Int16ToFloat32(decoded)
	for i := range samples {
		if math.Abs(float64(back[i]-samples[i])) > 2.0/32767 {
			t.Fatalf("Sample %d: expected ~%f, got %f", i, samples[i], back[i])
		}
	}
}

func TestDecodeWAVTruncated(t *testing.T) {
	data := EncodeFloat32WAV(make([]float32, 10), 8000)
	if _, _, err := DecodeWAV(data[:len(data)-4]); err == nil {
		t.Error("Expected error for truncated data chunk")
	}
}

func TestDecodeWAVRejects(t *testing.T) {
	valid := EncodeFloat32WAV(make([]float32, 10), 8000)

	withField := func(off int, v uint16) []byte {
		d := append([]byte(nil), valid...)
		binary.LittleEndian.PutUint16(d[off:], v)
		return d
	}
	fake := append([]byte(nil), valid...)
	copy(fake[0:4], "FAKE")

	tests := []struct {
		name string
		data []byte
	}{
		{"too short", []byte{1, 2, 3}},
		{"not riff", fake},
		{"float format", withField(20, 3)},
		{"stereo", withField(22, 2)},
		{"8 bit", withField(34, 8)},
		{"no data chunk", valid[:36]},
		{"data before fmt", append([]byte("RIFF\x00\x00\x00\x00WAVE"), chunk("data", []byte{0, 0})...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := DecodeWAV(tt.data); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

// chunk builds a RIFF chunk, padding odd bodies to a word boundary.
func chunk(id string, body []byte) []byte {
	out := append([]byte(id), 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(out[4:], uint32(len(body)))
	out = append(out, body...)
	if len(body)%2 == 1 {
		out = append(out, 0)
	}
	return out
}

func TestDecodeWAVSkipsExtraChunks(t *testing.T) {
	samples := []int16{100, -200, 300, -400, 500}
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}

	// WAVE_FORMAT_PCM with the 2-byte cbSize extension some encoders write.
	fmtBody := make([]byte, 18)
	binary.LittleEndian.PutUint16(fmtBody[0:], 1)
	binary.LittleEndian.PutUint16(fmtBody[2:], 1)
	binary.LittleEndian.PutUint32(fmtBody[4:], 22050)
	binary.LittleEndian.PutUint32(fmtBody[8:], 44100)
	binary.LittleEndian.PutUint16(fmtBody[12:], 2)
	binary.LittleEndian.PutUint16(fmtBody[14:], 16)

	var body []byte
	body = append(body, "WAVE"...)
	body = append(body, chunk("LIST", []byte("INFOISFT\x05\x00\x00\x00Lavf\x00"))...)
	body = append(body, chunk("fmt ", fmtBody)...)
	body = append(body, chunk("fact", []byte{5, 0, 0, 0})...)
	body = append(body, chunk("data", pcm)...)
	data := append([]byte("RIFF\x00\x00\x00\x00"), body...)
	binary.LittleEndian.PutUint32(data[4:], uint32(len(body)))

	decoded, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != 22050 {
		t.Errorf("Expected sample rate 22050, got %d", rate)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded))
	}
	for i, want := range samples {
		if decoded[i] != want {
			t.Errorf("Sample %d: expected %d, got %d", i, want, decoded[i])
		}
	}

	info, err := GetWAVInfo(data)
	if err != nil {
		t.Fatalf("GetWAVInfo failed: %v", err)
	}
	if info.NumSamples != 5 || info.SampleRate != 22050 {
		t.Errorf("Unexpected info: %+v", info)
	}
}

func TestGetWAVInfoMalformed(t *testing.T) {
	valid := EncodeFloat32WAV(make([]float32, 10), 8000)

	tests := []struct {
		name  string
		off   int
		value uint16
	}{
		{"zero bit depth", 34, 0},
		{"odd bit depth", 34, 12},
		{"zero channels", 22, 0},
		{"compressed format", 20, 0x55},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := append([]byte(nil), valid...)
			binary.LittleEndian.PutUint16(d[tt.off:], tt.value)
			if _, err := GetWAVInfo(d); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestGetWAVInfo(t *testing.T) {
	data := EncodeFloat32WAV(make([]float32, 8000), 8000)

	info, err := GetWAVInfo(data)
	if err != nil {
		t.Fatalf("GetWAVInfo failed: %v", err)
	}
	if info.NumSamples != 8000 {
		t.Errorf("Expected 8000 samples, got %d", info.NumSamples)
	}
	if math.Abs(info.Duration-1.0) > 0.001 {
		t.Errorf("Expected duration 1.000, got %.3f", info.Duration)
	}
}
