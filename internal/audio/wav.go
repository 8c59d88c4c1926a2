package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// HeaderSize is the size of the canonical PCM WAV header written by EncodeFloat32WAV.
const HeaderSize = 44

// WAVHeader represents the header structure of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

func newHeader(numSamples, sampleRate int) WAVHeader {
	numChannels := uint16(1)
	bitsPerSample := uint16(16)
	dataSize := uint32(numSamples * 2)

	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// FloatToPCM16 converts a float sample to signed 16-bit PCM. The sample is
// clamped to [-1, 1]; negative values scale by 32768 and positive values by
// 32767, truncating toward zero.
func FloatToPCM16(s float32) int16 {
	s = Clamp(s)
	if s < 0 {
		return int16(s * 0x8000)
	}
	return int16(s * 0x7fff)
}

// EncodeFloat32WAV encodes mono float samples into a 16-bit PCM WAV container.
// An empty input still yields a valid 44-byte header with a zero data length.
func EncodeFloat32WAV(samples []float32, sampleRate int) []byte {
	header := newHeader(len(samples), sampleRate)

	out := make([]byte, HeaderSize+len(samples)*2)
	buf := bytes.NewBuffer(out[:0])
	// Writes into a bytes.Buffer cannot fail.
	_ = binary.Write(buf, binary.LittleEndian, header)

	data := out[HeaderSize:]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(FloatToPCM16(s)))
	}

	return out
}

// wavFormat is the body of a "fmt " chunk.
type wavFormat struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// wavLayout locates the format and sample data inside a RIFF/WAVE file.
type wavLayout struct {
	format   wavFormat
	data     []byte // data chunk body, clipped to the bytes present
	declared uint32 // data chunk size from its header
}

// parseWAV walks the RIFF chunks up to the data chunk, skipping LIST, fact
// and any other chunk it does not need. Chunk bodies are word aligned.
func parseWAV(data []byte) (*wavLayout, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("WAV data too short: need at least 12 bytes, got %d", len(data))
	}
	if string(data[0:4]) != "RIFF" {
		return nil, fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	var (
		layout   wavLayout
		foundFmt bool
	)
	off := 12
	for len(data)-off >= 8 {
		id := string(data[off : off+4])
		size := binary.LittleEndian.Uint32(data[off+4 : off+8])
		body := off + 8
		remaining := uint64(len(data) - body)

		switch id {
		case "fmt ":
			if size < 16 || remaining < 16 {
				return nil, fmt.Errorf("invalid WAV file: fmt chunk of %d bytes", size)
			}
			if err := binary.Read(bytes.NewReader(data[body:body+16]), binary.LittleEndian, &layout.format); err != nil {
				return nil, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			foundFmt = true
		case "data":
			if !foundFmt {
				return nil, fmt.Errorf("invalid WAV file: data chunk before fmt chunk")
			}
			n := uint64(size)
			if n > remaining {
				n = remaining
			}
			layout.data = data[body : body+int(n)]
			layout.declared = size
			return &layout, nil
		}

		next := uint64(body) + uint64(size) + uint64(size&1)
		if next > uint64(len(data)) {
			break
		}
		off = int(next)
	}

	if !foundFmt {
		return nil, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	return nil, fmt.Errorf("invalid WAV file: missing data chunk")
}

// DecodeWAV decodes 16-bit mono PCM WAV data to samples. A container with an
// empty data chunk decodes to zero samples.
func DecodeWAV(data []byte) ([]int16, int, error) {
	layout, err := parseWAV(data)
	if err != nil {
		return nil, 0, err
	}
	if err := layout.format.validate(); err != nil {
		return nil, 0, err
	}

	numSamples := int(layout.declared / 2)
	if avail := len(layout.data) / 2; numSamples > avail {
		return nil, 0, fmt.Errorf("truncated WAV data: header declares %d samples, found %d", numSamples, avail)
	}

	samples := make([]int16, numSamples)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(layout.data[i*2:]))
	}
	return samples, int(layout.format.SampleRate), nil
}

func (f wavFormat) validate() error {
	if f.AudioFormat != 1 {
		return fmt.Errorf("unsupported audio format: %d (only PCM is supported)", f.AudioFormat)
	}
	if f.BitsPerSample != 16 {
		return fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", f.BitsPerSample)
	}
	if f.NumChannels != 1 {
		return fmt.Errorf("unsupported channel count: %d (only mono is supported)", f.NumChannels)
	}
	if f.SampleRate == 0 {
		return fmt.Errorf("invalid sample rate: 0")
	}
	return nil
}

// WAVInfo holds basic information about a WAV file
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumSamples    uint32  `json:"num_samples"`
}

// GetWAVInfo extracts metadata from an integer PCM WAV file of any channel
// count and byte-aligned depth. NumSamples counts frames per channel.
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	layout, err := parseWAV(data)
	if err != nil {
		return nil, err
	}
	f := layout.format
	switch {
	case f.AudioFormat != 1:
		return nil, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", f.AudioFormat)
	case f.SampleRate == 0:
		return nil, fmt.Errorf("invalid sample rate: 0")
	case f.NumChannels == 0:
		return nil, fmt.Errorf("invalid channel count: 0")
	case f.BitsPerSample == 0 || f.BitsPerSample%8 != 0:
		return nil, fmt.Errorf("unsupported bit depth: %d", f.BitsPerSample)
	}

	frameBytes := uint32(f.BitsPerSample/8) * uint32(f.NumChannels)
	numSamples := uint32(len(layout.data)) / frameBytes

	return &WAVInfo{
		SampleRate:    f.SampleRate,
		Channels:      f.NumChannels,
		BitsPerSample: f.BitsPerSample,
		Duration:      float64(numSamples) / float64(f.SampleRate),
		DataSize:      uint32(len(layout.data)),
		NumSamples:    numSamples,
	}, nil
}

// Int16ToFloat32 converts PCM-16 samples back to floats using the same
// asymmetric scale as FloatToPCM16.
func Int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		if s < 0 {
			out[i] = float32(s) / 0x8000
		} else {
			out[i] = float32(s) / 0x7fff
		}
	}
	return out
}
