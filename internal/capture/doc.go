// Package capture provides live mono audio sources: the microphone through
// an ffmpeg subprocess, and WAV file replay for testing and demos.
package capture
