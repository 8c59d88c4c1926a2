// Package audio holds the PCM side of a live call: float-to-PCM16 WAV
// encoding, the gain stage, the segment accumulator and the encoded Segment
// type that is uploaded for analysis.
package audio
