package session

import (
	"errors"
	"fmt"

	"github.com/TF-SoftwareEmergentes/livecall/internal/capture"
)

var (
	// ErrSessionActive is returned when an operation needs the recorder to be
	// idle, stopped or finalized but a call is recording or finalizing.
	ErrSessionActive = errors.New("a call is already in progress")
	// ErrNotRecording is returned by Stop outside the recording state.
	ErrNotRecording = errors.New("not recording")
	// ErrInvalidState is returned when an operation is not allowed in the current state.
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrNoSegments is returned when finalizing or exporting a call with no audio.
	ErrNoSegments = errors.New("no audio segments recorded")
)

// CaptureError reports that the audio input could not be opened.
type CaptureError struct {
	Source string
	Err    error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s: %v", e.Source, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Reason classifies the failure for metrics and user messages.
func (e *CaptureError) Reason() string {
	switch {
	case errors.Is(e.Err, capture.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(e.Err, capture.ErrFFmpegMissing):
		return "ffmpeg_missing"
	case errors.Is(e.Err, capture.ErrDeviceUnavailable):
		return "device_unavailable"
	default:
		return "other"
	}
}
