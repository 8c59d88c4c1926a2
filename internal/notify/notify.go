package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/TF-SoftwareEmergentes/livecall/internal/analytics"
	"github.com/TF-SoftwareEmergentes/livecall/internal/metrics"
)

// EventCallFinalized is the event name carried by CallCompleted.
const EventCallFinalized = "call_finalized"

// Notifier delivers a finalized call to an external collaborator.
type Notifier interface {
	Notify(ctx context.Context, call *CallCompleted) error
	Close() error
}

// CallCompleted describes a call whose end-of-call report was produced.
type CallCompleted struct {
	Event           string                 `json:"event"`
	SessionID       string                 `json:"session_id"`
	StartedAt       time.Time              `json:"started_at"`
	StoppedAt       time.Time              `json:"stopped_at"`
	FinalizedAt     time.Time              `json:"finalized_at"`
	DurationSeconds int                    `json:"duration_seconds"`
	Operator        analytics.Operator     `json:"operator"`
	SegmentCount    int                    `json:"segment_count"`
	ChunkCount      int                    `json:"chunk_count"`
	Transcript      string                 `json:"transcript"`
	Alerts          []string               `json:"alerts"`
	AlertCount      int                    `json:"alert_count"`
	Report          *analytics.FinalReport `json:"report"`
	AudioBytes      int                    `json:"audio_bytes"`

	// Audio is the concatenated call recording. It is only handed to
	// notifiers that store artifacts and is never serialized.
	Audio []byte `json:"-"`
}

type named struct {
	name string
	n    Notifier
}

// Multi fans a call out to every registered notifier. Deliveries are
// independent: one failing notifier does not stop the others.
type Multi struct {
	notifiers []named
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewMulti creates an empty fan-out.
func NewMulti(logger *slog.Logger, m *metrics.Metrics) *Multi {
	return &Multi{logger: logger, metrics: m}
}

// Add registers a notifier under name.
func (m *Multi) Add(name string, n Notifier) {
	m.notifiers = append(m.notifiers, named{name: name, n: n})
}

// Names lists registered notifiers in registration order.
func (m *Multi) Names() []string {
	names := make([]string, len(m.notifiers))
	for i, n := range m.notifiers {
		names[i] = n.name
	}
	return names
}

// Len returns the number of registered notifiers.
func (m *Multi) Len() int {
	return len(m.notifiers)
}

// Notify delivers call to all notifiers concurrently and joins their errors.
func (m *Multi) Notify(ctx context.Context, call *CallCompleted) error {
	if len(m.notifiers) == 0 {
		return nil
	}

	errs := make([]error, len(m.notifiers))
	var wg sync.WaitGroup
	for i, nn := range m.notifiers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := nn.n.Notify(ctx, call)
			m.metrics.RecordNotification(nn.name, err)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", nn.name, err)
				m.logger.Warn("Notification failed",
					slog.String("notifier", nn.name),
					slog.String("session_id", call.SessionID),
					slog.String("error", err.Error()),
				)
				return
			}
			m.logger.Debug("Notification delivered",
				slog.String("notifier", nn.name),
				slog.String("session_id", call.SessionID),
				slog.Duration("took", time.Since(start)),
			)
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

// Close closes every notifier.
func (m *Multi) Close() error {
	var errs []error
	for _, nn := range m.notifiers {
		if err := nn.n.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", nn.name, err))
		}
	}
	return errors.Join(errs...)
}
