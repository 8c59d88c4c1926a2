// Package artifact stores the full-call recording of every finalized call,
// either in a local directory or in an S3-compatible bucket.
package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/TF-SoftwareEmergentes/livecall/internal/notify"
)

// Sink persists an object under key and returns where it ended up.
type Sink interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
	Name() string
}

// Key returns the object key for a call: <prefix>/<date>/<session>.wav.
func Key(prefix string, call *notify.CallCompleted) string {
	at := call.FinalizedAt
	if at.IsZero() {
		at = time.Now()
	}
	return path.Join(prefix, at.UTC().Format("2006-01-02"), call.SessionID+".wav")
}

// Notifier writes call recordings to a Sink.
type Notifier struct {
	sink   Sink
	prefix string
	logger *slog.Logger
}

// New creates an artifact notifier.
func New(sink Sink, prefix string, logger *slog.Logger) *Notifier {
	return &Notifier{sink: sink, prefix: prefix, logger: logger}
}

// Notify stores call.Audio. Calls without audio are skipped.
func (n *Notifier) Notify(ctx context.Context, call *notify.CallCompleted) error {
	if len(call.Audio) == 0 {
		return nil
	}
	key := Key(n.prefix, call)
	uri, err := n.sink.Put(ctx, key, call.Audio)
	if err != nil {
		return fmt.Errorf("artifact %s: %w", n.sink.Name(), err)
	}
	n.logger.Info("Stored call recording",
		slog.String("session_id", call.SessionID),
		slog.String("uri", uri),
		slog.Int("bytes", len(call.Audio)),
	)
	return nil
}

// Close is a no-op; sinks hold no long-lived resources.
func (n *Notifier) Close() error { return nil }

// LocalSink writes objects below a directory.
type LocalSink struct {
	dir string
}

// NewLocalSink creates the directory if needed.
func NewLocalSink(dir string) (*LocalSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("local artifact sink requires a directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &LocalSink{dir: dir}, nil
}

func (s *LocalSink) Name() string { return "local" }

// Put writes data atomically through a temporary file.
func (s *LocalSink) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}

	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return dst, nil
}

var _ notify.Notifier = (*Notifier)(nil)
