package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/TF-SoftwareEmergentes/livecall/internal/analytics"
	"github.com/TF-SoftwareEmergentes/livecall/internal/capture"
	"github.com/TF-SoftwareEmergentes/livecall/internal/config"
	"github.com/TF-SoftwareEmergentes/livecall/internal/metrics"
	"github.com/TF-SoftwareEmergentes/livecall/internal/notify"
	"github.com/TF-SoftwareEmergentes/livecall/internal/notify/archive"
	"github.com/TF-SoftwareEmergentes/livecall/internal/notify/artifact"
	"github.com/TF-SoftwareEmergentes/livecall/internal/notify/redis"
	"github.com/TF-SoftwareEmergentes/livecall/internal/notify/webhook"
	"github.com/TF-SoftwareEmergentes/livecall/internal/server"
	"github.com/TF-SoftwareEmergentes/livecall/internal/session"
)

// App holds the wired components of the recorder.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Backend  *analytics.Client
	Source   capture.Source
	Notifier *notify.Multi
	Archive  *archive.Archive // nil when the archive is disabled
	Redis    *redis.Notifier  // nil when no Redis URL is configured
	Sessions *session.Manager
}

// New wires the recorder from cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetricsWith(reg)

	backend, err := NewBackend(cfg)
	if err != nil {
		return nil, err
	}

	src, err := NewSource(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  m,
		Backend:  backend,
		Source:   src,
		Notifier: notify.NewMulti(logger, m),
	}

	if err := a.setupNotifiers(ctx); err != nil {
		a.Notifier.Close()
		return nil, err
	}

	a.Sessions = session.NewManager(logger, SessionConfig(cfg), src, backend,
		session.WithMetrics(m),
		session.WithNotifier(a.Notifier),
	)

	logger.Info("Recorder initialized",
		slog.String("backend", backend.BaseURL()),
		slog.String("capture", src.Name()),
		slog.Any("notifiers", a.Notifier.Names()),
	)
	return a, nil
}

// NewBackend creates the analytics client described by cfg.Backend.
func NewBackend(cfg *config.Config) (*analytics.Client, error) {
	// end-call may run up to the finalize timeout
	timeout := max(cfg.Backend.GetTimeoutDuration(), cfg.Backend.GetFinalizeTimeoutDuration())
	backend, err := analytics.NewClient(analytics.Config{
		BaseURL:       cfg.Backend.BaseURL,
		Timeout:       timeout,
		MaxRetries:    cfg.Backend.MaxRetries,
		MaxConcurrent: cfg.Backend.MaxConcurrent,
	})
	if err != nil {
		return nil, fmt.Errorf("analytics client: %w", err)
	}
	return backend, nil
}

// NewSource builds the capture source selected by cfg.Capture.Driver.
func NewSource(cfg *config.Config) (capture.Source, error) {
	switch cfg.Capture.Driver {
	case "ffmpeg", "":
		return capture.NewFFmpegSource(capture.FFmpegConfig{
			Binary:     cfg.Capture.Binary,
			Format:     cfg.Capture.Format,
			Device:     cfg.Capture.Device,
			SampleRate: cfg.Audio.SampleRate,
			FrameSize:  cfg.Audio.FrameSize,
		}), nil
	case "file":
		return capture.NewFileSource(cfg.Capture.FilePath, cfg.Audio.FrameSize, cfg.Capture.Realtime), nil
	default:
		return nil, fmt.Errorf("unknown capture driver %q", cfg.Capture.Driver)
	}
}

// SessionConfig maps the recorder configuration onto session parameters.
func SessionConfig(cfg *config.Config) session.Config {
	sc := session.DefaultConfig()
	sc.SegmentInterval = cfg.Audio.GetSegmentInterval()
	sc.MinSegmentBytes = cfg.Audio.MinSegmentBytes
	sc.Gain = float32(cfg.Audio.Gain)
	sc.LevelThreshold = cfg.Audio.LevelThreshold
	sc.Channel = cfg.Backend.Channel
	sc.ChunkTimeout = cfg.Backend.GetChunkTimeoutDuration()
	sc.FinalizeTimeout = cfg.Backend.GetFinalizeTimeoutDuration()
	sc.NotifyTimeout = cfg.Notify.GetTimeoutDuration()
	return sc
}

func (a *App) setupNotifiers(ctx context.Context) error {
	n := a.Config.Notify

	if n.Webhook.URL != "" {
		wh, err := webhook.New(webhook.Config{
			URL:     n.Webhook.URL,
			Headers: n.Webhook.Headers,
			Timeout: time.Duration(n.Webhook.Timeout) * time.Second,
			Retries: n.Webhook.Retries,
		})
		if err != nil {
			return fmt.Errorf("webhook notifier: %w", err)
		}
		a.Notifier.Add("webhook", wh)
	}

	if n.Redis.URL != "" {
		rn, err := redis.New(redis.Config{
			URL:     n.Redis.URL,
			Channel: n.Redis.Channel,
			Timeout: time.Duration(n.Redis.Timeout) * time.Second,
			Retries: n.Redis.Retries,
		})
		if err != nil {
			return fmt.Errorf("redis notifier: %w", err)
		}
		a.Redis = rn
		a.Notifier.Add("redis", rn)
	}

	if n.Archive.Enabled {
		arc, err := archive.Open(archive.Config{Path: n.Archive.Path})
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		a.Archive = arc
		a.Notifier.Add("archive", arc)
	}

	if n.Artifact.Enabled {
		sink, err := newSink(ctx, n.Artifact)
		if err != nil {
			return fmt.Errorf("artifact sink: %w", err)
		}
		a.Notifier.Add("artifact", artifact.New(sink, n.Artifact.S3.Prefix, a.Logger))
	}

	return nil
}

func newSink(ctx context.Context, cfg config.ArtifactConfig) (artifact.Sink, error) {
	if cfg.S3.Bucket != "" {
		return artifact.NewS3Sink(ctx, artifact.S3Config{
			Bucket:       cfg.S3.Bucket,
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
	}
	return artifact.NewLocalSink(cfg.Dir)
}

// Operator returns the configured operator identity.
func (a *App) Operator() analytics.Operator {
	return analytics.Operator{Email: a.Config.Operator.Email, Name: a.Config.Operator.Name}
}

// NewHTTPServer builds the local control API around the session manager.
func (a *App) NewHTTPServer() *server.HTTPServer {
	return server.NewHTTPServer(a.Logger, a.Config, a.Sessions, a.Backend, a.Metrics,
		server.WithGatherer(a.Registry))
}

// Close stops any recording, waits for pending notifications and releases
// the notifiers and the backend client.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Sessions != nil {
		if err := a.Sessions.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("sessions: %w", err))
		}
	}
	if err := a.Notifier.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.Backend.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("backend: %w", err))
	}
	return errors.Join(errs...)
}
