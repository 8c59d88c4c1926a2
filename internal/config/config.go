package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete recorder configuration
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Audio    AudioConfig    `yaml:"audio"`
	Capture  CaptureConfig  `yaml:"capture"`
	Operator OperatorConfig `yaml:"operator"`
	HTTP     HTTPConfig     `yaml:"http"`
	Notify   NotifyConfig   `yaml:"notify"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BackendConfig contains the feeling-analytics API configuration
type BackendConfig struct {
	BaseURL         string `yaml:"base_url"`
	Timeout         int    `yaml:"timeout"`          // seconds, per request attempt
	ChunkTimeout    int    `yaml:"chunk_timeout"`    // seconds
	FinalizeTimeout int    `yaml:"finalize_timeout"` // seconds
	MaxRetries      int    `yaml:"max_retries"`
	MaxConcurrent   int    `yaml:"max_concurrent"`
	Channel         string `yaml:"channel"`
}

// AudioConfig contains segmenting parameters
type AudioConfig struct {
	SampleRate      int     `yaml:"sample_rate"`
	SegmentInterval float64 `yaml:"segment_interval"` // seconds
	MinSegmentBytes int     `yaml:"min_segment_bytes"`
	Gain            float64 `yaml:"gain"`
	FrameSize       int     `yaml:"frame_size"` // samples per captured frame
	LevelThreshold  float64 `yaml:"level_threshold"`
}

// CaptureConfig selects and configures the audio input
type CaptureConfig struct {
	Driver   string `yaml:"driver"` // ffmpeg or file
	Binary   string `yaml:"binary"`
	Format   string `yaml:"format"`
	Device   string `yaml:"device"`
	FilePath string `yaml:"file_path"`
	Realtime bool   `yaml:"realtime"`
}

// OperatorConfig identifies the agent calls are attributed to
type OperatorConfig struct {
	Email string `yaml:"email"`
	Name  string `yaml:"name"`
}

// HTTPConfig contains the local control API configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// NotifyConfig configures where finalized calls are delivered
type NotifyConfig struct {
	Timeout  int            `yaml:"timeout"` // seconds, for the whole fan-out
	Webhook  WebhookConfig  `yaml:"webhook"`
	Redis    RedisConfig    `yaml:"redis"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Artifact ArtifactConfig `yaml:"artifact"`
}

// WebhookConfig is enabled by setting a URL
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout int               `yaml:"timeout"` // seconds
	Retries int               `yaml:"retries"`
}

// RedisConfig is enabled by setting a URL
type RedisConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
	Timeout int    `yaml:"timeout"` // seconds
	Retries int    `yaml:"retries"`
}

// ArchiveConfig configures the local call archive
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ArtifactConfig configures storage of full-call recordings. S3 is used when
// a bucket is set, the local directory otherwise.
type ArtifactConfig struct {
	Enabled bool     `yaml:"enabled"`
	Dir     string   `yaml:"dir"`
	S3      S3Config `yaml:"s3"`
}

// S3Config locates the artifact bucket
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a complete working configuration.
func Default() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Backend: BackendConfig{
			BaseURL:         "http://localhost:8000",
			Timeout:         30,
			ChunkTimeout:    30,
			FinalizeTimeout: 120,
			MaxRetries:      2,
			MaxConcurrent:   4,
			Channel:         "caller",
		},
		Audio: AudioConfig{
			SampleRate:      16000,
			SegmentInterval: 5,
			MinSegmentBytes: 10000,
			Gain:            5,
			FrameSize:       4096,
			LevelThreshold:  0.02,
		},
		Capture: CaptureConfig{
			Driver:   "ffmpeg",
			Binary:   "ffmpeg",
			Realtime: true,
		},
		HTTP: HTTPConfig{
			Port:    8090,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Notify: NotifyConfig{
			Timeout: 30,
			Webhook: WebhookConfig{Timeout: 10, Retries: 3},
			Redis:   RedisConfig{Channel: "livecall:call_finalized", Timeout: 5, Retries: 3},
			Archive: ArchiveConfig{Enabled: true, Path: filepath.Join(dataDir, "archive")},
			Artifact: ArtifactConfig{
				Enabled: false,
				Dir:     filepath.Join(dataDir, "recordings"),
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "livecall")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".livecall")
	}
	return ".livecall"
}

// Load reads the configuration file on top of the defaults, then applies a
// .env file and environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := LoadDotEnv(""); err != nil {
		return nil, err
	}
	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// LoadDotEnv loads variables from a .env file without overriding ones that
// are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LIVECALL_API_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("LIVECALL_AGENT_EMAIL"); v != "" {
		cfg.Operator.Email = v
	}
	if v := os.Getenv("LIVECALL_AGENT_NAME"); v != "" {
		cfg.Operator.Name = v
	}
	if v := os.Getenv("LIVECALL_REDIS_URL"); v != "" {
		cfg.Notify.Redis.URL = v
	}
	if v := os.Getenv("LIVECALL_WEBHOOK_URL"); v != "" {
		cfg.Notify.Webhook.URL = v
	}
	if v := os.Getenv("LIVECALL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Notify.Validate(); err != nil {
		return fmt.Errorf("notify config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates backend configuration
func (b *BackendConfig) Validate() error {
	u, err := url.Parse(b.BaseURL)
	if err != nil || b.BaseURL == "" {
		return fmt.Errorf("base_url must be a valid URL, got '%s'", b.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url must use http or https, got '%s'", b.BaseURL)
	}

	if b.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", b.Timeout)
	}

	if b.ChunkTimeout < 1 {
		return fmt.Errorf("chunk_timeout must be at least 1 second, got %d", b.ChunkTimeout)
	}

	if b.FinalizeTimeout < 1 {
		return fmt.Errorf("finalize_timeout must be at least 1 second, got %d", b.FinalizeTimeout)
	}

	if b.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", b.MaxRetries)
	}

	if b.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", b.MaxConcurrent)
	}

	if b.Channel != "caller" && b.Channel != "client" {
		return fmt.Errorf("channel must be 'caller' or 'client', got '%s'", b.Channel)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}

	if a.SegmentInterval <= 0 {
		return fmt.Errorf("segment_interval must be positive, got %f", a.SegmentInterval)
	}

	if a.MinSegmentBytes < 0 {
		return fmt.Errorf("min_segment_bytes cannot be negative, got %d", a.MinSegmentBytes)
	}

	if a.Gain <= 0 {
		return fmt.Errorf("gain must be positive, got %f", a.Gain)
	}

	if a.FrameSize < 256 {
		return fmt.Errorf("frame_size must be at least 256 samples, got %d", a.FrameSize)
	}

	if a.LevelThreshold <= 0 || a.LevelThreshold > 1 {
		return fmt.Errorf("level_threshold must be in (0, 1], got %f", a.LevelThreshold)
	}

	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	switch c.Driver {
	case "ffmpeg":
		if c.Binary == "" {
			return fmt.Errorf("binary cannot be empty for the ffmpeg driver")
		}
	case "file":
		if c.FilePath == "" {
			return fmt.Errorf("file_path cannot be empty for the file driver")
		}
	default:
		return fmt.Errorf("driver must be 'ffmpeg' or 'file', got '%s'", c.Driver)
	}
	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates notifier configuration
func (n *NotifyConfig) Validate() error {
	if n.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", n.Timeout)
	}

	if n.Webhook.URL != "" {
		if u, err := url.Parse(n.Webhook.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("webhook url must be an http(s) URL, got '%s'", n.Webhook.URL)
		}
		if n.Webhook.Retries < 0 {
			return fmt.Errorf("webhook retries cannot be negative, got %d", n.Webhook.Retries)
		}
	}

	if n.Redis.URL != "" {
		if !strings.HasPrefix(n.Redis.URL, "redis://") && !strings.HasPrefix(n.Redis.URL, "rediss://") {
			return fmt.Errorf("redis url must start with redis:// or rediss://, got '%s'", n.Redis.URL)
		}
		if n.Redis.Retries < 0 {
			return fmt.Errorf("redis retries cannot be negative, got %d", n.Redis.Retries)
		}
	}

	if n.Archive.Enabled && n.Archive.Path == "" {
		return fmt.Errorf("archive path cannot be empty when the archive is enabled")
	}

	if n.Artifact.Enabled && n.Artifact.S3.Bucket == "" && n.Artifact.Dir == "" {
		return fmt.Errorf("artifact needs a dir or an s3 bucket when enabled")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// anything other than stdout or stderr is a file path
	if l.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	return nil
}

// GetTimeoutDuration returns the per-attempt request timeout
func (b *BackendConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(b.Timeout) * time.Second
}

// GetChunkTimeoutDuration returns the live chunk timeout
func (b *BackendConfig) GetChunkTimeoutDuration() time.Duration {
	return time.Duration(b.ChunkTimeout) * time.Second
}

// GetFinalizeTimeoutDuration returns the end-of-call timeout
func (b *BackendConfig) GetFinalizeTimeoutDuration() time.Duration {
	return time.Duration(b.FinalizeTimeout) * time.Second
}

// GetSegmentInterval returns the segment interval as a time.Duration
func (a *AudioConfig) GetSegmentInterval() time.Duration {
	return time.Duration(a.SegmentInterval * float64(time.Second))
}

// GetTimeoutDuration returns the notification timeout
func (n *NotifyConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(n.Timeout) * time.Second
}

// Addr returns the listen address of the control API
func (h *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Address, h.Port)
}
