package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/TF-SoftwareEmergentes/livecall/internal/capture"
	"github.com/TF-SoftwareEmergentes/livecall/internal/notify/redis"
	"github.com/TF-SoftwareEmergentes/livecall/internal/output"
)

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.LoadBackend(); err != nil {
				return err
			}
			cfg := deps.Config
			f := output.NewFormatter(cmd.OutOrStdout())
			ok := true

			switch cfg.Capture.Driver {
			case "ffmpeg":
				src := capture.NewFFmpegSource(capture.FFmpegConfig{
					Binary: cfg.Capture.Binary,
					Format: cfg.Capture.Format,
					Device: cfg.Capture.Device,
				})
				if err := src.CheckFFmpeg(); err != nil {
					f.SetupCheck("ffmpeg", false, err.Error())
					ok = false
				} else {
					f.SetupCheck("ffmpeg", true, src.Name())
				}
				f.SetupCheck("Microphone", true, "permission will be requested on first recording")
			case "file":
				if _, err := os.Stat(cfg.Capture.FilePath); err != nil {
					f.SetupCheck("Capture file", false, err.Error())
					ok = false
				} else {
					f.SetupCheck("Capture file", true, cfg.Capture.FilePath)
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			if _, err := deps.Backend.Statistics(ctx); err != nil {
				f.SetupCheck("Analytics backend", false, fmt.Sprintf("%s unreachable: %v", cfg.Backend.BaseURL, err))
				ok = false
			} else {
				f.SetupCheck("Analytics backend", true, cfg.Backend.BaseURL)
			}

			if cfg.Operator.Email != "" {
				f.SetupCheck("Operator", true, cfg.Operator.Email)
			} else {
				f.SetupCheck("Operator", false, "not set. Calls will not be attributed; set LIVECALL_AGENT_EMAIL or operator.email")
			}

			if cfg.Notify.Redis.URL != "" {
				if err := pingRedis(cmd.Context(), cfg.Notify.Redis.URL); err != nil {
					f.SetupCheck("Redis", false, err.Error())
					ok = false
				} else {
					f.SetupCheck("Redis", true, cfg.Notify.Redis.URL)
				}
			}
			if cfg.Notify.Webhook.URL != "" {
				f.SetupCheck("Webhook", true, cfg.Notify.Webhook.URL)
			}
			if cfg.Notify.Archive.Enabled {
				f.SetupCheck("Archive", true, cfg.Notify.Archive.Path)
			}

			if ok {
				f.Success("\nAll prerequisites met. Ready to record!")
			} else {
				f.Warning("\nSome prerequisites are missing.")
			}
			return nil
		},
	}
}

func pingRedis(ctx context.Context, url string) error {
	n, err := redis.New(redis.Config{URL: url})
	if err != nil {
		return err
	}
	defer n.Close()

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return n.Ping(ctx)
}
