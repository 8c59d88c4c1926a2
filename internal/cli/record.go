package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TF-SoftwareEmergentes/livecall/internal/analytics"
	"github.com/TF-SoftwareEmergentes/livecall/internal/output"
	"github.com/TF-SoftwareEmergentes/livecall/internal/session"
	"github.com/TF-SoftwareEmergentes/livecall/internal/tui"
)

type recordOptions struct {
	tui        bool
	saveAudio  string
	duration   time.Duration
	noFinalize bool
	email      string
	name       string
}

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	var opts recordOptions

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a live call",
		Long:  "Record from the microphone with live feedback until Ctrl+C (or --duration), then submit the whole call for the final report.\nUse --tui for an interactive view with s to stop and f to finalize.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.LoadApp(cmd.Context()); err != nil {
				return err
			}
			op := deps.Operator(opts.email, opts.name)
			if opts.tui {
				return runRecordTUI(cmd, deps, op, opts)
			}
			return runRecord(cmd, deps, op, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.tui, "tui", false, "Interactive terminal view")
	cmd.Flags().StringVarP(&opts.saveAudio, "save-audio", "o", "", "Write the full-call WAV to this path")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "Stop automatically after this long")
	cmd.Flags().BoolVar(&opts.noFinalize, "no-finalize", false, "Stop without requesting the final report")
	cmd.Flags().StringVar(&opts.email, "agent-email", "", "Operator email (overrides config)")
	cmd.Flags().StringVar(&opts.name, "agent-name", "", "Operator name (overrides config)")

	return cmd
}

func runRecord(cmd *cobra.Command, deps *Dependencies, op analytics.Operator, opts recordOptions) error {
	f := output.NewFormatter(cmd.OutOrStdout())
	sessions := deps.App.Sessions

	events, unsubscribe := sessions.Subscribe(256)
	defer unsubscribe()

	st, err := sessions.Start(cmd.Context())
	if err != nil {
		return err
	}
	f.RecordingStarted(st)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	follow(ctx, events, f)

	st, err = sessions.Stop()
	if err != nil {
		return err
	}
	f.RecordingStopped(st)

	return complete(deps, f, op, opts)
}

// follow prints session events until ctx is done or capture ends.
func follow(ctx context.Context, events <-chan session.Event, f *output.Formatter) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch data := ev.Data.(type) {
			case session.SegmentInfo:
				f.Segment(data)
			case session.ChunkUpdate:
				f.Chunk(data)
			case session.ChunkFailure:
				f.ChunkFailed(data)
			}
			if ev.Type == session.EventCaptureEnded {
				if data, ok := ev.Data.(map[string]string); ok {
					f.Warning(data["reason"])
				}
				return
			}
		}
	}
}

// complete saves the recording and finalizes a stopped call as requested.
func complete(deps *Dependencies, f *output.Formatter, op analytics.Operator, opts recordOptions) error {
	sessions := deps.App.Sessions

	if opts.saveAudio != "" {
		data, err := sessions.Audio()
		switch {
		case errors.Is(err, session.ErrNoSegments):
			f.Warning("Nothing recorded, no audio saved")
		case err != nil:
			return err
		default:
			if err := os.WriteFile(opts.saveAudio, data, 0644); err != nil {
				return fmt.Errorf("saving audio: %w", err)
			}
			f.Saved(opts.saveAudio)
		}
	}

	if opts.noFinalize || sessions.Snapshot().Status != session.StatusStopped {
		return nil
	}

	f.Finalizing()
	report, err := sessions.Finalize(context.Background(), op)
	if errors.Is(err, session.ErrNoSegments) {
		f.Warning("Nothing recorded, no report requested")
		return nil
	}
	if err != nil {
		return err
	}
	f.Report(report)
	return nil
}

func runRecordTUI(cmd *cobra.Command, deps *Dependencies, op analytics.Operator, opts recordOptions) error {
	f := output.NewFormatter(cmd.OutOrStdout())
	sessions := deps.App.Sessions

	events, unsubscribe := sessions.Subscribe(256)
	defer unsubscribe()

	if _, err := sessions.Start(cmd.Context()); err != nil {
		return err
	}

	if opts.duration > 0 {
		timer := time.AfterFunc(opts.duration, func() { sessions.Stop() })
		defer timer.Stop()
	}

	model := tui.NewLiveModel(sessions, events, op, deps.App.Config.Backend.GetFinalizeTimeoutDuration())
	if _, err := tui.RunLive(model); err != nil {
		return err
	}

	if sessions.Snapshot().Status == session.StatusRecording {
		if _, err := sessions.Stop(); err != nil {
			return err
		}
	}
	final := sessions.Snapshot()
	f.RecordingStopped(final)
	switch {
	case final.Report != nil:
		f.Report(final.Report)
	case final.Status == session.StatusStopped:
		f.Info("Call not finalized")
	}

	// finalizing is driven from the view
	opts.noFinalize = true
	return complete(deps, f, op, opts)
}
