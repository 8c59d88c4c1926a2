package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/TF-SoftwareEmergentes/livecall/internal/analytics"
	"github.com/TF-SoftwareEmergentes/livecall/internal/audio"
	"github.com/TF-SoftwareEmergentes/livecall/internal/notify/archive"
	"github.com/TF-SoftwareEmergentes/livecall/internal/output"
)

const requestTimeout = 30 * time.Second

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func NewAnalyzeCmd(deps *Dependencies) *cobra.Command {
	var (
		channels string
		email    string
		name     string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze a recorded call",
		Long:  "Upload a recorded WAV or MP3 for the full batch analysis.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.LoadBackend(); err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			f := output.NewFormatter(cmd.OutOrStdout())

			// MP3 goes up as is; WAV is checked locally before the upload.
			if bytes.HasPrefix(data, []byte("RIFF")) {
				info, err := audio.GetWAVInfo(data)
				if err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				if info.NumSamples == 0 {
					return fmt.Errorf("%s: no audio samples", args[0])
				}
				if !asJSON {
					f.Info(fmt.Sprintf("Uploading %s (%s, %d Hz, %d ch)", filepath.Base(args[0]),
						output.FormatDuration(time.Duration(info.Duration*float64(time.Second))), info.SampleRate, info.Channels))
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), deps.Config.Backend.GetFinalizeTimeoutDuration())
			defer cancel()
			res, err := deps.Backend.AnalyzeAudio(ctx, filepath.Base(args[0]), data, channels, deps.Operator(email, name))
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			f.Analysis(res)
			return nil
		},
	}

	cmd.Flags().StringVar(&channels, "channels", "both", "Channels to analyze: both, caller, client or mono")
	cmd.Flags().StringVar(&email, "agent-email", "", "Operator email (overrides config)")
	cmd.Flags().StringVar(&name, "agent-name", "", "Operator name (overrides config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw result as JSON")

	return cmd
}

func NewRecordsCmd(deps *Dependencies) *cobra.Command {
	var (
		limit   int
		offset  int
		agent   string
		channel string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List analyzed calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.LoadBackend(); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			q := analytics.RecordsQuery{Limit: limit, Offset: offset, AgentEmail: agent}
			var (
				records []analytics.Record
				err     error
			)
			if channel != "" {
				records, err = deps.Backend.ListChannelRecords(ctx, channel, q)
			} else {
				records, err = deps.Backend.ListRecords(ctx, q)
			}
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), records)
			}
			f := output.NewFormatter(cmd.OutOrStdout())
			if len(records) == 0 {
				f.Info("No calls found")
				return nil
			}
			f.RecordListHeader()
			for _, r := range records {
				f.RecordListItem(r)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of calls")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of calls to skip")
	cmd.Flags().StringVar(&agent, "agent-email", "", "Only calls by this operator")
	cmd.Flags().StringVar(&channel, "channel", "", "List per-party records: caller or client")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")

	cmd.AddCommand(newRecordGetCmd(deps))
	return cmd
}

func newRecordGetCmd(deps *Dependencies) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one analyzed call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.LoadBackend(); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			res, err := deps.Backend.GetRecord(ctx, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			output.NewFormatter(cmd.OutOrStdout()).Analysis(res)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func NewStatsCmd(deps *Dependencies) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show history statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.LoadBackend(); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			stats, err := deps.Backend.Statistics(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			output.NewFormatter(cmd.OutOrStdout()).Statistics(stats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func NewHistoryCmd(deps *Dependencies) *cobra.Command {
	var (
		limit  int
		asJSON bool
		remove bool
	)

	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "Show finalized calls from the local archive",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arc, release, err := openArchive(deps)
			if err != nil {
				return err
			}
			defer release()

			if remove && len(args) == 0 {
				return errors.New("--delete requires a session id")
			}

			if len(args) == 1 {
				if remove {
					if err := arc.Delete(args[0]); err != nil {
						return err
					}
					output.NewFormatter(cmd.OutOrStdout()).Success(fmt.Sprintf("Removed %s from the archive", args[0]))
					return nil
				}
				call, err := arc.Get(args[0])
				if errors.Is(err, archive.ErrNotFound) {
					return fmt.Errorf("no archived call %s", args[0])
				}
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), call)
			}

			calls, err := arc.List(limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), calls)
			}
			f := output.NewFormatter(cmd.OutOrStdout())
			if len(calls) == 0 {
				f.Info("No finalized calls archived yet")
				return nil
			}
			for _, c := range calls {
				f.HistoryItem(c)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of calls")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	cmd.Flags().BoolVar(&remove, "delete", false, "Remove the given call from the archive")
	return cmd
}

// openArchive reuses the app's archive when one is wired, otherwise opens
// the configured one for the duration of the command.
func openArchive(deps *Dependencies) (*archive.Archive, func(), error) {
	if deps.App != nil && deps.App.Archive != nil {
		return deps.App.Archive, func() {}, nil
	}
	if err := deps.LoadConfig(); err != nil {
		return nil, nil, err
	}
	cfg := deps.Config.Notify.Archive
	if !cfg.Enabled {
		return nil, nil, errors.New("the call archive is disabled (notify.archive.enabled)")
	}
	arc, err := archive.Open(archive.Config{Path: cfg.Path})
	if err != nil {
		return nil, nil, err
	}
	return arc, func() { arc.Close() }, nil
}
