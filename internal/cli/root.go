package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/TF-SoftwareEmergentes/livecall/internal/analytics"
	"github.com/TF-SoftwareEmergentes/livecall/internal/app"
	"github.com/TF-SoftwareEmergentes/livecall/internal/config"
	"github.com/TF-SoftwareEmergentes/livecall/internal/version"
)

// DefaultConfigPath is read when --config is not given and the file exists.
const DefaultConfigPath = "configs/config.yaml"

// Dependencies are built lazily by the commands that need them. Tests
// populate them up front.
type Dependencies struct {
	ConfigPath string
	Config     *config.Config
	Logger     *slog.Logger
	App        *app.App
	Backend    *analytics.Client

	logCloser io.Closer
}

// LoadConfig reads the configuration once. mutate adjusts it before anything
// is built from it, e.g. to point the backend at a mock.
func (d *Dependencies) LoadConfig(mutate ...func(*config.Config)) error {
	if d.Config == nil {
		path := d.ConfigPath
		if path == "" {
			if _, err := os.Stat(DefaultConfigPath); err == nil {
				path = DefaultConfigPath
			} else if !errors.Is(err, fs.ErrNotExist) {
				return err
			}
		}
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		d.Config = cfg
	}
	for _, fn := range mutate {
		fn(d.Config)
	}
	if d.Logger == nil {
		d.Logger, d.logCloser = app.NewLogger(d.Config.Logging)
	}
	return nil
}

// LoadApp wires the full recorder.
func (d *Dependencies) LoadApp(ctx context.Context, mutate ...func(*config.Config)) error {
	if d.App != nil {
		return nil
	}
	if err := d.LoadConfig(mutate...); err != nil {
		return err
	}
	a, err := app.New(ctx, d.Config, d.Logger)
	if err != nil {
		return fmt.Errorf("initializing app: %w", err)
	}
	d.App = a
	d.Backend = a.Backend
	return nil
}

// LoadBackend creates only the analytics client, for the history commands.
func (d *Dependencies) LoadBackend() error {
	if d.Backend != nil {
		return nil
	}
	if d.App != nil {
		d.Backend = d.App.Backend
		return nil
	}
	if err := d.LoadConfig(); err != nil {
		return err
	}
	backend, err := app.NewBackend(d.Config)
	if err != nil {
		return err
	}
	d.Backend = backend
	return nil
}

// Operator returns the configured operator, overridden by non-empty flags.
func (d *Dependencies) Operator(email, name string) analytics.Operator {
	op := analytics.Operator{Email: d.Config.Operator.Email, Name: d.Config.Operator.Name}
	if email != "" {
		op.Email = email
	}
	if name != "" {
		op.Name = name
	}
	return op
}

// Close releases whatever the commands built.
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error
	if d.App != nil {
		errs = append(errs, d.App.Close(ctx))
	} else if d.Backend != nil {
		errs = append(errs, d.Backend.Close(ctx))
	}
	if d.logCloser != nil {
		errs = append(errs, d.logCloser.Close())
	}
	return errors.Join(errs...)
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "livecall",
		Short:         "Record live calls and score them with feeling-analytics",
		Long:          "A recorder that captures the operator's microphone, streams short segments to the feeling-analytics backend for live feedback, and submits the whole call for a final report.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")

	rootCmd.PersistentFlags().StringVarP(&deps.ConfigPath, "config", "c", "", "Path to configuration file (default "+DefaultConfigPath+" if present)")

	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewServeCmd(deps))
	rootCmd.AddCommand(NewAnalyzeCmd(deps))
	rootCmd.AddCommand(NewRecordsCmd(deps))
	rootCmd.AddCommand(NewStatsCmd(deps))
	rootCmd.AddCommand(NewHistoryCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
		},
	}
}
