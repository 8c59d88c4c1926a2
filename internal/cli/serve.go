package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TF-SoftwareEmergentes/livecall/internal/config"
	"github.com/TF-SoftwareEmergentes/livecall/internal/mockbackend"
)

func NewServeCmd(deps *Dependencies) *cobra.Command {
	var (
		address string
		port    int
		mock    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local control API",
		Long:  "Serve the control API and websocket event feed a dashboard uses to start, stop and finalize calls.\nUse --mock to run against a built-in analytics backend.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var mockLn net.Listener
			mutate := []func(*config.Config){func(cfg *config.Config) {
				if address != "" {
					cfg.HTTP.Address = address
				}
				if port != 0 {
					cfg.HTTP.Port = port
				}
			}}
			if mock {
				ln, err := net.Listen("tcp", "127.0.0.1:0")
				if err != nil {
					return fmt.Errorf("mock backend: %w", err)
				}
				mockLn = ln
				mutate = append(mutate, func(cfg *config.Config) {
					cfg.Backend.BaseURL = "http://" + ln.Addr().String()
				})
			}

			if err := deps.LoadApp(ctx, mutate...); err != nil {
				if mockLn != nil {
					mockLn.Close()
				}
				return err
			}
			logger := deps.Logger

			if mockLn != nil {
				mockSrv := &http.Server{Handler: mockbackend.New(logger, mockbackend.Options{}), ReadHeaderTimeout: 10 * time.Second}
				go func() {
					if err := mockSrv.Serve(mockLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("Mock backend error", slog.String("error", err.Error()))
					}
				}()
				defer mockSrv.Close()
				logger.Info("Mock backend listening", slog.String("address", mockLn.Addr().String()))
			}

			httpServer := deps.App.NewHTTPServer()
			if err := httpServer.Start(); err != nil {
				return err
			}

			logger.Info("Recorder ready, waiting for signals...",
				slog.String("address", httpServer.Addr()),
			)
			<-ctx.Done()
			logger.Info("Starting graceful shutdown...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Stop(shutdownCtx); err != nil {
				logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "Listen address (overrides config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides config)")
	cmd.Flags().BoolVar(&mock, "mock", false, "Run against a built-in mock analytics backend")

	return cmd
}
