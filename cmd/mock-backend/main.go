package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/TF-SoftwareEmergentes/livecall/internal/app"
	"github.com/TF-SoftwareEmergentes/livecall/internal/config"
	"github.com/TF-SoftwareEmergentes/livecall/internal/mockbackend"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8000", "Listen address")
	profanity := flag.String("profanity", "", "Comma-separated words reported as profanity on every chunk with speech")
	anger := flag.Bool("anger", false, "Report anger on every chunk with speech")
	latency := flag.Duration("latency", 0, "Delay added to every response")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger, closer := app.NewLogger(config.LoggingConfig{Level: *logLevel, Format: "text", Output: "stderr"})
	defer closer.Close()

	opts := mockbackend.Options{Anger: *anger, Latency: *latency}
	if *profanity != "" {
		opts.Profanity = strings.Split(*profanity, ",")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mockbackend.New(logger, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Mock analytics backend listening", slog.String("address", *addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Mock backend error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Error stopping mock backend", slog.String("error", err.Error()))
	}
}
