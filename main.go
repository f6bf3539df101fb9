package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cryptowatch/internal/config"
	"cryptowatch/internal/logging"
	"cryptowatch/internal/ratelimit"

	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file")
	listen := pflag.String("listen", "", "HTTP listen address, overrides listen_addr")
	pflag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFile)

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	a, err := newApp(cfg, ratelimit.Defaults(), logger)
	if err != nil {
		logger.Error("Failed to build application", "error", err)
		os.Exit(1)
	}

	if err := a.run(ctx); err != nil {
		logger.Error("cryptowatch stopped with error", "error", err)
		os.Exit(1)
	}
}
