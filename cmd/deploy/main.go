package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/pushdeploy/pushdeploy/cmd/deploy/commands"
	"github.com/pushdeploy/pushdeploy/pkg/report"
	"github.com/pushdeploy/pushdeploy/pkg/telemetry"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	setupLogging()

	// Create context that cancels on interrupt signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("Received interrupt signal, shutting down...")
		cancel()
	}()

	if err := commands.Execute(ctx, Version, Commit, BuildDate); err != nil {
		report.NewTerminal(os.Stderr).Error("%v", err)
		os.Exit(1)
	}
}

// setupLogging configures zerolog before flags are parsed
func setupLogging() {
	cfg := telemetry.DefaultConfig()
	cfg.ApplyEnv(os.Getenv)
	if _, err := telemetry.SetupLogging(cfg.Logging); err != nil {
		_, _ = telemetry.SetupLogging(telemetry.DefaultConfig().Logging)
		log.Warn().Err(err).Msg("Ignoring invalid logging configuration")
	}
}
