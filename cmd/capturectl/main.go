package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"codeberg.org/mutker/capturectl/internal/capture"
	"codeberg.org/mutker/capturectl/internal/config"
	"codeberg.org/mutker/capturectl/internal/engine"
	"codeberg.org/mutker/capturectl/internal/logger"
	"codeberg.org/mutker/capturectl/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Msg("Config loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	provider := capture.NewSimulatedProvider()
	coordinator := capture.New(provider, capture.Config{
		OutputDir:  cfg.OutputDir,
		QueueDepth: cfg.QueueDepth,
	})

	var repo telemetry.Repository
	if cfg.Telemetry {
		repo, err = telemetry.NewRepository(telemetry.Config{DBPath: cfg.TelemetryDB})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize telemetry repository")
		}
		go persistLoop(ctx, coordinator, repo, cfg.StatusPollInterval())
	}

	eng := engine.New(coordinator, provider, runtime.GOOS, engine.Defaults{
		FrameRate:  cfg.FrameRate,
		Microphone: cfg.Microphone,
	})

	// The engine loop ends when the shell closes our stdin.
	if err := eng.Run(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Error().Err(err).Msg("engine loop failed")
	}

	cleanup(coordinator, repo)
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

// persistLoop records one telemetry row per status tick while capture runs.
func persistLoop(ctx context.Context, coordinator *capture.Coordinator, repo telemetry.Repository, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := coordinator.StatusSnapshot()
			if !status.IsRunning {
				continue
			}

			snapshot := coordinator.TelemetrySnapshot()
			reason := ""
			if status.Telemetry.HealthReason != nil {
				reason = *status.Telemetry.HealthReason
			}
			if err := repo.Store(ctx, time.Now(), &snapshot, string(status.Telemetry.Health), reason); err != nil {
				logger.Warn().Err(err).Msg("failed to persist telemetry snapshot")
			}
		}
	}
}

func cleanup(coordinator *capture.Coordinator, repo telemetry.Repository) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := coordinator.StopCapture(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to stop capture")
	}
	if repo != nil {
		if err := repo.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close telemetry repository")
		}
	}
	logger.Info().Msg("Exiting...")
}
