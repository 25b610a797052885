package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bsnjoy/homeassistant-voice/internal/assistant"
	"github.com/bsnjoy/homeassistant-voice/internal/capture"
	"github.com/bsnjoy/homeassistant-voice/internal/config"
	"github.com/bsnjoy/homeassistant-voice/internal/homeassistant"
	"github.com/bsnjoy/homeassistant-voice/internal/metrics"
	"github.com/bsnjoy/homeassistant-voice/internal/pipeline"
	"github.com/bsnjoy/homeassistant-voice/internal/playback"
	"github.com/bsnjoy/homeassistant-voice/internal/server"
	"github.com/bsnjoy/homeassistant-voice/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "homeassistant-voice"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Secrets can live in a .env file next to the binary
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	asService := runningAsService()

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
		slog.Bool("systemd", asService),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("chunk_duration", cfg.Audio.ChunkDuration),
		slog.Float64("buffer_duration", cfg.Audio.BufferDuration),
		slog.Float64("db_threshold", cfg.Detection.DBThreshold),
		slog.Int("silence_timeout_ms", cfg.Detection.SilenceTimeoutMS),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("homeassistant_url", cfg.HomeAssistant.URL),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()

	// Initialize the PCM capture source
	source, err := capture.NewProcessSource(cfg.Capture.RecordCommand)
	if err != nil {
		logger.Error("Failed to create capture source", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize the transcription client
	stt, err := transcription.NewClient(transcription.Config{
		Endpoint:      cfg.Transcription.Endpoint,
		Timeout:       cfg.Transcription.GetTimeoutDuration(),
		MaxRetries:    cfg.Transcription.MaxRetries,
		MaxConcurrent: cfg.Transcription.MaxConcurrent,
	}, appMetrics)
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize the Home Assistant client and command matcher
	ha, err := homeassistant.NewClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, logger)
	if err != nil {
		logger.Error("Failed to create Home Assistant client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	matcher := homeassistant.NewMatcher(homeassistant.Grammar{
		ActionAliases:      cfg.HomeAssistant.ActionAliases,
		DeviceAliases:      cfg.HomeAssistant.DeviceAliases,
		RoomAliases:        cfg.HomeAssistant.RoomAliases,
		RoomEntities:       cfg.HomeAssistant.RoomEntities,
		DefaultRoom:        cfg.HomeAssistant.DefaultRoom,
		DevicesWithoutRoom: cfg.HomeAssistant.DevicesWithoutRoom,
	})

	// Initialize the assistant (optional)
	var responder *assistant.Responder
	if len(cfg.Assistant.Names) > 0 && cfg.Assistant.OpenAIKey != "" {
		responder, err = assistant.NewResponder(assistant.Config{
			Names:      cfg.Assistant.Names,
			OpenAIBase: cfg.Assistant.OpenAIBase,
			OpenAIKey:  cfg.Assistant.OpenAIKey,
			Model:      cfg.Assistant.Model,
		}, logger)
		if err != nil {
			logger.Error("Failed to create assistant", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Assistant enabled", slog.String("model", cfg.Assistant.Model))
	} else {
		logger.Info("Assistant disabled, no names or API key configured")
	}

	player := playback.NewTTSClient(cfg.Playback.TTSURL, cfg.Playback.PlayCommand)

	// The console level meter only makes sense on an interactive terminal
	var meterOut io.Writer
	if !asService {
		meterOut = os.Stdout
	}

	deps := pipeline.Deps{
		Source:      source,
		Transcriber: stt,
		Matcher:     matcher,
		Commands:    ha,
		Player:      player,
	}
	if responder != nil {
		deps.Responder = responder
	}

	pipe := pipeline.New(cfg, deps, meterOut, appMetrics, logger)

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, pipe, stt, ha, responder, appMetrics)
	}

	// Start the pipeline
	if err := pipe.Start(); err != nil {
		logger.Error("Failed to start pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start HTTP server (if enabled)
	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, listening...")

	// Wait for a shutdown signal or the capture source dying
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-pipe.Done():
		logger.Error("Pipeline stopped unexpectedly, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop the pipeline (capture, detection, dispatch, playback)
	pipe.Stop()

	// Wait for in-flight transcription requests
	if err := stt.Close(); err != nil {
		logger.Error("Error closing transcription client", slog.String("error", err.Error()))
	}

	// Get final statistics
	stats := pipe.Stats()
	logger.Info("Final pipeline statistics",
		slog.Uint64("chunks_captured", stats.Capture.ChunksRead),
		slog.Uint64("utterances_emitted", stats.Detection.Utterances),
		slog.Uint64("utterances_discarded", stats.Detection.Discarded),
		slog.Uint64("playbacks", stats.Playback.Played),
	)

	logger.Info("Service stopped")
}

// runningAsService reports whether the process was started by systemd.
func runningAsService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("JOURNAL_STREAM") != ""
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
