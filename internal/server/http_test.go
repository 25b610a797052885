package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bsnjoy/homeassistant-voice/internal/config"
	"github.com/bsnjoy/homeassistant-voice/internal/homeassistant"
	"github.com/bsnjoy/homeassistant-voice/internal/metrics"
	"github.com/bsnjoy/homeassistant-voice/internal/pipeline"
	"github.com/bsnjoy/homeassistant-voice/internal/playback"
	"github.com/bsnjoy/homeassistant-voice/internal/transcription"
)

var testMetrics = metrics.NewMetrics()

type nullSource struct{}

func (nullSource) Start() error               { return nil }
func (nullSource) Read(p []byte) (int, error) { return 0, io.EOF }
func (nullSource) Terminate()                 {}

type nullTranscriber struct{}

func (nullTranscriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	return "", nil
}

type nullSender struct{}

func (nullSender) Send(ctx context.Context, cmd homeassistant.Command) error { return nil }

type nullSession struct{}

func (nullSession) Alive() bool { return false }
func (nullSession) Terminate()  {}

type nullPlayer struct{}

func (nullPlayer) Speak(ctx context.Context, text string) (playback.Session, error) {
	return nullSession{}, nil
}

func (nullPlayer) PlayFile(ctx context.Context, path string) (playback.Session, error) {
	return nullSession{}, nil
}

func testAppConfig() *config.Config {
	return &config.Config{
		Audio: config.AudioConfig{
			SampleRate:     16000,
			Channels:       1,
			SampleWidth:    2,
			ChunkDuration:  0.05,
			BufferDuration: 10,
		},
		Detection: config.DetectionConfig{
			DBThreshold:        40,
			SilenceTimeoutMS:   700,
			MinRecordingLength: 1,
			PrerollDuration:    0.5,
			TickIntervalMS:     10,
		},
		Playback: config.PlaybackConfig{PollIntervalMS: 10},
		Transcription: config.TranscriptionConfig{
			Endpoint: "http://localhost:8000/transcribe",
			Timeout:  30,
		},
		HomeAssistant: config.HomeAssistantConfig{
			URL:         "http://ha.local:8123",
			Token:       "very-secret-token",
			DefaultRoom: "kitchen",
		},
		Assistant: config.AssistantConfig{
			Names:     []string{"алиса"},
			OpenAIKey: "sk-secret-key",
			Model:     "gpt-4o-mini",
		},
		HTTP:    config.HTTPConfig{Enabled: true, Address: "127.0.0.1", Port: 0},
		Logging: config.LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
	}
}

func testServer(t *testing.T) *HTTPServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testAppConfig()

	pipe := pipeline.New(cfg, pipeline.Deps{
		Source:      nullSource{},
		Transcriber: nullTranscriber{},
		Matcher:     homeassistant.NewMatcher(homeassistant.Grammar{DefaultRoom: "kitchen"}),
		Commands:    nullSender{},
		Player:      nullPlayer{},
	}, nil, testMetrics, logger)

	stt, err := transcription.NewClient(transcription.Config{Endpoint: cfg.Transcription.Endpoint}, testMetrics)
	if err != nil {
		t.Fatalf("Failed to create transcription client: %v", err)
	}

	ha, err := homeassistant.NewClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, logger)
	if err != nil {
		t.Fatalf("Failed to create homeassistant client: %v", err)
	}

	return NewHTTPServer(cfg.HTTP, logger, cfg, pipe, stt, ha, nil, testMetrics)
}

func get(t *testing.T, h *HTTPServer, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestConfigEndpointOmitsSecrets(t *testing.T) {
	h := testServer(t)

	rec := get(t, h, "/config")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	if strings.Contains(body, "very-secret-token") {
		t.Error("Config response leaks the Home Assistant token")
	}
	if strings.Contains(body, "sk-secret-key") {
		t.Error("Config response leaks the OpenAI key")
	}

	var cfg map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("Failed to parse config response: %v", err)
	}
	if _, ok := cfg["homeassistant"]; !ok {
		t.Error("Expected homeassistant section in config response")
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := testServer(t)

	rec := get(t, h, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var health map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("Failed to parse health response: %v", err)
	}

	// Capture never started, so the service reports degraded
	if health["status"] != "degraded" {
		t.Errorf("Expected degraded status, got %v", health["status"])
	}
	if _, ok := health["components"]; !ok {
		t.Error("Expected components section in health response")
	}
}

func TestStatsEndpoint(t *testing.T) {
	h := testServer(t)

	rec := get(t, h, "/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var stats map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Failed to parse stats response: %v", err)
	}
	for _, key := range []string{"pipeline", "transcription", "homeassistant"} {
		if _, ok := stats[key]; !ok {
			t.Errorf("Expected %q section in stats response", key)
		}
	}
	if _, ok := stats["assistant"]; ok {
		t.Error("Expected no assistant section when no responder is configured")
	}
}

func TestRootEndpoint(t *testing.T) {
	h := testServer(t)

	rec := get(t, h, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	if rec := get(t, h, "/nonexistent"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown path, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/stats", nil)
	rec := httptest.NewRecorder()
	h.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestServerStartStop(t *testing.T) {
	h := testServer(t)

	if err := h.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.Stop(ctx); err != nil {
		t.Errorf("Failed to stop server: %v", err)
	}
}
