package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Audio         AudioConfig         `yaml:"audio"`
	Detection     DetectionConfig     `yaml:"detection"`
	Capture       CaptureConfig       `yaml:"capture"`
	Playback      PlaybackConfig      `yaml:"playback"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Assistant     AssistantConfig     `yaml:"assistant"`
	Recordings    RecordingsConfig    `yaml:"recordings"`
	HTTP          HTTPConfig          `yaml:"http"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// AudioConfig contains PCM stream parameters shared by capture and detection
type AudioConfig struct {
	SampleRate     int     `yaml:"sample_rate"`
	Channels       int     `yaml:"channels"`
	SampleWidth    int     `yaml:"sample_width"`    // bytes per sample
	ChunkDuration  float64 `yaml:"chunk_duration"`  // seconds
	BufferDuration float64 `yaml:"buffer_duration"` // seconds of ring buffer history
}

// DetectionConfig contains speech onset/offset detection parameters
type DetectionConfig struct {
	DBThreshold        float64 `yaml:"db_threshold"`
	SilenceTimeoutMS   int     `yaml:"silence_timeout_ms"`
	MinRecordingLength float64 `yaml:"min_recording_length"` // seconds
	PrerollDuration    float64 `yaml:"preroll_duration"`     // seconds
	TickIntervalMS     int     `yaml:"tick_interval_ms"`
}

// CaptureConfig contains the external recorder process configuration
type CaptureConfig struct {
	RecordCommand []string `yaml:"record_command"`
}

// PlaybackConfig contains speech synthesis and audio player configuration
type PlaybackConfig struct {
	PlayCommand    []string `yaml:"play_command"`
	TTSURL         string   `yaml:"tts_url"`
	PollIntervalMS int      `yaml:"poll_interval_ms"`
	AckSound       string   `yaml:"ack_sound"`
	AISound        string   `yaml:"ai_sound"`
}

// TranscriptionConfig contains transcription API configuration
type TranscriptionConfig struct {
	Endpoint      string `yaml:"endpoint"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// HomeAssistantConfig contains the Home Assistant API and alias grammar
type HomeAssistantConfig struct {
	URL                string                       `yaml:"url"`
	Token              string                       `yaml:"token"`
	DefaultRoom        string                       `yaml:"default_room"`
	ActionAliases      map[string][]string          `yaml:"action_aliases"`
	DeviceAliases      map[string][]string          `yaml:"device_aliases"`
	RoomAliases        map[string][]string          `yaml:"room_aliases"`
	RoomEntities       map[string]map[string]string `yaml:"room_entities"`
	DevicesWithoutRoom []string                     `yaml:"devices_without_room"`
}

// AssistantConfig contains the AI assistant configuration
type AssistantConfig struct {
	Names      []string `yaml:"names"`
	OpenAIBase string   `yaml:"openai_base_url"`
	OpenAIKey  string   `yaml:"openai_api_key"`
	Model      string   `yaml:"model"`
}

// RecordingsConfig controls optional on-disk saving of detected utterances
type RecordingsConfig struct {
	SaveToDisk bool   `yaml:"save_to_disk"`
	Directory  string `yaml:"directory"`
}

// HTTPConfig contains monitoring HTTP API server configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyEnvOverrides replaces secrets from the environment when present,
// so tokens can be kept out of the YAML file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HOMEASSISTANT_TOKEN"); v != "" {
		c.HomeAssistant.Token = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Assistant.OpenAIKey = v
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Detection.Validate(); err != nil {
		return fmt.Errorf("detection config: %w", err)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Playback.Validate(); err != nil {
		return fmt.Errorf("playback config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.HomeAssistant.Validate(); err != nil {
		return fmt.Errorf("homeassistant config: %w", err)
	}

	if err := c.Recordings.Validate(); err != nil {
		return fmt.Errorf("recordings config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.SampleWidth != 2 {
		return fmt.Errorf("sample_width must be 2 bytes (16-bit PCM), got %d", a.SampleWidth)
	}

	if a.ChunkDuration <= 0 {
		return fmt.Errorf("chunk_duration must be positive, got %f", a.ChunkDuration)
	}

	if a.BufferDuration <= a.ChunkDuration {
		return fmt.Errorf("buffer_duration (%f) must be greater than chunk_duration (%f)",
			a.BufferDuration, a.ChunkDuration)
	}

	return nil
}

// Validate validates detection configuration
func (d *DetectionConfig) Validate() error {
	// -100 dB is the silence sentinel; a threshold at or below it would
	// treat dead silence as speech onset
	if d.DBThreshold <= -100 {
		return fmt.Errorf("db_threshold must be above -100 dB, got %f", d.DBThreshold)
	}

	if d.SilenceTimeoutMS < 1 {
		return fmt.Errorf("silence_timeout_ms must be at least 1, got %d", d.SilenceTimeoutMS)
	}

	if d.MinRecordingLength <= 0 {
		return fmt.Errorf("min_recording_length must be positive, got %f", d.MinRecordingLength)
	}

	if d.PrerollDuration < 0 {
		return fmt.Errorf("preroll_duration cannot be negative, got %f", d.PrerollDuration)
	}

	if d.TickIntervalMS < 1 || d.TickIntervalMS > 10 {
		return fmt.Errorf("tick_interval_ms must be between 1 and 10, got %d", d.TickIntervalMS)
	}

	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	if len(c.RecordCommand) == 0 {
		return fmt.Errorf("record_command cannot be empty")
	}

	return nil
}

// Validate validates playback configuration
func (p *PlaybackConfig) Validate() error {
	if len(p.PlayCommand) == 0 {
		return fmt.Errorf("play_command cannot be empty")
	}

	if p.TTSURL == "" {
		return fmt.Errorf("tts_url cannot be empty")
	}

	if p.PollIntervalMS < 1 {
		return fmt.Errorf("poll_interval_ms must be at least 1, got %d", p.PollIntervalMS)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates Home Assistant configuration
func (h *HomeAssistantConfig) Validate() error {
	if h.URL == "" {
		return fmt.Errorf("url cannot be empty")
	}

	if h.Token == "" {
		return fmt.Errorf("token cannot be empty")
	}

	if len(h.ActionAliases) == 0 {
		return fmt.Errorf("action_aliases cannot be empty")
	}

	if len(h.DeviceAliases) == 0 {
		return fmt.Errorf("device_aliases cannot be empty")
	}

	if len(h.RoomEntities) == 0 {
		return fmt.Errorf("room_entities cannot be empty")
	}

	if h.DefaultRoom == "" {
		return fmt.Errorf("default_room cannot be empty")
	}

	if _, ok := h.RoomEntities[h.DefaultRoom]; !ok {
		return fmt.Errorf("default_room %q has no entry in room_entities", h.DefaultRoom)
	}

	return nil
}

// Validate validates recordings configuration
func (r *RecordingsConfig) Validate() error {
	if r.SaveToDisk && r.Directory == "" {
		return fmt.Errorf("directory cannot be empty when save_to_disk is enabled")
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetChunkDuration returns the capture chunk duration as a time.Duration
func (a *AudioConfig) GetChunkDuration() time.Duration {
	return time.Duration(a.ChunkDuration * float64(time.Second))
}

// GetBufferDuration returns the ring buffer duration as a time.Duration
func (a *AudioConfig) GetBufferDuration() time.Duration {
	return time.Duration(a.BufferDuration * float64(time.Second))
}

// ChunkSizeBytes returns the number of bytes in one capture chunk
func (a *AudioConfig) ChunkSizeBytes() int {
	return int(float64(a.SampleRate)*a.ChunkDuration) * a.SampleWidth * a.Channels
}

// BytesPerSecond returns the PCM byte rate of the capture stream
func (a *AudioConfig) BytesPerSecond() int {
	return a.SampleRate * a.SampleWidth * a.Channels
}

// RingCapacity returns the ring buffer capacity in chunks, rounded up so
// the buffer holds at least buffer_duration of audio
func (a *AudioConfig) RingCapacity() int {
	return int(math.Ceil(a.BufferDuration / a.ChunkDuration))
}

// GetSilenceTimeout returns the silence timeout as a time.Duration
func (d *DetectionConfig) GetSilenceTimeout() time.Duration {
	return time.Duration(d.SilenceTimeoutMS) * time.Millisecond
}

// GetMinRecordingLength returns the minimum recording length as a time.Duration
func (d *DetectionConfig) GetMinRecordingLength() time.Duration {
	return time.Duration(d.MinRecordingLength * float64(time.Second))
}

// GetPrerollDuration returns the preroll duration as a time.Duration
func (d *DetectionConfig) GetPrerollDuration() time.Duration {
	return time.Duration(d.PrerollDuration * float64(time.Second))
}

// GetTickInterval returns the detector tick interval as a time.Duration
func (d *DetectionConfig) GetTickInterval() time.Duration {
	return time.Duration(d.TickIntervalMS) * time.Millisecond
}

// GetPollInterval returns the playback liveness poll interval as a time.Duration
func (p *PlaybackConfig) GetPollInterval() time.Duration {
	return time.Duration(p.PollIntervalMS) * time.Millisecond
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}
