package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice pipeline
type Metrics struct {
	// Capture metrics
	ChunksCaptured prometheus.Counter
	CaptureLevel   prometheus.Gauge
	RingEvictions  prometheus.Counter

	// Detection metrics
	UtterancesDetected  prometheus.Counter
	UtterancesDiscarded prometheus.Counter
	UtteranceDuration   prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	TranscriptionRetries   prometheus.Counter

	// Dispatch metrics
	CommandsMatched    prometheus.Counter
	CommandsSent       prometheus.Counter
	CommandsFailed     prometheus.Counter
	AssistantQueries   prometheus.Counter
	AssistantFailures  prometheus.Counter
	TranscriptsIgnored prometheus.Counter

	// Playback metrics
	PlaybacksStarted   prometheus.Counter
	PlaybacksCancelled prometheus.Counter
	PlaybackQueueSize  prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Capture metrics
		ChunksCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_chunks_captured_total",
			Help: "Total number of PCM chunks read from the capture source",
		}),
		CaptureLevel: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voice_capture_level_db",
			Help: "Decibel level of the most recently captured chunk",
		}),
		RingEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_ring_evictions_total",
			Help: "Total number of chunks evicted from the ring buffer",
		}),

		// Detection metrics
		UtterancesDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_utterances_detected_total",
			Help: "Total number of utterances emitted by the detector",
		}),
		UtterancesDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_utterances_discarded_total",
			Help: "Total number of utterances discarded as too short",
		}),
		UtteranceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_utterance_duration_seconds",
			Help:    "Duration of detected utterances",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~1 minute
		}),

		// Transcription metrics
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		TranscriptionRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_transcription_retries_total",
			Help: "Total number of transcription request retries",
		}),

		// Dispatch metrics
		CommandsMatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_commands_matched_total",
			Help: "Total number of transcripts matched to device commands",
		}),
		CommandsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_commands_sent_total",
			Help: "Total number of commands sent to Home Assistant",
		}),
		CommandsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_commands_failed_total",
			Help: "Total number of Home Assistant command failures",
		}),
		AssistantQueries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_assistant_queries_total",
			Help: "Total number of questions sent to the assistant",
		}),
		AssistantFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_assistant_failures_total",
			Help: "Total number of failed assistant queries",
		}),
		TranscriptsIgnored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_transcripts_ignored_total",
			Help: "Total number of transcripts matching neither a command nor the assistant",
		}),

		// Playback metrics
		PlaybacksStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_playbacks_started_total",
			Help: "Total number of playback sessions started",
		}),
		PlaybacksCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_playbacks_cancelled_total",
			Help: "Total number of playback sessions cancelled",
		}),
		PlaybackQueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voice_playback_queue_size",
			Help: "Current number of queued playback requests",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordChunkCaptured records one captured chunk and its level
func (m *Metrics) RecordChunkCaptured(levelDB float64) {
	m.ChunksCaptured.Inc()
	m.CaptureLevel.Set(levelDB)
}

// RecordUtteranceDetected records an emitted utterance
func (m *Metrics) RecordUtteranceDetected(durationSeconds float64) {
	m.UtterancesDetected.Inc()
	m.UtteranceDuration.Observe(durationSeconds)
}

// RecordUtteranceDiscarded increments the discarded utterances counter
func (m *Metrics) RecordUtteranceDiscarded() {
	m.UtterancesDiscarded.Inc()
}

// RecordRingEviction increments the ring buffer eviction counter
func (m *Metrics) RecordRingEviction() {
	m.RingEvictions.Inc()
}

// RecordTranscriptionRetry increments the transcription retry counter
func (m *Metrics) RecordTranscriptionRetry() {
	m.TranscriptionRetries.Inc()
}

// RecordPlaybackStarted increments the started playbacks counter
func (m *Metrics) RecordPlaybackStarted() {
	m.PlaybacksStarted.Inc()
}

// RecordPlaybackCancelled increments the cancelled playbacks counter
func (m *Metrics) RecordPlaybackCancelled() {
	m.PlaybacksCancelled.Inc()
}

// SetPlaybackQueueSize publishes the current playback queue length
func (m *Metrics) SetPlaybackQueueSize(n int) {
	m.PlaybackQueueSize.Set(float64(n))
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionRequests.Inc()
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionRequests.Inc()
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordCommandSent records a successfully delivered device command
func (m *Metrics) RecordCommandSent() {
	m.CommandsMatched.Inc()
	m.CommandsSent.Inc()
}

// RecordCommandFailed records a matched command that failed to deliver
func (m *Metrics) RecordCommandFailed() {
	m.CommandsMatched.Inc()
	m.CommandsFailed.Inc()
}

// RecordAssistantQuery records an assistant query and its outcome
func (m *Metrics) RecordAssistantQuery(ok bool) {
	m.AssistantQueries.Inc()
	if !ok {
		m.AssistantFailures.Inc()
	}
}

// RecordTranscriptIgnored increments the ignored transcripts counter
func (m *Metrics) RecordTranscriptIgnored() {
	m.TranscriptsIgnored.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
