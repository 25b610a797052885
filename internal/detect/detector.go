package detect

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bsnjoy/homeassistant-voice/internal/metrics"
)

// Mode is the detector's current state
type Mode int

const (
	ModeListening Mode = iota
	ModeRecording
)

// String returns the human-readable mode name
func (m Mode) String() string {
	switch m {
	case ModeListening:
		return "listening"
	case ModeRecording:
		return "recording"
	default:
		return "unknown"
	}
}

// Segment is one complete detected utterance, preroll included. Ownership
// passes to the consumer on emission.
type Segment struct {
	PCM      []byte
	Start    float64 // timebase seconds, onset minus preroll
	End      float64 // timebase seconds, end of silence timeout
	Duration time.Duration
}

// LevelSource exposes the capture loop to the detector: the latest decibel
// reading, the shared monotonic timebase, and loop termination.
type LevelSource interface {
	LatestLevel() float64
	Now() float64
	Done() <-chan struct{}
}

// Extractor extracts a timestamp range of PCM bytes from the ring buffer.
type Extractor interface {
	ExtractRange(t0, t1 float64) []byte
}

// Config contains detection parameters
type Config struct {
	DBThreshold        float64
	SilenceTimeout     time.Duration
	MinRecordingLength time.Duration
	Preroll            time.Duration
	TickInterval       time.Duration
	BytesPerSecond     int // PCM byte rate, for computing segment duration
}

// Detector runs the onset/offset automaton. It is the only writer of its
// state; consumers receive segments on the Segments channel.
type Detector struct {
	cfg     Config
	source  LevelSource
	ring    Extractor
	metrics *metrics.Metrics
	logger  *slog.Logger

	mode         Mode
	speechStart  float64
	silenceStart float64
	silenceSet   bool

	segments chan Segment

	// Statistics
	utterances uint64
	discarded  uint64
	abandoned  uint64

	mu sync.RWMutex
}

// Stats represents detector statistics for monitoring
type Stats struct {
	Mode       string `json:"mode"`
	Utterances uint64 `json:"utterances_emitted"`
	Discarded  uint64 `json:"utterances_discarded_short"`
	Abandoned  uint64 `json:"utterances_abandoned"`
}

// NewDetector creates a detector polling source against cfg.
func NewDetector(cfg Config, source LevelSource, ring Extractor, m *metrics.Metrics, logger *slog.Logger) *Detector {
	return &Detector{
		cfg:      cfg,
		source:   source,
		ring:     ring,
		metrics:  m,
		logger:   logger,
		mode:     ModeListening,
		segments: make(chan Segment, 8),
	}
}

// Segments returns the channel of completed utterances.
func (d *Detector) Segments() <-chan Segment {
	return d.segments
}

// Mode returns the detector's current state.
func (d *Detector) Mode() Mode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mode
}

// Stats returns current detector statistics
func (d *Detector) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return Stats{
		Mode:       d.mode.String(),
		Utterances: d.utterances,
		Discarded:  d.discarded,
		Abandoned:  d.abandoned,
	}
}

// Run polls the level source on the configured tick until ctx is cancelled
// or the capture loop terminates. The segments channel is closed on return.
// If the source dies mid-recording the in-progress segment is abandoned
// without emission.
func (d *Detector) Run(ctx context.Context) {
	defer close(d.segments)

	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()

	d.logger.Info("Segmentation loop started",
		slog.Float64("db_threshold", d.cfg.DBThreshold),
		slog.Duration("silence_timeout", d.cfg.SilenceTimeout),
		slog.Duration("preroll", d.cfg.Preroll),
		slog.Duration("tick_interval", d.cfg.TickInterval),
	)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Segmentation loop stopping")
			return

		case <-d.source.Done():
			d.mu.Lock()
			if d.mode == ModeRecording {
				d.abandoned++
				d.logger.Warn("Capture loop terminated mid-recording, abandoning segment")
			}
			d.mode = ModeListening
			d.mu.Unlock()
			d.logger.Info("Segmentation loop stopping, capture loop terminated")
			return

		case <-ticker.C:
			if seg, ok := d.step(d.source.Now(), d.source.LatestLevel()); ok {
				select {
				case d.segments <- seg:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// step advances the automaton by one tick. It returns a completed segment
// when an utterance of sufficient length has ended.
func (d *Detector) step(now, db float64) (Segment, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if db >= d.cfg.DBThreshold {
		if d.mode == ModeListening {
			d.mode = ModeRecording
			d.speechStart = now - d.cfg.Preroll.Seconds()
			d.logger.Info("Speech detected, recording",
				slog.Float64("db", db),
				slog.Float64("speech_start", d.speechStart),
			)
		}
		// Above threshold always clears the silence timer
		d.silenceSet = false
		return Segment{}, false
	}

	if d.mode != ModeRecording {
		return Segment{}, false
	}

	if !d.silenceSet {
		d.silenceStart = now
		d.silenceSet = true
		return Segment{}, false
	}

	if now-d.silenceStart < d.cfg.SilenceTimeout.Seconds() {
		return Segment{}, false
	}

	// Silence timeout reached: the utterance is over either way
	d.mode = ModeListening
	d.silenceSet = false

	pcm := d.ring.ExtractRange(d.speechStart, now)
	duration := time.Duration(float64(len(pcm)) / float64(d.cfg.BytesPerSecond) * float64(time.Second))

	if duration < d.cfg.MinRecordingLength {
		d.discarded++
		if d.metrics != nil {
			d.metrics.RecordUtteranceDiscarded()
		}
		d.logger.Info("Recording too short, discarding",
			slog.Duration("duration", duration),
			slog.Duration("minimum", d.cfg.MinRecordingLength),
		)
		return Segment{}, false
	}

	d.utterances++
	d.logger.Info("Silence detected, utterance complete",
		slog.Duration("duration", duration),
		slog.Int("bytes", len(pcm)),
	)

	return Segment{
		PCM:      pcm,
		Start:    d.speechStart,
		End:      now,
		Duration: duration,
	}, true
}
