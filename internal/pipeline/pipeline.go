package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bsnjoy/homeassistant-voice/internal/audio"
	"github.com/bsnjoy/homeassistant-voice/internal/capture"
	"github.com/bsnjoy/homeassistant-voice/internal/config"
	"github.com/bsnjoy/homeassistant-voice/internal/detect"
	"github.com/bsnjoy/homeassistant-voice/internal/homeassistant"
	"github.com/bsnjoy/homeassistant-voice/internal/metrics"
	"github.com/bsnjoy/homeassistant-voice/internal/playback"
)

// Transcriber converts a WAV utterance to text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// CommandSender delivers a resolved device command.
type CommandSender interface {
	Send(ctx context.Context, cmd homeassistant.Command) error
}

// Responder answers free-form questions addressed to the assistant.
type Responder interface {
	IsQuery(transcript string) bool
	StripName(transcript string) string
	Respond(ctx context.Context, question string) (string, error)
}

// Deps are the external services the pipeline dispatches to. Responder may
// be nil when no assistant is configured.
type Deps struct {
	Source      capture.Source
	Transcriber Transcriber
	Matcher     *homeassistant.Matcher
	Commands    CommandSender
	Player      playback.Starter
	Responder   Responder
}

// Pipeline owns the capture loop, detector and playback sequencer, and runs
// the dispatch loop that turns detected utterances into actions.
type Pipeline struct {
	cfg     *config.Config
	deps    Deps
	logger  *slog.Logger
	metrics *metrics.Metrics

	ring      *audio.Ring
	loop      *capture.Loop
	detector  *detect.Detector
	sequencer *playback.Sequencer

	meterOut io.Writer // nil disables the console level meter

	cancel context.CancelFunc
	done   chan struct{}
}

// Stats aggregates component statistics for the monitoring API
type Stats struct {
	Capture   capture.LoopStats       `json:"capture"`
	Ring      audio.RingStats         `json:"ring"`
	Detection detect.Stats            `json:"detection"`
	Playback  playback.SequencerStats `json:"playback"`
}

// New creates a pipeline from cfg and deps. The console level meter is
// written to meterOut when it is non-nil.
func New(cfg *config.Config, deps Deps, meterOut io.Writer, m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	ring := audio.NewRing(cfg.Audio.RingCapacity())
	loop := capture.NewLoop(deps.Source, ring, cfg.Audio.ChunkSizeBytes(), m, logger)

	detector := detect.NewDetector(detect.Config{
		DBThreshold:        cfg.Detection.DBThreshold,
		SilenceTimeout:     cfg.Detection.GetSilenceTimeout(),
		MinRecordingLength: cfg.Detection.GetMinRecordingLength(),
		Preroll:            cfg.Detection.GetPrerollDuration(),
		TickInterval:       cfg.Detection.GetTickInterval(),
		BytesPerSecond:     cfg.Audio.BytesPerSecond(),
	}, loop, ring, m, logger)

	sequencer := playback.NewSequencer(deps.Player, cfg.Playback.GetPollInterval(), m, logger)

	return &Pipeline{
		cfg:       cfg,
		deps:      deps,
		logger:    logger,
		metrics:   m,
		ring:      ring,
		loop:      loop,
		detector:  detector,
		sequencer: sequencer,
		meterOut:  meterOut,
		done:      make(chan struct{}),
	}
}

// Start launches the capture loop, the detector and the dispatch loop.
func (p *Pipeline) Start() error {
	if err := p.loop.Start(); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	go p.detector.Run(ctx)
	go p.dispatchLoop(ctx)
	if p.meterOut != nil {
		go p.meterLoop(ctx)
	}

	p.logger.Info("Pipeline started")

	return nil
}

// Stop shuts the pipeline down: capture first, then the detector and
// dispatch loop drain, then playback is cancelled and the sequencer stopped.
func (p *Pipeline) Stop() {
	p.loop.Stop()
	if p.cancel != nil {
		p.cancel()
	}

	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		p.logger.Warn("Dispatch loop did not drain in time")
	}

	p.sequencer.CancelCurrentAndFlush()
	p.sequencer.Stop()

	p.logger.Info("Pipeline stopped")
}

// Done is closed when the dispatch loop has exited. The capture loop ending
// on its own, source death included, leads here.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Stats returns aggregated statistics from all pipeline components
func (p *Pipeline) Stats() Stats {
	return Stats{
		Capture:   p.loop.Stats(),
		Ring:      p.ring.Stats(),
		Detection: p.detector.Stats(),
		Playback:  p.sequencer.Stats(),
	}
}

// dispatchLoop consumes detected utterances until the detector closes its
// channel.
func (p *Pipeline) dispatchLoop(ctx context.Context) {
	defer close(p.done)

	for segment := range p.detector.Segments() {
		p.dispatch(ctx, segment)
	}
}

// dispatch handles one utterance: persist, transcribe, then route the
// transcript to Home Assistant or the assistant.
func (p *Pipeline) dispatch(ctx context.Context, segment detect.Segment) {
	// New speech preempts whatever is still being spoken
	p.sequencer.CancelCurrentAndFlush()

	p.metrics.RecordUtteranceDetected(segment.Duration.Seconds())

	wav, err := audio.EncodeWAV(segment.PCM,
		p.cfg.Audio.SampleRate, p.cfg.Audio.Channels, p.cfg.Audio.SampleWidth)
	if err != nil {
		p.logger.Error("Failed to encode utterance", slog.String("error", err.Error()))
		return
	}

	if p.cfg.Recordings.SaveToDisk {
		if path, err := p.saveRecording(wav); err != nil {
			p.logger.Error("Failed to save recording", slog.String("error", err.Error()))
		} else {
			p.logger.Info("Saved recording", slog.String("path", path))
		}
	}

	start := time.Now()
	transcript, err := p.deps.Transcriber.Transcribe(ctx, wav)
	if err != nil {
		p.metrics.RecordTranscriptionFailure(time.Since(start).Seconds())
		p.logger.Error("Transcription failed", slog.String("error", err.Error()))
		return
	}
	p.metrics.RecordTranscriptionSuccess(time.Since(start).Seconds())

	if transcript == "" {
		p.logger.Info("Empty transcript, ignoring utterance")
		return
	}

	p.logger.Info("Transcript", slog.String("text", transcript))
	p.route(ctx, transcript)
}

// route sends the transcript to the first stage that claims it: a device
// command, then the assistant, otherwise it is dropped.
func (p *Pipeline) route(ctx context.Context, transcript string) {
	cmd, err := p.deps.Matcher.Match(transcript)
	if err == nil {
		// Acknowledge immediately, before the Home Assistant round trip
		if p.cfg.Playback.AckSound != "" {
			p.sequencer.EnqueueFile(p.cfg.Playback.AckSound)
		}

		if sendErr := p.deps.Commands.Send(ctx, cmd); sendErr != nil {
			p.metrics.RecordCommandFailed()
			p.logger.Error("Failed to send command",
				slog.String("entity_id", cmd.EntityID),
				slog.String("error", sendErr.Error()),
			)
			return
		}

		p.metrics.RecordCommandSent()
		return
	}

	if !errors.Is(err, homeassistant.ErrNoAction) &&
		!errors.Is(err, homeassistant.ErrNoDevice) &&
		!errors.Is(err, homeassistant.ErrNoEntity) {
		p.logger.Error("Command matching failed", slog.String("error", err.Error()))
		return
	}

	if p.deps.Responder != nil && p.deps.Responder.IsQuery(transcript) {
		if p.cfg.Playback.AISound != "" {
			p.sequencer.EnqueueFile(p.cfg.Playback.AISound)
		}

		question := p.deps.Responder.StripName(transcript)
		reply, err := p.deps.Responder.Respond(ctx, question)
		if err != nil {
			p.metrics.RecordAssistantQuery(false)
			p.logger.Error("Assistant query failed", slog.String("error", err.Error()))
			return
		}

		p.metrics.RecordAssistantQuery(true)
		p.sequencer.Enqueue(reply)
		return
	}

	p.metrics.RecordTranscriptIgnored()
	p.logger.Info("Transcript matched nothing", slog.String("text", transcript))
}

// saveRecording writes the WAV under the recordings directory in
// year/month/day subdirectories.
func (p *Pipeline) saveRecording(wav []byte) (string, error) {
	now := time.Now()
	dir := filepath.Join(p.cfg.Recordings.Directory, now.Format("2006"), now.Format("01"), now.Format("02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create recordings directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("recording_%s.wav", now.Format("20060102_150405")))
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return "", fmt.Errorf("failed to write recording: %w", err)
	}

	return path, nil
}

// meterLoop renders the console level meter while the pipeline runs.
func (p *Pipeline) meterLoop(ctx context.Context) {
	meter := audio.NewMeter(p.meterOut)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			meter.Render(p.loop.LatestLevel(), p.detector.Mode() == detect.ModeRecording)
		}
	}
}
