package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bsnjoy/homeassistant-voice/internal/metrics"
)

// Starter starts playback sessions. Implemented by TTSClient. The context
// bounds session startup only; cancelling it aborts a synthesis request that
// has not produced a session yet.
type Starter interface {
	Speak(ctx context.Context, text string) (Session, error)
	PlayFile(ctx context.Context, path string) (Session, error)
}

type itemKind int

const (
	kindSpeech itemKind = iota
	kindFile
	kindStop
)

type item struct {
	kind itemKind
	text string
	path string
}

// Sequencer serializes playback. Requests queue in FIFO order and a single
// worker plays them one at a time, polling session liveness on a fixed
// interval. Enqueue never blocks.
type Sequencer struct {
	starter      Starter
	pollInterval time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger

	mu           sync.Mutex
	cond         *sync.Cond
	queue        []item
	current      Session
	busy         bool // worker holds a popped item, session may not exist yet
	startCancel  context.CancelFunc
	curCancelled bool
	stopped      bool

	// Statistics
	enqueued  uint64
	played    uint64
	failed    uint64
	cancelled uint64

	done chan struct{}
}

// SequencerStats represents playback statistics for monitoring
type SequencerStats struct {
	QueueLength int    `json:"queue_length"`
	Playing     bool   `json:"playing"`
	Enqueued    uint64 `json:"enqueued"`
	Played      uint64 `json:"played"`
	Failed      uint64 `json:"failed"`
	Cancelled   uint64 `json:"cancelled"`
}

// NewSequencer creates a sequencer and starts its worker.
func NewSequencer(starter Starter, pollInterval time.Duration, m *metrics.Metrics, logger *slog.Logger) *Sequencer {
	s := &Sequencer{
		starter:      starter,
		pollInterval: pollInterval,
		metrics:      m,
		logger:       logger,
		done:         make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)

	go s.run()

	return s
}

// Enqueue queues text for synthesis and playback. Non-blocking.
func (s *Sequencer) Enqueue(text string) {
	s.push(item{kind: kindSpeech, text: text})
}

// EnqueueFile queues a local sound file for playback. Non-blocking.
func (s *Sequencer) EnqueueFile(path string) {
	s.push(item{kind: kindFile, path: path})
}

func (s *Sequencer) push(it item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	s.queue = append(s.queue, it)
	if it.kind != kindStop {
		s.enqueued++
	}
	s.syncQueueGauge()
	s.cond.Signal()
}

// syncQueueGauge publishes the queue length. Callers hold s.mu.
func (s *Sequencer) syncQueueGauge() {
	if s.metrics != nil {
		s.metrics.SetPlaybackQueueSize(len(s.queue))
	}
}

// CancelCurrentAndFlush terminates the currently playing session and drops
// all queued requests. It returns once the queue is empty and no session is
// playing, re-checking after each drain in case termination raced with the
// worker picking up the next item.
func (s *Sequencer) CancelCurrentAndFlush() {
	var terminated Session
	for {
		s.mu.Lock()
		for i := 0; i < len(s.queue); {
			if s.queue[i].kind == kindStop {
				i++
				continue
			}
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.cancelled++
			if s.metrics != nil {
				s.metrics.RecordPlaybackCancelled()
			}
		}
		s.syncQueueGauge()
		cur := s.current
		cancelStart := s.startCancel
		empty := len(s.queue) == 0 && cur == nil && !s.busy
		s.mu.Unlock()

		if empty {
			return
		}

		if cur != nil && cur != terminated {
			s.logger.Info("Cancelling current playback")
			// Mark before terminating so the worker cannot observe the dead
			// session first and count it as played
			s.mu.Lock()
			if s.current == cur {
				s.curCancelled = true
			}
			s.cancelled++
			s.mu.Unlock()
			cur.Terminate()
			terminated = cur
			if s.metrics != nil {
				s.metrics.RecordPlaybackCancelled()
			}
		} else if cur == nil && cancelStart != nil {
			// No session yet: the worker is still inside Speak or PlayFile,
			// abort the startup instead
			cancelStart()
		}

		time.Sleep(s.pollInterval)
	}
}

// Stop enqueues a stop sentinel and waits for the worker to drain everything
// queued before it. Safe to call once.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.stopped = true
	s.queue = append(s.queue, item{kind: kindStop})
	s.cond.Signal()
	s.mu.Unlock()

	<-s.done
}

// Stats returns current playback statistics
func (s *Sequencer) Stats() SequencerStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SequencerStats{
		QueueLength: len(s.queue),
		Playing:     s.current != nil,
		Enqueued:    s.enqueued,
		Played:      s.played,
		Failed:      s.failed,
		Cancelled:   s.cancelled,
	}
}

// run is the single playback worker.
func (s *Sequencer) run() {
	defer close(s.done)

	for {
		s.mu.Lock()
		for len(s.queue) == 0 {
			s.cond.Wait()
		}
		it := s.queue[0]
		s.queue = s.queue[1:]
		if it.kind != kindStop {
			s.busy = true
		}
		s.syncQueueGauge()
		s.mu.Unlock()

		if it.kind == kindStop {
			s.logger.Info("Playback sequencer stopping")
			return
		}

		s.play(it)
	}
}

func (s *Sequencer) play(it item) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.startCancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.startCancel = nil
		s.mu.Unlock()
		cancel()
	}()

	var (
		session Session
		err     error
	)

	switch it.kind {
	case kindSpeech:
		s.logger.Info("Starting playback", slog.String("text", it.text))
		session, err = s.starter.Speak(ctx, it.text)
	case kindFile:
		s.logger.Info("Playing sound file", slog.String("path", it.path))
		session, err = s.starter.PlayFile(ctx, it.path)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.Info("Playback cancelled before the session started")
		} else {
			s.logger.Error("Failed to start playback", slog.String("error", err.Error()))
		}
		s.mu.Lock()
		if errors.Is(err, context.Canceled) {
			s.cancelled++
		} else {
			s.failed++
		}
		s.busy = false
		s.mu.Unlock()
		if errors.Is(err, context.Canceled) && s.metrics != nil {
			s.metrics.RecordPlaybackCancelled()
		}
		return
	}

	if s.metrics != nil {
		s.metrics.RecordPlaybackStarted()
	}

	s.mu.Lock()
	s.current = session
	s.mu.Unlock()

	for session.Alive() {
		time.Sleep(s.pollInterval)
	}

	s.mu.Lock()
	wasCancelled := s.curCancelled
	s.curCancelled = false
	s.current = nil
	s.busy = false
	if !wasCancelled {
		s.played++
	}
	s.mu.Unlock()
}
