package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bsnjoy/homeassistant-voice/internal/audio"
	"github.com/bsnjoy/homeassistant-voice/internal/metrics"
)

// Loop is the producer side of the pipeline: it drains the PCM source in
// fixed-size chunks, computes the decibel level of each chunk, and appends
// timestamped chunks to the ring buffer. The latest level is published to a
// single atomic scalar for lock-free reads by the segmentation loop.
type Loop struct {
	source    Source
	ring      *audio.Ring
	chunkSize int
	metrics   *metrics.Metrics
	logger    *slog.Logger

	start   time.Time
	latest  atomic.Uint64 // float64 bits of the most recent dB level
	started atomic.Bool

	// Statistics
	chunksRead uint64
	bytesRead  uint64
	statsMu    sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// LoopStats represents capture loop statistics for monitoring
type LoopStats struct {
	ChunksRead uint64  `json:"chunks_read"`
	BytesRead  uint64  `json:"bytes_read"`
	LatestDB   float64 `json:"latest_db"`
	Running    bool    `json:"running"`
}

// NewLoop creates a capture loop reading chunkSize-byte chunks from source
// into ring.
func NewLoop(source Source, ring *audio.Ring, chunkSize int, m *metrics.Metrics, logger *slog.Logger) *Loop {
	ctx, cancel := context.WithCancel(context.Background())

	l := &Loop{
		source:    source,
		ring:      ring,
		chunkSize: chunkSize,
		metrics:   m,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	l.latest.Store(math.Float64bits(audio.SilenceDB))

	return l
}

// Start launches the source process and the capture goroutine.
func (l *Loop) Start() error {
	if err := l.source.Start(); err != nil {
		return err
	}

	l.start = time.Now()
	l.started.Store(true)

	go l.run()

	l.logger.Info("Capture loop started",
		slog.Int("chunk_size", l.chunkSize),
	)

	return nil
}

// Stop signals the loop to exit and forcibly terminates the source process.
func (l *Loop) Stop() {
	l.cancel()
	l.source.Terminate()
	<-l.done
}

// Done is closed when the capture loop has exited, whether from Stop,
// end-of-stream, or a read failure.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// LatestLevel returns the decibel level of the most recently captured chunk.
// Safe for concurrent lock-free reads.
func (l *Loop) LatestLevel() float64 {
	return math.Float64frombits(l.latest.Load())
}

// Now returns the current time in the loop's monotonic timebase, seconds
// since capture start. Chunk timestamps share this timebase.
func (l *Loop) Now() float64 {
	return time.Since(l.start).Seconds()
}

// Stats returns current capture statistics
func (l *Loop) Stats() LoopStats {
	l.statsMu.RLock()
	defer l.statsMu.RUnlock()

	running := true
	select {
	case <-l.done:
		running = false
	default:
	}

	return LoopStats{
		ChunksRead: l.chunksRead,
		BytesRead:  l.bytesRead,
		LatestDB:   l.LatestLevel(),
		Running:    running && l.started.Load(),
	}
}

// run is the main capture loop. Any read failure is fatal to this loop
// instance only: it is logged and the loop exits. Restart policy belongs to
// the orchestrator.
func (l *Loop) run() {
	defer close(l.done)

	buf := make([]byte, l.chunkSize)

	for {
		select {
		case <-l.ctx.Done():
			l.logger.Info("Capture loop stopping")
			return
		default:
		}

		n, err := io.ReadFull(l.source, buf)
		if err != nil {
			if errors.Is(err, io.EOF) && n == 0 {
				l.logger.Info("PCM source reached end of stream")
			} else if l.ctx.Err() != nil {
				// Read error caused by Stop killing the source
				l.logger.Info("Capture loop stopping")
			} else {
				l.logger.Error("Failed to read from PCM source",
					slog.String("error", err.Error()),
					slog.Int("bytes", n),
				)
			}
			return
		}

		timestamp := l.Now()

		pcm := make([]byte, l.chunkSize)
		copy(pcm, buf)

		db := audio.LevelDB(pcm)
		l.latest.Store(math.Float64bits(db))

		evicted := l.ring.Push(audio.Chunk{
			Timestamp: timestamp,
			PCM:       pcm,
			Level:     db,
		})

		if l.metrics != nil {
			l.metrics.RecordChunkCaptured(db)
			if evicted {
				l.metrics.RecordRingEviction()
			}
		}

		l.statsMu.Lock()
		l.chunksRead++
		l.bytesRead += uint64(n)
		l.statsMu.Unlock()
	}
}
