package capture

import (
	"bytes"
	"encoding/binary"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bsnjoy/homeassistant-voice/internal/audio"
)

// fakeSource is an in-memory Source fed from a byte buffer
type fakeSource struct {
	data       *bytes.Reader
	started    atomic.Bool
	terminated atomic.Bool
	blockOnEnd chan struct{} // if non-nil, Read blocks here after data runs out
	termOnce   sync.Once
}

func newFakeSource(data []byte) *fakeSource {
	return &fakeSource{data: bytes.NewReader(data)}
}

func (s *fakeSource) Start() error {
	s.started.Store(true)
	return nil
}

func (s *fakeSource) Read(p []byte) (int, error) {
	n, err := s.data.Read(p)
	if err == io.EOF && s.blockOnEnd != nil {
		<-s.blockOnEnd
		return 0, io.EOF
	}
	return n, err
}

func (s *fakeSource) Terminate() {
	s.terminated.Store(true)
	if s.blockOnEnd != nil {
		s.termOnce.Do(func() { close(s.blockOnEnd) })
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// loudPCM returns n chunks of constant-amplitude samples followed by EOF
func loudPCM(chunks, chunkSize int, amplitude int16) []byte {
	data := make([]byte, chunks*chunkSize)
	for i := 0; i < len(data); i += 2 {
		binary.LittleEndian.PutUint16(data[i:], uint16(amplitude))
	}
	return data
}

func waitDone(t *testing.T, l *Loop) {
	t.Helper()
	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Capture loop did not finish in time")
	}
}

func TestLoopReadsAllChunks(t *testing.T) {
	const chunkSize = 320
	source := newFakeSource(loudPCM(10, chunkSize, 1000))
	ring := audio.NewRing(100)
	loop := NewLoop(source, ring, chunkSize, nil, testLogger())

	if err := loop.Start(); err != nil {
		t.Fatalf("Failed to start loop: %v", err)
	}
	waitDone(t, loop)

	if ring.Len() != 10 {
		t.Errorf("Expected 10 chunks in ring, got %d", ring.Len())
	}

	stats := loop.Stats()
	if stats.ChunksRead != 10 {
		t.Errorf("Expected 10 chunks read, got %d", stats.ChunksRead)
	}
	if stats.BytesRead != 10*chunkSize {
		t.Errorf("Expected %d bytes read, got %d", 10*chunkSize, stats.BytesRead)
	}
}

func TestLoopTimestampsIncrease(t *testing.T) {
	const chunkSize = 320
	source := newFakeSource(loudPCM(5, chunkSize, 500))
	ring := audio.NewRing(10)
	loop := NewLoop(source, ring, chunkSize, nil, testLogger())

	if err := loop.Start(); err != nil {
		t.Fatalf("Failed to start loop: %v", err)
	}
	waitDone(t, loop)

	chunks := ring.Snapshot()
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Timestamp < chunks[i-1].Timestamp {
			t.Fatalf("Timestamps decreased at chunk %d", i)
		}
	}
}

func TestLoopPublishesLevel(t *testing.T) {
	const chunkSize = 320
	source := newFakeSource(loudPCM(3, chunkSize, 1000))
	ring := audio.NewRing(10)
	loop := NewLoop(source, ring, chunkSize, nil, testLogger())

	// Before the first chunk the level is the silence sentinel
	if db := loop.LatestLevel(); db != audio.SilenceDB {
		t.Errorf("Expected initial level %f, got %f", audio.SilenceDB, db)
	}

	if err := loop.Start(); err != nil {
		t.Fatalf("Failed to start loop: %v", err)
	}
	waitDone(t, loop)

	// 20*log10(1000) = 60 dB
	if db := loop.LatestLevel(); db < 59 || db > 61 {
		t.Errorf("Expected latest level near 60 dB, got %f", db)
	}
}

func TestLoopEndsOnEOF(t *testing.T) {
	source := newFakeSource(nil)
	ring := audio.NewRing(10)
	loop := NewLoop(source, ring, 320, nil, testLogger())

	if err := loop.Start(); err != nil {
		t.Fatalf("Failed to start loop: %v", err)
	}
	waitDone(t, loop)

	if ring.Len() != 0 {
		t.Errorf("Expected empty ring, got %d chunks", ring.Len())
	}

	if loop.Stats().Running {
		t.Error("Expected loop to report not running after EOF")
	}
}

func TestLoopStopTerminatesSource(t *testing.T) {
	source := newFakeSource(nil)
	source.blockOnEnd = make(chan struct{})
	ring := audio.NewRing(10)
	loop := NewLoop(source, ring, 320, nil, testLogger())

	if err := loop.Start(); err != nil {
		t.Fatalf("Failed to start loop: %v", err)
	}

	stopped := make(chan struct{})
	go func() {
		loop.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return in time")
	}

	if !source.terminated.Load() {
		t.Error("Expected source to be terminated by Stop")
	}
}

func TestNewProcessSourceValidation(t *testing.T) {
	if _, err := NewProcessSource(nil); err == nil {
		t.Error("Expected error for empty command")
	}

	src, err := NewProcessSource([]string{"arecord", "-t", "raw"})
	if err != nil {
		t.Fatalf("Failed to create process source: %v", err)
	}

	// Reading before Start is an error, not a panic
	if _, err := src.Read(make([]byte, 4)); err == nil {
		t.Error("Expected error reading from unstarted source")
	}

	// Terminating an unstarted source is a no-op
	src.Terminate()
}
