package audio

import (
	"bytes"
	"fmt"
	"testing"
)

func makeChunk(ts float64, fill byte) Chunk {
	pcm := bytes.Repeat([]byte{fill}, 4)
	return Chunk{Timestamp: ts, PCM: pcm, Level: 0}
}

func TestNewRing(t *testing.T) {
	r := NewRing(10)

	if r.Capacity() != 10 {
		t.Errorf("Expected capacity 10, got %d", r.Capacity())
	}

	if r.Len() != 0 {
		t.Errorf("Expected empty ring, got size %d", r.Len())
	}
}

func TestNewRingMinimumCapacity(t *testing.T) {
	r := NewRing(0)
	if r.Capacity() != 1 {
		t.Errorf("Expected capacity clamped to 1, got %d", r.Capacity())
	}
}

func TestPushNeverExceedsCapacity(t *testing.T) {
	r := NewRing(5)

	for i := 0; i < 20; i++ {
		r.Push(makeChunk(float64(i), byte(i)))

		if r.Len() > 5 {
			t.Fatalf("Size %d exceeds capacity after push %d", r.Len(), i)
		}
	}

	if r.Len() != 5 {
		t.Errorf("Expected full ring of 5, got %d", r.Len())
	}
}

func TestPushEvictsOldest(t *testing.T) {
	r := NewRing(3)

	for i := 0; i < 5; i++ {
		evicted := r.Push(makeChunk(float64(i), byte(i)))
		if want := i >= 3; evicted != want {
			t.Errorf("Push %d: evicted = %v, want %v", i, evicted, want)
		}
	}

	snapshot := r.Snapshot()
	if len(snapshot) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(snapshot))
	}

	// Chunks 0 and 1 evicted, 2..4 remain in order
	for i, c := range snapshot {
		expected := float64(i + 2)
		if c.Timestamp != expected {
			t.Errorf("Chunk %d: expected timestamp %.0f, got %.0f", i, expected, c.Timestamp)
		}
	}

	stats := r.Stats()
	if stats.Pushed != 5 {
		t.Errorf("Expected 5 pushed, got %d", stats.Pushed)
	}
	if stats.Evicted != 2 {
		t.Errorf("Expected 2 evicted, got %d", stats.Evicted)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	r := NewRing(4)
	r.Push(makeChunk(1.0, 0xAA))

	snapshot := r.Snapshot()
	r.Push(makeChunk(2.0, 0xBB))

	if len(snapshot) != 1 {
		t.Fatalf("Expected snapshot of 1 chunk, got %d", len(snapshot))
	}

	if snapshot[0].Timestamp != 1.0 {
		t.Errorf("Snapshot mutated by later push: timestamp %.1f", snapshot[0].Timestamp)
	}
}

func TestSnapshotOrdering(t *testing.T) {
	r := NewRing(8)
	for i := 0; i < 13; i++ {
		r.Push(makeChunk(float64(i)*0.05, byte(i)))
	}

	snapshot := r.Snapshot()
	for i := 1; i < len(snapshot); i++ {
		if snapshot[i].Timestamp <= snapshot[i-1].Timestamp {
			t.Fatalf("Timestamps not strictly increasing at index %d: %.3f <= %.3f",
				i, snapshot[i].Timestamp, snapshot[i-1].Timestamp)
		}
	}
}

func TestExtractRange(t *testing.T) {
	r := NewRing(10)

	// Chunks at t=0..9 with distinct payloads
	for i := 0; i < 10; i++ {
		r.Push(Chunk{Timestamp: float64(i), PCM: []byte{byte(i), byte(i)}})
	}

	tests := []struct {
		name     string
		t0, t1   float64
		expected []byte
	}{
		{"middle range", 3, 5, []byte{3, 3, 4, 4, 5, 5}},
		{"inclusive bounds", 7, 7, []byte{7, 7}},
		{"full range", 0, 9, nil}, // verified separately below
		{"before retention", -10, -1, nil},
		{"after newest", 100, 200, nil},
		{"inverted range", 5, 3, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.ExtractRange(tt.t0, tt.t1)
			if tt.name == "full range" {
				if len(got) != 20 {
					t.Errorf("Expected 20 bytes for full range, got %d", len(got))
				}
				return
			}
			if !bytes.Equal(got, tt.expected) {
				t.Errorf("ExtractRange(%.0f, %.0f) = %v, expected %v", tt.t0, tt.t1, got, tt.expected)
			}
		})
	}
}

func TestExtractRangeEmptyRing(t *testing.T) {
	r := NewRing(5)

	if got := r.ExtractRange(0, 100); len(got) != 0 {
		t.Errorf("Expected empty extraction from empty ring, got %d bytes", len(got))
	}
}

func TestConcurrentPushAndExtract(t *testing.T) {
	r := NewRing(64)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			r.Push(Chunk{Timestamp: float64(i) * 0.01, PCM: []byte{1, 2}})
		}
	}()

	for i := 0; i < 200; i++ {
		_ = r.ExtractRange(0, float64(i))
		_ = r.Snapshot()
	}

	<-done

	if r.Len() != 64 {
		t.Errorf("Expected full ring after concurrent pushes, got %d", r.Len())
	}
}

func BenchmarkPush(b *testing.B) {
	r := NewRing(200)
	pcm := make([]byte, 1600)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Push(Chunk{Timestamp: float64(i), PCM: pcm})
	}
}

func ExampleRing_ExtractRange() {
	r := NewRing(4)
	r.Push(Chunk{Timestamp: 0.0, PCM: []byte{1}})
	r.Push(Chunk{Timestamp: 0.5, PCM: []byte{2}})
	r.Push(Chunk{Timestamp: 1.0, PCM: []byte{3}})

	fmt.Println(r.ExtractRange(0.4, 1.0))
	// Output: [2 3]
}
