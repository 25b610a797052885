package audio

import (
	"sync"
)

// Chunk is one captured block of PCM audio with its capture timestamp and
// measured level. Chunks are immutable once pushed.
type Chunk struct {
	Timestamp float64 // monotonic seconds since capture start
	PCM       []byte  // raw 16-bit LE PCM
	Level     float64 // decibel level of this chunk
}

// Ring is a fixed-capacity, timestamp-ordered circular store of the most
// recent audio chunks. One producer appends; readers take snapshots or
// extract timestamp ranges. The mutex is held only for append and copy,
// never across a scan of the returned data.
type Ring struct {
	chunks   []Chunk
	capacity int
	start    int // index of the oldest chunk
	size     int

	pushed  uint64
	evicted uint64

	mu sync.Mutex
}

// RingStats represents ring buffer statistics for monitoring
type RingStats struct {
	Capacity int    `json:"capacity"`
	Size     int    `json:"size"`
	Pushed   uint64 `json:"chunks_pushed"`
	Evicted  uint64 `json:"chunks_evicted"`
}

// NewRing creates a ring buffer holding up to capacity chunks.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		chunks:   make([]Chunk, capacity),
		capacity: capacity,
	}
}

// Push appends a chunk and reports whether the oldest chunk was evicted to
// make room. Timestamps must be strictly increasing in push order; Push is
// O(1) and never blocks on readers.
func (r *Ring) Push(c Chunk) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := false
	if r.size == r.capacity {
		r.start = (r.start + 1) % r.capacity
		r.size--
		r.evicted++
		evicted = true
	}

	r.chunks[(r.start+r.size)%r.capacity] = c
	r.size++
	r.pushed++

	return evicted
}

// Snapshot returns a point-in-time ordered copy of the buffered chunks.
// The copy is taken under the lock; callers traverse it lock-free.
func (r *Ring) Snapshot() []Chunk {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Chunk, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.chunks[(r.start+i)%r.capacity]
	}
	return out
}

// ExtractRange returns the concatenated PCM bytes, in timestamp order, of all
// chunks whose timestamp falls in [t0, t1]. An empty result is a normal
// boundary outcome, not an error: the range may predate retention or follow
// a stalled producer.
func (r *Ring) ExtractRange(t0, t1 float64) []byte {
	chunks := r.Snapshot()

	var segment []byte
	for _, c := range chunks {
		if c.Timestamp >= t0 && c.Timestamp <= t1 {
			segment = append(segment, c.PCM...)
		}
	}
	return segment
}

// Len returns the current number of buffered chunks.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Capacity returns the maximum number of chunks the ring can hold.
func (r *Ring) Capacity() int {
	return r.capacity
}

// Stats returns current ring buffer statistics
func (r *Ring) Stats() RingStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RingStats{
		Capacity: r.capacity,
		Size:     r.size,
		Pushed:   r.pushed,
		Evicted:  r.evicted,
	}
}
