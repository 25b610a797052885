// Package playback plays synthesized speech and sound files through an
// external player process. A sequencer serializes playback: requests queue
// FIFO and exactly one player pipeline runs at a time.
package playback
