// Package capture runs the external recorder process and the producer loop
// that drains its PCM stream into the ring buffer, publishing the latest
// measured decibel level for the segmentation tick loop.
package capture
