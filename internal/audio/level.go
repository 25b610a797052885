package audio

import (
	"encoding/binary"
	"math"
)

// SilenceDB is the sentinel decibel level reported for silent or empty input.
const SilenceDB = -100.0

// RMS computes the root mean square of 16-bit little-endian PCM samples.
// A trailing odd byte is ignored; empty input yields 0.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// DBFromRMS converts an RMS value to decibels. Values at or below zero map
// to the SilenceDB sentinel.
func DBFromRMS(rms float64) float64 {
	if rms <= 0 {
		return SilenceDB
	}
	return 20 * math.Log10(rms)
}

// LevelDB computes the decibel level of a PCM chunk in one step.
func LevelDB(pcm []byte) float64 {
	return DBFromRMS(RMS(pcm))
}
