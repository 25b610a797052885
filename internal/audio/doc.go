// Package audio provides the time-indexed ring buffer of captured PCM chunks,
// RMS/decibel level math, and WAV framing for transcription uploads.
package audio
