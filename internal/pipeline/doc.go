// Package pipeline wires capture, detection, transcription, command
// dispatch and playback into the always-listening voice pipeline and owns
// their lifecycle.
package pipeline
