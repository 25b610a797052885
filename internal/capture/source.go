package capture

import (
	"fmt"
	"io"
	"os/exec"
)

// Source is a continuous raw PCM byte stream. A zero-length read with io.EOF
// signals end-of-stream.
type Source interface {
	Start() error
	Read(p []byte) (int, error)
	Terminate()
}

// ProcessSource adapts an external recorder command (arecord, sox, rec) into
// a Source by reading its stdout. Stderr is discarded.
type ProcessSource struct {
	command []string
	cmd     *exec.Cmd
	stdout  io.ReadCloser
}

// NewProcessSource creates a source backed by the given command line.
func NewProcessSource(command []string) (*ProcessSource, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("record command cannot be empty")
	}

	return &ProcessSource{command: command}, nil
}

// Start launches the recorder process and opens its stdout pipe.
func (s *ProcessSource) Start() error {
	cmd := exec.Command(s.command[0], s.command[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open recorder stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start recorder %q: %w", s.command[0], err)
	}

	s.cmd = cmd
	s.stdout = stdout

	return nil
}

// Read reads raw PCM bytes from the recorder's stdout.
func (s *ProcessSource) Read(p []byte) (int, error) {
	if s.stdout == nil {
		return 0, fmt.Errorf("source not started")
	}
	return s.stdout.Read(p)
}

// Terminate forcibly kills the recorder process and reaps it.
func (s *ProcessSource) Terminate() {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}

	_ = s.cmd.Process.Kill()
	_ = s.cmd.Wait()
}
