package playback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Session is one running playback pipeline.
type Session interface {
	// Alive reports whether the pipeline is still playing.
	Alive() bool
	// Terminate kills the pipeline immediately.
	Terminate()
}

// playerSession pipes an audio byte stream into the player process stdin.
// The session ends when the player exits, normally or by Terminate.
type playerSession struct {
	cmd      *exec.Cmd
	src      io.ReadCloser
	done     chan struct{}
	termOnce sync.Once
}

func startPlayer(playCommand []string, src io.ReadCloser) (*playerSession, error) {
	cmd := exec.Command(playCommand[0], playCommand[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to open player stdin: %w", err)
	}

	if err := cmd.Start(); err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to start player %q: %w", playCommand[0], err)
	}

	s := &playerSession{
		cmd:  cmd,
		src:  src,
		done: make(chan struct{}),
	}

	go func() {
		// Copy errors here mean the player or the source went away, which
		// the liveness poll observes through process exit
		_, _ = io.Copy(stdin, src)
		stdin.Close()
		src.Close()
	}()

	go func() {
		_ = cmd.Wait()
		close(s.done)
	}()

	return s, nil
}

// Alive reports whether the player process is still running.
func (s *playerSession) Alive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Terminate kills the player and closes the audio source.
func (s *playerSession) Terminate() {
	s.termOnce.Do(func() {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		s.src.Close()
	})
}

// ttsRequest is the synthesis request body
type ttsRequest struct {
	Text      string `json:"text"`
	Format    string `json:"format"`
	Streaming bool   `json:"streaming"`
}

// TTSClient starts playback sessions that stream synthesized speech from an
// HTTP text-to-speech endpoint into the player process.
type TTSClient struct {
	ttsURL      string
	playCommand []string
	httpClient  *http.Client
}

// NewTTSClient creates a client for the given synthesis endpoint and player
// command line.
func NewTTSClient(ttsURL string, playCommand []string) *TTSClient {
	return &TTSClient{
		ttsURL:      ttsURL,
		playCommand: playCommand,
		// No overall client timeout: the response body streams for the whole
		// utterance duration. Only the connect/header phase is bounded.
		httpClient: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 10 * time.Second,
			},
		},
	}
}

// Speak requests synthesis of text and starts a session playing the
// streaming WAV response. Cancelling ctx aborts a request the synthesis
// server has not answered yet.
func (c *TTSClient) Speak(ctx context.Context, text string) (Session, error) {
	body, err := json.Marshal(ttsRequest{Text: text, Format: "wav", Streaming: true})
	if err != nil {
		return nil, fmt.Errorf("failed to encode synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ttsURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("synthesis server returned status %d", resp.StatusCode)
	}

	return startPlayer(c.playCommand, resp.Body)
}

// PlayFile starts a session playing a local sound file.
func (c *TTSClient) PlayFile(ctx context.Context, path string) (Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sound file: %w", err)
	}

	return startPlayer(c.playCommand, f)
}
