package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// Config contains assistant configuration
type Config struct {
	Names      []string // wake names that mark a transcript as a question
	OpenAIBase string   // optional, for OpenAI-compatible local servers
	OpenAIKey  string
	Model      string
}

// Responder sends questions to the chat completion API and returns spoken
// replies.
type Responder struct {
	names  []string
	model  string
	client *openai.Client
	logger *slog.Logger

	// Statistics
	queries uint64
	failed  uint64
	mu      sync.RWMutex
}

// ResponderStats represents assistant statistics for monitoring
type ResponderStats struct {
	Queries uint64 `json:"queries"`
	Failed  uint64 `json:"failed"`
}

// NewResponder creates a responder for the given configuration.
func NewResponder(cfg Config, logger *slog.Logger) (*Responder, error) {
	if len(cfg.Names) == 0 {
		return nil, fmt.Errorf("assistant names cannot be empty")
	}
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	clientConfig := openai.DefaultConfig(cfg.OpenAIKey)
	if cfg.OpenAIBase != "" {
		clientConfig.BaseURL = cfg.OpenAIBase
	}

	return &Responder{
		names:  cfg.Names,
		model:  model,
		client: openai.NewClientWithConfig(clientConfig),
		logger: logger,
	}, nil
}

// IsQuery reports whether transcript is addressed to the assistant, which
// means it starts with one of the configured names.
func (r *Responder) IsQuery(transcript string) bool {
	lower := strings.ToLower(strings.TrimSpace(transcript))
	for _, name := range r.names {
		if strings.HasPrefix(lower, strings.ToLower(name)) {
			return true
		}
	}
	return false
}

// StripName removes the leading assistant name and any separator punctuation
// from transcript.
func (r *Responder) StripName(transcript string) string {
	trimmed := strings.TrimSpace(transcript)
	lower := strings.ToLower(trimmed)
	for _, name := range r.names {
		if strings.HasPrefix(lower, strings.ToLower(name)) {
			rest := trimmed[len(name):]
			return strings.TrimLeft(rest, " ,.!?")
		}
	}
	return trimmed
}

// Respond sends the question to the chat completion API and returns the
// reply text.
func (r *Responder) Respond(ctx context.Context, question string) (string, error) {
	r.mu.Lock()
	r.queries++
	r.mu.Unlock()

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "You are a voice assistant. Answer briefly, in one or " +
					"two spoken sentences, in the language of the question.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: question,
			},
		},
	})
	if err != nil {
		r.mu.Lock()
		r.failed++
		r.mu.Unlock()
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		r.mu.Lock()
		r.failed++
		r.mu.Unlock()
		return "", fmt.Errorf("chat completion returned no choices")
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)

	r.logger.Info("Assistant replied",
		slog.Int("question_len", len(question)),
		slog.Int("reply_len", len(reply)),
	)

	return reply, nil
}

// GetStats returns current assistant statistics
func (r *Responder) GetStats() ResponderStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return ResponderStats{
		Queries: r.queries,
		Failed:  r.failed,
	}
}
