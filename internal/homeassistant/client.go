package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Client calls the Home Assistant REST service API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger

	// Statistics
	commandsSent   uint64
	commandsFailed uint64
	mu             sync.RWMutex
}

// ClientStats represents Home Assistant client statistics
type ClientStats struct {
	CommandsSent   uint64 `json:"commands_sent"`
	CommandsFailed uint64 `json:"commands_failed"`
}

// NewClient creates a client for the Home Assistant instance at baseURL.
func NewClient(baseURL, token string, logger *slog.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if token == "" {
		return nil, fmt.Errorf("token cannot be empty")
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		logger:  logger,
		// The API occasionally hangs after the command has already been
		// applied, so a short timeout keeps the pipeline responsive
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}, nil
}

// Send calls the service for cmd's entity. The service domain is the entity
// ID prefix before the first dot.
func (c *Client) Send(ctx context.Context, cmd Command) error {
	domain := cmd.EntityID
	if i := strings.Index(cmd.EntityID, "."); i > 0 {
		domain = cmd.EntityID[:i]
	}

	url := fmt.Sprintf("%s/api/services/%s/%s", c.baseURL, domain, cmd.Service)

	body, err := json.Marshal(map[string]string{"entity_id": cmd.EntityID})
	if err != nil {
		return fmt.Errorf("failed to encode service call: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create service request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.incrementFailed()
		return fmt.Errorf("service call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.incrementFailed()
		return fmt.Errorf("service call returned status %d: %s", resp.StatusCode, string(respBody))
	}

	c.mu.Lock()
	c.commandsSent++
	c.mu.Unlock()

	c.logger.Info("Sent command to Home Assistant",
		slog.String("service", cmd.Service),
		slog.String("entity_id", cmd.EntityID),
	)

	return nil
}

func (c *Client) incrementFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commandsFailed++
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ClientStats{
		CommandsSent:   c.commandsSent,
		CommandsFailed: c.commandsFailed,
	}
}
