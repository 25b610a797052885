package transcription

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, endpoint string, maxRetries int) *Client {
	t.Helper()
	client, err := NewClient(Config{
		Endpoint:      endpoint,
		Timeout:       5 * time.Second,
		MaxRetries:    maxRetries,
		MaxConcurrent: 2,
	}, nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return client
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}, nil); err == nil {
		t.Error("Expected error for empty endpoint")
	}

	client, err := NewClient(Config{Endpoint: "http://localhost:8000/transcribe"}, nil)
	if err != nil {
		t.Fatalf("Failed to create client with defaults: %v", err)
	}
	if client.config.Timeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", client.config.Timeout)
	}
	if client.config.MaxConcurrent != 2 {
		t.Errorf("Expected default max concurrent 2, got %d", client.config.MaxConcurrent)
	}
}

func TestTranscribeSuccess(t *testing.T) {
	var gotFilename, gotRequestID string
	var gotBytes int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("Missing audio form file: %v", err)
			http.Error(w, "missing audio", http.StatusBadRequest)
			return
		}
		defer file.Close()

		buf := make([]byte, 1024)
		n, _ := file.Read(buf)
		gotBytes = n
		gotFilename = header.Filename
		gotRequestID = r.FormValue("request_id")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "  включи свет на кухне  "}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL, 0)

	text, err := client.Transcribe(context.Background(), []byte("RIFFfakewav"))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if text != "включи свет на кухне" {
		t.Errorf("Expected trimmed text, got %q", text)
	}
	if !strings.HasPrefix(gotFilename, "utterance_") || !strings.HasSuffix(gotFilename, ".wav") {
		t.Errorf("Unexpected upload filename %q", gotFilename)
	}
	if gotRequestID == "" {
		t.Error("Expected a request_id form field")
	}
	if gotBytes != len("RIFFfakewav") {
		t.Errorf("Expected %d audio bytes, got %d", len("RIFFfakewav"), gotBytes)
	}

	stats := client.GetStats()
	if stats.TotalRequests != 1 || stats.SuccessRequests != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestTranscribeRetriesServerError(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"text": "hello"}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL, 2)

	text, err := client.Transcribe(context.Background(), []byte("wav"))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "hello" {
		t.Errorf("Expected hello, got %q", text)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 requests, got %d", calls.Load())
	}

	if client.GetStats().TotalRetries != 1 {
		t.Errorf("Expected 1 retry, got %d", client.GetStats().TotalRetries)
	}
}

func TestTranscribeDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unsupported format", http.StatusBadRequest)
	}))
	defer server.Close()

	client := testClient(t, server.URL, 3)

	if _, err := client.Transcribe(context.Background(), []byte("wav")); err == nil {
		t.Fatal("Expected error for 400 response")
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 request for non-retryable error, got %d", calls.Load())
	}

	if client.GetStats().FailedRequests != 1 {
		t.Errorf("Expected 1 failed request, got %d", client.GetStats().FailedRequests)
	}
}

func TestTranscribeContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text": "too late"}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Transcribe(ctx, []byte("wav")); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestIsRetryableError(t *testing.T) {
	client := testClient(t, "http://localhost:1", 0)

	tests := []struct {
		name      string
		err       string
		retryable bool
	}{
		{"server error", "HTTP error 503: overloaded", true},
		{"rate limited", "HTTP error 429: slow down", true},
		{"connection refused", "dial tcp: connection refused", true},
		{"timeout", "context deadline exceeded (Client.Timeout)", true},
		{"bad request", "HTTP error 400: unsupported format", false},
		{"bad json", "failed to parse response JSON", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := client.isRetryableError(&testError{tt.err}); got != tt.retryable {
				t.Errorf("isRetryableError(%q) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

// The real timeout errors the HTTP client produces are wrapped, not bare
// strings, and must still classify as retryable.
func TestIsRetryableErrorWrappedTimeouts(t *testing.T) {
	client := testClient(t, "http://localhost:1", 0)

	wrappedDeadline := fmt.Errorf("HTTP request failed: %w",
		&url.Error{Op: "Post", URL: "http://localhost:1", Err: context.DeadlineExceeded})
	if !client.isRetryableError(wrappedDeadline) {
		t.Error("Expected wrapped context.DeadlineExceeded to be retryable")
	}

	wrappedNetTimeout := fmt.Errorf("HTTP request failed: %w",
		&url.Error{Op: "Post", URL: "http://localhost:1", Err: &timeoutError{}})
	if !client.isRetryableError(wrappedNetTimeout) {
		t.Error("Expected wrapped net.Error timeout to be retryable")
	}
}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

// timeoutError mimics the net.Error the HTTP client returns on a timeout
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "awaiting headers" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }
