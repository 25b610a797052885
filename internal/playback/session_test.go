package playback

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSpeakReturnsWhenCancelled(t *testing.T) {
	// Synthesis server that accepts the request and never responds. The body
	// must be drained so the server notices the client disconnect and cancels
	// the request context; otherwise Close deadlocks on the stuck handler.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewTTSClient(server.URL, []string{"aplay"})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := client.Speak(ctx, "hello")
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("Expected error from cancelled synthesis request")
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled in chain, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Speak did not return after cancel")
	}
}

func TestSpeakRejectsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "synthesis broken", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewTTSClient(server.URL, []string{"aplay"})

	if _, err := client.Speak(context.Background(), "hello"); err == nil {
		t.Fatal("Expected error for non-200 synthesis response")
	}
}
