package homeassistant

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("", "token", testLogger()); err == nil {
		t.Error("Expected error for empty URL")
	}
	if _, err := NewClient("http://ha.local:8123", "", testLogger()); err == nil {
		t.Error("Expected error for empty token")
	}
}

func TestClientSend(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL+"/", "secret-token", testLogger())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	cmd := Command{EntityID: "light.kitchen_main", Service: "turn_on"}
	if err := client.Send(context.Background(), cmd); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if gotPath != "/api/services/light/turn_on" {
		t.Errorf("Unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Unexpected authorization header %q", gotAuth)
	}
	if gotBody["entity_id"] != "light.kitchen_main" {
		t.Errorf("Unexpected body %v", gotBody)
	}

	if client.GetStats().CommandsSent != 1 {
		t.Errorf("Expected 1 command sent, got %d", client.GetStats().CommandsSent)
	}
}

func TestClientSendServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "bad-token", testLogger())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	cmd := Command{EntityID: "switch.kettle", Service: "turn_on"}
	if err := client.Send(context.Background(), cmd); err == nil {
		t.Fatal("Expected error for 401 response")
	}

	if client.GetStats().CommandsFailed != 1 {
		t.Errorf("Expected 1 failed command, got %d", client.GetStats().CommandsFailed)
	}
}

func TestClientSendConnectionError(t *testing.T) {
	client, err := NewClient("http://127.0.0.1:1", "token", testLogger())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	cmd := Command{EntityID: "light.kitchen_main", Service: "turn_off"}
	if err := client.Send(context.Background(), cmd); err == nil {
		t.Error("Expected error for unreachable server")
	}
}
