package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/bsnjoy/homeassistant-voice/internal/audio"
)

// Development stub for the transcription and TTS endpoints the pipeline
// talks to. Run it, then point transcription.endpoint and playback.tts_url
// at it.

type transcriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

type ttsRequest struct {
	Text      string `json:"text"`
	Format    string `json:"format"`
	Streaming bool   `json:"streaming"`
}

func transcribeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	requestID := r.FormValue("request_id")

	file, header, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	log.Printf("Transcription request: id=%s file=%s size=%d bytes",
		requestID, header.Filename, len(audioData))

	// Simulate processing time
	time.Sleep(200 * time.Millisecond)

	response := transcriptionResponse{
		Text:     "включи свет на кухне",
		Language: "ru",
		Duration: 2.0,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)

	log.Printf("Transcription response sent: %q", response.Text)
}

func ttsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error parsing request", http.StatusBadRequest)
		return
	}

	log.Printf("TTS request: %q (format=%s streaming=%v)", req.Text, req.Format, req.Streaming)

	// One second of silence stands in for synthesized speech
	wav, err := audio.EncodeWAV(make([]byte, 32000), 16000, 1, 2)
	if err != nil {
		http.Error(w, "Error encoding audio", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Write(wav)
}

func main() {
	http.HandleFunc("/transcribe", transcribeHandler)
	http.HandleFunc("/tts", ttsHandler)

	port := ":9000"
	log.Printf("Test voice server starting on port %s", port)
	log.Printf("Transcription endpoint: http://localhost%s/transcribe", port)
	log.Printf("TTS endpoint: http://localhost%s/tts", port)

	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
