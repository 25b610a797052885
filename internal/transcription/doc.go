// Package transcription implements the HTTP client for the speech-to-text
// API. It posts WAV utterances as multipart form data, retries with
// exponential backoff, and limits request concurrency.
package transcription
