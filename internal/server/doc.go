// Package server implements the HTTP API for monitoring the voice pipeline:
// health, statistics, sanitized configuration and Prometheus metrics.
package server
