// Package config handles YAML configuration loading and validation for the
// voice pipeline: audio stream parameters, detection thresholds, external
// process commands, service endpoints and the Home Assistant alias grammar.
package config
