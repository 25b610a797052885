// Package homeassistant matches transcripts against the configured alias
// grammar and calls the Home Assistant service API to control the matched
// entity.
package homeassistant
