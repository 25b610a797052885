// Package assistant answers free-form spoken questions addressed to the
// assistant by name, using an OpenAI-compatible chat completion API.
package assistant
