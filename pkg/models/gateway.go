// Package models contains shared data models used across the ReviewRelay codebase.
package models

import "context"

// Gateway is the core interface that all LLM integrations must implement.
// Never call a specific provider directly; inject this interface instead.
type Gateway interface {
	// Complete sends a prompt (optionally with one image) and returns the raw reply text.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Name returns the gateway identifier (e.g., "text", "vision").
	Name() string
	// Model returns the upstream model name the gateway targets.
	Model() string
}

// ResponseFormat is a hint forwarded to the provider; it is not enforced locally.
type ResponseFormat string

const (
	FormatFreeText   ResponseFormat = "free_text"
	FormatJSONObject ResponseFormat = "json_object"
)

// CompletionOptions carries generation options for a single call.
type CompletionOptions struct {
	Temperature float32
	Format      ResponseFormat
}

// CompletionRequest is the input to a Gateway call.
type CompletionRequest struct {
	System    string // optional system prompt
	Prompt    string
	Image     []byte // raw image bytes, nil for text-only calls
	ImageMIME string // e.g. "image/png"; sniffed when empty
	Options   CompletionOptions
}

// HasImage reports whether the request carries an image attachment.
func (r CompletionRequest) HasImage() bool {
	return len(r.Image) > 0
}
