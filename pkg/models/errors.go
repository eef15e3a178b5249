package models

import (
	"errors"
	"fmt"
)

// Gateway failure kinds. Callers branch on these with errors.Is.
var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
	ErrMissingAPIKey       = errors.New("ai provider api key not configured")
)

// UpstreamError is returned by every Gateway implementation on failure.
// StatusCode is the HTTP status reported by the provider, or 0 when none was received.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
