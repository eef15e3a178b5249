package ai

import "github.com/kiranshivaraju/reviewrelay/pkg/models"

// Re-exported so callers of the orchestrator need not import pkg/models for error checks.
var (
	ErrProviderUnavailable = models.ErrProviderUnavailable
	ErrInferenceTimeout    = models.ErrInferenceTimeout
	ErrInvalidResponse     = models.ErrInvalidResponse
	ErrMissingAPIKey       = models.ErrMissingAPIKey
)

type UpstreamError = models.UpstreamError
