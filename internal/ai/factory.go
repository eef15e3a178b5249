package ai

import (
	"github.com/kiranshivaraju/reviewrelay/internal/ai/openai"
	"github.com/kiranshivaraju/reviewrelay/internal/config"
	"github.com/kiranshivaraju/reviewrelay/pkg/models"
)

// Gateway names used in logs and UpstreamError.Provider.
const (
	TextGateway   = "text"
	VisionGateway = "vision"
)

// Gateways bundles the two model endpoints the orchestrator talks to.
type Gateways struct {
	Text   models.Gateway
	Vision models.Gateway
}

// NewGateways constructs the text and vision gateways from config.
// Called once at server startup.
func NewGateways(cfg config.AIConfig) Gateways {
	return Gateways{
		Text:   openai.NewProvider(TextGateway, cfg.Text),
		Vision: openai.NewProvider(VisionGateway, cfg.Vision),
	}
}
