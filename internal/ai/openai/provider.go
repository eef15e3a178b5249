// Package openai implements models.Gateway for any OpenAI-compatible chat completions endpoint.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/reviewrelay/internal/config"
	"github.com/kiranshivaraju/reviewrelay/pkg/models"
	goopenai "github.com/sashabaranov/go-openai"
)

const maxTokens = 4096

// Provider implements models.Gateway on top of go-openai.
type Provider struct {
	name   string
	cfg    config.ProviderConfig
	client *goopenai.Client
}

// Option customizes a Provider.
type Option func(*goopenai.ClientConfig)

// WithHTTPClient overrides the HTTP client used for upstream calls.
func WithHTTPClient(c *http.Client) Option {
	return func(cc *goopenai.ClientConfig) {
		cc.HTTPClient = c
	}
}

// NewProvider builds a gateway named name. An empty API key is accepted here and
// reported as ErrMissingAPIKey on the first Complete call.
func NewProvider(name string, cfg config.ProviderConfig, opts ...Option) *Provider {
	cc := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	for _, opt := range opts {
		opt(&cc)
	}
	return &Provider{
		name:   name,
		cfg:    cfg,
		client: goopenai.NewClientWithConfig(cc),
	}
}

func (p *Provider) Name() string  { return p.name }
func (p *Provider) Model() string { return p.cfg.Model }

// Complete sends one chat completion and returns the first choice's content.
func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	if p.cfg.APIKey == "" {
		return "", p.fail(0, models.ErrMissingAPIKey)
	}

	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(req))
	if err != nil {
		return "", p.classify(ctx, err)
	}

	if len(resp.Choices) == 0 {
		return "", p.fail(0, fmt.Errorf("%w: no choices", models.ErrInvalidResponse))
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", p.fail(0, fmt.Errorf("%w: empty content", models.ErrInvalidResponse))
	}
	return content, nil
}

func (p *Provider) buildRequest(req models.CompletionRequest) goopenai.ChatCompletionRequest {
	messages := make([]goopenai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, userMessage(req))

	out := goopenai.ChatCompletionRequest{
		Model:    p.cfg.Model,
		Messages: messages,
	}
	// Reasoning models reject max_tokens and a non-default temperature.
	if isReasoningModel(p.cfg.Model) {
		out.MaxCompletionTokens = maxTokens
	} else {
		out.MaxTokens = maxTokens
		out.Temperature = req.Options.Temperature
	}
	if req.Options.Format == models.FormatJSONObject {
		out.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return out
}

func userMessage(req models.CompletionRequest) goopenai.ChatCompletionMessage {
	if !req.HasImage() {
		return goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleUser,
			Content: req.Prompt,
		}
	}

	mime := req.ImageMIME
	if mime == "" {
		mime = http.DetectContentType(req.Image)
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(req.Image))

	return goopenai.ChatCompletionMessage{
		Role: goopenai.ChatMessageRoleUser,
		MultiContent: []goopenai.ChatMessagePart{
			{Type: goopenai.ChatMessagePartTypeText, Text: req.Prompt},
			{
				Type: goopenai.ChatMessagePartTypeImageURL,
				ImageURL: &goopenai.ChatMessageImageURL{
					URL:    dataURL,
					Detail: goopenai.ImageURLDetailAuto,
				},
			},
		},
	}
}

func isReasoningModel(model string) bool {
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

// classify maps a go-openai error onto the gateway failure kinds.
func (p *Provider) classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return p.fail(0, fmt.Errorf("%w: %w", models.ErrInferenceTimeout, err))
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return p.fail(apiErr.HTTPStatusCode, fmt.Errorf("%w: %w", models.ErrProviderUnavailable, err))
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return p.fail(reqErr.HTTPStatusCode, fmt.Errorf("%w: %w", models.ErrProviderUnavailable, err))
	}

	return p.fail(0, fmt.Errorf("%w: %w", models.ErrProviderUnavailable, err))
}

func (p *Provider) fail(status int, err error) *models.UpstreamError {
	return &models.UpstreamError{Provider: p.name, StatusCode: status, Err: err}
}

var _ models.Gateway = (*Provider)(nil)
