package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/kiranshivaraju/reviewrelay/internal/cache"
	"github.com/kiranshivaraju/reviewrelay/pkg/models"
	"github.com/kiranshivaraju/reviewrelay/pkg/normalize"
)

const (
	defaultRetryInterval    = 500 * time.Millisecond
	maxVisualContextBytes   = 8000
	defaultInferenceTimeout = 120 * time.Second
)

// Options tunes a Service. Zero values fall back to sensible defaults.
type Options struct {
	Timeout              time.Duration // per gateway attempt
	Temperature          float32
	MaxRetries           int // extra attempts for transient failures
	CacheTTL             time.Duration
	RetryInitialInterval time.Duration
}

// Service turns a question into a StructuredAnswer. It never returns an error:
// upstream failures become degraded answers.
type Service struct {
	text    models.Gateway
	vision  models.Gateway
	cache   cache.Cache
	prompts Prompts
	opts    Options
}

// NewService creates a new Service. A nil cache disables answer caching.
func NewService(gw Gateways, c cache.Cache, prompts Prompts, opts Options) *Service {
	if c == nil {
		c = cache.NopCache{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultInferenceTimeout
	}
	if opts.RetryInitialInterval <= 0 {
		opts.RetryInitialInterval = defaultRetryInterval
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Service{
		text:    gw.Text,
		vision:  gw.Vision,
		cache:   c,
		prompts: prompts,
		opts:    opts,
	}
}

// AskText answers a text-only question with one call to the text gateway.
func (s *Service) AskText(ctx context.Context, question string) models.StructuredAnswer {
	key := cache.AnswerKey(cache.Digest("text", s.text.Model(), s.prompts.System, question))
	if answer, ok := s.cached(ctx, key); ok {
		return answer
	}

	raw, err := s.complete(ctx, s.text, models.CompletionRequest{
		System:  s.prompts.System,
		Prompt:  question,
		Options: s.options(models.FormatJSONObject),
	})
	if err != nil {
		return s.degrade("text", err)
	}

	return s.finish(ctx, key, raw)
}

// AskImage answers a question about an image in two stages: the vision gateway
// transcribes the image, then the text gateway answers the combined prompt.
// A failed transcription aborts the flow.
func (s *Service) AskImage(ctx context.Context, question string, image []byte, mime string) models.StructuredAnswer {
	key := cache.AnswerKey(cache.Digest(
		"image", s.vision.Model(), s.text.Model(), s.prompts.System, s.prompts.Vision,
		cache.Digest(string(image)), question,
	))
	if answer, ok := s.cached(ctx, key); ok {
		return answer
	}

	visual, err := s.complete(ctx, s.vision, models.CompletionRequest{
		Prompt:    s.prompts.Vision,
		Image:     image,
		ImageMIME: mime,
		Options:   s.options(models.FormatFreeText),
	})
	if err != nil {
		return s.degrade("vision", err)
	}
	visual = strings.TrimSpace(visual)
	if visual == "" {
		return s.degrade("vision", &models.UpstreamError{
			Provider: s.vision.Name(),
			Err:      fmt.Errorf("%w: empty visual context", models.ErrInvalidResponse),
		})
	}
	visual = truncateString(visual, maxVisualContextBytes)

	raw, err := s.complete(ctx, s.text, models.CompletionRequest{
		System:  s.prompts.System,
		Prompt:  s.prompts.Combine(visual, question),
		Options: s.options(models.FormatJSONObject),
	})
	if err != nil {
		return s.degrade("reasoning", err)
	}

	return s.finish(ctx, key, raw)
}

func (s *Service) options(format models.ResponseFormat) models.CompletionOptions {
	return models.CompletionOptions{Temperature: s.opts.Temperature, Format: format}
}

// finish normalizes raw and caches the answer unless the normalizer had to fall back.
func (s *Service) finish(ctx context.Context, key, raw string) models.StructuredAnswer {
	res := normalize.Run(raw)
	if res.Fallback() {
		slog.Warn("model reply was not structured, returning raw text",
			"model", s.text.Model(), "reply_bytes", len(raw))
		return res.Answer
	}
	if res.Stage != normalize.StageStrict {
		slog.Debug("model reply recovered", "stage", string(res.Stage))
	}

	if s.opts.CacheTTL > 0 {
		if data, err := json.Marshal(res.Answer); err == nil {
			if err := s.cache.Set(ctx, key, data, s.opts.CacheTTL); err != nil {
				slog.Warn("caching answer failed", "error", err)
			}
		}
	}
	return res.Answer
}

func (s *Service) cached(ctx context.Context, key string) (models.StructuredAnswer, bool) {
	if s.opts.CacheTTL <= 0 {
		return models.StructuredAnswer{}, false
	}
	data, found, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("reading answer cache failed", "error", err)
		return models.StructuredAnswer{}, false
	}
	if !found {
		return models.StructuredAnswer{}, false
	}
	var answer models.StructuredAnswer
	if err := json.Unmarshal(data, &answer); err != nil {
		return models.StructuredAnswer{}, false
	}
	if answer.Tags == nil {
		answer.Tags = []string{}
	}
	return answer, true
}

// complete calls gw with a per-attempt timeout, retrying transient failures
// with exponential backoff up to MaxRetries extra attempts.
func (s *Service) complete(ctx context.Context, gw models.Gateway, req models.CompletionRequest) (string, error) {
	var out string
	attempt := func() error {
		callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()

		raw, err := gw.Complete(callCtx, req)
		if err != nil {
			if isTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		out = raw
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RetryInitialInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.opts.MaxRetries)), ctx)

	err := backoff.RetryNotify(attempt, policy, func(err error, wait time.Duration) {
		slog.Warn("upstream call failed, retrying",
			"gateway", gw.Name(), "model", gw.Model(), "error", err, "wait", wait)
	})
	if err != nil {
		slog.Error("upstream call failed", "gateway", gw.Name(), "model", gw.Model(), "error", err)
		return "", err
	}
	return out, nil
}

// isTransient reports whether a failed call is worth repeating: rate limiting,
// server errors, and transport failures. Timeouts and missing keys are not.
func isTransient(err error) bool {
	if !errors.Is(err, models.ErrProviderUnavailable) {
		return false
	}
	var up *models.UpstreamError
	if errors.As(err, &up) && up.StatusCode != 0 {
		return up.StatusCode == http.StatusTooManyRequests || up.StatusCode >= http.StatusInternalServerError
	}
	return true
}

func (s *Service) degrade(stage string, err error) models.StructuredAnswer {
	return normalize.Degraded(fmt.Sprintf("%s request failed: %v", stage, err))
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
