package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/reviewrelay/internal/ai/mock"
	"github.com/kiranshivaraju/reviewrelay/pkg/models"
)

// --- mocks ---

type memCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
	sets   int
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.sets++
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) Ping(_ context.Context) error { return nil }

func (c *memCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 0, nil
}

// --- helpers ---

const structuredReply = `{"title":"Addition","analysis":"2 plus 2 equals 4","conclusion":"4","tags":["math","arithmetic"]}`

func upstream(status int, base error) error {
	return &models.UpstreamError{Provider: "mock", StatusCode: status, Err: base}
}

func newTestService(text, vision models.Gateway, opts Options) *Service {
	if opts.RetryInitialInterval == 0 {
		opts.RetryInitialInterval = time.Millisecond
	}
	return NewService(Gateways{Text: text, Vision: vision}, nil, DefaultPrompts(), opts)
}

func assertDegraded(t *testing.T, got models.StructuredAnswer, contains string) {
	t.Helper()
	if got.Title != "Error" {
		t.Errorf("expected title Error, got %q", got.Title)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "Error" {
		t.Errorf("expected tags [Error], got %v", got.Tags)
	}
	if !strings.Contains(got.Analysis, contains) {
		t.Errorf("expected analysis to contain %q, got %q", contains, got.Analysis)
	}
}

// --- AskText ---

func TestAskText_EndToEnd(t *testing.T) {
	text := mock.NewMockGateway(structuredReply)
	svc := newTestService(text, mock.NewMockGateway("unused"), Options{Temperature: 0.3})

	got := svc.AskText(context.Background(), "2+2=?")

	if got.Conclusion != "4" {
		t.Errorf("expected conclusion 4, got %q", got.Conclusion)
	}
	if got.Title != "Addition" {
		t.Errorf("expected title Addition, got %q", got.Title)
	}
	if len(got.Tags) != 2 {
		t.Errorf("expected 2 tags, got %v", got.Tags)
	}

	req := text.LastRequest()
	if req.Prompt != "2+2=?" {
		t.Errorf("expected prompt to be the question, got %q", req.Prompt)
	}
	if req.System != DefaultPrompts().System {
		t.Error("expected structured-output system prompt")
	}
	if req.Options.Format != models.FormatJSONObject {
		t.Errorf("expected json_object hint, got %q", req.Options.Format)
	}
	if req.Options.Temperature != 0.3 {
		t.Errorf("expected temperature 0.3, got %v", req.Options.Temperature)
	}
	if req.HasImage() {
		t.Error("text request must not carry an image")
	}
}

func TestAskText_FencedReply(t *testing.T) {
	text := mock.NewMockGateway("Here you go:\n```json\n" + structuredReply + "\n```\nGood luck!")
	svc := newTestService(text, nil, Options{})

	got := svc.AskText(context.Background(), "2+2=?")
	if got.Conclusion != "4" || got.Analysis != "2 plus 2 equals 4" {
		t.Errorf("fenced reply not recovered: %+v", got)
	}
}

func TestAskText_PlainTextFallsBack(t *testing.T) {
	reply := "The answer is 4 because 2 + 2 = 4."
	svc := newTestService(mock.NewMockGateway(reply), nil, Options{})

	got := svc.AskText(context.Background(), "2+2=?")
	if got.Analysis != reply {
		t.Errorf("expected raw reply as analysis, got %q", got.Analysis)
	}
	if got.Conclusion != "" {
		t.Errorf("expected empty conclusion, got %q", got.Conclusion)
	}
}

func TestAskText_UpstreamFailureDegrades(t *testing.T) {
	text := mock.NewFailingGateway(upstream(0, models.ErrProviderUnavailable))
	svc := newTestService(text, nil, Options{})

	got := svc.AskText(context.Background(), "2+2=?")
	assertDegraded(t, got, "ai provider unavailable")
}

func TestAskText_MissingKeyIsNotRetried(t *testing.T) {
	text := mock.NewFailingGateway(upstream(0, models.ErrMissingAPIKey))
	svc := newTestService(text, nil, Options{MaxRetries: 3})

	got := svc.AskText(context.Background(), "q")
	assertDegraded(t, got, "api key not configured")
	if text.Calls() != 1 {
		t.Errorf("expected 1 call, got %d", text.Calls())
	}
}

func TestAskText_RetriesTransientFailure(t *testing.T) {
	text := mock.NewSequenceGateway(
		mock.Result{Err: upstream(http.StatusServiceUnavailable, models.ErrProviderUnavailable)},
		mock.Result{Reply: structuredReply},
	)
	svc := newTestService(text, nil, Options{MaxRetries: 1})

	got := svc.AskText(context.Background(), "2+2=?")
	if got.Conclusion != "4" {
		t.Errorf("expected recovery after retry, got %+v", got)
	}
	if text.Calls() != 2 {
		t.Errorf("expected 2 calls, got %d", text.Calls())
	}
}

func TestAskText_RetriesAreBounded(t *testing.T) {
	text := mock.NewFailingGateway(upstream(http.StatusTooManyRequests, models.ErrProviderUnavailable))
	svc := newTestService(text, nil, Options{MaxRetries: 2})

	got := svc.AskText(context.Background(), "q")
	assertDegraded(t, got, "status 429")
	if text.Calls() != 3 {
		t.Errorf("expected 3 calls, got %d", text.Calls())
	}
}

func TestAskText_ClientErrorIsNotRetried(t *testing.T) {
	text := mock.NewFailingGateway(upstream(http.StatusBadRequest, models.ErrProviderUnavailable))
	svc := newTestService(text, nil, Options{MaxRetries: 2})

	svc.AskText(context.Background(), "q")
	if text.Calls() != 1 {
		t.Errorf("expected 1 call, got %d", text.Calls())
	}
}

func TestAskText_TimeoutDegrades(t *testing.T) {
	text := mock.NewTimeoutGateway()
	svc := newTestService(text, nil, Options{Timeout: 50 * time.Millisecond, MaxRetries: 1})

	start := time.Now()
	got := svc.AskText(context.Background(), "q")

	assertDegraded(t, got, "timeout")
	if text.Calls() != 1 {
		t.Errorf("timeouts must not be retried, got %d calls", text.Calls())
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout not enforced, took %v", elapsed)
	}
}

// --- AskImage ---

func TestAskImage_TwoStages(t *testing.T) {
	vision := mock.NewMockGateway("A right triangle with legs 3 and 4.")
	text := mock.NewMockGateway(`{"title":"Hypotenuse","analysis":"3-4-5 triangle","conclusion":"5","tags":["geometry"]}`)
	svc := newTestService(text, vision, Options{})

	got := svc.AskImage(context.Background(), "What is the hypotenuse?", []byte("png-bytes"), "image/png")

	if got.Conclusion != "5" {
		t.Errorf("expected conclusion 5, got %q", got.Conclusion)
	}

	vreq := vision.LastRequest()
	if string(vreq.Image) != "png-bytes" || vreq.ImageMIME != "image/png" {
		t.Errorf("vision request missing image: %+v", vreq)
	}
	if vreq.Prompt != DefaultPrompts().Vision {
		t.Error("expected extraction-only prompt for vision stage")
	}
	if vreq.Options.Format != models.FormatFreeText {
		t.Errorf("expected free_text hint for vision, got %q", vreq.Options.Format)
	}

	treq := text.LastRequest()
	if treq.HasImage() {
		t.Error("reasoning stage must not carry the image")
	}
	if !strings.Contains(treq.Prompt, "A right triangle with legs 3 and 4.") {
		t.Error("combined prompt missing visual context")
	}
	if !strings.Contains(treq.Prompt, "What is the hypotenuse?") {
		t.Error("combined prompt missing question")
	}
	if treq.Options.Format != models.FormatJSONObject {
		t.Errorf("expected json_object hint, got %q", treq.Options.Format)
	}
}

func TestAskImage_VisionFailureAborts(t *testing.T) {
	vision := mock.NewFailingGateway(upstream(0, models.ErrMissingAPIKey))
	text := mock.NewMockGateway(structuredReply)
	svc := newTestService(text, vision, Options{})

	got := svc.AskImage(context.Background(), "q", []byte("img"), "image/png")

	assertDegraded(t, got, "vision request failed")
	if text.Calls() != 0 {
		t.Errorf("reasoning stage must not run after vision failure, got %d calls", text.Calls())
	}
}

func TestAskImage_EmptyVisualContextAborts(t *testing.T) {
	vision := mock.NewMockGateway("   \n")
	text := mock.NewMockGateway(structuredReply)
	svc := newTestService(text, vision, Options{})

	got := svc.AskImage(context.Background(), "q", []byte("img"), "image/png")

	assertDegraded(t, got, "empty visual context")
	if text.Calls() != 0 {
		t.Errorf("expected no reasoning call, got %d", text.Calls())
	}
}

func TestAskImage_ReasoningFailureDegrades(t *testing.T) {
	vision := mock.NewMockGateway("context")
	text := mock.NewFailingGateway(upstream(0, models.ErrInvalidResponse))
	svc := newTestService(text, vision, Options{})

	got := svc.AskImage(context.Background(), "q", []byte("img"), "image/png")
	assertDegraded(t, got, "reasoning request failed")
}

func TestAskImage_TruncatesVisualContext(t *testing.T) {
	vision := mock.NewMockGateway(strings.Repeat("é", maxVisualContextBytes))
	text := mock.NewMockGateway(structuredReply)
	svc := newTestService(text, vision, Options{})

	svc.AskImage(context.Background(), "q", []byte("img"), "image/png")

	prompt := text.LastRequest().Prompt
	if strings.Count(prompt, "é")*2 > maxVisualContextBytes {
		t.Errorf("visual context not truncated: %d runes", strings.Count(prompt, "é"))
	}
	if !strings.Contains(prompt, "q") {
		t.Error("question dropped from combined prompt")
	}
}

// --- answer cache ---

func TestAskText_CachesStructuredAnswers(t *testing.T) {
	text := mock.NewMockGateway(structuredReply)
	c := newMemCache()
	svc := NewService(Gateways{Text: text, Vision: mock.NewMockGateway("")}, c, DefaultPrompts(),
		Options{CacheTTL: time.Hour})

	first := svc.AskText(context.Background(), "2+2=?")
	second := svc.AskText(context.Background(), "2+2=?")

	if text.Calls() != 1 {
		t.Errorf("expected 1 gateway call, got %d", text.Calls())
	}
	if first.Conclusion != second.Conclusion || second.Title != "Addition" {
		t.Errorf("cached answer differs: %+v vs %+v", first, second)
	}

	svc.AskText(context.Background(), "3+3=?")
	if text.Calls() != 2 {
		t.Errorf("different question must miss the cache, got %d calls", text.Calls())
	}
}

func TestAskText_DoesNotCacheFallbackOrDegraded(t *testing.T) {
	c := newMemCache()

	plain := mock.NewMockGateway("not json")
	svc := NewService(Gateways{Text: plain}, c, DefaultPrompts(), Options{CacheTTL: time.Hour})
	svc.AskText(context.Background(), "q")
	svc.AskText(context.Background(), "q")
	if plain.Calls() != 2 {
		t.Errorf("fallback answer was cached: %d calls", plain.Calls())
	}

	failing := mock.NewFailingGateway(upstream(0, models.ErrMissingAPIKey))
	svc = NewService(Gateways{Text: failing}, c, DefaultPrompts(), Options{CacheTTL: time.Hour})
	svc.AskText(context.Background(), "q")
	if c.sets != 0 {
		t.Errorf("expected no cache writes, got %d", c.sets)
	}
}

func TestAskText_CacheDisabledWithoutTTL(t *testing.T) {
	text := mock.NewMockGateway(structuredReply)
	c := newMemCache()
	svc := NewService(Gateways{Text: text}, c, DefaultPrompts(), Options{})

	svc.AskText(context.Background(), "q")
	svc.AskText(context.Background(), "q")
	if text.Calls() != 2 || c.sets != 0 {
		t.Errorf("expected cache bypass, calls=%d sets=%d", text.Calls(), c.sets)
	}
}

func TestAskText_CacheReadErrorFailsOpen(t *testing.T) {
	text := mock.NewMockGateway(structuredReply)
	c := newMemCache()
	c.getErr = errors.New("redis down")
	svc := NewService(Gateways{Text: text}, c, DefaultPrompts(), Options{CacheTTL: time.Hour})

	got := svc.AskText(context.Background(), "2+2=?")
	if got.Conclusion != "4" {
		t.Errorf("expected answer despite cache error, got %+v", got)
	}
}

func TestAskImage_CacheKeyIncludesImage(t *testing.T) {
	vision := mock.NewMockGateway("context")
	text := mock.NewMockGateway(structuredReply)
	svc := NewService(Gateways{Text: text, Vision: vision}, newMemCache(), DefaultPrompts(),
		Options{CacheTTL: time.Hour})

	svc.AskImage(context.Background(), "q", []byte("image-a"), "image/png")
	svc.AskImage(context.Background(), "q", []byte("image-a"), "image/png")
	svc.AskImage(context.Background(), "q", []byte("image-b"), "image/png")

	if vision.Calls() != 2 {
		t.Errorf("expected 2 vision calls, got %d", vision.Calls())
	}
}

// --- helpers under test ---

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"transport failure", upstream(0, models.ErrProviderUnavailable), true},
		{"rate limited", upstream(429, models.ErrProviderUnavailable), true},
		{"server error", upstream(502, models.ErrProviderUnavailable), true},
		{"bad request", upstream(400, models.ErrProviderUnavailable), false},
		{"unauthorized", upstream(401, models.ErrProviderUnavailable), false},
		{"timeout", upstream(0, models.ErrInferenceTimeout), false},
		{"missing key", upstream(0, models.ErrMissingAPIKey), false},
		{"invalid response", upstream(0, models.ErrInvalidResponse), false},
		{"unrelated", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isTransient(tc.err); got != tc.want {
				t.Errorf("isTransient = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTruncateString(t *testing.T) {
	if got := truncateString("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncateString("abcdef", 3); got != "abc" {
		t.Errorf("got %q", got)
	}
	// "é" is two bytes; cutting at 3 must not split the second rune.
	if got := truncateString("ééé", 3); got != "é" {
		t.Errorf("got %q", got)
	}
}
