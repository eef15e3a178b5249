package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/reviewrelay/internal/store"
	"github.com/kiranshivaraju/reviewrelay/pkg/models"
)

// --- mock Answerer ---

type mockAnswerer struct {
	mu        sync.Mutex
	answer    models.StructuredAnswer
	question  string
	image     []byte
	mime      string
	textCalls int
	imgCalls  int
}

func newMockAnswerer() *mockAnswerer {
	return &mockAnswerer{answer: models.StructuredAnswer{
		Title:      "Addition",
		Analysis:   "2 plus 2 equals 4",
		Conclusion: "4",
		Tags:       []string{"math"},
	}}
}

func (m *mockAnswerer) AskText(_ context.Context, question string) models.StructuredAnswer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.textCalls++
	m.question = question
	return m.answer
}

func (m *mockAnswerer) AskImage(_ context.Context, question string, image []byte, mime string) models.StructuredAnswer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.imgCalls++
	m.question, m.image, m.mime = question, image, mime
	return m.answer
}

// --- mock ReviewStore ---

type memStore struct {
	mu      sync.Mutex
	nextID  int64
	items   map[int64]models.ReviewItem
	failErr error
}

func newMemStore() *memStore {
	return &memStore{items: make(map[int64]models.ReviewItem)}
}

func (s *memStore) CreateReview(_ context.Context, r models.NewReview) (int64, error) {
	if s.failErr != nil {
		return 0, s.failErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.items[s.nextID] = models.ReviewItem{
		ID: s.nextID, Title: r.Title, Answer: r.Answer, Analysis: r.Analysis,
		Tags: r.Tags, CreatedAt: time.Now(),
	}
	return s.nextID, nil
}

func (s *memStore) ListReviews(_ context.Context) ([]models.ReviewItem, error) {
	if s.failErr != nil {
		return nil, s.failErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ReviewItem, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *memStore) DeleteReview(_ context.Context, id int64) error {
	if s.failErr != nil {
		return s.failErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

// --- helpers ---

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewReader(b)
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v (body %q)", err, rec.Body.String())
	}
	return body
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	body := decodeMap(t, rec)
	if body["status"] != "error" {
		t.Errorf("expected status error, got %v", body["status"])
	}
	if body["code"] != code {
		t.Errorf("expected code %s, got %v", code, body["code"])
	}
}
