package mock

import (
	"context"
	"sync"

	"github.com/kiranshivaraju/reviewrelay/pkg/models"
)

// MockGateway satisfies models.Gateway for testing.
type MockGateway struct {
	Name_        string
	Model_       string
	CompleteFunc func(ctx context.Context, req models.CompletionRequest) (string, error)

	mu       sync.Mutex
	requests []models.CompletionRequest
}

func (m *MockGateway) Name() string  { return m.Name_ }
func (m *MockGateway) Model() string { return m.Model_ }

func (m *MockGateway) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return "", nil
}

// Calls returns the number of Complete invocations so far.
func (m *MockGateway) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of every request received, in call order.
func (m *MockGateway) Requests() []models.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// LastRequest returns the most recent request, or the zero value when none was made.
func (m *MockGateway) LastRequest() models.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return models.CompletionRequest{}
	}
	return m.requests[len(m.requests)-1]
}

// NewMockGateway returns a MockGateway that always replies with reply.
func NewMockGateway(reply string) *MockGateway {
	return &MockGateway{
		Name_:  "mock",
		Model_: "mock-v1",
		CompleteFunc: func(_ context.Context, _ models.CompletionRequest) (string, error) {
			return reply, nil
		},
	}
}

// NewSequenceGateway replies with each result in turn; the last one repeats.
func NewSequenceGateway(results ...Result) *MockGateway {
	var (
		mu sync.Mutex
		i  int
	)
	return &MockGateway{
		Name_:  "mock-sequence",
		Model_: "mock-v1",
		CompleteFunc: func(_ context.Context, _ models.CompletionRequest) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			if len(results) == 0 {
				return "", nil
			}
			r := results[min(i, len(results)-1)]
			i++
			return r.Reply, r.Err
		},
	}
}

// Result is one scripted reply for NewSequenceGateway.
type Result struct {
	Reply string
	Err   error
}

// NewFailingGateway returns a MockGateway that always returns the given error.
func NewFailingGateway(err error) *MockGateway {
	return &MockGateway{
		Name_:  "mock-failing",
		Model_: "mock-v1",
		CompleteFunc: func(_ context.Context, _ models.CompletionRequest) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutGateway returns a MockGateway that blocks until the context is done.
func NewTimeoutGateway() *MockGateway {
	return &MockGateway{
		Name_:  "mock-timeout",
		Model_: "mock-v1",
		CompleteFunc: func(ctx context.Context, _ models.CompletionRequest) (string, error) {
			<-ctx.Done()
			return "", &models.UpstreamError{Provider: "mock-timeout", Err: models.ErrInferenceTimeout}
		},
	}
}

// Compile-time check that MockGateway implements Gateway.
var _ models.Gateway = (*MockGateway)(nil)
