package models

import (
	"context"
	"sync"

	"assistant/pkg/llm"
)

// MockClient is a scripted llm.Client for tests. Each Complete call consumes
// the next queued response; when the queue is exhausted it repeats the last
// one.
type MockClient struct {
	mu        sync.Mutex
	model     string
	responses []llm.CompletionResponse
	err       error
	calls     int
	requests  []llm.CompletionRequest
}

// NewMockClient creates a mock client that replays the given responses.
func NewMockClient(model string, responses ...llm.CompletionResponse) *MockClient {
	return &MockClient{model: model, responses: responses}
}

// FailWith makes every Complete call return err.
func (m *MockClient) FailWith(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Complete implements llm.Client.
func (m *MockClient) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	m.calls++

	if m.err != nil {
		return llm.CompletionResponse{}, m.err
	}
	if len(m.responses) == 0 {
		return llm.CompletionResponse{Content: "mock response"}, nil
	}

	idx := m.calls - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return m.responses[idx], nil
}

// GetModelName implements llm.Client.
func (m *MockClient) GetModelName() string {
	return m.model
}

// Calls returns how many times Complete was invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests returns a copy of every request seen so far.
func (m *MockClient) Requests() []llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
