package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const MockClientName = "mock"

// MockClient is a scripted LLMClient for tests. A reply comes from
// ResponseFunc if set, else the next unused entry of Responses, else
// ResponseText.
type MockClient struct {
	ResponseText string
	Responses    []string
	ResponseFunc func(req *ChatRequest) (string, error)
	Models       []string

	Latency    time.Duration
	ShouldFail bool
	FailAfter  int // requests served before every call fails; 0 disables

	mu       sync.Mutex
	served   int
	requests []ChatRequest
}

func NewMockClient() *MockClient {
	return &MockClient{ResponseText: "mock response"}
}

func (c *MockClient) Name() string {
	return MockClientName
}

func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	n := c.record(req)
	result := newResult(MockClientName, req)
	result.ModelUsed = req.Model
	if req.RequestID == "" {
		result.RequestID = fmt.Sprintf("mock-%d", n)
	}

	switch {
	case c.ShouldFail:
		return result.fail(FailureAPI, errors.New("mock client configured to fail"))
	case c.FailAfter > 0 && n > c.FailAfter:
		return result.fail(FailureAPI, fmt.Errorf("mock client failed after %d requests", c.FailAfter))
	}

	if err := c.wait(ctx); err != nil {
		return result.fail(FailureHTTP, err)
	}

	text, err := c.reply(req)
	if err != nil {
		return result.fail(FailureAPI, err)
	}
	for _, m := range req.Messages {
		result.PromptTokens += len(m.Content) / 4
	}
	result.CompletionTokens = len(text) / 4
	result.TotalTokens = result.PromptTokens + result.CompletionTokens
	return result.succeed(text)
}

// record stores req and returns its 1-based position.
func (c *MockClient) record(req *ChatRequest) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, *req)
	return len(c.requests)
}

func (c *MockClient) wait(ctx context.Context) error {
	if c.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(c.Latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *MockClient) reply(req *ChatRequest) (string, error) {
	if c.ResponseFunc != nil {
		return c.ResponseFunc(req)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.served >= len(c.Responses) {
		return c.ResponseText, nil
	}
	c.served++
	return c.Responses[c.served-1], nil
}

func (c *MockClient) ListModels(context.Context) ([]string, error) {
	return c.Models, nil
}

// Requests returns a copy of every request received since the last Reset.
func (c *MockClient) Requests() []ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChatRequest(nil), c.requests...)
}

// LastPrompt returns the last user message of the most recent request.
func (c *MockClient) LastPrompt() string {
	reqs := c.Requests()
	if len(reqs) == 0 {
		return ""
	}
	msgs := reqs[len(reqs)-1].Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}

func (c *MockClient) RequestCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.requests))
}

// Reset forgets recorded requests and rewinds Responses.
func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.served = 0
	c.requests = nil
}

var (
	_ LLMClient   = (*MockClient)(nil)
	_ ModelLister = (*MockClient)(nil)
)
