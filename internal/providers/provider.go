// Package providers holds the LLM backends the completion client talks to.
//
// Every backend answers a ChatRequest with a ChatResult. The result is
// returned even when the call fails so callers can record attempts and
// timing for failed completions too.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ErrNoChoices is returned when a provider answers without any completion.
var ErrNoChoices = errors.New("no choices in response")

// Failure kinds stored in ChatResult.ErrorType.
const (
	FailureHTTP    = "http_error"
	FailureAPI     = "api_error"
	FailureEmpty   = "empty_response"
	FailureContent = "content_error"
)

// LLMClient sends chat completion requests to one backend.
type LLMClient interface {
	Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error)
	Name() string
}

// ModelLister is implemented by clients that can enumerate their models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Message is one turn of a chat prompt. Role is system, user or assistant.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func SystemMessage(content string) Message { return Message{Role: "system", Content: content} }

func UserMessage(content string) Message { return Message{Role: "user", Content: content} }

// ChatRequest is a prompt plus sampling parameters. An empty Model selects the
// client's default; zero sampling values leave the backend default in place.
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`

	RequestID string `json:"-"`
}

// modelOr returns the requested model, or fallback when none was asked for.
func (r *ChatRequest) modelOr(fallback string) string {
	if r.Model != "" {
		return r.Model
	}
	return fallback
}

// ChatResult describes one completion call, successful or not.
type ChatResult struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
	Provider     string `json:"provider"`
	ModelUsed    string `json:"model_used"`

	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`

	ExecutionTime time.Duration `json:"execution_time"`
	TotalTime     time.Duration `json:"total_time"`

	RequestID string `json:"request_id"`
	Attempts  int    `json:"attempts"`

	Success      bool   `json:"success"`
	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	started time.Time
}

// newResult starts timing a call made by provider for req.
func newResult(provider string, req *ChatRequest) *ChatResult {
	id := req.RequestID
	if id == "" {
		id = uuid.New().String()
	}
	return &ChatResult{
		RequestID: id,
		Provider:  provider,
		Attempts:  1,
		started:   time.Now(),
	}
}

// fail records err under kind and hands it back for returning.
func (r *ChatResult) fail(kind string, err error) (*ChatResult, error) {
	r.ErrorType = kind
	r.ErrorMessage = err.Error()
	r.TotalTime = time.Since(r.started)
	return r, err
}

// succeed records the completion text and stops the clock.
func (r *ChatResult) succeed(content string) (*ChatResult, error) {
	r.Success = true
	r.Content = content
	r.ExecutionTime = time.Since(r.started)
	r.TotalTime = r.ExecutionTime
	return r, nil
}

// RateLimitError reports a 429 from a provider.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	StatusCode int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter <= 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter)
}

// rateLimited builds a RateLimitError and drains limiter for the backoff window.
func rateLimited(limiter *RateLimiter, provider, detail, retryAfterHeader string, status int) *RateLimitError {
	wait := parseRetryAfter(retryAfterHeader)
	if limiter != nil {
		limiter.Record429(wait)
	}
	return &RateLimitError{
		Message:    fmt.Sprintf("%s rate limited: %s", provider, detail),
		RetryAfter: wait,
		StatusCode: status,
	}
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
