package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	OpenRouterName    = "openrouter"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"

	openRouterDefaultModel = "openai/gpt-4o"
	openRouterMaxBackoff   = 10 * time.Second
)

// OpenRouterConfig holds configuration for the OpenRouter client.
type OpenRouterConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration

	// MaxRetries is the total number of attempts per call; 0 means 3.
	MaxRetries int
	// RetryDelay is the first backoff step; 0 means 1s.
	RetryDelay time.Duration

	// Limiter, if set, paces every attempt and is paused when OpenRouter answers 429.
	Limiter *RateLimiter
}

// OpenRouterClient talks to the OpenRouter chat completions API over plain HTTP.
type OpenRouterClient struct {
	apiKey       string
	baseURL      string
	defaultModel string
	http         *http.Client
	maxRetries   int
	retryDelay   time.Duration
	limiter      *RateLimiter
}

func NewOpenRouterClient(cfg OpenRouterConfig) *OpenRouterClient {
	c := &OpenRouterClient{
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		defaultModel: cfg.DefaultModel,
		http:         &http.Client{Timeout: cfg.Timeout},
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		limiter:      cfg.Limiter,
	}
	if c.baseURL == "" {
		c.baseURL = OpenRouterBaseURL
	}
	if c.defaultModel == "" {
		c.defaultModel = openRouterDefaultModel
	}
	if c.http.Timeout == 0 {
		c.http.Timeout = 5 * time.Minute
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	if c.retryDelay <= 0 {
		c.retryDelay = time.Second
	}
	return c
}

func (c *OpenRouterClient) Name() string {
	return OpenRouterName
}

// Chat posts the prompt and retries transient failures with jittered backoff.
func (c *OpenRouterClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	result := newResult(OpenRouterName, req)

	body := &orChatBody{
		Model:       req.modelOr(c.defaultModel),
		Messages:    req.Messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		Usage:       &orUsageOpt{Include: true},
	}
	reply, attempts, err := c.send(ctx, body)
	result.Attempts = attempts
	if err != nil {
		if errors.Is(err, ErrNoChoices) {
			return result.fail(FailureEmpty, err)
		}
		return result.fail(FailureHTTP, err)
	}
	if reply.Error != nil {
		return result.fail(FailureAPI, fmt.Errorf("OpenRouter API error: %s", reply.Error.Message))
	}

	text, err := reply.text()
	if err != nil {
		return result.fail(FailureContent, err)
	}
	choice := reply.Choices[0]
	result.ModelUsed = reply.Model
	result.FinishReason = choice.FinishReason
	result.PromptTokens = reply.Usage.PromptTokens
	result.CompletionTokens = reply.Usage.CompletionTokens
	result.TotalTokens = reply.Usage.TotalTokens
	result.CostUSD = reply.cost()
	return result.succeed(text)
}

// transientError marks a failure worth another attempt.
type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var t transientError
	return errors.As(err, &t)
}

// send posts body until it gets a usable reply or attempts run out. It
// returns the number of attempts made.
func (c *OpenRouterClient) send(ctx context.Context, body *orChatBody) (*orReply, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	jitter := c.retryDelay / 2
	if jitter <= 0 {
		jitter = 1
	}
	attempts := 0
	reply, err := retry.DoWithData(
		func() (*orReply, error) {
			attempts++
			return c.post(ctx, "/chat/completions", payload)
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(openRouterMaxBackoff),
		retry.MaxJitter(jitter),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.RetryIf(isTransient),
		retry.LastErrorOnly(true),
	)
	if err != nil && isTransient(err) && attempts >= c.maxRetries {
		err = fmt.Errorf("gave up after %d attempts: %w", attempts, err)
	}
	return reply, attempts, err
}

// post makes one request. Failures a retry could fix come back as transientError.
func (c *OpenRouterClient) post(ctx context.Context, path string, payload []byte) (*orReply, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", "https://github.com/jackzampolin/spires")
	req.Header.Set("X-Title", "SPIRES")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, transientError{fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transientError{fmt.Errorf("failed to read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, transientError{rateLimited(c.limiter, "OpenRouter", string(raw), resp.Header.Get("Retry-After"), resp.StatusCode)}
	case resp.StatusCode >= 500,
		resp.StatusCode == http.StatusRequestEntityTooLarge,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, transientError{fmt.Errorf("OpenRouter error (status %d): %s", resp.StatusCode, raw)}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("OpenRouter error (status %d): %s", resp.StatusCode, raw)
	}

	var reply orReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if reply.Error != nil {
		if reply.Error.transient() {
			return nil, transientError{fmt.Errorf("OpenRouter API error (retryable): %s", reply.Error.Message)}
		}
		return &reply, nil
	}
	if len(reply.Choices) == 0 {
		return nil, transientError{fmt.Errorf("%w (model=%s, id=%s)", ErrNoChoices, reply.Model, reply.ID)}
	}
	return &reply, nil
}

func (c *OpenRouterClient) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

// ListModels returns the model ids OpenRouter currently serves.
func (c *OpenRouterClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenRouter models error (status %d)", resp.StatusCode)
	}

	var list orModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode models: %w", err)
	}
	ids := make([]string, len(list.Data))
	for i, m := range list.Data {
		ids[i] = m.ID
	}
	return ids, nil
}

var (
	_ LLMClient   = (*OpenRouterClient)(nil)
	_ ModelLister = (*OpenRouterClient)(nil)
)
