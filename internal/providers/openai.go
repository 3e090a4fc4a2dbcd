package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIName         = "openai"
	openAIDefaultModel = "gpt-4o"
)

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey       string
	DefaultModel string
	MaxRetries   int           // SDK transport retries; 0 means 3, negative disables
	Timeout      time.Duration // HTTP timeout
	BaseURL      string        // Optional (tests, compatible gateways)
	HTTPClient   *http.Client  // Optional (tests)
	Limiter      *RateLimiter
}

// OpenAIClient implements LLMClient using the official OpenAI SDK.
type OpenAIClient struct {
	defaultModel string
	client       openai.Client
	limiter      *RateLimiter
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = openAIDefaultModel
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		defaultModel: cfg.DefaultModel,
		client:       openai.NewClient(opts...),
		limiter:      cfg.Limiter,
	}
}

// Name returns the client identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIName
}

// Chat sends the prompt through the SDK, which retries transport failures itself.
func (c *OpenAIClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	result := newResult(OpenAIName, req)
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return result.fail(FailureHTTP, err)
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, c.params(req))
	if err != nil {
		return result.fail(FailureAPI, c.mapError(err))
	}
	if len(resp.Choices) == 0 {
		return result.fail(FailureEmpty, ErrNoChoices)
	}

	choice := resp.Choices[0]
	result.FinishReason = string(choice.FinishReason)
	result.ModelUsed = resp.Model
	result.PromptTokens = int(resp.Usage.PromptTokens)
	result.CompletionTokens = int(resp.Usage.CompletionTokens)
	result.TotalTokens = int(resp.Usage.TotalTokens)
	return result.succeed(choice.Message.Content)
}

func (c *OpenAIClient) params(req *ChatRequest) openai.ChatCompletionNewParams {
	p := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.modelOr(c.defaultModel)),
		Messages: make([]openai.ChatCompletionMessageParamUnion, len(req.Messages)),
	}
	for i, m := range req.Messages {
		switch m.Role {
		case "system":
			p.Messages[i] = openai.SystemMessage(m.Content)
		case "assistant":
			p.Messages[i] = openai.AssistantMessage(m.Content)
		default:
			p.Messages[i] = openai.UserMessage(m.Content)
		}
	}
	if req.Temperature > 0 {
		p.Temperature = openai.Float(req.Temperature)
	}
	if req.TopP > 0 {
		p.TopP = openai.Float(req.TopP)
	}
	if req.MaxTokens > 0 {
		p.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	return p
}

// ListModels returns the model ids visible to the API key.
func (c *OpenAIClient) ListModels(ctx context.Context) ([]string, error) {
	page, err := c.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("openai models list failed: %w", c.mapError(err))
	}
	if page == nil {
		return nil, fmt.Errorf("openai models list returned nil response")
	}
	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// mapError turns SDK errors into provider errors, recording 429s on the limiter.
func (c *OpenAIClient) mapError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.StatusCode == http.StatusTooManyRequests {
		header := ""
		if apiErr.Response != nil {
			header = apiErr.Response.Header.Get("Retry-After")
		}
		return rateLimited(c.limiter, "OpenAI", apiErr.Message, header, apiErr.StatusCode)
	}
	if apiErr.Message == "" {
		return fmt.Errorf("OpenAI error (status %d)", apiErr.StatusCode)
	}
	return fmt.Errorf("OpenAI error (status %d): %s", apiErr.StatusCode, apiErr.Message)
}

var (
	_ LLMClient   = (*OpenAIClient)(nil)
	_ ModelLister = (*OpenAIClient)(nil)
)
