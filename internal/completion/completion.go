// Package completion sends prompts to a configured model, caching every
// prompt/payload pair and recording each call for auditing.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackzampolin/spires/internal/cache"
	"github.com/jackzampolin/spires/internal/llmcall"
	"github.com/jackzampolin/spires/internal/prompts"
	"github.com/jackzampolin/spires/internal/providers"
)

// Generation defaults used by the engine.
const (
	DefaultMaxGenLen   = 4097
	DefaultTemperature = 0.6
	DefaultTopP        = 0.9
)

// CompleteOptions controls a single completion.
type CompleteOptions struct {
	ShowPrompt  bool
	MaxGenLen   int
	Temperature float64
	TopP        float64
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() CompleteOptions {
	return CompleteOptions{
		MaxGenLen:   DefaultMaxGenLen,
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
	}
}

// Config configures a Client.
type Config struct {
	LLM   providers.LLMClient
	Model string

	// Cache defaults to cache.Nop.
	Cache cache.Store
	// Recorder may be nil.
	Recorder *llmcall.Recorder
	Logger   *slog.Logger
}

// Client is the completion client used by the extraction engine.
type Client struct {
	llm      providers.LLMClient
	model    string
	cache    cache.Store
	recorder *llmcall.Recorder
	logger   *slog.Logger
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.LLM == nil {
		return nil, errors.New("completion: LLM client is required")
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		llm:      cfg.LLM,
		model:    cfg.Model,
		cache:    cfg.Cache,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
	}, nil
}

// Model returns the model requested from the provider ("" means provider default).
func (c *Client) Model() string { return c.model }

// Provider returns the provider name.
func (c *Client) Provider() string { return c.llm.Name() }

// Complete sends a single user prompt.
func (c *Client) Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error) {
	return c.ChatCompletion(ctx, prompt, "", opts)
}

// ChatCompletion sends a user prompt with an optional system prompt. The cache
// is keyed on both prompts.
func (c *Client) ChatCompletion(ctx context.Context, user, system string, opts CompleteOptions) (string, error) {
	rec := recordOptionsFrom(ctx)
	rec.PromptCID = prompts.HashText(system + user)
	if rec.PromptKey == "" {
		rec.PromptKey = "spires.complete"
	}
	temp := opts.Temperature
	rec.Temperature = &temp

	c.logger.Info("complete", "prompt_len", len(user), "prompt", peek(user, 256))
	if opts.ShowPrompt {
		if system != "" {
			c.logger.Info("sending system prompt", "prompt", system)
		}
		c.logger.Info("sending prompt", "prompt", user)
	}

	payload, err := c.cache.Get(ctx, user, system)
	switch {
	case err == nil:
		c.logger.Info("using cached payload", "prompt", peek(user, 80))
		c.recorder.RecordCall(ctx, llmcall.FromCacheHit(payload, rec))
		return payload, nil
	case !errors.Is(err, cache.ErrNotFound):
		c.logger.Warn("completion cache lookup failed", "error", err)
	}

	var messages []providers.Message
	if system != "" {
		messages = append(messages, providers.SystemMessage(system))
	}
	messages = append(messages, providers.UserMessage(user))

	start := time.Now()
	result, err := c.llm.Chat(ctx, &providers.ChatRequest{
		Messages:    messages,
		Model:       c.model,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxGenLen,
	})
	if result != nil && result.TotalTime == 0 {
		result.TotalTime = time.Since(start)
	}
	c.recorder.Record(ctx, result, rec)
	if err != nil {
		return "", fmt.Errorf("completion failed (%s): %w", c.llm.Name(), err)
	}

	payload = result.Content
	c.logger.Debug("completion received", "provider", result.Provider, "model", result.ModelUsed,
		"prompt_tokens", result.PromptTokens, "completion_tokens", result.CompletionTokens)

	if err := c.cache.Put(ctx, user, system, payload); err != nil {
		c.logger.Warn("failed to cache completion", "error", err)
	}
	return payload, nil
}

// CachedCompletions lists cached completions whose prompt or payload contains
// search, ignoring case.
func (c *Client) CachedCompletions(ctx context.Context, search string) ([]cache.Entry, error) {
	entries, err := c.cache.Entries(ctx, search)
	if err != nil {
		return nil, fmt.Errorf("failed to list cached completions: %w", err)
	}
	return entries, nil
}

func peek(s string, n int) string {
	if len(s) > n {
		s = s[:n] + "..."
	}
	return strings.ReplaceAll(s, "\n", `\n`)
}

type recordKey struct{}

// WithRecordOptions attaches call context (operation, template, class) that
// the client copies onto recorded calls made with ctx.
func WithRecordOptions(ctx context.Context, opts llmcall.RecordOptions) context.Context {
	return context.WithValue(ctx, recordKey{}, opts)
}

func recordOptionsFrom(ctx context.Context) llmcall.RecordOptions {
	opts, _ := ctx.Value(recordKey{}).(llmcall.RecordOptions)
	return opts
}
