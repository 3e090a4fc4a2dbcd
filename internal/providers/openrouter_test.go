package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func openRouterReply(content string) map[string]any {
	return map[string]any{
		"id":    "test-id",
		"model": "openai/gpt-4o",
		"choices": []map[string]any{
			{
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": 8,
			"total_tokens":      18,
			"cost":              0.0002,
		},
	}
}

func TestOpenRouterClient_Chat(t *testing.T) {
	t.Run("successful chat", func(t *testing.T) {
		var got orChatBody
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/chat/completions" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			if r.Method != http.MethodPost {
				t.Errorf("unexpected method: %s", r.Method)
			}
			if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
				t.Errorf("unexpected authorization: %s", auth)
			}
			if title := r.Header.Get("X-Title"); title != "SPIRES" {
				t.Errorf("unexpected X-Title: %s", title)
			}
			json.NewDecoder(r.Body).Decode(&got)

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(openRouterReply("name: Marfan syndrome"))
		}))
		defer server.Close()

		client := NewOpenRouterClient(OpenRouterConfig{
			APIKey:  "test-key",
			BaseURL: server.URL,
		})

		result, err := client.Chat(context.Background(), &ChatRequest{
			Messages:    []Message{SystemMessage("be terse"), UserMessage("Hello")},
			Temperature: 0.6,
			TopP:        0.9,
			MaxTokens:   4097,
		})

		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if !result.Success {
			t.Error("expected Success = true")
		}
		if result.Content != "name: Marfan syndrome" {
			t.Errorf("Content = %q", result.Content)
		}
		if result.TotalTokens != 18 {
			t.Errorf("TotalTokens = %d, want 18", result.TotalTokens)
		}
		if result.CostUSD != 0.0002 {
			t.Errorf("CostUSD = %f, want 0.0002", result.CostUSD)
		}
		if result.FinishReason != "stop" {
			t.Errorf("FinishReason = %q", result.FinishReason)
		}
		if got.Model != "openai/gpt-4o" || got.TopP != 0.9 || got.MaxTokens != 4097 {
			t.Errorf("unexpected request: %+v", got)
		}
		if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %+v", got.Messages)
		}
	})

	t.Run("retries server errors with the same prompt", func(t *testing.T) {
		var calls atomic.Int32
		var lastBody string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req orChatBody
			json.NewDecoder(r.Body).Decode(&req)
			lastBody = req.Messages[0].Content
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			json.NewEncoder(w).Encode(openRouterReply("ok"))
		}))
		defer server.Close()

		client := NewOpenRouterClient(OpenRouterConfig{
			APIKey:     "test-key",
			BaseURL:    server.URL,
			RetryDelay: time.Millisecond,
		})

		result, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{UserMessage("prompt")},
		})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if result.Attempts != 2 {
			t.Errorf("Attempts = %d, want 2", result.Attempts)
		}
		if lastBody != "prompt" {
			t.Errorf("retried prompt = %q, want %q", lastBody, "prompt")
		}
	})

	t.Run("limiter paces every attempt", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			json.NewEncoder(w).Encode(openRouterReply("ok"))
		}))
		defer server.Close()

		limiter := NewRateLimiter(6000)
		client := NewOpenRouterClient(OpenRouterConfig{
			APIKey:     "test-key",
			BaseURL:    server.URL,
			RetryDelay: time.Millisecond,
			Limiter:    limiter,
		})
		result, err := client.Chat(context.Background(), &ChatRequest{Messages: []Message{UserMessage("x")}})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if result.Attempts != 3 {
			t.Errorf("Attempts = %d, want 3", result.Attempts)
		}
		if got := limiter.Status().TotalConsumed; got != 3 {
			t.Errorf("TotalConsumed = %d, want 3", got)
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error": {"message": "Rate limit exceeded"}}`))
		}))
		defer server.Close()

		limiter := NewRateLimiter(60)
		client := NewOpenRouterClient(OpenRouterConfig{
			APIKey:     "test-key",
			BaseURL:    server.URL,
			MaxRetries: 1,
			RetryDelay: time.Millisecond,
			Limiter:    limiter,
		})

		result, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{UserMessage("test")},
		})

		var rle *RateLimitError
		if !errors.As(err, &rle) {
			t.Fatalf("expected RateLimitError, got %v", err)
		}
		if rle.RetryAfter != time.Second {
			t.Errorf("RetryAfter = %v, want 1s", rle.RetryAfter)
		}
		if result.Success {
			t.Error("expected Success = false")
		}
		if result.ErrorType != "http_error" {
			t.Errorf("ErrorType = %s, want http_error", result.ErrorType)
		}
		if limiter.Status().Last429Time.IsZero() {
			t.Error("expected limiter to record the 429")
		}
	})

	t.Run("non-retryable error", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		client := NewOpenRouterClient(OpenRouterConfig{APIKey: "bad", BaseURL: server.URL})
		if _, err := client.Chat(context.Background(), &ChatRequest{Messages: []Message{UserMessage("x")}}); err == nil {
			t.Fatal("expected error")
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})

	t.Run("empty choices", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id":"x","model":"m","choices":[]}`))
		}))
		defer server.Close()

		client := NewOpenRouterClient(OpenRouterConfig{
			APIKey:     "test-key",
			BaseURL:    server.URL,
			MaxRetries: 2,
			RetryDelay: time.Millisecond,
		})
		_, err := client.Chat(context.Background(), &ChatRequest{Messages: []Message{UserMessage("x")}})
		if !errors.Is(err, ErrNoChoices) {
			t.Errorf("expected ErrNoChoices, got %v", err)
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := NewOpenRouterClient(OpenRouterConfig{
			APIKey:  "test-key",
			BaseURL: server.URL,
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := client.Chat(ctx, &ChatRequest{Messages: []Message{UserMessage("test")}}); err == nil {
			t.Error("expected error from cancelled context")
		}
	})
}

func TestOpenRouterClient_ListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"data":[{"id":"openai/gpt-4o"},{"id":"meta-llama/llama-3.1-70b-instruct"}]}`))
	}))
	defer server.Close()

	client := NewOpenRouterClient(OpenRouterConfig{APIKey: "k", BaseURL: server.URL})
	ids, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "openai/gpt-4o" {
		t.Errorf("ListModels() = %v", ids)
	}
}

func TestOpenRouterClient_Config(t *testing.T) {
	client := NewOpenRouterClient(OpenRouterConfig{
		APIKey: "test-key",
	})

	if client.Name() != OpenRouterName {
		t.Errorf("Name() = %s, want %s", client.Name(), OpenRouterName)
	}
	if client.baseURL != OpenRouterBaseURL {
		t.Errorf("baseURL = %s, want %s", client.baseURL, OpenRouterBaseURL)
	}
	if client.defaultModel != "openai/gpt-4o" {
		t.Errorf("defaultModel = %s", client.defaultModel)
	}
	if client.maxRetries != 3 || client.retryDelay != time.Second {
		t.Errorf("unexpected retry defaults: %d, %v", client.maxRetries, client.retryDelay)
	}
}

// envKey returns the API key in name or skips the test.
func envKey(t *testing.T, name string) string {
	t.Helper()
	key := os.Getenv(name)
	if key == "" {
		t.Skipf("%s not set - skipping integration test", name)
	}
	return key
}

func TestOpenRouterIntegration(t *testing.T) {
	client := NewOpenRouterClient(OpenRouterConfig{APIKey: envKey(t, "OPENROUTER_API_KEY")})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := client.Chat(ctx, &ChatRequest{
		Messages: []Message{
			UserMessage("Split the following piece of text into fields in the following format:\n\nname: the value for name\n\n\nText:\nBRCA1\n\n===\n\n"),
		},
		MaxTokens: 20,
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if result.Content == "" {
		t.Error("expected non-empty content")
	}
	t.Logf("Response: %q (%d tokens)", result.Content, result.TotalTokens)
}
