// Package llmcall records every completion the engine requests so extraction
// runs can be audited: which template and class asked, what came back, and
// what it cost.
package llmcall

import (
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/spires/internal/providers"
)

// Call is one audited completion request.
type Call struct {
	ID string `json:"id"`

	// Timing
	Timestamp time.Time `json:"timestamp"`
	LatencyMs int       `json:"latency_ms"`

	// Extraction context
	Operation string `json:"operation,omitempty"` // "extract", "generate", "complete", ...
	Template  string `json:"template,omitempty"`
	Class     string `json:"class,omitempty"`

	// Prompt traceability
	PromptKey string `json:"prompt_key"`
	PromptCID string `json:"prompt_cid,omitempty"` // Content hash of the exact prompt sent

	// Model info
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`

	// Token usage
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd,omitempty"`

	Response string `json:"response"`
	CacheHit bool   `json:"cache_hit,omitempty"`

	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RecordOptions carries caller context that the provider result lacks.
type RecordOptions struct {
	Operation string
	Template  string
	Class     string

	PromptKey string
	PromptCID string

	// Pointer to distinguish "not set" from "set to 0"
	Temperature *float64
}

// FromChatResult builds the audit record for result, or nil when there is none.
func FromChatResult(result *providers.ChatResult, opts RecordOptions) *Call {
	if result == nil {
		return nil
	}

	call := newCall(opts)
	call.LatencyMs = int(result.TotalTime.Milliseconds())
	call.Provider = result.Provider
	call.Model = result.ModelUsed
	call.InputTokens = result.PromptTokens
	call.OutputTokens = result.CompletionTokens
	call.CostUSD = result.CostUSD
	call.Response = result.Content
	call.Success = result.Success
	if !result.Success {
		call.Error = result.ErrorMessage
	}
	return call
}

// FromCacheHit creates a Call for a completion served from the cache.
func FromCacheHit(payload string, opts RecordOptions) *Call {
	call := newCall(opts)
	call.Provider = "cache"
	call.Response = payload
	call.CacheHit = true
	call.Success = true
	return call
}

func newCall(opts RecordOptions) *Call {
	return &Call{
		ID:          uuid.New().String(),
		Timestamp:   time.Now(),
		Operation:   opts.Operation,
		Template:    opts.Template,
		Class:       opts.Class,
		PromptKey:   opts.PromptKey,
		PromptCID:   opts.PromptCID,
		Temperature: opts.Temperature,
	}
}
