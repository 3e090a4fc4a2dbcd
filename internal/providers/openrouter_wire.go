package providers

import (
	"encoding/json"
	"fmt"
)

// orChatBody is the JSON posted to /chat/completions.
type orChatBody struct {
	Model       string      `json:"model"`
	Messages    []Message   `json:"messages"`
	Temperature float64     `json:"temperature,omitempty"`
	TopP        float64     `json:"top_p,omitempty"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	Usage       *orUsageOpt `json:"usage,omitempty"`
}

// orUsageOpt asks OpenRouter to report cost alongside token counts.
type orUsageOpt struct {
	Include bool `json:"include"`
}

type orChoice struct {
	Message struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type orReply struct {
	ID      string     `json:"id"`
	Model   string     `json:"model"`
	Choices []orChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int     `json:"prompt_tokens"`
		CompletionTokens int     `json:"completion_tokens"`
		TotalTokens      int     `json:"total_tokens"`
		Cost             float64 `json:"cost,omitempty"`
		NativeTotalCost  float64 `json:"native_total_cost,omitempty"`
	} `json:"usage"`
	Error *orAPIError `json:"error,omitempty"`
}

// orAPIError is an error OpenRouter reports inside a 200 body. Code is a
// number for upstream HTTP failures and a string otherwise.
type orAPIError struct {
	Message  string          `json:"message"`
	Code     json.RawMessage `json:"code,omitempty"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// transient reports whether a retry may get a different answer.
func (e *orAPIError) transient() bool {
	var code string
	if err := json.Unmarshal(e.Code, &code); err != nil {
		code = string(e.Code)
	}
	switch code {
	case "overloaded", "rate_limit_exceeded", "500", "502", "503":
		return true
	}
	return false
}

// text returns the completion of the first choice. Structured content parts
// are passed through as their JSON encoding.
func (r *orReply) text() (string, error) {
	raw := r.Choices[0].Message.Content
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	if !json.Valid(raw) {
		return "", fmt.Errorf("malformed message content")
	}
	return string(raw), nil
}

// cost prefers the billed cost over the provider-native estimate.
func (r *orReply) cost() float64 {
	if r.Usage.Cost != 0 {
		return r.Usage.Cost
	}
	return r.Usage.NativeTotalCost
}

type orModelList struct {
	Data []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"data"`
}
