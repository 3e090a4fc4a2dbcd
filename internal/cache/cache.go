// Package cache stores raw completions keyed by their prompts so repeated
// extractions do not call the model again.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned on a cache miss.
var ErrNotFound = errors.New("completion not cached")

// Entry is one cached completion.
type Entry struct {
	UserPrompt   string    `json:"user_prompt" yaml:"user_prompt"`
	SystemPrompt string    `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	Payload      string    `json:"payload" yaml:"payload"`
	CreatedAt    time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// Matches reports whether search occurs in the user prompt or the payload,
// ignoring case. An empty search matches everything.
func (e Entry) Matches(search string) bool {
	if search == "" {
		return true
	}
	s := strings.ToLower(search)
	return strings.Contains(strings.ToLower(e.UserPrompt), s) ||
		strings.Contains(strings.ToLower(e.Payload), s)
}

// Store persists completions.
type Store interface {
	// Get returns the payload cached for the prompt pair, or ErrNotFound.
	Get(ctx context.Context, userPrompt, systemPrompt string) (string, error)
	// Put caches a payload for the prompt pair.
	Put(ctx context.Context, userPrompt, systemPrompt, payload string) error
	// Entries lists cached completions matching search.
	Entries(ctx context.Context, search string) ([]Entry, error)
	Close() error
}

// Nop is a Store that never hits.
type Nop struct{}

func (Nop) Get(context.Context, string, string) (string, error) { return "", ErrNotFound }

func (Nop) Put(context.Context, string, string, string) error { return nil }

func (Nop) Entries(context.Context, string) ([]Entry, error) { return nil, nil }

func (Nop) Close() error { return nil }

var (
	_ Store = Nop{}
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*RedisStore)(nil)
)
