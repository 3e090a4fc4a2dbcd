package prompts

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
)

// Resolver resolves prompts with run-level overrides.
// Resolution order: override > embedded default.
type Resolver struct {
	mu        sync.RWMutex
	embedded  map[string]EmbeddedPrompt
	overrides map[string]string
	logger    *slog.Logger
}

// NewResolver returns a resolver with no prompts registered.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		embedded:  make(map[string]EmbeddedPrompt),
		overrides: make(map[string]string),
		logger:    logger,
	}
}

// Register adds a built-in prompt, filling in its hash and variables.
func (r *Resolver) Register(prompt EmbeddedPrompt) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prompt.Hash == "" {
		prompt.Hash = HashText(prompt.Text)
	}
	if prompt.Variables == nil {
		prompt.Variables = ExtractVariables(prompt.Text)
	}

	r.embedded[prompt.Key] = prompt
	r.logger.Debug("registered embedded prompt", "key", prompt.Key, "vars", prompt.Variables)
}

// Override replaces the text used for key. An empty text removes the override.
func (r *Resolver) Override(key, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if text == "" {
		delete(r.overrides, key)
		return
	}
	r.overrides[key] = text
}

// LoadOverride reads an override for key from a file.
func (r *Resolver) LoadOverride(key, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read prompt template %s: %w", path, err)
	}
	r.Override(key, string(data))
	r.logger.Info("loaded prompt override", "key", key, "path", path)
	return nil
}

// Resolve returns the override for key if one exists, otherwise the embedded default.
func (r *Resolver) Resolve(key string) (*ResolvedPrompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if text, ok := r.overrides[key]; ok {
		return &ResolvedPrompt{
			Key:        key,
			Text:       text,
			Variables:  ExtractVariables(text),
			IsOverride: true,
			Hash:       HashText(text),
		}, nil
	}

	embedded, ok := r.embedded[key]
	if !ok {
		return nil, fmt.Errorf("prompt not found: %s", key)
	}
	return &ResolvedPrompt{
		Key:       key,
		Text:      embedded.Text,
		Variables: embedded.Variables,
		Hash:      embedded.Hash,
	}, nil
}

// Render resolves key and executes it against data.
func (r *Resolver) Render(key string, data any) (string, *ResolvedPrompt, error) {
	p, err := r.Resolve(key)
	if err != nil {
		return "", nil, err
	}
	out, err := Render(key, p.Text, data)
	if err != nil {
		return "", p, err
	}
	return out, p, nil
}

// GetEmbedded returns the embedded default for a key.
func (r *Resolver) GetEmbedded(key string) (*EmbeddedPrompt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.embedded[key]
	return &p, ok
}

// AllEmbedded returns all registered embedded prompts sorted by key.
func (r *Resolver) AllEmbedded() []EmbeddedPrompt {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]EmbeddedPrompt, 0, len(r.embedded))
	for _, p := range r.embedded {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}
