package spires

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackzampolin/spires/internal/schema"
)

// ExtractOptions adjusts a single extraction.
type ExtractOptions struct {
	// Class overrides the schema's root class.
	Class *schema.Class
	// Partial seeds the prompt and is merged under the parsed response.
	Partial *Object

	InputID    string
	InputTitle string
}

// ExtractFromText extracts an object from text.
func (e *Engine) ExtractFromText(ctx context.Context, text string, opts ExtractOptions) (*ExtractionResult, error) {
	cls, err := e.resolveClass(opts.Class)
	if err != nil {
		return nil, err
	}

	chunks := []string{text}
	if e.sentencesPerWindow > 0 {
		chunks = ChunkText(text, e.sentencesPerWindow)
	}

	r := e.newRun()
	var (
		merged   RawResponse
		prompt   string
		payloads []string
	)
	for i, chunk := range chunks {
		prompt = e.BuildPrompt(ctx, cls, chunk, opts.Partial)
		payload, err := e.complete(ctx, prompt, "extract", "spires.extract", cls)
		if err != nil {
			return nil, err
		}
		e.logger.Info("raw completion", "class", cls.Name, "chunk", i, "payload", peek(payload))
		payloads = append(payloads, payload)

		raw, err := r.parseResponse(ctx, payload, cls)
		if err != nil {
			return nil, err
		}
		merged = mergeRaw(merged, raw)
	}

	obj, err := r.assemble(ctx, merged, cls, opts.Partial)
	if err != nil {
		return nil, err
	}

	return &ExtractionResult{
		InputID:             opts.InputID,
		InputTitle:          opts.InputTitle,
		InputText:           text,
		RawCompletionOutput: strings.Join(payloads, "\n\n"),
		Prompt:              prompt,
		ExtractedObject:     obj,
		NamedEntities:       r.entities,
	}, nil
}

// ParseCompletion parses and grounds a completion obtained elsewhere.
func (e *Engine) ParseCompletion(ctx context.Context, payload string, cls *schema.Class, partial *Object) (*ExtractionResult, error) {
	cls, err := e.resolveClass(cls)
	if err != nil {
		return nil, err
	}
	r := e.newRun()
	obj, err := r.parseCompletion(ctx, payload, cls, partial)
	if err != nil {
		return nil, err
	}
	return &ExtractionResult{
		RawCompletionOutput: payload,
		ExtractedObject:     obj,
		NamedEntities:       r.entities,
	}, nil
}

func (r *run) parseCompletion(ctx context.Context, payload string, cls *schema.Class, partial *Object) (*Object, error) {
	raw, err := r.parseResponse(ctx, payload, cls)
	if err != nil {
		return nil, err
	}
	return r.assemble(ctx, raw, cls, partial)
}

// assemble merges the partial object under raw, fills ids and grounds.
func (r *run) assemble(ctx context.Context, raw RawResponse, cls *schema.Class, partial *Object) (*Object, error) {
	if raw != nil && partial != nil {
		seeded := partial.raw()
		for k, v := range raw {
			seeded[k] = v
		}
		raw = seeded
	}
	r.e.autoAddIDs(raw, cls)
	return r.ground(ctx, raw, cls)
}

// ApplySlotValues sets "slot=value" assignments on obj.
func ApplySlotValues(obj *Object, assignments []string) error {
	if len(assignments) == 0 {
		return nil
	}
	if obj == nil {
		return errors.New("no extracted object to set slot values on")
	}
	for _, a := range assignments {
		slot, value, ok := strings.Cut(a, "=")
		if !ok || strings.TrimSpace(slot) == "" {
			return fmt.Errorf("invalid slot assignment %q: want slot=value", a)
		}
		obj.Set(strings.TrimSpace(slot), value)
	}
	return nil
}

func peek(s string) string {
	const n = 256
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
