// Package spires extracts schema-shaped records from text with a language
// model.
//
// An extraction builds a "field: <hint>" prompt from the induced slots of a
// template class, completes it, parses the pseudo-YAML answer back into a
// RawResponse (recursing into inlined classes), fills missing identifiers and
// finally grounds every value against the ontology services into an Object.
package spires

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/spires/internal/completion"
	"github.com/jackzampolin/spires/internal/llmcall"
	"github.com/jackzampolin/spires/internal/ontology"
	"github.com/jackzampolin/spires/internal/prompts"
	spiresprompts "github.com/jackzampolin/spires/internal/prompts/spires"
	"github.com/jackzampolin/spires/internal/schema"
)

// DefaultAutoPrefix namespaces generated identifiers.
const DefaultAutoPrefix = "AUTO"

var (
	// ErrRequiredValueMissing is returned when the model leaves a required slot empty.
	ErrRequiredValueMissing = errors.New("required value missing")

	// ErrMissingRequired is returned when a grounded object lacks a required slot.
	ErrMissingRequired = errors.New("missing required slot")
)

// Completer sends a prompt to a model.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts completion.CompleteOptions) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, prompt string, opts completion.CompleteOptions) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, prompt string, opts completion.CompleteOptions) (string, error) {
	return f(ctx, prompt, opts)
}

// AnnotatorSource resolves the annotator specs declared on a class.
// *ontology.Registry implements it.
type AnnotatorSource interface {
	Annotators(specs []string) []ontology.Annotator
}

// Config configures an Engine.
type Config struct {
	Schema    *schema.Schema
	Completer Completer

	// Ontology and Labeler are optional; without them values stay literal.
	Ontology AnnotatorSource
	Labeler  ontology.Labeler

	// Prompts defaults to the embedded engine prompts.
	Prompts *prompts.Resolver
	// Builders defaults to a registry with DefaultBuilder for every class.
	Builders *Builders

	FieldMatcher FieldMatcher // default DepluralizingMatcher
	Splitter     Splitter     // default SeparatorSplitter

	// AutoPrefix namespaces generated ids (default "AUTO").
	AutoPrefix string
	// Recurse parses every inlined value with its own completion instead of
	// splitting small ones on a separator.
	Recurse bool
	// SentencesPerWindow, when positive, extracts from windows of this many
	// sentences and merges the results.
	SentencesPerWindow int

	// Completion is used for every model call; the zero value means
	// completion.DefaultOptions().
	Completion completion.CompleteOptions

	Logger *slog.Logger
}

// Engine runs extractions against one schema. It holds no per-extraction
// state and may be shared.
type Engine struct {
	schema    *schema.Schema
	completer Completer
	ontology  AnnotatorSource
	labeler   ontology.Labeler
	prompts   *prompts.Resolver
	builders  *Builders
	matcher   FieldMatcher
	splitter  Splitter

	autoPrefix         string
	recurse            bool
	sentencesPerWindow int
	opts               completion.CompleteOptions

	logger *slog.Logger
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Schema == nil {
		return nil, errors.New("spires: schema is required")
	}
	if cfg.Completer == nil {
		return nil, errors.New("spires: completer is required")
	}
	if cfg.Prompts == nil {
		cfg.Prompts = spiresprompts.NewResolver()
	}
	if cfg.Builders == nil {
		cfg.Builders = NewBuilders()
	}
	cfg.Builders.RegisterSchema(cfg.Schema)
	if cfg.FieldMatcher == nil {
		cfg.FieldMatcher = DepluralizingMatcher{}
	}
	if cfg.Splitter == nil {
		cfg.Splitter = SeparatorSplitter{}
	}
	if cfg.AutoPrefix == "" {
		cfg.AutoPrefix = DefaultAutoPrefix
	}
	if cfg.Completion == (completion.CompleteOptions{}) {
		cfg.Completion = completion.DefaultOptions()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Engine{
		schema:             cfg.Schema,
		completer:          cfg.Completer,
		ontology:           cfg.Ontology,
		labeler:            cfg.Labeler,
		prompts:            cfg.Prompts,
		builders:           cfg.Builders,
		matcher:            cfg.FieldMatcher,
		splitter:           cfg.Splitter,
		autoPrefix:         cfg.AutoPrefix,
		recurse:            cfg.Recurse,
		sentencesPerWindow: cfg.SentencesPerWindow,
		opts:               cfg.Completion,
		logger:             cfg.Logger,
	}, nil
}

// Schema returns the engine's schema.
func (e *Engine) Schema() *schema.Schema { return e.schema }

// Prompts returns the prompt resolver.
func (e *Engine) Prompts() *prompts.Resolver { return e.prompts }

// resolveClass returns cls, or the schema root when cls is nil.
func (e *Engine) resolveClass(cls *schema.Class) (*schema.Class, error) {
	if cls != nil {
		return cls, nil
	}
	return e.schema.RootClass()
}

// run holds the state of one top-level extraction.
type run struct {
	e        *Engine
	entities []NamedEntity
	seen     map[string]bool
}

func (e *Engine) newRun() *run {
	return &run{e: e, seen: make(map[string]bool)}
}

func (r *run) addEntity(ne NamedEntity) {
	if r.seen[ne.ID] {
		return
	}
	r.seen[ne.ID] = true
	r.entities = append(r.entities, ne)
}

// complete sends prompt, tagging the recorded call with the operation and class.
func (e *Engine) complete(ctx context.Context, prompt, operation, promptKey string, cls *schema.Class) (string, error) {
	rec := llmcall.RecordOptions{
		Operation: operation,
		Template:  e.schema.Name,
		PromptKey: promptKey,
	}
	if cls != nil {
		rec.Class = cls.Name
	}
	payload, err := e.completer.Complete(completion.WithRecordOptions(ctx, rec), prompt, e.opts)
	if err != nil {
		return "", fmt.Errorf("failed to complete %s prompt: %w", operation, err)
	}
	return payload, nil
}
