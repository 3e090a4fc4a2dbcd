package spires

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackzampolin/spires/internal/prompts"
	spiresprompts "github.com/jackzampolin/spires/internal/prompts/spires"
	"github.com/jackzampolin/spires/internal/schema"
)

// GenerateAndExtract asks the model to describe entity, then extracts from the
// description. promptTemplate may use {entity} or {{.Entity}}; empty uses the
// "spires.generate" prompt.
func (e *Engine) GenerateAndExtract(ctx context.Context, entity, promptTemplate string, opts ExtractOptions) (*ExtractionResult, error) {
	prompt, err := e.renderGenerate(spiresprompts.GenerateKey, promptTemplate, spiresprompts.GenerateData{Entity: entity})
	if err != nil {
		return nil, err
	}
	return e.generateAndExtract(ctx, prompt, opts)
}

func (e *Engine) renderGenerate(key, custom string, data spiresprompts.GenerateData) (string, error) {
	if custom != "" {
		return prompts.Render(key, custom, data)
	}
	out, _, err := e.prompts.Render(key, data)
	return out, err
}

func (e *Engine) generateAndExtract(ctx context.Context, prompt string, opts ExtractOptions) (*ExtractionResult, error) {
	payload, err := e.complete(ctx, prompt, "generate", spiresprompts.GenerateKey, nil)
	if err != nil {
		return nil, err
	}
	return e.ExtractFromText(ctx, payload, opts)
}

// Generalize fills the missing fields of partial from examples of the root class.
func (e *Engine) Generalize(ctx context.Context, partial *Object, examples []*Object) (*ExtractionResult, error) {
	cls, err := e.schema.RootClass()
	if err != nil {
		return nil, err
	}
	if partial != nil && partial.Class != "" {
		if c, err := e.schema.Class(partial.Class); err == nil {
			cls = c
		}
	}

	data := spiresprompts.GeneralizeData{Seed: e.seedLines(ctx, cls, partial)}
	for _, ex := range examples {
		data.Examples = append(data.Examples, e.SerializeObject(ctx, ex, cls))
	}
	prompt, _, err := e.prompts.Render(spiresprompts.GeneralizeKey, data)
	if err != nil {
		return nil, err
	}

	payload, err := e.complete(ctx, prompt, "generalize", spiresprompts.GeneralizeKey, cls)
	if err != nil {
		return nil, err
	}

	r := e.newRun()
	obj, err := r.parseCompletion(ctx, payload, cls, partial)
	if err != nil {
		return nil, err
	}
	return &ExtractionResult{
		InputText:           prompt,
		RawCompletionOutput: payload,
		Prompt:              prompt,
		ExtractedObject:     obj,
		NamedEntities:       r.entities,
	}, nil
}

// termExamples are the few-shot pairs used by MapTerms; unknown ontologies use uberon.
var termExamples = map[string][]spiresprompts.TermExample{
	"go": {
		{Term: "nucleui", Normalized: "nucleus"},
		{Term: "mitochondrial", Normalized: "mitochondrion"},
		{Term: "signaling", Normalized: "signaling pathway"},
		{Term: "cysteine biosynthesis", Normalized: "cysteine biosynthetic process"},
		{Term: "alcohol dehydrogenase", Normalized: "alcohol dehydrogenase activity"},
	},
	"uberon": {
		{Term: "feet", Normalized: "pes"},
		{Term: "forelimb, left", Normalized: "left forelimb"},
		{Term: "hippocampus", Normalized: "Ammons horn"},
	},
}

// MapTerms asks the model to normalize terms to labels of ontologyName. Terms
// the model does not answer for are logged and left out of the result.
func (e *Engine) MapTerms(ctx context.Context, terms []string, ontologyName string) (map[string]string, error) {
	ont := strings.ToLower(ontologyName)
	examples, ok := termExamples[ont]
	if !ok {
		examples = termExamples["uberon"]
	}

	prompt, _, err := e.prompts.Render(spiresprompts.MapTermsKey, spiresprompts.MapTermsData{
		Ontology: strings.ToUpper(ont),
		Examples: examples,
		Terms:    strings.Join(terms, "; "),
	})
	if err != nil {
		return nil, err
	}
	payload, err := e.complete(ctx, prompt, "map_terms", spiresprompts.MapTermsKey, nil)
	if err != nil {
		return nil, err
	}

	var best []string
	for _, sep := range []string{"\n", "; "} {
		if parts := strings.Split(payload, sep); len(parts) > len(best) {
			best = parts
		}
	}

	mappings := make(map[string]string)
	for _, result := range best {
		k, v, ok := strings.Cut(strings.TrimSpace(result), ":")
		if !ok {
			if strings.TrimSpace(result) != "" {
				e.logger.Error("could not parse mapping", "result", result)
			}
			continue
		}
		for _, t := range terms {
			if normalizeTerm(t) == normalizeTerm(k) {
				mappings[t] = strings.TrimSpace(v)
				break
			}
		}
	}
	for _, t := range terms {
		if _, ok := mappings[t]; !ok {
			e.logger.Warn("could not map term", "term", t)
		}
	}
	return mappings, nil
}

func normalizeTerm(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", " "))
}

// RootClassOrNamed returns the named class, or the root class when name is empty.
func (e *Engine) RootClassOrNamed(name string) (*schema.Class, error) {
	if name == "" {
		return e.schema.RootClass()
	}
	cls, err := e.schema.Class(name)
	if err != nil {
		return nil, fmt.Errorf("target class: %w", err)
	}
	return cls, nil
}
