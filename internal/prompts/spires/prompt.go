// Package spires holds the embedded prompt templates of the extraction engine.
package spires

import (
	_ "embed"

	"github.com/jackzampolin/spires/internal/prompts"
)

//go:embed generate.tmpl
var generatePrompt string

//go:embed iterate.tmpl
var iteratePrompt string

//go:embed generalize.tmpl
var generalizePrompt string

//go:embed map_terms.tmpl
var mapTermsPrompt string

// Prompt keys
const (
	GenerateKey   = "spires.generate"
	IterateKey    = "spires.iterate"
	GeneralizeKey = "spires.generalize"
	MapTermsKey   = "spires.map_terms"
)

// GenerateData feeds the generate and iterate prompts.
type GenerateData struct {
	Entity string
	// Slots is the " and "-joined list of iteration slots.
	Slots string
}

// GeneralizeData feeds the generalize prompt.
type GeneralizeData struct {
	Examples []string
	Seed     string
}

// TermExample is one few-shot normalization pair.
type TermExample struct {
	Term       string
	Normalized string
}

// MapTermsData feeds the map-terms prompt.
type MapTermsData struct {
	Ontology string
	Examples []TermExample
	Terms    string
}

// RegisterPrompts registers the engine prompts with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         GenerateKey,
		Text:        generatePrompt,
		Description: "Asks the model to describe an entity before extracting from the description",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         IterateKey,
		Text:        iteratePrompt,
		Description: "Entity description steered toward the slots followed by iterative extraction",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         GeneralizeKey,
		Text:        generalizePrompt,
		Description: "Few-shot prompt that fills the missing fields of a partial object",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         MapTermsKey,
		Text:        mapTermsPrompt,
		Description: "Few-shot normalization of free-text terms to ontology labels",
	})
}

// NewResolver returns a resolver with the engine prompts registered.
func NewResolver() *prompts.Resolver {
	r := prompts.NewResolver(nil)
	RegisterPrompts(r)
	return r
}
