// Package prompts holds the prompt templates the extraction engine sends to
// models, with embedded defaults and per-run overrides.
//
// Embedded .tmpl files are the defaults. An override (usually loaded from a
// --prompt-template file) replaces the default for one key. Every resolved
// prompt carries a content hash so recorded calls can be traced to the exact
// template text.
package prompts

// EmbeddedPrompt is a prompt compiled into the binary.
type EmbeddedPrompt struct {
	Key         string   // Hierarchical key: spires.generate
	Text        string   // text/template source
	Description string
	Variables   []string // fields the template references
	Hash        string   // HashText of Text
}

// ResolvedPrompt is the result of resolving a prompt key.
type ResolvedPrompt struct {
	Key        string   `json:"key" yaml:"key"`
	Text       string   `json:"text" yaml:"text"`
	Variables  []string `json:"variables,omitempty" yaml:"variables,omitempty"`
	IsOverride bool     `json:"is_override" yaml:"is_override"`
	Hash       string   `json:"hash" yaml:"hash"`
}
