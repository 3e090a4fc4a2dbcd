package providers

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var modelsYAML []byte

// ModelInfo is one entry of the model catalogue.
type ModelInfo struct {
	Name             string   `yaml:"name" json:"name"`
	Provider         string   `yaml:"provider" json:"provider"`
	AlternativeNames []string `yaml:"alternative_names,omitempty" json:"alternative_names,omitempty"`
	Deprecated       bool     `yaml:"deprecated,omitempty" json:"deprecated,omitempty"`
}

// Status is "Implemented" or "Deprecated".
func (m ModelInfo) Status() string {
	if m.Deprecated {
		return "Deprecated"
	}
	return "Implemented"
}

var (
	catalogueOnce sync.Once
	catalogue     []ModelInfo
	catalogueErr  error
)

// Models returns the built-in model catalogue.
func Models() ([]ModelInfo, error) {
	catalogueOnce.Do(func() {
		if err := yaml.Unmarshal(modelsYAML, &catalogue); err != nil {
			catalogueErr = fmt.Errorf("failed to parse model catalogue: %w", err)
		}
	})
	return catalogue, catalogueErr
}

// LookupModel resolves a model name or alternative name, ignoring case.
func LookupModel(name string) (ModelInfo, bool) {
	models, err := Models()
	if err != nil {
		return ModelInfo{}, false
	}
	for _, m := range models {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
		for _, alt := range m.AlternativeNames {
			if strings.EqualFold(alt, name) {
				return m, true
			}
		}
	}
	return ModelInfo{}, false
}
