package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed template.schema.json
var templateSchemaJSON []byte

var (
	compileOnce    sync.Once
	templateSchema *jsonschema.Schema
	compileErr     error
)

func compiledTemplateSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("template.schema.json", bytes.NewReader(templateSchemaJSON)); err != nil {
			compileErr = fmt.Errorf("failed to load template schema: %w", err)
			return
		}
		templateSchema, compileErr = compiler.Compile("template.schema.json")
		if compileErr != nil {
			compileErr = fmt.Errorf("failed to compile template schema: %w", compileErr)
		}
	})
	return templateSchema, compileErr
}

// Validate checks a YAML template document against the template JSON schema.
func Validate(data []byte) error {
	schema, err := compiledTemplateSchema()
	if err != nil {
		return err
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	// Round-trip through JSON so the validator sees plain JSON types.
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}

	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	return nil
}
