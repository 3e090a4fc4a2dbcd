package ontology

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DictionaryEntry is one term of a dictionary file.
type DictionaryEntry struct {
	ID       string   `yaml:"id"`
	Label    string   `yaml:"label"`
	Synonyms []string `yaml:"synonyms,omitempty"`
}

// Dictionary is an in-memory term list used for offline grounding. It matches
// whole-text labels and synonyms ignoring case.
type Dictionary struct {
	byID   map[string]DictionaryEntry
	byName map[string]DictionaryEntry
}

// NewDictionary indexes entries.
func NewDictionary(entries []DictionaryEntry) *Dictionary {
	d := &Dictionary{
		byID:   make(map[string]DictionaryEntry, len(entries)),
		byName: make(map[string]DictionaryEntry, len(entries)),
	}
	for _, e := range entries {
		d.byID[e.ID] = e
		if e.Label != "" {
			d.byName[strings.ToLower(e.Label)] = e
		}
		for _, syn := range e.Synonyms {
			key := strings.ToLower(syn)
			if _, exists := d.byName[key]; !exists {
				d.byName[key] = e
			}
		}
	}
	return d
}

// LoadDictionary reads a YAML file holding either a list of entries or
// a mapping with an `entries` key.
func LoadDictionary(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dictionary: %w", err)
	}

	var entries []DictionaryEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		var wrapped struct {
			Entries []DictionaryEntry `yaml:"entries"`
		}
		if err2 := yaml.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("failed to parse dictionary %s: %w", path, err)
		}
		entries = wrapped.Entries
	}
	return NewDictionary(entries), nil
}

// Len returns the number of distinct terms.
func (d *Dictionary) Len() int {
	return len(d.byID)
}

// Label implements Labeler.
func (d *Dictionary) Label(_ context.Context, id string) (string, error) {
	e, ok := d.byID[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.Label, nil
}

// Annotate implements Annotator.
func (d *Dictionary) Annotate(_ context.Context, text string) ([]Term, error) {
	e, ok := d.byName[strings.ToLower(strings.TrimSpace(text))]
	if !ok {
		return nil, nil
	}
	return []Term{{ID: e.ID, Label: e.Label}}, nil
}
