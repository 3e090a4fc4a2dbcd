// Package ontology resolves extracted mentions to ontology terms.
//
// A Labeler turns an identifier into a human-readable label. An Annotator finds
// the terms a piece of text refers to. The engine tries annotators declared on
// the range class first, then labelers.
package ontology

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when no term matches.
var ErrNotFound = errors.New("term not found")

// Term is a grounded ontology term.
type Term struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Labeler looks up the label of a term identifier.
type Labeler interface {
	Label(ctx context.Context, id string) (string, error)
}

// Annotator finds terms mentioned in text.
type Annotator interface {
	Annotate(ctx context.Context, text string) ([]Term, error)
}

// Prefix returns the CURIE prefix of id, or "" if id is not prefixed.
func Prefix(id string) string {
	i := strings.Index(id, ":")
	if i <= 0 {
		return ""
	}
	return id[:i]
}

// FilterByPrefix keeps terms whose CURIE prefix is one of prefixes.
// An empty prefix list keeps everything.
func FilterByPrefix(terms []Term, prefixes []string) []Term {
	if len(prefixes) == 0 {
		return terms
	}
	var out []Term
	for _, t := range terms {
		p := Prefix(t.ID)
		for _, want := range prefixes {
			if strings.EqualFold(p, want) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// LabelerFunc adapts a function to the Labeler interface.
type LabelerFunc func(ctx context.Context, id string) (string, error)

// Label calls f.
func (f LabelerFunc) Label(ctx context.Context, id string) (string, error) {
	return f(ctx, id)
}

// Chain asks each labeler in turn and returns the first label found.
type Chain []Labeler

// Label implements Labeler.
func (c Chain) Label(ctx context.Context, id string) (string, error) {
	for _, l := range c {
		label, err := l.Label(ctx, id)
		if err == nil && label != "" {
			return label, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", ErrNotFound
}
