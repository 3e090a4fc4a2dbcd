package spires

import (
	"strings"
	"testing"
)

func TestEmbeddedPrompts(t *testing.T) {
	r := NewResolver()

	out, _, err := r.Render(GenerateKey, GenerateData{Entity: "cystic fibrosis"})
	if err != nil {
		t.Fatalf("Render(generate) error = %v", err)
	}
	if out != "Generate a comprehensive description of cystic fibrosis.\n" {
		t.Errorf("generate = %q", out)
	}

	out, _, err = r.Render(IterateKey, GenerateData{Entity: "asthma", Slots: "genes and symptoms"})
	if err != nil {
		t.Fatalf("Render(iterate) error = %v", err)
	}
	if !strings.HasSuffix(out, "information on genes and symptoms.\n") {
		t.Errorf("iterate = %q", out)
	}

	out, _, err = r.Render(GeneralizeKey, GeneralizeData{Examples: []string{"name: a", "name: b"}, Seed: "name: c\n"})
	if err != nil {
		t.Fatalf("Render(generalize) error = %v", err)
	}
	if out != "example:\nname: a\n\nname: b\n\n\n\n===\n\nname: c\n" {
		t.Errorf("generalize = %q", out)
	}

	out, _, err = r.Render(MapTermsKey, MapTermsData{
		Ontology: "GO",
		Examples: []TermExample{{Term: "nucleui", Normalized: "nucleus"}},
		Terms:    "mito; nuc",
	})
	if err != nil {
		t.Fatalf("Render(map_terms) error = %v", err)
	}
	if !strings.Contains(out, "to the GO ontology") || !strings.Contains(out, "nucleui: nucleus\n") || !strings.Contains(out, "Terms: mito; nuc") {
		t.Errorf("map_terms = %q", out)
	}
}
