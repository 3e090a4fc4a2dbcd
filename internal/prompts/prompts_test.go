package prompts

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestExtractVariables(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"template actions", "Describe {{.Entity}} with {{ .Slots }} and {{.Entity}}", []string{"Entity", "Slots"}},
		{"brace placeholders", "Describe {entity}.", []string{"Entity"}},
		{"none", "plain text", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractVariables(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractVariables() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizePlaceholders(t *testing.T) {
	got := NormalizePlaceholders("Describe {entity} for {iteration_slots}; keep {{.Entity}}")
	want := "Describe {{.Entity}} for {{.IterationSlots}}; keep {{.Entity}}"
	if got != want {
		t.Errorf("NormalizePlaceholders() = %q, want %q", got, want)
	}

	actions := "{{range .Examples}}{{.}}{{end}}"
	if got := NormalizePlaceholders(actions); got != actions {
		t.Errorf("NormalizePlaceholders() = %q, want unchanged", got)
	}
}

func TestRender(t *testing.T) {
	out, err := Render("k", "Generate a comprehensive description of {entity}.\n", struct{ Entity string }{"asthma"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "Generate a comprehensive description of asthma.\n" {
		t.Errorf("Render() = %q", out)
	}

	if _, err := Render("k", "{{.Missing}}", map[string]string{}); err == nil {
		t.Error("expected error for missing key")
	}
}

func TestResolver(t *testing.T) {
	r := NewResolver(nil)
	r.Register(EmbeddedPrompt{Key: "a.generate", Text: "Describe {{.Entity}}."})

	t.Run("embedded default", func(t *testing.T) {
		p, err := r.Resolve("a.generate")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if p.IsOverride {
			t.Error("expected embedded prompt")
		}
		if p.Hash != HashText("Describe {{.Entity}}.") {
			t.Errorf("Hash = %q", p.Hash)
		}
	})

	t.Run("override from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompt.txt")
		if err := os.WriteFile(path, []byte("Tell me about {entity}"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := r.LoadOverride("a.generate", path); err != nil {
			t.Fatalf("LoadOverride() error = %v", err)
		}
		out, p, err := r.Render("a.generate", struct{ Entity string }{"BRCA1"})
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if !p.IsOverride || out != "Tell me about BRCA1" {
			t.Errorf("Render() = %q override=%v", out, p.IsOverride)
		}

		r.Override("a.generate", "")
		p, _ = r.Resolve("a.generate")
		if p.IsOverride {
			t.Error("expected override to be cleared")
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		if _, err := r.Resolve("nope"); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("all embedded sorted", func(t *testing.T) {
		r.Register(EmbeddedPrompt{Key: "0.first", Text: "x"})
		all := r.AllEmbedded()
		if len(all) != 2 || all[0].Key != "0.first" {
			t.Errorf("AllEmbedded() = %+v", all)
		}
	})
}
