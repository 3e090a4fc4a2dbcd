package api

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jackzampolin/spires/internal/spires"
)

func testResult() *spires.ExtractionResult {
	obj := spires.NewObject("MendelianDisease")
	obj.Set("id", "AUTO:1")
	obj.Set("name", "Marfan syndrome")
	obj.Set("genes", []any{"HGNC:3603"})
	return &spires.ExtractionResult{
		InputID:         "marfan.txt",
		InputText:       "Marfan syndrome is caused by FBN1.",
		ExtractedObject: obj,
		NamedEntities:   []spires.NamedEntity{{ID: "HGNC:3603", Label: "FBN1"}},
	}
}

func TestWriteResult(t *testing.T) {
	tests := []struct {
		format OutputFormat
		want   []string
	}{
		{OutputFormatYAML, []string{"---\n", "extracted_object:\n  id: AUTO:1\n  name: Marfan syndrome\n"}},
		{OutputFormatJSON, []string{"\"input_id\": \"marfan.txt\"", "\"extracted_object\": {\n    \"id\": \"AUTO:1\""}},
		{OutputFormatJSONL, []string{`"extracted_object":{"id":"AUTO:1","name":"Marfan syndrome","genes":["HGNC:3603"]}`}},
		{OutputFormatMD, []string{"# marfan.txt\n", "## Input text\n", "```yaml\nid: AUTO:1\n", "- `HGNC:3603` FBN1\n"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteResult(&buf, tt.format, testResult()); err != nil {
				t.Fatalf("WriteResult() error = %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("WriteResult() output missing %q:\n%s", w, buf.String())
				}
			}
		})
	}
}

func TestWriteResult_JSONLSingleLine(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < 2; i++ {
		if err := WriteResult(&buf, OutputFormatJSONL, testResult()); err != nil {
			t.Fatalf("WriteResult() error = %v", err)
		}
	}
	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Errorf("jsonl output has %d lines, want 2", n)
	}
}

func TestWriteResult_SkipsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResult(&buf, OutputFormatYAML, &spires.ExtractionResult{InputID: "x"}); err != nil {
		t.Fatalf("WriteResult() error = %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("WriteResult() wrote %q for a result without object", buf.String())
	}
}

func TestParseResultFormat(t *testing.T) {
	for _, s := range []string{"", "yaml", "JSON", "jsonl", "md"} {
		if _, err := ParseResultFormat(s); err != nil {
			t.Errorf("ParseResultFormat(%q) error = %v", s, err)
		}
	}
	if _, err := ParseResultFormat("pickle"); err == nil {
		t.Error("ParseResultFormat(pickle) expected error")
	}
}

func TestOutputTo(t *testing.T) {
	var buf bytes.Buffer
	if err := OutputTo(&buf, OutputFormatYAML, map[string]int{"a": 1}); err != nil {
		t.Fatalf("OutputTo() error = %v", err)
	}
	if buf.String() != "a: 1\n" {
		t.Errorf("OutputTo() = %q", buf.String())
	}
	if err := OutputTo(&buf, OutputFormatMD, nil); err == nil {
		t.Error("OutputTo() expected error for md")
	}
}
