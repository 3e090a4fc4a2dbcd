// Package api renders command output and extraction results.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jackzampolin/spires/internal/spires"
)

// OutputFormat names an encoding for command output.
type OutputFormat string

const (
	OutputFormatYAML  OutputFormat = "yaml"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatJSONL OutputFormat = "jsonl"
	OutputFormatMD    OutputFormat = "md"
)

// DefaultOutput is used when no --output flag is given.
var DefaultOutput OutputFormat = OutputFormatYAML

// globalOutputFormat holds the --output choice for this process.
var globalOutputFormat OutputFormat = OutputFormatYAML

// SetOutputFormat records the --output flag; unknown names fall back to DefaultOutput.
func SetOutputFormat(format string) {
	switch format {
	case "json":
		globalOutputFormat = OutputFormatJSON
	case "yaml":
		globalOutputFormat = OutputFormatYAML
	default:
		globalOutputFormat = DefaultOutput
	}
}

// GetOutputFormat reports the format chosen by SetOutputFormat.
func GetOutputFormat() OutputFormat {
	return globalOutputFormat
}

// Output encodes data to stdout.
func Output(data any) error {
	return OutputTo(os.Stdout, globalOutputFormat, data)
}

// OutputTo encodes data to w using format.
func OutputTo(w io.Writer, format OutputFormat, data any) error {
	switch format {
	case OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// ParseResultFormat validates an extraction output format name.
func ParseResultFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case "":
		return OutputFormatYAML, nil
	case OutputFormatYAML, OutputFormatJSON, OutputFormatJSONL, OutputFormatMD:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format: %s (want yaml, json, jsonl or md)", s)
	}
}

// WriteResult writes one extraction result. Results without an extracted
// object are skipped. YAML results are written as "---" documents so several
// results can share a stream.
func WriteResult(w io.Writer, format OutputFormat, res *spires.ExtractionResult) error {
	if res == nil || res.ExtractedObject == nil {
		return nil
	}
	switch format {
	case OutputFormatYAML, "":
		data, err := encodeYAML(res)
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		if _, err := io.WriteString(w, "---\n"); err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case OutputFormatJSONL:
		return json.NewEncoder(w).Encode(res)
	case OutputFormatMD:
		return writeMarkdown(w, res)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

func writeMarkdown(w io.Writer, res *spires.ExtractionResult) error {
	var b strings.Builder

	title := res.InputTitle
	if title == "" {
		title = res.InputID
	}
	if title == "" {
		title = "Extraction"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	if res.InputText != "" {
		b.WriteString("## Input text\n\n")
		b.WriteString(strings.TrimSpace(res.InputText))
		b.WriteString("\n\n")
	}

	obj, err := encodeYAML(res.ExtractedObject)
	if err != nil {
		return fmt.Errorf("failed to encode extracted object: %w", err)
	}
	b.WriteString("## Extracted object\n\n```yaml\n")
	b.Write(obj)
	b.WriteString("```\n")

	if len(res.NamedEntities) > 0 {
		b.WriteString("\n## Named entities\n\n")
		for _, ne := range res.NamedEntities {
			if ne.Label != "" {
				fmt.Fprintf(&b, "- `%s` %s\n", ne.ID, ne.Label)
			} else {
				fmt.Fprintf(&b, "- `%s`\n", ne.ID)
			}
		}
	}

	_, err = io.WriteString(w, b.String())
	return err
}

func encodeYAML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
