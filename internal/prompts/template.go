package prompts

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"text/template"
)

// variablePattern matches {{.VarName}} and {{ .VarName }}.
var variablePattern = regexp.MustCompile(`\{\{\s*\.([a-zA-Z_][a-zA-Z0-9_.]*)\s*\}\}`)

// bracePattern matches the single-brace placeholders used by older prompt
// files, e.g. "Describe {entity}.".
var bracePattern = regexp.MustCompile(`\{([a-z_][a-z0-9_]*)\}`)

// ExtractVariables returns the sorted, de-duplicated template variables in text.
func ExtractVariables(text string) []string {
	seen := make(map[string]bool)
	var vars []string
	for _, match := range variablePattern.FindAllStringSubmatch(NormalizePlaceholders(text), -1) {
		if !seen[match[1]] {
			seen[match[1]] = true
			vars = append(vars, match[1])
		}
	}
	sort.Strings(vars)
	return vars
}

// NormalizePlaceholders rewrites single-brace placeholders such as {entity}
// into template actions ({{.Entity}}). Text already using {{ }} is unchanged.
func NormalizePlaceholders(text string) string {
	var b strings.Builder
	last := 0
	for _, loc := range bracePattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[0], loc[1]
		if (start > 0 && text[start-1] == '{') || (end < len(text) && text[end] == '}') {
			continue
		}
		b.WriteString(text[last:start])
		b.WriteString("{{.")
		for _, part := range strings.Split(text[loc[2]:loc[3]], "_") {
			if part == "" {
				continue
			}
			b.WriteString(strings.ToUpper(part[:1]) + part[1:])
		}
		b.WriteString("}}")
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

// Render executes text as a template against data.
func Render(key, text string, data any) (string, error) {
	tmpl, err := template.New(key).Option("missingkey=error").Parse(NormalizePlaceholders(text))
	if err != nil {
		return "", fmt.Errorf("failed to parse prompt %s: %w", key, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %s: %w", key, err)
	}
	return buf.String(), nil
}

// HashText fingerprints a prompt so edited overrides can be told apart.
func HashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
