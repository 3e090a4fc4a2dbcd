package spires

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jackzampolin/spires/internal/ontology"
	"github.com/jackzampolin/spires/internal/schema"
)

const (
	extractPreamble = "From the text below, extract the following entities in the following format:\n\n"
	splitPreamble   = "Split the following piece of text into fields in the following format:\n\n"

	// shortTextLimit is the longest single-line text treated as a value to split.
	shortTextLimit = 60
)

// BuildPrompt renders the extraction prompt for cls over text. Non-empty fields
// of partial are appended after the delimiter to seed the completion.
func (e *Engine) BuildPrompt(ctx context.Context, cls *schema.Class, text string, partial *Object) string {
	var b strings.Builder
	if text == "" || strings.Contains(text, "\n") || utf8.RuneCountInString(text) > shortTextLimit {
		b.WriteString(extractPreamble)
	} else {
		b.WriteString(splitPreamble)
	}

	for _, slot := range e.schema.InducedSlots(cls) {
		if slot.SkipPrompt() {
			continue
		}
		fmt.Fprintf(&b, "%s: <%s>\n", slot.Name, e.slotHint(slot))
	}

	b.WriteString("\n\nText:\n")
	b.WriteString(text)
	b.WriteString("\n\n===\n\n")
	b.WriteString(e.seedLines(ctx, cls, partial))
	return b.String()
}

func (e *Engine) slotHint(slot *schema.Slot) string {
	hint, ok := slot.PromptHint()
	switch {
	case ok:
	case slot.Description != "":
		hint = slot.Description
	case slot.Multivalued:
		hint = fmt.Sprintf("semicolon-separated list of %ss", slot.Name)
	default:
		hint = fmt.Sprintf("the value for %s", slot.Name)
	}
	if enum, ok := e.schema.Enum(slot.Range); ok {
		hint += " Must be one of: " + strings.Join(enum.PermissibleValues, ", ")
	}
	return hint
}

// seedLines serializes the non-empty fields of partial as "k: v" lines.
func (e *Engine) seedLines(ctx context.Context, cls *schema.Class, partial *Object) string {
	if partial == nil {
		return ""
	}
	var b strings.Builder
	for _, k := range partial.Keys() {
		v, _ := partial.Get(k)
		if isEmptyValue(v) {
			continue
		}
		slot, _ := e.schema.InducedSlot(cls, k)
		fmt.Fprintf(&b, "%s: %s\n", k, e.serializeValue(ctx, v, slot))
	}
	return b.String()
}

// SerializeObject renders obj as "k: v" lines, skipping empty fields.
func (e *Engine) SerializeObject(ctx context.Context, obj *Object, cls *schema.Class) string {
	if obj == nil {
		return ""
	}
	var lines []string
	for _, k := range obj.Keys() {
		v, _ := obj.Get(k)
		if isEmptyValue(v) {
			continue
		}
		var slot *schema.Slot
		if cls != nil {
			slot, _ = e.schema.InducedSlot(cls, k)
		}
		lines = append(lines, k+": "+e.serializeValue(ctx, v, slot))
	}
	return strings.Join(lines, "\n")
}

// serializeValue joins lists with "; " and compound values with " - ".
// Identifiers of class-ranged slots are replaced by their label when one is known.
func (e *Engine) serializeValue(ctx context.Context, v any, slot *schema.Slot) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return e.labelFor(ctx, tv, slot)
	case []any:
		return e.joinValues(ctx, tv, slot, "; ")
	case []string:
		vals := make([]any, len(tv))
		for i, s := range tv {
			vals[i] = s
		}
		return e.joinValues(ctx, vals, slot, "; ")
	case Pair:
		return strings.Join(tv, " - ")
	case *Object:
		vals := make([]any, 0, tv.Len())
		for _, k := range tv.Keys() {
			x, _ := tv.Get(k)
			vals = append(vals, x)
		}
		return e.joinValues(ctx, vals, nil, " - ")
	case RawResponse:
		return e.serializeMap(ctx, tv)
	case map[string]any:
		return e.serializeMap(ctx, tv)
	default:
		return fmt.Sprint(tv)
	}
}

func (e *Engine) serializeMap(ctx context.Context, m map[string]any) string {
	vals := make([]any, 0, len(m))
	for _, k := range sortedKeys(m) {
		vals = append(vals, m[k])
	}
	return e.joinValues(ctx, vals, nil, " - ")
}

func (e *Engine) joinValues(ctx context.Context, vals []any, slot *schema.Slot, sep string) string {
	parts := make([]string, 0, len(vals))
	for _, x := range vals {
		if isEmptyValue(x) {
			continue
		}
		parts = append(parts, e.serializeValue(ctx, x, slot))
	}
	return strings.Join(parts, sep)
}

func (e *Engine) labelFor(ctx context.Context, v string, slot *schema.Slot) string {
	if e.labeler == nil || slot == nil || !e.schema.IsClass(slot.Range) || !looksLikeCURIE(v) {
		return v
	}
	if ontology.Prefix(v) == e.autoPrefix {
		return v
	}
	label, err := e.labeler.Label(ctx, v)
	if err != nil || label == "" {
		return v
	}
	return label
}

func looksLikeCURIE(s string) bool {
	return ontology.Prefix(s) != "" && !strings.ContainsAny(s, " \t\n")
}
