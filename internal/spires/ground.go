package spires

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/davecgh/go-spew/spew"

	"github.com/jackzampolin/spires/internal/ontology"
	"github.com/jackzampolin/spires/internal/schema"
)

// nullValues are placeholders models emit instead of leaving a field empty.
var nullValues = toSet(
	"",
	"not mentioned",
	"none mentioned",
	"not mentioned in the text",
	"not mentioned in the provided text",
	"no exposures mentioned in the text",
	"none",
	"n/a",
	"none mentioned in the text",
	"none relevant",
	"no genes mentioned",
	"no genes mentioned in the text",
	"no gene to molecular activity relationships mentioned in the text",
)

func toSet(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

// IsNullValue reports whether s is a "not mentioned" style placeholder.
func IsNullValue(s string) bool {
	s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ".")
	return nullValues[s]
}

// Ground resolves a parsed response into an object of cls. A nil response is
// logged and yields a nil object without error.
func (e *Engine) Ground(ctx context.Context, raw RawResponse, cls *schema.Class) (*Object, error) {
	cls, err := e.resolveClass(cls)
	if err != nil {
		return nil, err
	}
	return e.newRun().ground(ctx, raw, cls)
}

func (r *run) ground(ctx context.Context, raw RawResponse, cls *schema.Class) (*Object, error) {
	e := r.e
	if raw == nil {
		e.logger.Error("cannot ground nil response", "class", cls.Name)
		return nil, nil
	}
	if e.logger.Enabled(ctx, slog.LevelDebug) {
		e.logger.Debug("grounding", "class", cls.Name, "raw", spew.Sdump(raw))
	}

	for _, k := range sortedKeys(raw) {
		if _, ok := e.schema.InducedSlot(cls, k); !ok {
			e.logger.Warn("dropping field with no slot", "class", cls.Name, "field", k)
		}
	}

	fields := NewObject(cls.Name)
	for _, slot := range e.schema.InducedSlots(cls) {
		v, ok := raw[slot.Name]
		if !ok {
			continue
		}
		vals, multivalued := asList(v)
		enum, isEnum := e.schema.Enum(slot.Range)

		var out []any
		for _, val := range vals {
			if isEmptyValue(val) {
				continue
			}
			obj, err := r.groundValue(ctx, val, slot, isEnum)
			if err != nil {
				return nil, err
			}
			if isEnum && obj != nil {
				s, _ := obj.(string)
				match, found := enum.Match(s)
				if !found {
					e.logger.Warn("cannot find enum value", "enum", enum.Name, "value", s, "slot", slot.Name)
					obj = nil
				} else {
					obj = match
				}
			}
			if obj != nil {
				out = append(out, obj)
			}
		}

		switch {
		case multivalued && len(out) > 0:
			fields.Set(slot.Name, out)
		case !multivalued && len(out) > 0:
			fields.Set(slot.Name, out[0])
		}
	}

	return e.builders.Build(e.schema, cls, fields)
}

// groundValue grounds one element of a field. A nil result drops the element.
func (r *run) groundValue(ctx context.Context, val any, slot *schema.Slot, isEnum bool) (any, error) {
	e := r.e
	switch tv := val.(type) {
	case Pair:
		return r.groundPair(ctx, tv, slot), nil
	case RawResponse:
		return r.groundNested(ctx, tv, slot)
	case map[string]any:
		return r.groundNested(ctx, RawResponse(tv), slot)
	case *Object:
		return r.groundNested(ctx, tv.raw(), slot)
	default:
		s, ok := val.(string)
		if !ok {
			s = fmt.Sprint(val)
		}
		// A required slot keeps whatever the model wrote, placeholder or not.
		if !isEnum && !slot.Required && IsNullValue(s) {
			e.logger.Debug("dropping null placeholder", "slot", slot.Name, "value", s)
			return nil, nil
		}
		return r.normalizeNamedEntity(ctx, s, slot.Range), nil
	}
}

func (r *run) groundNested(ctx context.Context, raw RawResponse, slot *schema.Slot) (any, error) {
	rc := r.e.schema.RangeClass(slot)
	if rc == nil {
		r.e.logger.Warn("nested value for non-class range", "slot", slot.Name, "range", slot.Range)
		return nil, nil
	}
	r.e.autoAddIDs(raw, rc)
	obj, err := r.ground(ctx, raw, rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", slot.Name, err)
	}
	if obj == nil {
		return nil, nil
	}
	return obj, nil
}

// groundPair zips a positional split against the range class's induced slots.
func (r *run) groundPair(ctx context.Context, p Pair, slot *schema.Slot) any {
	e := r.e
	rc := e.schema.RangeClass(slot)
	if rc == nil {
		e.logger.Error("cannot find range class for pair", "slot", slot.Name, "range", slot.Range)
		return nil
	}
	sub := e.schema.InducedSlots(rc)
	obj := NewObject(rc.Name)
	for i, part := range p {
		if i >= len(sub) {
			e.logger.Warn("pair has more parts than slots", "slot", slot.Name, "range", rc.Name)
			break
		}
		if part == "" {
			continue
		}
		obj.Set(sub[i].Name, r.normalizeNamedEntity(ctx, part, sub[i].Range))
	}
	return obj
}

// normalizeNamedEntity grounds text for a range. Values of non-class ranges
// are returned as is. For class ranges the class's annotators are tried, then
// the labeler for CURIE-shaped text; an unresolved mention stays literal and
// is recorded with a generated id.
func (r *run) normalizeNamedEntity(ctx context.Context, text, rangeName string) any {
	e := r.e
	cls, err := e.schema.Class(rangeName)
	if err != nil {
		return text
	}

	if e.ontology != nil {
		for _, a := range e.ontology.Annotators(cls.Annotators()) {
			terms, err := a.Annotate(ctx, text)
			if err != nil {
				e.logger.Warn("annotator failed", "class", cls.Name, "text", text, "error", err)
				continue
			}
			terms = ontology.FilterByPrefix(terms, cls.IDPrefixes)
			if len(terms) == 0 {
				continue
			}
			t := terms[0]
			label := t.Label
			if label == "" {
				label = text
			}
			r.addEntity(NamedEntity{ID: t.ID, Label: label})
			return t.ID
		}
	}

	if e.labeler != nil && looksLikeCURIE(text) {
		label, err := e.labeler.Label(ctx, text)
		if err == nil && label != "" {
			r.addEntity(NamedEntity{ID: text, Label: label})
			return text
		}
	}

	r.addEntity(NamedEntity{ID: e.autoPrefix + ":" + url.PathEscape(text), Label: text})
	return text
}

// asList returns the elements of v and whether v was list-shaped.
func asList(v any) ([]any, bool) {
	switch tv := v.(type) {
	case []any:
		return tv, true
	case []string:
		out := make([]any, len(tv))
		for i, s := range tv {
			out[i] = s
		}
		return out, true
	default:
		return []any{v}, false
	}
}
