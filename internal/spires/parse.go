package spires

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/davecgh/go-spew/spew"

	"github.com/jackzampolin/spires/internal/schema"
)

// ParseResponse parses a pseudo-YAML completion for cls. It returns nil when a
// line cannot be attributed to any slot. Inlined values may trigger further
// completions.
func (e *Engine) ParseResponse(ctx context.Context, payload string, cls *schema.Class) (RawResponse, error) {
	cls, err := e.resolveClass(cls)
	if err != nil {
		return nil, err
	}
	return e.newRun().parseResponse(ctx, payload, cls)
}

func (r *run) parseResponse(ctx context.Context, payload string, cls *schema.Class) (RawResponse, error) {
	e := r.e
	payload = stripCodeFences(payload)
	promptable := e.schema.PromptableSlots(cls)

	raw := RawResponse{}
	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.Contains(line, ":") {
			if len(promptable) != 1 {
				e.logger.Error("line does not contain a colon; ignoring response", "class", cls.Name, "line", line)
				return nil, nil
			}
			e.logger.Warn("coercing line onto the only promptable slot", "slot", promptable[0].Name, "line", line)
			line = promptable[0].Name + ": " + line
		}

		name, val, err := r.parseLine(ctx, line, cls)
		if err != nil {
			return nil, err
		}
		if name != "" {
			raw[name] = val
		}
	}

	if e.logger.Enabled(ctx, slog.LevelDebug) {
		e.logger.Debug("parsed response", "class", cls.Name, "raw", spew.Sdump(raw))
	}
	return raw, nil
}

// parseLine parses one "field: value" line. An empty name means the line was dropped.
func (r *run) parseLine(ctx context.Context, line string, cls *schema.Class) (string, any, error) {
	e := r.e
	field, value, _ := strings.Cut(line, ":")

	slot, ok := e.matcher.Match(field, e.schema.InducedSlots(cls))
	if !ok {
		e.logger.Error("cannot find slot for field", "class", cls.Name, "field", field, "line", line)
		return "", nil, nil
	}

	value = strings.TrimSpace(value)
	if value == "" {
		if slot.Required {
			return "", nil, fmt.Errorf("%w: %s.%s in %q", ErrRequiredValueMissing, cls.Name, slot.Name, line)
		}
		if slot.Recommended {
			e.logger.Warn("empty value for recommended slot", "class", cls.Name, "slot", slot.Name)
		}
		return "", nil, nil
	}

	var vals []string
	if slot.Multivalued {
		for _, v := range strings.Split(value, ";") {
			if v = strings.TrimSpace(v); v != "" {
				vals = append(vals, v)
			}
		}
	} else {
		vals = []string{value}
	}
	if len(vals) == 0 {
		return "", nil, nil
	}

	var out []any
	if e.schema.IsInlined(slot) {
		rc := e.schema.RangeClass(slot)
		if e.recurse || len(e.schema.InducedSlots(rc)) > 2 {
			e.logger.Debug("recursing on slot", "slot", slot.Name, "range", rc.Name)
			for _, v := range vals {
				sub, err := r.extractToRaw(ctx, v, rc)
				if err != nil {
					return "", nil, err
				}
				if sub != nil {
					out = append(out, sub)
				}
			}
		} else {
			pairs, ok := e.splitter.Split(vals)
			if !ok {
				e.logger.Warn("did not find separator", "slot", slot.Name, "values", vals)
				return "", nil, nil
			}
			for _, p := range pairs {
				out = append(out, p)
			}
		}
	} else {
		for _, v := range vals {
			out = append(out, v)
		}
	}

	if slot.Multivalued {
		return slot.Name, out, nil
	}
	if len(out) != 1 {
		e.logger.Error("expected one value", "slot", slot.Name, "line", line, "count", len(out))
	}
	if len(out) == 0 {
		return "", nil, nil
	}
	return slot.Name, out[0], nil
}

// extractToRaw runs the full prompt, complete, parse cycle for a nested value.
func (r *run) extractToRaw(ctx context.Context, text string, cls *schema.Class) (RawResponse, error) {
	prompt := r.e.BuildPrompt(ctx, cls, text, nil)
	payload, err := r.e.complete(ctx, prompt, "extract", "spires.extract", cls)
	if err != nil {
		return nil, err
	}
	return r.parseResponse(ctx, payload, cls)
}

// stripCodeFences removes a ``` fence wrapped around a completion.
func stripCodeFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	if i := strings.Index(t, "\n"); i >= 0 {
		t = t[i+1:]
	} else {
		t = strings.TrimPrefix(t, "```")
	}
	return strings.TrimSuffix(strings.TrimSpace(t), "```")
}
