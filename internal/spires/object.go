package spires

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// RawResponse is a parsed completion before grounding: slot name to a string,
// a []any of values, a nested RawResponse, or a Pair.
type RawResponse map[string]any

// Pair is a compound value split positionally on a separator. Its parts are
// zipped against the range class's induced slots.
type Pair []string

// NamedEntity is an entity recorded during grounding.
type NamedEntity struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// ExtractionResult is the outcome of one extraction.
type ExtractionResult struct {
	InputID             string        `json:"input_id,omitempty" yaml:"input_id,omitempty"`
	InputTitle          string        `json:"input_title,omitempty" yaml:"input_title,omitempty"`
	InputText           string        `json:"input_text,omitempty" yaml:"input_text,omitempty"`
	RawCompletionOutput string        `json:"raw_completion_output,omitempty" yaml:"raw_completion_output,omitempty"`
	Prompt              string        `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	ExtractedObject     *Object       `json:"extracted_object,omitempty" yaml:"extracted_object,omitempty"`
	NamedEntities       []NamedEntity `json:"named_entities,omitempty" yaml:"named_entities,omitempty"`
}

// Object is a grounded instance of a schema class. Fields keep insertion order,
// which the grounder makes equal to the class's slot order.
type Object struct {
	Class string

	keys   []string
	values map[string]any
}

// NewObject returns an empty object of class.
func NewObject(class string) *Object {
	return &Object{Class: class, values: make(map[string]any)}
}

// Set sets a field, appending it if new.
func (o *Object) Set(key string, v any) {
	if o.values == nil {
		o.values = make(map[string]any)
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Get returns a field.
func (o *Object) Get(key string) (any, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.values[key]
	return v, ok
}

// GetString returns a scalar field as a string, or "".
func (o *Object) GetString(key string) string {
	v, ok := o.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Delete removes a field.
func (o *Object) Delete(key string) {
	if _, ok := o.values[key]; !ok {
		return
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Keys returns field names in order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return append([]string(nil), o.keys...)
}

// Len returns the number of fields.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// ID returns the "id" field.
func (o *Object) ID() string {
	return o.GetString("id")
}

// SetID sets the "id" field, placing it first when new.
func (o *Object) SetID(id string) {
	if _, ok := o.values["id"]; !ok {
		if o.values == nil {
			o.values = make(map[string]any)
		}
		o.keys = append([]string{"id"}, o.keys...)
	}
	o.values["id"] = id
}

// ToMap converts the object, recursively, into plain maps and slices.
func (o *Object) ToMap() map[string]any {
	if o == nil {
		return nil
	}
	out := make(map[string]any, len(o.keys))
	for _, k := range o.keys {
		out[k] = plain(o.values[k])
	}
	return out
}

func plain(v any) any {
	switch tv := v.(type) {
	case *Object:
		return tv.ToMap()
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}

// raw converts the object back into parser output so it can seed a merge.
func (o *Object) raw() RawResponse {
	out := make(RawResponse, len(o.keys))
	for _, k := range o.keys {
		out[k] = toRaw(o.values[k])
	}
	return out
}

func toRaw(v any) any {
	switch tv := v.(type) {
	case *Object:
		return tv.raw()
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = toRaw(e)
		}
		return out
	default:
		return v
	}
}

// MarshalJSON writes fields in order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML writes fields in order.
func (o *Object) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range o.keys {
		var vn yaml.Node
		if err := vn.Encode(o.values[k]); err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		n.Content = append(n.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			&vn,
		)
	}
	return n, nil
}

// UnmarshalYAML reads a mapping, keeping key order. Nested mappings become
// objects with an empty Class.
func (o *Object) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.DocumentNode && len(n.Content) == 1 {
		n = n.Content[0]
	}
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: object must be a mapping", n.Line)
	}
	o.keys = nil
	o.values = make(map[string]any, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		v, err := decodeNode(n.Content[i+1])
		if err != nil {
			return fmt.Errorf("%s: %w", n.Content[i].Value, err)
		}
		o.Set(n.Content[i].Value, v)
	}
	return nil
}

func decodeNode(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return decodeNode(n.Content[0])
	case yaml.AliasNode:
		return decodeNode(n.Alias)
	case yaml.MappingNode:
		obj := &Object{}
		if err := obj.UnmarshalYAML(n); err != nil {
			return nil, err
		}
		return obj, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := decodeNode(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	default:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// ParseObject reads a YAML mapping as an object of class.
func ParseObject(data []byte, class string) (*Object, error) {
	var o Object
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to parse object: %w", err)
	}
	o.Class = class
	return &o, nil
}

// ParseObjects reads a YAML list of mappings (or a mapping with an "examples"
// list) as objects of class.
func ParseObjects(data []byte, class string) ([]*Object, error) {
	var list []*Object
	if err := yaml.Unmarshal(data, &list); err != nil {
		var doc struct {
			Examples []*Object `yaml:"examples"`
		}
		if err2 := yaml.Unmarshal(data, &doc); err2 != nil {
			return nil, fmt.Errorf("failed to parse objects: %w", err)
		}
		list = doc.Examples
	}
	for _, o := range list {
		if o != nil {
			o.Class = class
		}
	}
	return list, nil
}

// isEmptyValue reports whether v carries no data.
func isEmptyValue(v any) bool {
	switch tv := v.(type) {
	case nil:
		return true
	case string:
		return tv == ""
	case []any:
		return len(tv) == 0
	case []string:
		return len(tv) == 0
	case Pair:
		return len(tv) == 0
	case RawResponse:
		return len(tv) == 0
	case map[string]any:
		return len(tv) == 0
	case *Object:
		return tv == nil || tv.Len() == 0
	default:
		return false
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
