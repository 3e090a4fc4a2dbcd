// Package schema loads extraction templates and answers questions about their
// classes, slots and enums.
//
// Templates are LinkML-style YAML documents. A class may declare an is_a parent;
// its induced slots are the parent's induced slots followed by its own attributes,
// with a redeclared attribute replacing the inherited one in place.
package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Annotation keys recognised on slots and classes.
const (
	AnnotationPrompt     = "prompt"
	AnnotationPromptSkip = "prompt.skip"
	AnnotationAnnotators = "annotators"
)

// Scalar range names that are not classes or enums.
const (
	RangeString     = "string"
	RangeURI        = "uri"
	RangeURIOrCURIE = "uriorcurie"
)

var (
	// ErrClassNotFound is returned when a class name is not defined in the schema.
	ErrClassNotFound = errors.New("class not found")

	// ErrInvalidTemplate is returned when a template document fails validation.
	ErrInvalidTemplate = errors.New("invalid template")
)

// Slot is a named, typed field on a class.
type Slot struct {
	Name        string            `yaml:"-" json:"name"`
	Range       string            `yaml:"range,omitempty" json:"range,omitempty"`
	Multivalued bool              `yaml:"multivalued,omitempty" json:"multivalued,omitempty"`
	Required    bool              `yaml:"required,omitempty" json:"required,omitempty"`
	Recommended bool              `yaml:"recommended,omitempty" json:"recommended,omitempty"`
	Identifier  bool              `yaml:"identifier,omitempty" json:"identifier,omitempty"`
	Inlined     bool              `yaml:"inlined,omitempty" json:"inlined,omitempty"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty" json:"annotations,omitempty"`
}

// PromptHint returns the explicit prompt annotation, if any.
func (s *Slot) PromptHint() (string, bool) {
	v, ok := s.Annotations[AnnotationPrompt]
	return v, ok
}

// SkipPrompt reports whether the slot is excluded from prompts.
func (s *Slot) SkipPrompt() bool {
	_, ok := s.Annotations[AnnotationPromptSkip]
	return ok
}

// Class is a schema class with its induced slots.
type Class struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	IsA         string            `json:"is_a,omitempty"`
	TreeRoot    bool              `json:"tree_root,omitempty"`
	IDPrefixes  []string          `json:"id_prefixes,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`

	// Attributes are the slots declared directly on the class.
	Attributes []*Slot `json:"attributes,omitempty"`

	induced []*Slot
}

// Annotators returns the annotator names declared on the class.
func (c *Class) Annotators() []string {
	raw, ok := c.Annotations[AnnotationAnnotators]
	if !ok {
		return nil
	}
	var names []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}

// Enum is a named set of permissible values.
type Enum struct {
	Name              string   `json:"name"`
	Description       string   `json:"description,omitempty"`
	PermissibleValues []string `json:"permissible_values"`
}

// Match finds the permissible value equal to v ignoring case.
func (e *Enum) Match(v string) (string, bool) {
	for _, pv := range e.PermissibleValues {
		if strings.EqualFold(pv, v) {
			return pv, true
		}
	}
	return "", false
}

// Schema is a loaded template.
type Schema struct {
	ID            string
	Name          string
	Description   string
	DefaultPrefix string
	DefaultRange  string

	classes    map[string]*Class
	classOrder []string
	enums      map[string]*Enum
	enumOrder  []string
}

// Class returns a class by name.
func (s *Schema) Class(name string) (*Class, error) {
	c, ok := s.classes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
	}
	return c, nil
}

// Classes returns all classes in declaration order.
func (s *Schema) Classes() []*Class {
	out := make([]*Class, 0, len(s.classOrder))
	for _, name := range s.classOrder {
		out = append(out, s.classes[name])
	}
	return out
}

// Enums returns all enums in declaration order.
func (s *Schema) Enums() []*Enum {
	out := make([]*Enum, 0, len(s.enumOrder))
	for _, name := range s.enumOrder {
		out = append(out, s.enums[name])
	}
	return out
}

// RootClass returns the class flagged tree_root. If none is flagged, the first
// class declared in the template's own file is used.
func (s *Schema) RootClass() (*Class, error) {
	for _, name := range s.classOrder {
		if s.classes[name].TreeRoot {
			return s.classes[name], nil
		}
	}
	if len(s.classOrder) == 0 {
		return nil, fmt.Errorf("%w: schema %s has no classes", ErrClassNotFound, s.Name)
	}
	return s.classes[s.classOrder[0]], nil
}

// InducedSlots returns the slots of a class including inherited ones.
func (s *Schema) InducedSlots(c *Class) []*Slot {
	return c.induced
}

// InducedSlot returns one induced slot of a class by name.
func (s *Schema) InducedSlot(c *Class, name string) (*Slot, bool) {
	for _, slot := range c.induced {
		if slot.Name == name {
			return slot, true
		}
	}
	return nil, false
}

// PromptableSlots returns the induced slots that appear in prompts.
func (s *Schema) PromptableSlots(c *Class) []*Slot {
	var out []*Slot
	for _, slot := range c.induced {
		if !slot.SkipPrompt() {
			out = append(out, slot)
		}
	}
	return out
}

// IdentifierSlot returns the class's identifier slot, or nil.
func (s *Schema) IdentifierSlot(c *Class) *Slot {
	for _, slot := range c.induced {
		if slot.Identifier {
			return slot
		}
	}
	return nil
}

// IsEnum reports whether a range names an enum.
func (s *Schema) IsEnum(rng string) bool {
	_, ok := s.enums[rng]
	return ok
}

// IsClass reports whether a range names a class.
func (s *Schema) IsClass(rng string) bool {
	_, ok := s.classes[rng]
	return ok
}

// Enum returns an enum by name.
func (s *Schema) Enum(name string) (*Enum, bool) {
	e, ok := s.enums[name]
	return e, ok
}

// RangeClass returns the class a slot points at, or nil for scalar and enum ranges.
func (s *Schema) RangeClass(slot *Slot) *Class {
	return s.classes[slot.Range]
}

// IsInlined reports whether values of a slot are parsed in place: either the
// slot says so, or its range class has no identifier.
func (s *Schema) IsInlined(slot *Slot) bool {
	rc := s.RangeClass(slot)
	if rc == nil {
		return false
	}
	if slot.Inlined {
		return true
	}
	return s.IdentifierSlot(rc) == nil
}
