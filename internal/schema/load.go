package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Importer returns the raw YAML of an imported template.
type Importer func(name string) ([]byte, error)

type document struct {
	ID            string               `yaml:"id"`
	Name          string               `yaml:"name"`
	Description   string               `yaml:"description"`
	DefaultPrefix string               `yaml:"default_prefix"`
	DefaultRange  string               `yaml:"default_range"`
	Imports       []string             `yaml:"imports"`
	Classes       orderedMap[classDoc] `yaml:"classes"`
	Enums         orderedMap[enumDoc]  `yaml:"enums"`
}

type classDoc struct {
	Description string                     `yaml:"description"`
	IsA         string                     `yaml:"is_a"`
	TreeRoot    bool                       `yaml:"tree_root"`
	IDPrefixes  []string                   `yaml:"id_prefixes"`
	Annotations map[string]annotationValue `yaml:"annotations"`
	Attributes  orderedMap[slotDoc]        `yaml:"attributes"`
}

type slotDoc struct {
	Range       string                     `yaml:"range"`
	Multivalued bool                       `yaml:"multivalued"`
	Required    bool                       `yaml:"required"`
	Recommended bool                       `yaml:"recommended"`
	Identifier  bool                       `yaml:"identifier"`
	Inlined     bool                       `yaml:"inlined"`
	Description string                     `yaml:"description"`
	Annotations map[string]annotationValue `yaml:"annotations"`
}

type enumDoc struct {
	Description       string                `yaml:"description"`
	PermissibleValues orderedMap[yaml.Node] `yaml:"permissible_values"`
}

// annotationValue accepts both `key: value` and `key: {value: ...}` forms.
type annotationValue string

func (a *annotationValue) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*a = annotationValue(n.Value)
		return nil
	case yaml.MappingNode:
		var v struct {
			Value string `yaml:"value"`
		}
		if err := n.Decode(&v); err != nil {
			return err
		}
		*a = annotationValue(v.Value)
		return nil
	default:
		return fmt.Errorf("line %d: annotation must be a scalar or a mapping", n.Line)
	}
}

// orderedMap decodes a YAML mapping while keeping key order.
type orderedMap[T any] struct {
	keys   []string
	values map[string]T
}

func (m *orderedMap[T]) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", n.Line)
	}
	m.values = make(map[string]T, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		var v T
		if err := n.Content[i+1].Decode(&v); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		m.keys = append(m.keys, key)
		m.values[key] = v
	}
	return nil
}

// Parse validates and loads a template document. Imports are resolved with
// importer; a nil importer resolves against the embedded templates.
func Parse(data []byte, importer Importer) (*Schema, error) {
	if importer == nil {
		importer = embeddedImporter
	}
	s := &Schema{
		classes: make(map[string]*Class),
		enums:   make(map[string]*Enum),
	}
	if err := s.merge(data, importer, map[string]bool{}, true); err != nil {
		return nil, err
	}
	if err := s.induce(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads a template by embedded name (e.g. "mendelian_disease") or by file path.
// Imports of a file template are looked up next to the file first.
func Load(nameOrPath string) (*Schema, error) {
	if data, err := embeddedTemplate(nameOrPath); err == nil {
		return Parse(data, nil)
	}

	data, err := os.ReadFile(nameOrPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", nameOrPath, err)
	}
	dir := filepath.Dir(nameOrPath)
	importer := func(name string) ([]byte, error) {
		local := filepath.Join(dir, name+".yaml")
		if b, err := os.ReadFile(local); err == nil {
			return b, nil
		}
		return embeddedImporter(name)
	}
	return Parse(data, importer)
}

func (s *Schema) merge(data []byte, importer Importer, seen map[string]bool, own bool) error {
	if err := Validate(data); err != nil {
		return err
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	if seen[doc.Name] {
		return nil
	}
	seen[doc.Name] = true

	if own {
		s.ID = doc.ID
		s.Name = doc.Name
		s.Description = doc.Description
		s.DefaultPrefix = doc.DefaultPrefix
		s.DefaultRange = doc.DefaultRange
		if s.DefaultRange == "" {
			s.DefaultRange = RangeString
		}
	}

	for _, name := range doc.Classes.keys {
		if _, exists := s.classes[name]; exists {
			continue
		}
		cd := doc.Classes.values[name]
		c := &Class{
			Name:        name,
			Description: cd.Description,
			IsA:         cd.IsA,
			TreeRoot:    own && cd.TreeRoot,
			IDPrefixes:  cd.IDPrefixes,
			Annotations: flattenAnnotations(cd.Annotations),
		}
		for _, slotName := range cd.Attributes.keys {
			sd := cd.Attributes.values[slotName]
			c.Attributes = append(c.Attributes, &Slot{
				Name:        slotName,
				Range:       sd.Range,
				Multivalued: sd.Multivalued,
				Required:    sd.Required,
				Recommended: sd.Recommended,
				Identifier:  sd.Identifier,
				Inlined:     sd.Inlined,
				Description: strings.TrimSpace(sd.Description),
				Annotations: flattenAnnotations(sd.Annotations),
			})
		}
		s.classes[name] = c
		s.classOrder = append(s.classOrder, name)
	}

	for _, name := range doc.Enums.keys {
		if _, exists := s.enums[name]; exists {
			continue
		}
		ed := doc.Enums.values[name]
		s.enums[name] = &Enum{
			Name:              name,
			Description:       ed.Description,
			PermissibleValues: append([]string(nil), ed.PermissibleValues.keys...),
		}
		s.enumOrder = append(s.enumOrder, name)
	}

	for _, imp := range doc.Imports {
		if strings.HasPrefix(imp, "linkml:") {
			continue
		}
		b, err := importer(imp)
		if err != nil {
			return fmt.Errorf("failed to import %s: %w", imp, err)
		}
		if err := s.merge(b, importer, seen, false); err != nil {
			return fmt.Errorf("import %s: %w", imp, err)
		}
	}
	return nil
}

// induce computes induced slots for every class.
func (s *Schema) induce() error {
	for _, name := range s.classOrder {
		if _, err := s.induceClass(s.classes[name], map[string]bool{}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) induceClass(c *Class, visiting map[string]bool) ([]*Slot, error) {
	if c.induced != nil {
		return c.induced, nil
	}
	if visiting[c.Name] {
		return nil, fmt.Errorf("%w: is_a cycle at %s", ErrInvalidTemplate, c.Name)
	}
	visiting[c.Name] = true

	var slots []*Slot
	if c.IsA != "" {
		parent, ok := s.classes[c.IsA]
		if !ok {
			return nil, fmt.Errorf("%w: %s is_a unknown class %s", ErrInvalidTemplate, c.Name, c.IsA)
		}
		inherited, err := s.induceClass(parent, visiting)
		if err != nil {
			return nil, err
		}
		slots = append(slots, inherited...)
	}

	for _, attr := range c.Attributes {
		if attr.Range == "" {
			attr.Range = s.DefaultRange
		}
		replaced := false
		for i, existing := range slots {
			if existing.Name == attr.Name {
				slots[i] = attr
				replaced = true
				break
			}
		}
		if !replaced {
			slots = append(slots, attr)
		}
	}

	if slots == nil {
		slots = []*Slot{}
	}
	c.induced = slots
	return slots, nil
}

func flattenAnnotations(in map[string]annotationValue) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = string(v)
	}
	return out
}
