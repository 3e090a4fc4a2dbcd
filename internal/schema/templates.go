package schema

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed templates/*.yaml
var templatesFS embed.FS

func embeddedTemplate(name string) ([]byte, error) {
	name = strings.TrimSuffix(name, ".yaml")
	if strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("not an embedded template name: %s", name)
	}
	data, err := templatesFS.ReadFile(path.Join("templates", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("embedded template not found: %s", name)
	}
	return data, nil
}

func embeddedImporter(name string) ([]byte, error) {
	return embeddedTemplate(name)
}

// TemplateInfo describes an embedded template.
type TemplateInfo struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	RootClass   string `json:"root_class,omitempty" yaml:"root_class,omitempty"`
}

// Templates lists the embedded templates, excluding the shared core.
func Templates() ([]TemplateInfo, error) {
	entries, err := fs.ReadDir(templatesFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	var out []TemplateInfo
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".yaml")
		if name == "core" {
			continue
		}
		s, err := Load(name)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", name, err)
		}
		info := TemplateInfo{Name: name, Description: s.Description}
		if root, err := s.RootClass(); err == nil {
			info.RootClass = root.Name
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
