package workspace

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is a parsed extension manifest. Only the fields the simulator
// needs are modeled; the raw document is kept for section inspection.
type Manifest struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Path     string
	Source   string
	sections []string
}

// ReadManifest parses the manifest at path.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	// Preserve top-level key order for datasource resolution; a yaml
	// mapping node lists keys and values alternately.
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if len(doc.Content) > 0 && doc.Content[0].Kind == yaml.MappingNode {
		root := doc.Content[0]
		for i := 0; i+1 < len(root.Content); i += 2 {
			m.sections = append(m.sections, root.Content[i].Value)
		}
	}

	m.Path = path
	m.Source = string(data)
	return &m, nil
}

// Sections returns the manifest's top-level keys in document order.
func (m *Manifest) Sections() []string {
	return m.sections
}

// Datasource resolves the manifest's datasource section against the
// known names, returning "unsupported" when none matches.
func (m *Manifest) Datasource(known []string) string {
	for _, section := range m.sections {
		for _, name := range known {
			if section == name {
				return name
			}
		}
	}
	return "unsupported"
}
