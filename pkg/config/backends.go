package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// BackendEntry is one raw backend declaration as written in the config file.
// Values are kept as strings so that resolution can tell a missing key from
// an invalid one and fall back to defaults with a warning.
type BackendEntry struct {
	Name      string `yaml:"-"`
	Engine    string `yaml:"ENGINE"`
	Host      string `yaml:"HOST"`
	Port      string `yaml:"PORT"`
	IndexName string `yaml:"INDEX_NAME"`
	MinScore  string `yaml:"MIN_SCORE"`
	Weight    string `yaml:"WEIGHT"`
	TimeoutMS string `yaml:"TIMEOUT_MS"`
	Enabled   string `yaml:"ENABLED"`
}

// BackendEntries keeps backends in the order they were declared. Declaration
// order is the priority used to break score ties.
type BackendEntries []BackendEntry

// UnmarshalYAML decodes a mapping of backend name to settings.
func (b *BackendEntries) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: backends must be a mapping of name to settings", node.Line)
	}
	entries := make(BackendEntries, 0, len(node.Content)/2)
	seen := make(map[string]bool, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		name := keyNode.Value
		if name == "" {
			return fmt.Errorf("line %d: backend name must not be empty", keyNode.Line)
		}
		if seen[name] {
			return fmt.Errorf("line %d: backend %q declared twice", keyNode.Line, name)
		}
		seen[name] = true

		var entry BackendEntry
		if valueNode.Kind != yaml.ScalarNode || valueNode.Tag != "!!null" {
			if err := valueNode.Decode(&entry); err != nil {
				return fmt.Errorf("backend %q: %w", name, err)
			}
		}
		entry.Name = name
		entries = append(entries, entry)
	}
	*b = entries
	return nil
}

// Names returns the declared backend names in order.
func (b BackendEntries) Names() []string {
	names := make([]string, len(b))
	for i, e := range b {
		names[i] = e.Name
	}
	return names
}
