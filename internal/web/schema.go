package web

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed schema.yaml
var schemaYAML []byte

// Schema documents the queryable tables. It is reference material for the
// operator; the database itself is defined by the storage migrations.
type Schema struct {
	Tables []TableDoc `yaml:"tables" json:"tables"`
}

type TableDoc struct {
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description" json:"description,omitempty"`
	Columns     []ColumnDoc `yaml:"columns" json:"columns"`
}

type ColumnDoc struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// LoadSchema parses the embedded schema reference.
func LoadSchema() (Schema, error) {
	return parseSchema(schemaYAML)
}

func parseSchema(data []byte) (Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Schema{}, fmt.Errorf("parsing schema reference: %w", err)
	}
	for i, t := range s.Tables {
		if t.Name == "" {
			return Schema{}, fmt.Errorf("schema reference: table %d has no name", i)
		}
		if len(t.Columns) == 0 {
			return Schema{}, fmt.Errorf("schema reference: table %q has no columns", t.Name)
		}
	}
	return s, nil
}
