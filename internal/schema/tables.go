package schema

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed mappings.yaml
var defaultMappings []byte

// Param describes where a parameter of an OpenSearch analysis component
// comes from.
type Param struct {
	ValueFrom     string `yaml:"valueFrom"`
	ValueFromFile string `yaml:"valueFromFile"`
	// PathParam replaces the parameter with a package path when packages are
	// created.
	PathParam string `yaml:"pathParam"`
	Default   any    `yaml:"default"`
}

type ComponentMapping struct {
	Type   string           `yaml:"type"`
	Params map[string]Param `yaml:"params"`
}

// ParamNames returns the parameter names in a stable order.
func (m ComponentMapping) ParamNames() []string {
	names := make([]string, 0, len(m.Params))
	for n := range m.Params {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Tables maps Solr schema vocabulary to OpenSearch.
type Tables struct {
	DataTypes   map[string]string           `yaml:"dataTypes"`
	Attributes  map[string]string           `yaml:"attributes"`
	Tokenizers  map[string]ComponentMapping `yaml:"tokenizers"`
	Filters     map[string]ComponentMapping `yaml:"filters"`
	CharFilters map[string]ComponentMapping `yaml:"charFilters"`
}

// DefaultTables returns the built-in tables.
func DefaultTables() *Tables {
	t, err := decodeTables(bytes.NewReader(defaultMappings))
	if err != nil {
		panic(fmt.Sprintf("invalid built-in mappings: %v", err))
	}
	return t
}

func decodeTables(r io.Reader) (*Tables, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var t Tables
	if err := dec.Decode(&t); err != nil && err != io.EOF {
		return nil, err
	}
	t.normalize()
	return &t, nil
}

// LoadTables reads the built-in tables and overlays the file at path.
// Entries of the file replace built-in entries of the same name.
func LoadTables(path string) (*Tables, error) {
	t := DefaultTables()
	if path == "" {
		return t, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mappings: %w", err)
	}
	defer f.Close()

	overlay, err := decodeTables(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode mappings %s: %w", path, err)
	}
	t.merge(overlay)
	return t, nil
}

// normalize lowercases component names, since Solr SPI names are matched
// case-insensitively.
func (t *Tables) normalize() {
	for _, m := range []*map[string]ComponentMapping{&t.Tokenizers, &t.Filters, &t.CharFilters} {
		lower := make(map[string]ComponentMapping, len(*m))
		for k, v := range *m {
			lower[strings.ToLower(k)] = v
		}
		*m = lower
	}
	if t.DataTypes == nil {
		t.DataTypes = map[string]string{}
	}
	if t.Attributes == nil {
		t.Attributes = map[string]string{}
	}
}

func (t *Tables) merge(o *Tables) {
	for k, v := range o.DataTypes {
		t.DataTypes[k] = v
	}
	for k, v := range o.Attributes {
		t.Attributes[k] = v
	}
	for k, v := range o.Tokenizers {
		t.Tokenizers[k] = v
	}
	for k, v := range o.Filters {
		t.Filters[k] = v
	}
	for k, v := range o.CharFilters {
		t.CharFilters[k] = v
	}
}
