// Package schema converts a Solr schema into an OpenSearch index document:
// analysis settings from field types, properties from fields and copy
// fields, and dynamic templates from dynamic fields.
package schema

import (
	"encoding/json"
	"sort"
)

// Definition is an analysis component or a field mapping.
type Definition map[string]any

func (d Definition) clone() Definition {
	c := make(Definition, len(d))
	for k, v := range d {
		c[k] = v
	}
	return c
}

type Analysis struct {
	Analyzer   map[string]Definition `json:"analyzer,omitempty"`
	Tokenizer  map[string]Definition `json:"tokenizer,omitempty"`
	Filter     map[string]Definition `json:"filter,omitempty"`
	CharFilter map[string]Definition `json:"char_filter,omitempty"`
}

type Settings struct {
	Analysis Analysis `json:"analysis"`
}

type Mappings struct {
	DynamicTemplates []map[string]Definition `json:"dynamic_templates,omitempty"`
	Properties       map[string]Definition   `json:"properties"`
}

// Index is the body of a create index request.
type Index struct {
	Settings Settings `json:"settings"`
	Mappings Mappings `json:"mappings"`
}

func newIndex() *Index {
	return &Index{
		Settings: Settings{Analysis: Analysis{
			Analyzer:   map[string]Definition{},
			Tokenizer:  map[string]Definition{},
			Filter:     map[string]Definition{},
			CharFilter: map[string]Definition{},
		}},
		Mappings: Mappings{Properties: map[string]Definition{}},
	}
}

// JSON renders the index document with stable key order.
func (i *Index) JSON() ([]byte, error) {
	return json.MarshalIndent(i, "", "    ")
}

func (i *Index) Analyzers() []string {
	names := make([]string, 0, len(i.Settings.Analysis.Analyzer))
	for n := range i.Settings.Analysis.Analyzer {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (i *Index) hasAnalyzer(name string) bool {
	_, ok := i.Settings.Analysis.Analyzer[name]
	return ok
}
