package solr

import (
	"sort"
	"strings"
)

// Schema is the managed schema of a collection as returned by the schema
// API.
type Schema struct {
	Name          string      `json:"name"`
	UniqueKey     string      `json:"uniqueKey"`
	FieldTypes    []FieldType `json:"fieldTypes"`
	Fields        []Field     `json:"fields"`
	DynamicFields []Field     `json:"dynamicFields"`
	CopyFields    []CopyField `json:"copyFields"`
}

type FieldType struct {
	Name          string    `json:"name"`
	Class         string    `json:"class"`
	Analyzer      *Analyzer `json:"analyzer,omitempty"`
	IndexAnalyzer *Analyzer `json:"indexAnalyzer,omitempty"`
	QueryAnalyzer *Analyzer `json:"queryAnalyzer,omitempty"`
}

// ShortClass is the class without its package, so solr.TextField and
// org.apache.solr.schema.TextField both read TextField.
func (t FieldType) ShortClass() string {
	return t.Class[strings.LastIndex(t.Class, ".")+1:]
}

type Analyzer struct {
	Tokenizer   Component   `json:"tokenizer,omitempty"`
	Filters     []Component `json:"filters,omitempty"`
	CharFilters []Component `json:"charFilters,omitempty"`
}

// Component is a tokenizer, filter or char filter definition: its name or
// factory class plus arbitrary string attributes.
type Component map[string]any

// Attr returns the attribute key and whether it is set.
func (c Component) Attr(key string) (any, bool) {
	v, ok := c[key]
	return v, ok && v != nil
}

// Name is the lowercased SPI name of the component. Older schemas only carry
// a factory class, solr.LowerCaseFilterFactory for example, and the name is
// the class with its factory suffix removed.
func (c Component) Name() string {
	if name, ok := c["name"].(string); ok && name != "" {
		return strings.ToLower(name)
	}
	class, _ := c["class"].(string)
	class = class[strings.LastIndex(class, ".")+1:]
	for _, suffix := range []string{"TokenizerFactory", "TokenFilterFactory", "CharFilterFactory", "FilterFactory"} {
		if strings.HasSuffix(class, suffix) {
			class = strings.TrimSuffix(class, suffix)
			break
		}
	}
	return strings.ToLower(class)
}

// Field is a field or dynamic field definition. Only name and type are
// common to all of them; everything else is an optional attribute.
type Field map[string]any

func (f Field) Name() string {
	s, _ := f["name"].(string)
	return s
}

func (f Field) Type() string {
	s, _ := f["type"].(string)
	return s
}

type CopyField struct {
	Source   string `json:"source"`
	Dest     string `json:"dest"`
	MaxChars int    `json:"maxChars,omitempty"`
}

// BinaryFields lists the fields whose type is a BinaryField. Solr writes
// their values unquoted in JSON responses.
func (s *Schema) BinaryFields() []string {
	binary := map[string]bool{}
	for _, t := range s.FieldTypes {
		if t.ShortClass() == "BinaryField" {
			binary[t.Name] = true
		}
	}
	var fields []string
	for _, f := range s.Fields {
		if binary[f.Type()] && f.Name() != "" {
			fields = append(fields, f.Name())
		}
	}
	sort.Strings(fields)
	return fields
}
