package schema

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/report"
	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/solr"
)

var ErrMappingNotFound = errors.New("mapping not found")

// knownFieldAttrs are the Solr field attributes that are either mapped or
// have no OpenSearch counterpart. Others are logged.
var knownFieldAttrs = map[string]bool{
	"name": true, "type": true, "indexed": true, "stored": true, "docValues": true,
	"multiValued": true, "required": true, "useDocValuesAsStored": true, "omitNorms": true,
	"termOffsets": true, "termVectors": true, "termPositions": true, "uninvertible": true,
	"omitTermFreqAndPositions": true, "omitPositions": true, "default": true,
}

// Options control how config files referenced by filters are carried over.
// CreatePackage and ExpandFiles are mutually exclusive.
type Options struct {
	// CreatePackage uploads each file as an OpenSearch package and points
	// the filter at it.
	CreatePackage bool
	// ExpandFiles inlines the file's lines into the filter definition.
	ExpandFiles bool
}

type FileSource interface {
	File(ctx context.Context, name string) (string, error)
}

// PackageSource stores content as a package associated with the domain and
// returns the package id.
type PackageSource interface {
	Package(ctx context.Context, name string, content []byte) (string, error)
}

// Converter maps one collection's schema. A Converter is not safe for
// concurrent use.
type Converter struct {
	Collection string
	Tables     *Tables
	Files      FileSource
	Packages   PackageSource
	Options    Options
	Log        logrus.FieldLogger

	index    *Index
	types    map[string]string
	lines    map[string][]string
	packages map[string]string
}

// Convert maps field types, fields, dynamic fields and copy fields, in that
// order. Elements that cannot be mapped are left out of the index and listed
// in the report; Convert itself only fails when ctx is done.
func (c *Converter) Convert(ctx context.Context, s *solr.Schema) (*Index, *report.Schema, error) {
	if c.Tables == nil {
		c.Tables = DefaultTables()
	}
	if c.Log == nil {
		c.Log = logrus.StandardLogger()
	}
	c.index = newIndex()
	c.types = map[string]string{}
	c.lines = map[string][]string{}
	c.packages = map[string]string{}
	rep := report.NewSchema(c.Collection)

	for _, ft := range s.FieldTypes {
		rep.FieldTypes.Found++
		if err := c.mapFieldType(ctx, ft); err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			c.Log.WithError(err).WithField("fieldType", ft.Name).Warn("Field type not mapped")
			rep.FieldTypes.Fail(ft.Name, err)
			continue
		}
		rep.FieldTypes.Mapped++
	}

	for _, f := range s.Fields {
		rep.Fields.Found++
		def, err := c.mapField(f)
		if err != nil {
			rep.Fields.Fail(f.Name(), err)
			continue
		}
		c.index.Mappings.Properties[f.Name()] = def
		rep.Fields.Mapped++
	}

	for _, f := range s.DynamicFields {
		rep.DynamicFields.Found++
		def, err := c.mapField(f)
		if err != nil {
			rep.DynamicFields.Fail(f.Name(), err)
			continue
		}
		c.index.Mappings.DynamicTemplates = append(c.index.Mappings.DynamicTemplates, map[string]Definition{
			f.Name(): {"match": f.Name(), "mapping": def},
		})
		rep.DynamicFields.Mapped++
	}

	for _, cf := range s.CopyFields {
		rep.CopyFields.Found++
		if err := c.mapCopyField(cf); err != nil {
			rep.CopyFields.Fail(cf.Source+" -> "+cf.Dest, err)
			continue
		}
		rep.CopyFields.Mapped++
	}

	return c.index, rep, nil
}

// pending collects the components of one field type, so a failing analyzer
// leaves nothing behind in the index.
type pending struct {
	analyzers, tokenizers, filters, charFilters map[string]Definition
}

func (c *Converter) mapFieldType(ctx context.Context, ft solr.FieldType) error {
	dataType, ok := c.Tables.DataTypes[ft.ShortClass()]
	if !ok {
		return fmt.Errorf("%w: class %s", ErrMappingNotFound, ft.Class)
	}

	p := pending{
		analyzers:   map[string]Definition{},
		tokenizers:  map[string]Definition{},
		filters:     map[string]Definition{},
		charFilters: map[string]Definition{},
	}
	for _, a := range []struct {
		name     string
		analyzer *solr.Analyzer
	}{
		{ft.Name, ft.Analyzer},
		{ft.Name + "_index", ft.IndexAnalyzer},
		{ft.Name + "_query", ft.QueryAnalyzer},
	} {
		if a.analyzer == nil {
			continue
		}
		def, err := c.mapAnalyzer(ctx, &p, a.name, a.analyzer)
		if err != nil {
			return fmt.Errorf("analyzer %s: %w", a.name, err)
		}
		p.analyzers[a.name] = def
	}

	analysis := &c.index.Settings.Analysis
	copyInto(analysis.Analyzer, p.analyzers)
	copyInto(analysis.Tokenizer, p.tokenizers)
	copyInto(analysis.Filter, p.filters)
	copyInto(analysis.CharFilter, p.charFilters)
	c.types[ft.Name] = dataType
	return nil
}

func copyInto(dst, src map[string]Definition) {
	for k, v := range src {
		dst[k] = v
	}
}

func (c *Converter) mapAnalyzer(ctx context.Context, p *pending, name string, a *solr.Analyzer) (Definition, error) {
	if a.Tokenizer == nil {
		return nil, errors.New("no tokenizer")
	}

	// Check every component before mapping any, so no package is created
	// for an analyzer that cannot be used.
	var missing *multierror.Error
	if _, ok := c.Tables.Tokenizers[a.Tokenizer.Name()]; !ok {
		missing = multierror.Append(missing, fmt.Errorf("%w: tokenizer %s", ErrMappingNotFound, a.Tokenizer.Name()))
	}
	for _, f := range a.Filters {
		if _, ok := c.Tables.Filters[f.Name()]; !ok {
			missing = multierror.Append(missing, fmt.Errorf("%w: filter %s", ErrMappingNotFound, f.Name()))
		}
	}
	for _, f := range a.CharFilters {
		if _, ok := c.Tables.CharFilters[f.Name()]; !ok {
			missing = multierror.Append(missing, fmt.Errorf("%w: char filter %s", ErrMappingNotFound, f.Name()))
		}
	}
	if err := missing.ErrorOrNil(); err != nil {
		return nil, err
	}

	tokenizer, def, err := c.mapComponent(ctx, c.Tables.Tokenizers, a.Tokenizer)
	if err != nil {
		return nil, fmt.Errorf("tokenizer %s: %w", a.Tokenizer.Name(), err)
	}
	p.tokenizers[tokenizer] = def

	analyzer := Definition{"type": "custom", "tokenizer": tokenizer}
	var filters, charFilters []string
	for _, f := range a.Filters {
		name, def, err := c.mapComponent(ctx, c.Tables.Filters, f)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", f.Name(), err)
		}
		p.filters[name] = def
		filters = append(filters, name)
	}
	for _, f := range a.CharFilters {
		name, def, err := c.mapComponent(ctx, c.Tables.CharFilters, f)
		if err != nil {
			return nil, fmt.Errorf("char filter %s: %w", f.Name(), err)
		}
		p.charFilters[name] = def
		charFilters = append(charFilters, name)
	}
	if len(filters) > 0 {
		analyzer["filter"] = filters
	}
	if len(charFilters) > 0 {
		analyzer["char_filter"] = charFilters
	}
	c.Log.WithFields(logrus.Fields{"analyzer": name, "filters": len(filters)}).Debug("Mapped analyzer")
	return analyzer, nil
}

// mapComponent builds the OpenSearch definition of a tokenizer or filter.
// The returned name carries a hash of the definition, so equal components
// of different field types share one entry.
func (c *Converter) mapComponent(ctx context.Context, table map[string]ComponentMapping, comp solr.Component) (string, Definition, error) {
	name := comp.Name()
	m := table[name]
	def := Definition{"type": m.Type}

	for _, key := range m.ParamNames() {
		p := m.Params[key]
		switch {
		case p.ValueFromFile != "":
			v, _ := comp.Attr(p.ValueFromFile)
			files, _ := v.(string)
			if files == "" {
				if p.Default != nil {
					def[key] = p.Default
				}
				continue
			}
			switch {
			case c.Options.CreatePackage && p.PathParam != "":
				path, err := c.packagePath(ctx, name, files)
				if err != nil {
					return "", nil, err
				}
				def[p.PathParam] = path
			case c.Options.ExpandFiles:
				lines, err := c.fileLines(ctx, name, files)
				if err != nil {
					return "", nil, err
				}
				def[key] = lines
			default:
				def[key] = []string{}
			}
		case p.ValueFrom != "":
			if v, ok := comp.Attr(p.ValueFrom); ok {
				def[key] = v
			} else if p.Default != nil {
				def[key] = p.Default
			}
		default:
			def[key] = p.Default
		}
	}

	hash, err := definitionHash(def)
	if err != nil {
		return "", nil, err
	}
	return name + hash, def, nil
}

// definitionHash is the SHA-256 of the canonical JSON of def, reduced to at
// most eight decimal digits.
func definitionHash(def Definition) (string, error) {
	b, err := json.Marshal(def)
	if err != nil {
		return "", fmt.Errorf("failed to encode definition: %w", err)
	}
	sum := sha256.Sum256(b)
	n := new(big.Int).SetBytes(sum[:])
	return n.Mod(n, big.NewInt(100_000_000)).String(), nil
}

// fileLines reads the comma-separated config files and returns their
// entries without comments and blank lines.
func (c *Converter) fileLines(ctx context.Context, component, files string) ([]string, error) {
	var out []string
	for _, file := range strings.Split(files, ",") {
		file = strings.TrimSpace(file)
		if lines, ok := c.lines[file]; ok {
			out = append(out, lines...)
			continue
		}
		if c.Files == nil {
			return nil, fmt.Errorf("no source for config file %s", file)
		}
		data, err := c.Files.File(ctx, file)
		if err != nil {
			return nil, err
		}
		var lines []string
		for _, line := range strings.Split(data, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "|") {
				continue
			}
			if component == "stemmeroverride" {
				line = strings.ReplaceAll(line, "\t", " => ")
			}
			lines = append(lines, line)
		}
		c.lines[file] = lines
		out = append(out, lines...)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// PackageName is the package holding files of collection:
// p-<collection>-<files>, with path separators, dots and underscores turned
// into dashes.
func PackageName(collection, files string) string {
	name := strings.NewReplacer("/", "-", ".", "-", "_", "-", ",", "-").Replace(files)
	return strings.ToLower("p-" + collection + "-" + name)
}

func (c *Converter) packagePath(ctx context.Context, component, files string) (string, error) {
	name := PackageName(c.Collection, files)
	if path, ok := c.packages[name]; ok {
		return path, nil
	}
	if c.Packages == nil {
		return "", fmt.Errorf("packages are not available for %s", files)
	}
	lines, err := c.fileLines(ctx, component, files)
	if err != nil {
		return "", err
	}
	id, err := c.Packages.Package(ctx, name, []byte(strings.Join(lines, "\n")))
	if err != nil {
		return "", fmt.Errorf("package %s: %w", name, err)
	}
	path := "analyzers/" + id
	c.packages[name] = path
	return path, nil
}

// mapField maps a field or dynamic field definition.
func (c *Converter) mapField(f solr.Field) (Definition, error) {
	dataType, ok := c.types[f.Type()]
	if !ok {
		return nil, fmt.Errorf("%w: field type %s", ErrMappingNotFound, f.Type())
	}

	def := Definition{}
	for attr, v := range f {
		if param, ok := c.Tables.Attributes[attr]; ok {
			def[param] = v
		} else if !knownFieldAttrs[attr] {
			c.Log.WithFields(logrus.Fields{"field": f.Name(), "attr": attr}).Debug("Attribute not mapped")
		}
	}

	t := f.Type()
	if c.index.hasAnalyzer(t) {
		def["analyzer"] = t
	}
	if c.index.hasAnalyzer(t + "_index") {
		def["analyzer"] = t + "_index"
	}
	if c.index.hasAnalyzer(t + "_query") {
		def["search_analyzer"] = t + "_query"
	}
	def["type"] = dataType

	switch dataType {
	case "nested":
		delete(def, "index")
		delete(def, "store")
	case "geo_shape":
		delete(def, "index")
		delete(def, "store")
		delete(def, "doc_values")
	case "text":
		delete(def, "doc_values")
	}
	return def, nil
}

// mapCopyField points the source at dest through copy_to. A dest that is not
// a field of its own gets the source's definition.
func (c *Converter) mapCopyField(cf solr.CopyField) error {
	props := c.index.Mappings.Properties
	src, ok := props[cf.Source]
	if !ok {
		return fmt.Errorf("%w: source field %s", ErrMappingNotFound, cf.Source)
	}
	if cf.Source == cf.Dest {
		return fmt.Errorf("field %s is copied to itself", cf.Source)
	}
	if _, ok := props[cf.Dest]; !ok {
		dst := src.clone()
		delete(dst, "copy_to")
		props[cf.Dest] = dst
	}

	switch cur := src["copy_to"].(type) {
	case nil:
		src["copy_to"] = cf.Dest
	case string:
		if cur != cf.Dest {
			src["copy_to"] = []string{cur, cf.Dest}
		}
	case []string:
		if !lo.Contains(cur, cf.Dest) {
			src["copy_to"] = append(cur, cf.Dest)
		}
	}
	return nil
}
