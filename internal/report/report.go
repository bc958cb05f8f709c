// Package report collects the outcome of schema conversion and data export
// and renders it as HTML.
package report

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Issue is a schema element that could not be converted.
type Issue struct {
	Name string
	Err  error
}

func (i Issue) Reason() string {
	return i.Err.Error()
}

// Section counts one kind of schema element.
type Section struct {
	Title  string
	Found  int
	Mapped int
	Issues []Issue
}

func (s *Section) Fail(name string, err error) {
	s.Issues = append(s.Issues, Issue{Name: name, Err: err})
}

func (s *Section) Errors() int {
	return len(s.Issues)
}

type Schema struct {
	Collection    string
	FieldTypes    Section
	Fields        Section
	DynamicFields Section
	CopyFields    Section
}

func NewSchema(collection string) *Schema {
	return &Schema{
		Collection:    collection,
		FieldTypes:    Section{Title: "Field types"},
		Fields:        Section{Title: "Fields"},
		DynamicFields: Section{Title: "Dynamic fields"},
		CopyFields:    Section{Title: "Copy fields"},
	}
}

func (s *Schema) Sections() []*Section {
	return []*Section{&s.FieldTypes, &s.Fields, &s.DynamicFields, &s.CopyFields}
}

// Err joins every issue, or returns nil when everything was mapped.
func (s *Schema) Err() error {
	var errs *multierror.Error
	for _, sec := range s.Sections() {
		for _, i := range sec.Issues {
			errs = multierror.Append(errs, fmt.Errorf("%s %s: %w", sec.Title, i.Name, i.Err))
		}
	}
	return errs.ErrorOrNil()
}

func (s *Schema) Log(log logrus.FieldLogger) {
	for _, sec := range s.Sections() {
		log.WithFields(logrus.Fields{
			"found":  sec.Found,
			"mapped": sec.Mapped,
			"errors": sec.Errors(),
		}).Info(sec.Title)
	}
}

func (s *Schema) WriteHTML(w io.Writer) error {
	return templates.ExecuteTemplate(w, "schema.html", s)
}

// Data counts exported documents.
type Data struct {
	Collection string
	Enabled    bool
	Total      int
	Exported   int
	Batches    int
	Errors     []string
}

func (d *Data) AddError(err error) {
	d.Errors = append(d.Errors, err.Error())
}

// SuccessRate is the share of documents exported, in percent.
func (d *Data) SuccessRate() float64 {
	if d.Total == 0 {
		return 100
	}
	return float64(d.Exported) / float64(d.Total) * 100
}

func (d *Data) Log(log logrus.FieldLogger) {
	log.WithFields(logrus.Fields{
		"total":    d.Total,
		"exported": d.Exported,
		"batches":  d.Batches,
		"errors":   len(d.Errors),
	}).Info("Data export")
}

func (d *Data) WriteHTML(w io.Writer) error {
	return templates.ExecuteTemplate(w, "data.html", d)
}

// WriteFile renders a report to path, creating its directory.
func WriteFile(path string, render func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report %s: %w", path, err)
	}
	if err := render(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to render report %s: %w", path, err)
	}
	return f.Close()
}
