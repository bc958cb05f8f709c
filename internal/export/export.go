// Package export copies the documents of a Solr collection to the migration
// bucket as NDJSON batches for the ingestion pipeline.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/naming"
	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/report"
	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/solr"
)

const (
	DefaultMaxRows     = 100000
	DefaultConcurrency = 4
)

// Source reads documents from Solr. *solr.Client implements it.
type Source interface {
	Count(ctx context.Context) (int, error)
	Page(ctx context.Context, q solr.PageQuery) (solr.Page, error)
}

type Putter interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

type Exporter struct {
	Source     Source
	Uploader   Putter
	Collection string
	// Prefix is the bucket key prefix, naming.DataPrefix when empty.
	Prefix string

	RowsPerPage int
	// MaxRows caps the exported documents; zero or less exports everything.
	MaxRows      int
	Concurrency  int
	BinaryFields []string
	Log          logrus.FieldLogger
}

// Key is the object key of batch n, counted from 1.
func (e *Exporter) Key(n int) string {
	prefix := e.Prefix
	if prefix == "" {
		prefix = naming.DataPrefix
	}
	return path.Join(prefix, e.Collection, fmt.Sprintf("%s_batch_%d.ndjson", e.Collection, n))
}

// Run pages through the collection with a cursor and uploads every page as
// one batch. Reading stops at the first page that fails; failed uploads are
// counted in the report and returned together.
func (e *Exporter) Run(ctx context.Context) (*report.Data, error) {
	data := &report.Data{Collection: e.Collection, Enabled: true}

	total, err := e.Source.Count(ctx)
	if err != nil {
		return nil, err
	}
	if e.MaxRows > 0 && total > e.MaxRows {
		total = e.MaxRows
	}
	data.Total = total
	e.Log.WithFields(logrus.Fields{"collection": e.Collection, "documents": total}).Info("Exporting documents")

	concurrency := e.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var (
		exported atomic.Int64
		mu       sync.Mutex
		errs     *multierror.Error
	)
	fail := func(err error) {
		mu.Lock()
		errs = multierror.Append(errs, err)
		mu.Unlock()
	}

	cursor, read := "*", 0
	for read < total {
		if gctx.Err() != nil {
			break
		}
		page, err := e.Source.Page(gctx, solr.PageQuery{Cursor: cursor, Rows: e.RowsPerPage, BinaryFields: e.BinaryFields})
		if err != nil {
			fail(err)
			break
		}
		docs := page.Docs
		if len(docs) == 0 {
			break
		}
		if read+len(docs) > total {
			docs = docs[:total-read]
		}
		read += len(docs)
		data.Batches++

		body, err := ndjson(docs)
		if err != nil {
			fail(fmt.Errorf("batch %d: %w", data.Batches, err))
		} else {
			key, n := e.Key(data.Batches), int64(len(docs))
			g.Go(func() error {
				if err := e.Uploader.Put(gctx, key, body, "application/x-ndjson"); err != nil {
					fail(err)
					return nil
				}
				exported.Add(n)
				e.Log.WithFields(logrus.Fields{"key": key, "documents": n}).Debug("Exported batch")
				return nil
			})
		}

		if page.NextCursor == "" || page.NextCursor == cursor {
			break
		}
		cursor = page.NextCursor
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		fail(err)
	}
	data.Exported = int(exported.Load())
	if errs != nil {
		for _, err := range errs.Errors {
			data.AddError(err)
		}
	}
	return data, errs.ErrorOrNil()
}

func ndjson(docs []json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	for _, d := range docs {
		if err := json.Compact(&buf, d); err != nil {
			return nil, err
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
