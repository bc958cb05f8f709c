// Package solr reads schemas, config files and documents of a collection
// from a Solr node.
package solr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/rehttp"
	"github.com/sirupsen/logrus"
)

const (
	DefaultRowsPerPage = 500

	// parentQuery selects root documents only; children come back nested
	// through the [child] transformer.
	parentQuery = `{!parent which="*:* -_nest_path_:*"}`
)

// Config locates the collection. Host carries the scheme, as in
// http://solr.internal.
type Config struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
}

// StatusError is a request Solr answered with a non-success status.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}

type Client struct {
	base       *url.URL
	collection string
	cfg        Config
	http       *http.Client
	log        logrus.FieldLogger
}

// NewClient returns a client for cfg.Collection. Requests that fail with a
// temporary error or a 502, 503 or 504 are retried. A nil transport uses the
// default one.
func NewClient(cfg Config, transport http.RoundTripper, log logrus.FieldLogger) (*Client, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("solr collection is not set")
	}
	host := cfg.Host
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid solr host %q: %w", cfg.Host, err)
	}
	if cfg.Port != 0 {
		base.Host = fmt.Sprintf("%s:%d", base.Hostname(), cfg.Port)
	}
	base.Path = "/solr/" + cfg.Collection + "/"

	rt := rehttp.NewTransport(
		transport,
		rehttp.RetryAll(
			rehttp.RetryMaxRetries(3),
			rehttp.RetryAny(
				rehttp.RetryTemporaryErr(),
				rehttp.RetryStatuses(http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout),
			),
		),
		rehttp.ExpJitterDelay(200*time.Millisecond, 5*time.Second),
	)
	return &Client{
		base:       base,
		collection: cfg.Collection,
		cfg:        cfg,
		http:       &http.Client{Transport: rt, Timeout: 5 * time.Minute},
		log:        log.WithField("collection", cfg.Collection),
	}, nil
}

func (c *Client) Collection() string {
	return c.collection
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.base.JoinPath(path)
	u.RawQuery = query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response of %s: %w", u.Redacted(), err)
	}
	if resp.StatusCode != http.StatusOK {
		if len(body) > 512 {
			body = body[:512]
		}
		return nil, &StatusError{URL: u.Redacted(), StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// Schema downloads the collection's schema.
func (c *Client) Schema(ctx context.Context) (*Schema, error) {
	body, err := c.get(ctx, "schema", url.Values{"wt": {"json"}})
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	var resp struct {
		Schema *Schema `json:"schema"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	if resp.Schema == nil {
		return nil, fmt.Errorf("schema response of %s has no schema", c.collection)
	}
	c.log.WithFields(logrus.Fields{
		"fieldTypes": len(resp.Schema.FieldTypes),
		"fields":     len(resp.Schema.Fields),
	}).Debug("Read schema")
	return resp.Schema, nil
}

// File returns a file of the collection's config set, such as synonyms.txt.
func (c *Client) File(ctx context.Context, name string) (string, error) {
	body, err := c.get(ctx, "admin/file", url.Values{"file": {name}})
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	c.log.WithField("file", name).Info("Downloaded config file")
	return string(body), nil
}

type selectResponse struct {
	Response struct {
		NumFound int               `json:"numFound"`
		Docs     []json.RawMessage `json:"docs"`
	} `json:"response"`
	NextCursorMark string `json:"nextCursorMark"`
}

// Count returns the number of documents in the collection.
func (c *Client) Count(ctx context.Context) (int, error) {
	body, err := c.get(ctx, "select", url.Values{
		"q":    {"*:*"},
		"rows": {"0"},
		"wt":   {"json"},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	var resp selectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("failed to decode count: %w", err)
	}
	return resp.Response.NumFound, nil
}

// PageQuery asks for the root documents after Cursor, "*" for the first
// page.
type PageQuery struct {
	Cursor string
	Rows   int
	// BinaryFields are quoted before the response is decoded.
	BinaryFields []string
}

type Page struct {
	Docs       []json.RawMessage
	NextCursor string
}

// Page reads one page of root documents with their children, sorted by id.
func (c *Client) Page(ctx context.Context, q PageQuery) (Page, error) {
	rows := q.Rows
	if rows <= 0 {
		rows = DefaultRowsPerPage
	}
	body, err := c.get(ctx, "select", url.Values{
		"q":          {parentQuery},
		"fl":         {"*,[child]"},
		"sort":       {"id asc"},
		"cursorMark": {q.Cursor},
		"rows":       {strconv.Itoa(rows)},
		"wt":         {"json"},
	})
	if err != nil {
		return Page{}, fmt.Errorf("failed to read page at cursor %s: %w", q.Cursor, err)
	}
	body = QuoteBinaryFields(body, q.BinaryFields)

	var resp selectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Page{}, fmt.Errorf("failed to decode page at cursor %s: %w", q.Cursor, err)
	}
	return Page{Docs: resp.Response.Docs, NextCursor: resp.NextCursorMark}, nil
}

// QuoteBinaryFields wraps unquoted values of the named fields in quotes so
// the response becomes valid JSON.
func QuoteBinaryFields(body []byte, fields []string) []byte {
	for _, f := range fields {
		re := regexp.MustCompile(`"` + regexp.QuoteMeta(f) + `":([^",:}\s]+)`)
		body = re.ReplaceAll(body, []byte(`"`+strings.ReplaceAll(f, "$", "$$")+`":"${1}"`))
	}
	return body
}
