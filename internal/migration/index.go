package migration

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/opensearch-project/opensearch-go/v4"
	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"
	"github.com/opensearch-project/opensearch-go/v4/signer/awsv2"
	"github.com/sirupsen/logrus"

	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/rolemapping"
)

// Address is the base URL of the domain, as in
// https://vpc-acme-domain.eu-west-1.es.amazonaws.com:443.
func (o OpenSearch) Address() string {
	host := strings.TrimSuffix(o.Host, "/")
	if !strings.Contains(host, "://") {
		scheme := "http"
		if o.UseSSL {
			scheme = "https"
		}
		host = scheme + "://" + host
	}
	if o.Port > 0 && !hasPort(host) {
		host += ":" + strconv.Itoa(o.Port)
	}
	return host
}

func hasPort(u string) bool {
	rest := u[strings.Index(u, "://")+3:]
	return strings.Contains(rest, ":")
}

// IndexClient creates indices on the domain.
type IndexClient struct {
	api *opensearchapi.Client
	log logrus.FieldLogger
}

// Auth selects how requests are authenticated. With AWS set requests are
// signed; otherwise Credentials are sent as basic auth.
type Auth struct {
	AWS         *aws.Config
	Credentials rolemapping.Credentials
}

// NewIndexClient connects to the domain of cfg. A nil transport uses the
// library default, with certificate checks off unless cfg.VerifyCerts.
func NewIndexClient(cfg OpenSearch, auth Auth, transport http.RoundTripper, log logrus.FieldLogger) (*IndexClient, error) {
	if transport == nil && !cfg.VerifyCerts {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		transport = t
	}
	c := opensearch.Config{
		Addresses: []string{cfg.Address()},
		Transport: transport,
	}
	if auth.AWS != nil {
		signer, err := awsv2.NewSignerWithService(*auth.AWS, "es")
		if err != nil {
			return nil, fmt.Errorf("failed to create request signer: %w", err)
		}
		c.Signer = signer
	} else {
		c.Username = auth.Credentials.Username
		c.Password = auth.Credentials.Password
	}

	api, err := opensearchapi.NewClient(opensearchapi.Config{Client: c})
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", cfg.Address(), err)
	}
	return &IndexClient{api: api, log: log}, nil
}

// CreateIndex creates index with body, the index document of a converted
// schema. It reports false when the index already exists, which is left
// untouched.
func (c *IndexClient) CreateIndex(ctx context.Context, index string, body []byte) (bool, error) {
	_, err := c.api.Indices.Create(ctx, opensearchapi.IndicesCreateReq{
		Index: index,
		Body:  bytes.NewReader(body),
	})
	if err != nil {
		var se *opensearch.StructError
		if errors.As(err, &se) && se.Err.Type == "resource_already_exists_exception" {
			c.log.WithField("index", index).Warn("Index already exists")
			return false, nil
		}
		return false, fmt.Errorf("failed to create index %s: %w", index, err)
	}
	c.log.WithField("index", index).Info("Created index")
	return true, nil
}
