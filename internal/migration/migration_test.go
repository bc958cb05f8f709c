package migration

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/rolemapping"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "migrate.toml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

const techproducts = `
[solr]
host = "http://solr.internal"
port = 8983
collection = "techproducts"

[opensearch]
host = "vpc-acme-domain.eu-west-1.es.amazonaws.com"
domain = "acme-domain"
use_aws_auth_sigv4 = true
region = "eu-west-1"

[migration]
create_package = true
create_index = true

[data_migration]
migrate_data = true
s3_export_bucket = "acme-export"
max_rows = 2000
`

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, techproducts))
	require.NoError(t, err)

	assert.Equal(t, "techproducts", cfg.Solr.Collection)
	assert.Equal(t, 8983, cfg.Solr.Port)
	assert.True(t, cfg.OpenSearch.UseSigV4)
	assert.True(t, cfg.OpenSearch.UseSSL)
	assert.Equal(t, 443, cfg.OpenSearch.Port)
	assert.Equal(t, "solr-migration", cfg.OpenSearch.Index)
	assert.True(t, cfg.Migration.MigrateSchema)
	assert.True(t, cfg.Migration.CreatePackage)
	assert.Equal(t, 500, cfg.Data.RowsPerPage)
	assert.Equal(t, 2000, cfg.Data.MaxRows)
	assert.Equal(t, "migration_data", cfg.Data.Prefix)

	assert.Equal(t, "eu-west-1", cfg.Region())
	assert.Equal(t, "acme-export", cfg.ExportBucket())
	assert.Equal(t, "migration_schema/techproducts", cfg.WorkDir())
	assert.Equal(t, "https://vpc-acme-domain.eu-west-1.es.amazonaws.com:443", cfg.OpenSearch.Address())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SOLR2OS_OPENSEARCH_PASSWORD", "s3cret!")
	t.Setenv("SOLR2OS_SOLR_COLLECTION", "films")

	cfg, err := Load(writeConfig(t, "[solr]\ncollection = \"techproducts\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret!", cfg.OpenSearch.Password)
	assert.Equal(t, "films", cfg.Solr.Collection)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{
			name:    "exclusive options",
			content: "[solr]\ncollection = \"c\"\n[migration]\ncreate_package = true\nexpand_files_array = true\n",
			want:    ErrExclusiveOptions,
		},
		{
			name:    "no collection",
			content: "[solr]\nhost = \"http://solr\"\n",
			want:    ErrMissingValue,
		},
		{
			name:    "index without host",
			content: "[solr]\ncollection = \"c\"\n[migration]\ncreate_index = true\n",
			want:    ErrMissingValue,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "[solr]\ncollection = \"c\"\ncolection = \"typo\"\n"))
	assert.ErrorContains(t, err, "colection")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestAddress(t *testing.T) {
	assert.Equal(t, "http://localhost:9200", OpenSearch{Host: "localhost", Port: 9200}.Address())
	assert.Equal(t, "https://search.internal:9200", OpenSearch{Host: "https://search.internal:9200/", Port: 443}.Address())
	assert.Equal(t, "https://search.internal", OpenSearch{Host: "search.internal", UseSSL: true}.Address())
}

// fakeDomain accepts one index and answers later creates with the error the
// domain returns for an existing index.
type fakeDomain struct {
	mu      sync.Mutex
	indices map[string]string
	auth    [][2]string
}

func (f *fakeDomain) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	user, pass, _ := r.BasicAuth()
	f.auth = append(f.auth, [2]string{user, pass})
	if r.Method != http.MethodPut {
		_, _ = w.Write([]byte(`{"version":{"distribution":"opensearch","number":"2.19.0"}}`))
		return
	}
	index := r.URL.Path[1:]
	if _, ok := f.indices[index]; ok {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"root_cause":[{"type":"resource_already_exists_exception","reason":"index [` + index + `] already exists"}],"type":"resource_already_exists_exception","reason":"index [` + index + `] already exists"},"status":400}`))
		return
	}
	body, _ := io.ReadAll(r.Body)
	f.indices[index] = string(body)
	_, _ = w.Write([]byte(`{"acknowledged":true,"shards_acknowledged":true,"index":"` + index + `"}`))
}

func newIndexClient(t *testing.T, f *fakeDomain) (*IndexClient, *test.Hook) {
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)
	log, hook := test.NewNullLogger()
	c, err := NewIndexClient(OpenSearch{Host: ts.URL, VerifyCerts: true},
		Auth{Credentials: rolemapping.Credentials{Username: "admin", Password: "s3cret!"}}, nil, log)
	require.NoError(t, err)
	return c, hook
}

func TestCreateIndex(t *testing.T) {
	f := &fakeDomain{indices: map[string]string{}}
	c, hook := newIndexClient(t, f)

	created, err := c.CreateIndex(context.Background(), "techproducts", []byte(`{"mappings":{"properties":{"id":{"type":"keyword"}}}}`))
	require.NoError(t, err)
	assert.True(t, created)
	assert.JSONEq(t, `{"mappings":{"properties":{"id":{"type":"keyword"}}}}`, f.indices["techproducts"])
	assert.Equal(t, [2]string{"admin", "s3cret!"}, f.auth[0])

	created, err = c.CreateIndex(context.Background(), "techproducts", []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestCreateIndexError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"mapper_parsing_exception","reason":"unknown type [xy_point]"},"status":400}`))
	}))
	t.Cleanup(ts.Close)
	log, _ := test.NewNullLogger()
	c, err := NewIndexClient(OpenSearch{Host: ts.URL}, Auth{}, nil, log)
	require.NoError(t, err)

	_, err = c.CreateIndex(context.Background(), "techproducts", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create index techproducts")
}
