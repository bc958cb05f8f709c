package naming

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveFromPrefix(t *testing.T) {
	n, err := Derive("acme", Overrides{})
	require.NoError(t, err)

	assert.Equal(t, "acme-vpc", n.Vpc)
	assert.Equal(t, "acme-domain", n.Domain)
	assert.Equal(t, "acme-migration-bucket", n.Bucket)
	assert.Equal(t, "acme-pipeline", n.Pipeline)
	assert.Equal(t, "solr-migration", n.Index)
}

func TestDeriveOverrides(t *testing.T) {
	n, err := Derive("acme", Overrides{Domain: "search", Bucket: "bkt", Index: "products"})
	require.NoError(t, err)

	assert.Equal(t, "search", n.Domain)
	assert.Equal(t, "bkt", n.Bucket)
	assert.Equal(t, "products", n.Index)
	assert.Equal(t, "acme-pipeline", n.Pipeline)
}

func TestDeriveEmptyPrefix(t *testing.T) {
	_, err := Derive("  ", Overrides{})
	assert.ErrorIs(t, err, ErrEmptyPrefix)
}

func TestDeriveRejectsNamesOverServiceLimits(t *testing.T) {
	_, err := Derive("solr2os-migration-prod", Overrides{})
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.ErrorContains(t, err, "solr2os-migration-prod-domain")

	_, err = Derive("acme", Overrides{Domain: "Search"})
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = Derive("acme", Overrides{Bucket: "b"})
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = Derive("acme", Overrides{Bucket: strings.Repeat("b", 64)})
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = Derive("acme", Overrides{Domain: "abc", Bucket: strings.Repeat("b", 63)})
	assert.NoError(t, err)
}

func TestBucketName(t *testing.T) {
	name, err := BucketName("", "111111111111", "us-east-1")
	require.NoError(t, err)
	assert.Equal(t, "solr2os-migration-111111111111-us-east-1", name)

	name, err = BucketName("mine", "", "")
	require.NoError(t, err)
	assert.Equal(t, "mine", name)

	_, err = BucketName("", "111111111111", "")
	assert.Error(t, err)
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "bkt/migration_data", DataPath("bkt"))
	assert.Equal(t, "/aws/vendedlogs/OpenSearchService/acme-pipeline", PipelineLogGroup("acme-pipeline"))
	assert.Equal(t, "/acme/domain-endpoint", ParameterPath("acme", "domain-endpoint"))
}

func TestIdentityNames(t *testing.T) {
	n, err := Derive("acme", Overrides{})
	require.NoError(t, err)

	assert.Equal(t, "acme-pipeline-role", n.PipelineRole)
	assert.Equal(t, "acme-workbench-role", n.WorkbenchRole)
	assert.Equal(t, "arn:aws:iam::111111111111:role/acme-pipeline-role", RoleArn("111111111111", n.PipelineRole))
}
