package pipelineconfig

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullValues() Values {
	return Values{
		Region:                      "us-east-1",
		AccountID:                   "111111111111",
		PipelineRoleArn:             "arn:aws:iam::111111111111:role/pipeline",
		OpenSearchDomainVPCEndpoint: "vpc-acme-domain-abc.us-east-1.es.amazonaws.com",
		BucketName:                  "acme-migration-bucket",
		IndexName:                   "solr-migration",
	}
}

func TestRenderShippedTemplate(t *testing.T) {
	tmpl, err := Load(filepath.Join("..", "..", "infrastructure", "pipeline", "pipeline.yaml"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		AccountID, BucketName, IndexName, OpenSearchDomainVPCEndpoint, PipelineRoleArn, Region,
	}, Placeholders(tmpl))

	out, err := Render(tmpl, fullValues())
	require.NoError(t, err)

	assert.Empty(t, Placeholders(out))
	assert.Contains(t, out, `hosts: ["https://vpc-acme-domain-abc.us-east-1.es.amazonaws.com"]`)
	assert.Contains(t, out, `default_bucket_owner: "111111111111"`)
	assert.Contains(t, out, `region: "us-east-1"`)
	// Data Prepper expressions are not placeholders
	assert.Contains(t, out, `document_id: "${/id}"`)
}

func TestRenderFailsOnEmptyValue(t *testing.T) {
	v := fullValues()
	v.OpenSearchDomainVPCEndpoint = ""
	v.IndexName = " "

	_, err := Render("a: ${region}", v)
	require.ErrorIs(t, err, ErrMissingValue)
	assert.Contains(t, err.Error(), "indexName, openSearchDomainVPCEndpoint")
}

func TestRenderFailsOnUnknownPlaceholder(t *testing.T) {
	_, err := Render("a: ${region}\nb: ${stage}\n", fullValues())
	require.ErrorIs(t, err, ErrUnresolvedPlaceholder)
	assert.Contains(t, err.Error(), "stage")
}

func TestRenderRejectsBrokenYAML(t *testing.T) {
	_, err := Render("a: [${region}\n", fullValues())
	require.Error(t, err)

	_, err = Render("", fullValues())
	require.Error(t, err)
}

func TestRenderIsLiteral(t *testing.T) {
	v := fullValues()
	v.IndexName = "$1-${region}"
	out, err := Render("index: \"${indexName}\"", v)
	require.NoError(t, err)
	// substituted values are not re-expanded
	assert.Equal(t, `index: "$1-${region}"`, strings.TrimSpace(out))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	assert.NoError(t, Check("a: ${region}\nb: ${/id}\n"))

	err := Check("a: ${region}\nb: ${stage}\nc: ${env}\n")
	require.ErrorIs(t, err, ErrUnresolvedPlaceholder)
	assert.Contains(t, err.Error(), "env, stage")
}
