package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/naming"
	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/pipelineconfig"
)

const testTemplate = `version: "2"
p:
  sink:
    - opensearch:
        hosts: ["https://${openSearchDomainVPCEndpoint}"]
        index: "${indexName}"
`

func baseConfig() StackConfig {
	return StackConfig{AvailabilityZones: []string{"us-east-1a", "us-east-1b", "us-east-1c"}}
}

func TestNewSettingsDefaults(t *testing.T) {
	s, err := newSettings(baseConfig(), "123456789012", "us-east-1", testTemplate)
	require.NoError(t, err)

	assert.Equal(t, "solr2os-domain", s.Names.Domain)
	assert.Equal(t, "solr2os-migration-123456789012-us-east-1", s.Names.Bucket)
	assert.Equal(t, naming.DefaultIndexName, s.Names.Index)
	assert.Equal(t, []string{"us-east-1a", "us-east-1b"}, s.AvailabilityZones)
	assert.Equal(t, "OpenSearch_2.19", s.EngineVersion)
	assert.Equal(t, 2, s.InstanceCount)
	assert.Equal(t, 30, s.VolumeSize)
	assert.Equal(t, "admin", s.MasterUser)
	assert.Equal(t, SubnetCidrs{
		Public:  []string{"10.0.0.0/18", "10.0.64.0/18"},
		Private: []string{"10.0.128.0/18", "10.0.192.0/18"},
	}, s.SubnetCidrs)
}

func TestNewSettingsOverrides(t *testing.T) {
	sc := baseConfig()
	sc.NamePrefix = "acme"
	sc.DomainName = "search"
	sc.IndexName = "products"
	sc.Cidr = "172.16.0.0/20"

	s, err := newSettings(sc, "123456789012", "eu-west-1", testTemplate)
	require.NoError(t, err)

	assert.Equal(t, "search", s.Names.Domain)
	assert.Equal(t, "acme-migration-bucket", s.Names.Bucket)
	assert.Equal(t, "acme-pipeline-role", s.Names.PipelineRole)
	assert.Equal(t, "products", s.Names.Index)
	assert.Equal(t, []string{"172.16.0.0/22", "172.16.4.0/22"}, s.SubnetCidrs.Public)
	assert.Equal(t, []string{"172.16.8.0/22", "172.16.12.0/22"}, s.SubnetCidrs.Private)
}

func TestNewSettingsExplicitDefaultPrefixKeepsDerivedBucket(t *testing.T) {
	sc := baseConfig()
	sc.NamePrefix = naming.DefaultPrefix

	s, err := newSettings(sc, "123456789012", "us-east-1", testTemplate)
	require.NoError(t, err)
	assert.Equal(t, "solr2os-migration-bucket", s.Names.Bucket)

	sc.BucketName = "my-own-bucket"
	s, err = newSettings(sc, "123456789012", "us-east-1", testTemplate)
	require.NoError(t, err)
	assert.Equal(t, "my-own-bucket", s.Names.Bucket)
}

func TestNewSettingsExistingVpcSkipsCarving(t *testing.T) {
	sc := baseConfig()
	sc.VpcID = "vpc-0abc"
	sc.Cidr = "not-a-cidr"

	s, err := newSettings(sc, "123456789012", "us-east-1", testTemplate)
	require.NoError(t, err)
	assert.Empty(t, s.SubnetCidrs.Private)
}

func TestNewSettingsRejects(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*StackConfig)
		template string
		errIs    error
		contains string
	}{
		{name: "blank prefix", mutate: func(c *StackConfig) { c.NamePrefix = "  " }, errIs: naming.ErrEmptyPrefix},
		{name: "bad cidr", mutate: func(c *StackConfig) { c.Cidr = "10.0.0.0" }, contains: "invalid cidr"},
		{name: "host bits set", mutate: func(c *StackConfig) { c.Cidr = "10.0.0.1/16" }, contains: "canonical"},
		{name: "ipv6 cidr", mutate: func(c *StackConfig) { c.Cidr = "fd00::/56" }, contains: "canonical"},
		{name: "tiny cidr", mutate: func(c *StackConfig) { c.Cidr = "10.0.0.0/27" }, contains: "too small"},
		{name: "one zone", mutate: func(c *StackConfig) { c.AvailabilityZones = []string{"us-east-1a"} }, contains: "2 availability zones"},
		{name: "odd instance count", mutate: func(c *StackConfig) { c.InstanceCount = 3 }, contains: "multiple of the zone count"},
		{name: "domain name too long", mutate: func(c *StackConfig) { c.NamePrefix = "solr2os-migration-prod" }, errIs: naming.ErrInvalidName},
		{name: "unknown placeholder", template: "a: ${stage}\n", errIs: pipelineconfig.ErrUnresolvedPlaceholder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := baseConfig()
			if tt.mutate != nil {
				tt.mutate(&sc)
			}
			template := tt.template
			if template == "" {
				template = testTemplate
			}
			_, err := newSettings(sc, "123456789012", "us-east-1", template)
			require.Error(t, err)
			if tt.errIs != nil {
				assert.ErrorIs(t, err, tt.errIs)
			}
			if tt.contains != "" {
				assert.ErrorContains(t, err, tt.contains)
			}
		})
	}
}

func TestNewSettingsNeedsIdentity(t *testing.T) {
	_, err := newSettings(baseConfig(), "", "us-east-1", testTemplate)
	assert.Error(t, err)
}

func TestSplitCidrIsDeterministic(t *testing.T) {
	a, err := splitCidr("10.1.0.0/16", 2)
	require.NoError(t, err)
	b, err := splitCidr("10.1.0.0/16", 2)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	three, err := splitCidr("10.1.0.0/16", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.1.0.0/19", "10.1.32.0/19", "10.1.64.0/19"}, three.Public)
	assert.Equal(t, []string{"10.1.96.0/19", "10.1.128.0/19", "10.1.160.0/19"}, three.Private)
}
