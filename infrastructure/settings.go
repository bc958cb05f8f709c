package main

import (
	"fmt"
	"net"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"

	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/naming"
	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/pipelineconfig"
)

const configNamespace = "solr2os"

// StackConfig is the raw stack configuration. Empty fields take defaults.
type StackConfig struct {
	VpcID                 string
	Cidr                  string
	NamePrefix            string
	DomainName            string
	IndexName             string
	BucketName            string
	EngineVersion         string
	InstanceType          string
	InstanceCount         int
	VolumeSize            int
	WorkbenchInstanceType string
	RoleMapperArchive     string
	PipelineTemplate      string
	AvailabilityZones     []string
}

// Settings is everything the units are built from. It is resolved once and
// passed down; no unit reads configuration or the environment itself.
type Settings struct {
	Account string
	Region  string
	Names   naming.Names

	// VpcID selects an existing network instead of creating one.
	VpcID             string
	Cidr              string
	SubnetCidrs       SubnetCidrs
	AvailabilityZones []string

	EngineVersion string
	InstanceType  string
	InstanceCount int
	VolumeSize    int
	MasterUser    string

	WorkbenchInstanceType string
	RoleMapperArchive     string

	// PipelineTemplate is the template text, not its path.
	PipelineTemplate string
}

// SubnetCidrs are the address ranges of the created network, one per zone.
type SubnetCidrs struct {
	Public  []string
	Private []string
}

func (c StackConfig) withDefaults() StackConfig {
	if c.Cidr == "" {
		c.Cidr = "10.0.0.0/16"
	}
	if c.NamePrefix == "" {
		c.NamePrefix = naming.DefaultPrefix
	}
	if c.EngineVersion == "" {
		c.EngineVersion = "OpenSearch_2.19"
	}
	if c.InstanceType == "" {
		c.InstanceType = "t3.small.search"
	}
	if c.InstanceCount == 0 {
		c.InstanceCount = 2
	}
	if c.VolumeSize == 0 {
		c.VolumeSize = 30
	}
	if c.WorkbenchInstanceType == "" {
		c.WorkbenchInstanceType = "t3.medium"
	}
	if c.RoleMapperArchive == "" {
		c.RoleMapperArchive = "../build/rolemapper.zip"
	}
	if c.PipelineTemplate == "" {
		c.PipelineTemplate = "pipeline/pipeline.yaml"
	}
	return c
}

// readStackConfig reads the solr2os namespace of the stack configuration.
func readStackConfig(ctx *pulumi.Context) StackConfig {
	cfg := config.New(ctx, configNamespace)
	sc := StackConfig{
		VpcID:                 cfg.Get("vpcId"),
		Cidr:                  cfg.Get("cidr"),
		NamePrefix:            cfg.Get("namePrefix"),
		DomainName:            cfg.Get("domainName"),
		IndexName:             cfg.Get("indexName"),
		BucketName:            cfg.Get("bucketName"),
		EngineVersion:         cfg.Get("engineVersion"),
		InstanceType:          cfg.Get("instanceType"),
		InstanceCount:         cfg.GetInt("instanceCount"),
		VolumeSize:            cfg.GetInt("volumeSize"),
		WorkbenchInstanceType: cfg.Get("workbenchInstanceType"),
		RoleMapperArchive:     cfg.Get("roleMapperArchive"),
		PipelineTemplate:      cfg.Get("pipelineTemplate"),
	}
	var zones []string
	if err := cfg.TryObject("availabilityZones", &zones); err == nil {
		sc.AvailabilityZones = zones
	}
	return sc
}

// newSettings validates sc and derives every name. template is the pipeline
// template text. Any error here aborts before a resource is registered.
func newSettings(sc StackConfig, account, region, template string) (*Settings, error) {
	// Without a configured prefix the bucket is named after the account and
	// region, since the default prefix is shared by every stack.
	defaultPrefix := sc.NamePrefix == ""
	sc = sc.withDefaults()
	if account == "" || region == "" {
		return nil, fmt.Errorf("account and region are required")
	}

	bucket := sc.BucketName
	if bucket == "" && defaultPrefix {
		var err error
		if bucket, err = naming.BucketName("", account, region); err != nil {
			return nil, err
		}
	}
	names, err := naming.Derive(sc.NamePrefix, naming.Overrides{
		Domain: sc.DomainName,
		Bucket: bucket,
		Index:  sc.IndexName,
	})
	if err != nil {
		return nil, err
	}

	if len(sc.AvailabilityZones) < 2 {
		return nil, fmt.Errorf("zone awareness needs 2 availability zones, got %d", len(sc.AvailabilityZones))
	}
	zones := sc.AvailabilityZones[:2]
	if sc.InstanceCount%len(zones) != 0 {
		return nil, fmt.Errorf("instance count %d must be a multiple of the zone count %d", sc.InstanceCount, len(zones))
	}

	s := &Settings{
		Account:               account,
		Region:                region,
		Names:                 names,
		VpcID:                 sc.VpcID,
		Cidr:                  sc.Cidr,
		AvailabilityZones:     zones,
		EngineVersion:         sc.EngineVersion,
		InstanceType:          sc.InstanceType,
		InstanceCount:         sc.InstanceCount,
		VolumeSize:            sc.VolumeSize,
		MasterUser:            "admin",
		WorkbenchInstanceType: sc.WorkbenchInstanceType,
		RoleMapperArchive:     sc.RoleMapperArchive,
		PipelineTemplate:      template,
	}

	if s.VpcID == "" {
		if s.SubnetCidrs, err = splitCidr(sc.Cidr, len(zones)); err != nil {
			return nil, err
		}
	}
	if err := pipelineconfig.Check(template); err != nil {
		return nil, err
	}
	return s, nil
}

// splitCidr carves cidr into 2*zones equal subnets: public ranges first,
// then private ones.
func splitCidr(cidrBlock string, zones int) (SubnetCidrs, error) {
	ip, network, err := net.ParseCIDR(cidrBlock)
	if err != nil {
		return SubnetCidrs{}, fmt.Errorf("invalid cidr %q: %w", cidrBlock, err)
	}
	if ip.To4() == nil || !ip.Equal(network.IP) {
		return SubnetCidrs{}, fmt.Errorf("cidr %q must be a canonical IPv4 network", cidrBlock)
	}

	n := 2 * zones
	bits := 0
	for 1<<bits < n {
		bits++
	}
	if ones, _ := network.Mask.Size(); ones+bits > 28 {
		return SubnetCidrs{}, fmt.Errorf("cidr %q is too small for %d subnets", cidrBlock, n)
	}

	subnets := make([]string, n)
	for i := range subnets {
		subnet, err := cidr.Subnet(network, bits, i)
		if err != nil {
			return SubnetCidrs{}, fmt.Errorf("failed to carve subnet %d of %q: %w", i, cidrBlock, err)
		}
		subnets[i] = subnet.String()
	}
	return SubnetCidrs{Public: subnets[:zones], Private: subnets[zones:]}, nil
}
