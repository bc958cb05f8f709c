package main

import (
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/pipelineconfig"
)

func main() {
	pulumi.Run(run)
}

// run resolves account and region once, validates the configuration and
// registers every unit.
func run(ctx *pulumi.Context) error {
	identity, err := aws.GetCallerIdentity(ctx, nil, nil)
	if err != nil {
		return err
	}
	region, err := aws.GetRegion(ctx, nil, nil)
	if err != nil {
		return err
	}

	sc := readStackConfig(ctx)
	if len(sc.AvailabilityZones) == 0 {
		zones, err := aws.GetAvailabilityZones(ctx, &aws.GetAvailabilityZonesArgs{
			State: pulumi.StringRef("available"),
		}, nil)
		if err != nil {
			return err
		}
		sc.AvailabilityZones = zones.Names
	}

	template, err := pipelineconfig.Load(sc.PipelineTemplate)
	if err != nil {
		return err
	}

	settings, err := newSettings(sc, identity.AccountId, region.Name, template)
	if err != nil {
		return fmt.Errorf("invalid stack configuration: %w", err)
	}

	if _, err := deploy(ctx, settings); err != nil {
		return err
	}
	return nil
}
