package main

import (
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/cloudwatch"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/opensearch"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/osis"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/naming"
	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/pipelineconfig"
)

// dlqPrefix receives documents the sink could not write.
const dlqPrefix = "migration_dlq"

// PipelineResources is the ingestion pipeline and its log group.
type PipelineResources struct {
	Pipeline      *osis.Pipeline
	LogGroup      *cloudwatch.LogGroup
	SecurityGroup *ec2.SecurityGroup
}

// pipelineBody renders the configuration document once the role ARN and the
// domain endpoint are known. A rendering failure fails the deployment.
func pipelineBody(settings *Settings, role *iam.Role, domain *opensearch.Domain) pulumi.StringOutput {
	return pulumi.All(role.Arn, domain.Endpoint).ApplyT(func(args []interface{}) (string, error) {
		return pipelineconfig.Render(settings.PipelineTemplate, pipelineconfig.Values{
			Region:                      settings.Region,
			AccountID:                   settings.Account,
			PipelineRoleArn:             args[0].(string),
			OpenSearchDomainVPCEndpoint: args[1].(string),
			BucketName:                  settings.Names.Bucket,
			IndexName:                   settings.Names.Index,
		})
	}).(pulumi.StringOutput)
}

// createPipeline creates the ingestion pipeline in the private subnets with
// its log group and security group
func createPipeline(ctx *pulumi.Context, settings *Settings, network *NetworkResources, role *iam.Role, domain *opensearch.Domain, opts ...pulumi.ResourceOption) (*PipelineResources, error) {
	name := settings.Names.Pipeline

	// Create vended log group for the pipeline
	lg, err := cloudwatch.NewLogGroup(ctx, name+"-logs", &cloudwatch.LogGroupArgs{
		Name:            pulumi.String(naming.PipelineLogGroup(name)),
		RetentionInDays: pulumi.Int(30),
	}, opts...)
	if err != nil {
		return nil, err
	}

	// Create security group for the pipeline
	sg, err := ec2.NewSecurityGroup(ctx, name+"-sg", &ec2.SecurityGroupArgs{
		VpcId:       network.VpcID,
		Description: pulumi.String("Ingestion pipeline endpoint"),
		Ingress: ec2.SecurityGroupIngressArray{
			&ec2.SecurityGroupIngressArgs{
				Protocol:   pulumi.String("tcp"),
				FromPort:   pulumi.Int(443),
				ToPort:     pulumi.Int(443),
				CidrBlocks: pulumi.StringArray{network.CidrBlock},
			},
		},
		Egress: ec2.SecurityGroupEgressArray{
			&ec2.SecurityGroupEgressArgs{
				Protocol:   pulumi.String("-1"),
				FromPort:   pulumi.Int(0),
				ToPort:     pulumi.Int(0),
				CidrBlocks: pulumi.StringArray{pulumi.String("0.0.0.0/0")},
			},
		},
		Tags: nameTag(name + "-sg"),
	}, opts...)
	if err != nil {
		return nil, err
	}

	// Create the pipeline from the rendered configuration
	pipelineOpts := append(append([]pulumi.ResourceOption{}, opts...), pulumi.DependsOn([]pulumi.Resource{lg}))
	pipeline, err := osis.NewPipeline(ctx, name, &osis.PipelineArgs{
		PipelineName:              pulumi.String(name),
		MinUnits:                  pulumi.Int(1),
		MaxUnits:                  pulumi.Int(1),
		PipelineConfigurationBody: pipelineBody(settings, role, domain),
		VpcOptions: &osis.PipelineVpcOptionsArgs{
			SubnetIds:        network.PrivateSubnetIDs,
			SecurityGroupIds: pulumi.StringArray{sg.ID()},
		},
		LogPublishingOptions: &osis.PipelineLogPublishingOptionsArgs{
			IsLoggingEnabled: pulumi.Bool(true),
			CloudwatchLogDestination: &osis.PipelineLogPublishingOptionsCloudwatchLogDestinationArgs{
				LogGroup: lg.Name,
			},
		},
		Tags: nameTag(name),
	}, pipelineOpts...)
	if err != nil {
		return nil, err
	}

	return &PipelineResources{Pipeline: pipeline, LogGroup: lg, SecurityGroup: sg}, nil
}
