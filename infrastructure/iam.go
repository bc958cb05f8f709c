package main

import (
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/naming"
	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/policy"
)

const (
	ssmManagedInstanceCore   = "arn:aws:iam::aws:policy/AmazonSSMManagedInstanceCore"
	lambdaBasicExecution     = "arn:aws:iam::aws:policy/service-role/AWSLambdaBasicExecutionRole"
	pipelineServicePrincipal = "osis-pipelines.amazonaws.com"
)

// PipelineRoleResources is the identity the ingestion pipeline runs as.
type PipelineRoleResources struct {
	Role   *iam.Role
	Policy *iam.RolePolicy
}

// policyScope is what every identity policy of the stack is scoped to.
func policyScope(settings *Settings) policy.Scope {
	return policy.Scope{
		Region:       settings.Region,
		Account:      settings.Account,
		Domain:       settings.Names.Domain,
		Bucket:       settings.Names.Bucket,
		SchemaPrefix: naming.SchemaPrefix,
		DataPrefix:   naming.DataPrefix,
		DLQPrefix:    dlqPrefix,
	}
}

// newServiceRole creates a named role that service may assume.
func newServiceRole(ctx *pulumi.Context, name, service string, opts ...pulumi.ResourceOption) (*iam.Role, error) {
	trust, err := policy.AssumeRole(service).JSON()
	if err != nil {
		return nil, err
	}
	return iam.NewRole(ctx, name, &iam.RoleArgs{
		Name:             pulumi.String(name),
		AssumeRolePolicy: pulumi.String(trust),
		Tags:             nameTag(name),
	}, opts...)
}

// createPipelineRole creates the role the ingestion pipeline assumes to read
// exported documents, write the dead-letter prefix and index into the domain
func createPipelineRole(ctx *pulumi.Context, settings *Settings, opts ...pulumi.ResourceOption) (*PipelineRoleResources, error) {
	name := settings.Names.PipelineRole

	doc, err := policy.PipelineRole(policyScope(settings))
	if err != nil {
		return nil, err
	}
	body, err := doc.JSON()
	if err != nil {
		return nil, err
	}

	// Create pipeline role
	role, err := newServiceRole(ctx, name, pipelineServicePrincipal, opts...)
	if err != nil {
		return nil, err
	}

	// Attach bucket and domain access policy to pipeline role
	rolePolicy, err := iam.NewRolePolicy(ctx, name+"-policy", &iam.RolePolicyArgs{
		Role:   role.Name,
		Policy: pulumi.String(body),
	}, opts...)
	if err != nil {
		return nil, err
	}

	return &PipelineRoleResources{Role: role, Policy: rolePolicy}, nil
}
