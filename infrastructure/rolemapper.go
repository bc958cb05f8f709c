package main

import (
	"encoding/json"
	"strings"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/lambda"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/policy"
	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/rolemapping"
)

// RoleMappingResources maps the pipeline and workbench identities to the
// domain's all_access role. The invocation re-runs on update and removes the
// mapping on destroy.
type RoleMappingResources struct {
	Role       *iam.Role
	Function   *lambda.Function
	Invocation *lambda.Invocation
}

// roleMappingInput is the invocation payload. It is validated the same way
// the function validates it.
func roleMappingInput(region, endpoint string, arns ...string) (string, error) {
	req := rolemapping.Request{
		DomainEndpoint: endpoint,
		RoleName:       rolemapping.DefaultRoleName,
		IamRoleArns:    strings.Join(arns, ","),
		Region:         region,
	}
	if err := req.Validate(); err != nil {
		return "", err
	}
	out, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// createRoleMapping creates the role mapper function and invokes it with the
// pipeline and workbench role ARNs
func createRoleMapping(ctx *pulumi.Context, settings *Settings, network *NetworkResources, domain *DomainResources, pipelineRole, workbenchRole *iam.Role, opts ...pulumi.ResourceOption) (*RoleMappingResources, error) {
	name := settings.Names.MapperRole
	fnName := settings.Names.Prefix + "-role-mapper"

	// Create role mapper role
	role, err := newServiceRole(ctx, name, "lambda.amazonaws.com", opts...)
	if err != nil {
		return nil, err
	}

	_, err = iam.NewRolePolicyAttachment(ctx, name+"-logs", &iam.RolePolicyAttachmentArgs{
		Role:      role.Name,
		PolicyArn: pulumi.String(lambdaBasicExecution),
	}, opts...)
	if err != nil {
		return nil, err
	}

	scope := policyScope(settings)
	// Allow reading the master secret and calling the domain
	rolePolicy, err := iam.NewRolePolicy(ctx, name+"-policy", &iam.RolePolicyArgs{
		Role: role.Name,
		Policy: domain.Secret.Arn.ApplyT(func(secretArn string) (string, error) {
			doc, err := policy.RoleMapper(scope, secretArn)
			if err != nil {
				return "", err
			}
			return doc.JSON()
		}).(pulumi.StringOutput),
	}, opts...)
	if err != nil {
		return nil, err
	}

	// Create security group for the function
	sg, err := ec2.NewSecurityGroup(ctx, fnName+"-sg", &ec2.SecurityGroupArgs{
		VpcId:       network.VpcID,
		Description: pulumi.String("Role mapper function, egress only"),
		Egress: ec2.SecurityGroupEgressArray{
			&ec2.SecurityGroupEgressArgs{
				Protocol:   pulumi.String("-1"),
				FromPort:   pulumi.Int(0),
				ToPort:     pulumi.Int(0),
				CidrBlocks: pulumi.StringArray{pulumi.String("0.0.0.0/0")},
			},
		},
		Tags: nameTag(fnName + "-sg"),
	}, opts...)
	if err != nil {
		return nil, err
	}

	withPolicy := append(append([]pulumi.ResourceOption{}, opts...), pulumi.DependsOn([]pulumi.Resource{rolePolicy}))
	// Create role mapper function
	fn, err := lambda.NewFunction(ctx, fnName, &lambda.FunctionArgs{
		Name:          pulumi.String(fnName),
		Runtime:       pulumi.String("provided.al2023"),
		Architectures: pulumi.StringArray{pulumi.String("arm64")},
		Handler:       pulumi.String("bootstrap"),
		Code:          pulumi.NewFileArchive(settings.RoleMapperArchive),
		Role:          role.Arn,
		Timeout:       pulumi.Int(30),
		MemorySize:    pulumi.Int(128),
		Environment: &lambda.FunctionEnvironmentArgs{
			Variables: pulumi.StringMap{
				"OS_SECRET_NAME": domain.Secret.Name,
			},
		},
		VpcConfig: &lambda.FunctionVpcConfigArgs{
			SubnetIds:        network.PrivateSubnetIDs,
			SecurityGroupIds: pulumi.StringArray{sg.ID()},
		},
		Tags: nameTag(fnName),
	}, withPolicy...)
	if err != nil {
		return nil, err
	}

	input := pulumi.All(domain.Domain.Endpoint, pipelineRole.Arn, workbenchRole.Arn).ApplyT(func(args []interface{}) (string, error) {
		return roleMappingInput(settings.Region, args[0].(string), args[1].(string), args[2].(string))
	}).(pulumi.StringOutput)

	// Invoke on create, update and destroy
	invocation, err := lambda.NewInvocation(ctx, fnName+"-invocation", &lambda.InvocationArgs{
		FunctionName:   fn.Name,
		Input:          input,
		LifecycleScope: pulumi.String("CRUD"),
		Triggers: pulumi.StringMap{
			"input": input,
		},
	}, withPolicy...)
	if err != nil {
		return nil, err
	}

	return &RoleMappingResources{Role: role, Function: fn, Invocation: invocation}, nil
}
