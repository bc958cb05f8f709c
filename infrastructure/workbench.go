package main

import (
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/naming"
	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/policy"
)

// WorkbenchResources is the administrative host used to reach the domain
// through SSM port forwarding and to manage schema packages.
type WorkbenchResources struct {
	Role     *iam.Role
	Profile  *iam.InstanceProfile
	Instance *ec2.Instance
}

// workbenchUserData installs the tooling and a helper that reads the domain
// endpoint from Parameter Store.
func workbenchUserData(prefix string) string {
	return fmt.Sprintf(`#!/bin/bash
dnf update -y
dnf install -y aws-cli jq

mkdir -p /home/ec2-user/scripts
cat > /home/ec2-user/scripts/domain_env.sh << 'EOF'
#!/bin/bash
TOKEN=$(curl -s -X PUT "http://169.254.169.254/latest/api/token" -H "X-aws-ec2-metadata-token-ttl-seconds: 21600")
export AWS_REGION=$(curl -s -H "X-aws-ec2-metadata-token: $TOKEN" http://169.254.169.254/latest/meta-data/placement/region)
export DOMAIN_ENDPOINT=$(aws ssm get-parameter --name "%s" --query "Parameter.Value" --output text)
export MIGRATION_BUCKET=$(aws ssm get-parameter --name "%s" --query "Parameter.Value" --output text)
EOF
chmod +x /home/ec2-user/scripts/domain_env.sh
chown -R ec2-user:ec2-user /home/ec2-user/scripts
`, naming.ParameterPath(prefix, domainEndpointParameter), naming.ParameterPath(prefix, bucketNameParameter))
}

// createWorkbench creates the administrative host in the first private subnet
func createWorkbench(ctx *pulumi.Context, settings *Settings, network *NetworkResources, opts ...pulumi.ResourceOption) (*WorkbenchResources, error) {
	name := settings.Names.WorkbenchRole

	doc, err := policy.Workbench(policyScope(settings))
	if err != nil {
		return nil, err
	}
	body, err := doc.JSON()
	if err != nil {
		return nil, err
	}

	// Create workbench role
	role, err := newServiceRole(ctx, name, "ec2.amazonaws.com", opts...)
	if err != nil {
		return nil, err
	}

	// Attach SSM policy to workbench role
	_, err = iam.NewRolePolicyAttachment(ctx, name+"-ssm", &iam.RolePolicyAttachmentArgs{
		Role:      role.Name,
		PolicyArn: pulumi.String(ssmManagedInstanceCore),
	}, opts...)
	if err != nil {
		return nil, err
	}

	// Attach package, bucket and parameter access policy to workbench role
	_, err = iam.NewRolePolicy(ctx, name+"-policy", &iam.RolePolicyArgs{
		Role:   role.Name,
		Policy: pulumi.String(body),
	}, opts...)
	if err != nil {
		return nil, err
	}

	// Create workbench instance profile
	profile, err := iam.NewInstanceProfile(ctx, name+"-profile", &iam.InstanceProfileArgs{
		Role: role.Name,
	}, opts...)
	if err != nil {
		return nil, err
	}

	// Get the latest Amazon Linux 2023 AMI
	ami, err := ec2.LookupAmi(ctx, &ec2.LookupAmiArgs{
		Owners:     []string{"amazon"},
		MostRecent: pulumi.BoolRef(true),
		NameRegex:  pulumi.StringRef("^al2023-ami-2023.*-x86_64$"),
		Filters: []ec2.GetAmiFilter{
			{Name: "root-device-type", Values: []string{"ebs"}},
			{Name: "virtualization-type", Values: []string{"hvm"}},
		},
	})
	if err != nil {
		return nil, err
	}

	// Create security group for the workbench
	sg, err := ec2.NewSecurityGroup(ctx, settings.Names.Prefix+"-workbench-sg", &ec2.SecurityGroupArgs{
		VpcId:       network.VpcID,
		Description: pulumi.String("Workbench host, egress only"),
		Egress: ec2.SecurityGroupEgressArray{
			&ec2.SecurityGroupEgressArgs{
				Protocol:   pulumi.String("-1"),
				FromPort:   pulumi.Int(0),
				ToPort:     pulumi.Int(0),
				CidrBlocks: pulumi.StringArray{pulumi.String("0.0.0.0/0")},
			},
		},
		Tags: nameTag(settings.Names.Prefix + "-workbench-sg"),
	}, opts...)
	if err != nil {
		return nil, err
	}

	// Create the instance, reachable only through Session Manager
	instance, err := ec2.NewInstance(ctx, settings.Names.Prefix+"-workbench", &ec2.InstanceArgs{
		Ami:                 pulumi.String(ami.Id),
		InstanceType:        pulumi.String(settings.WorkbenchInstanceType),
		SubnetId:            network.PrivateSubnetIDs[0],
		VpcSecurityGroupIds: pulumi.StringArray{sg.ID()},
		IamInstanceProfile:  profile.Name,
		UserData:            pulumi.String(workbenchUserData(settings.Names.Prefix)),
		RootBlockDevice: &ec2.InstanceRootBlockDeviceArgs{
			VolumeSize: pulumi.Int(20),
			VolumeType: pulumi.String("gp3"),
			Encrypted:  pulumi.Bool(true),
		},
		MetadataOptions: &ec2.InstanceMetadataOptionsArgs{
			HttpTokens:   pulumi.String("required"),
			HttpEndpoint: pulumi.String("enabled"),
		},
		Tags: nameTag(settings.Names.Prefix + "-workbench"),
	}, opts...)
	if err != nil {
		return nil, err
	}

	return &WorkbenchResources{Role: role, Profile: profile, Instance: instance}, nil
}
