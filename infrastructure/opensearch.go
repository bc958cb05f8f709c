package main

import (
	"encoding/json"
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/cloudwatch"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/opensearch"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/secretsmanager"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ssm"
	"github.com/pulumi/pulumi-random/sdk/v4/go/random"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/naming"
	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/policy"
)

const (
	domainEndpointParameter = "domain-endpoint"
	bucketNameParameter     = "bucket-name"
	tlsSecurityPolicy       = "Policy-Min-TLS-1-2-2019-07"
)

// DomainResources is the search cluster and its master user secret.
type DomainResources struct {
	Domain        *opensearch.Domain
	Secret        *secretsmanager.Secret
	SecretVersion *secretsmanager.SecretVersion
	SecurityGroup *ec2.SecurityGroup
}

// masterSecretString is the secret payload the role mapper reads.
func masterSecretString(username, password string) (string, error) {
	out, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// createMasterSecret generates the master user password and stores it with
// the user name in Secrets Manager
func createMasterSecret(ctx *pulumi.Context, settings *Settings, opts ...pulumi.ResourceOption) (*random.RandomPassword, *secretsmanager.Secret, *secretsmanager.SecretVersion, error) {
	name := settings.Names.MasterSecret

	// Generate master password
	password, err := random.NewRandomPassword(ctx, name+"-password", &random.RandomPasswordArgs{
		Length:          pulumi.Int(32),
		Special:         pulumi.Bool(true),
		OverrideSpecial: pulumi.String("!#$%&*()-_=+[]{}<>:?"),
		MinUpper:        pulumi.Int(1),
		MinLower:        pulumi.Int(1),
		MinNumeric:      pulumi.Int(1),
		MinSpecial:      pulumi.Int(1),
	}, opts...)
	if err != nil {
		return nil, nil, nil, err
	}

	// Create secret holding the master user
	secret, err := secretsmanager.NewSecret(ctx, name, &secretsmanager.SecretArgs{
		Name:                 pulumi.String(name),
		Description:          pulumi.String("Master user of " + settings.Names.Domain),
		RecoveryWindowInDays: pulumi.Int(0),
		Tags:                 nameTag(name),
	}, opts...)
	if err != nil {
		return nil, nil, nil, err
	}

	// Store user name and password as the secret value
	version, err := secretsmanager.NewSecretVersion(ctx, name+"-version", &secretsmanager.SecretVersionArgs{
		SecretId: secret.ID(),
		SecretString: password.Result.ApplyT(func(pw string) (string, error) {
			return masterSecretString(settings.MasterUser, pw)
		}).(pulumi.StringOutput),
	}, opts...)
	if err != nil {
		return nil, nil, nil, err
	}

	return password, secret, version, nil
}

// createDomainLogGroup publishes application logs of the domain.
func createDomainLogGroup(ctx *pulumi.Context, settings *Settings, opts ...pulumi.ResourceOption) (*cloudwatch.LogGroup, *cloudwatch.LogResourcePolicy, error) {
	name := settings.Names.Domain

	// Create log group for application logs
	lg, err := cloudwatch.NewLogGroup(ctx, name+"-application-logs", &cloudwatch.LogGroupArgs{
		Name:            pulumi.String(fmt.Sprintf("/aws/OpenSearchService/domains/%s/application-logs", name)),
		RetentionInDays: pulumi.Int(30),
	}, opts...)
	if err != nil {
		return nil, nil, err
	}

	doc := lg.Arn.ApplyT(func(arn string) (string, error) {
		return policy.NewDocument(policy.Statement{
			Effect:    policy.EffectAllow,
			Principal: &policy.Principal{Service: []string{"es.amazonaws.com"}},
			Action:    []string{"logs:PutLogEvents", "logs:CreateLogStream"},
			Resource:  []string{arn + ":*"},
		}).JSON()
	}).(pulumi.StringOutput)

	// Allow the domain to write to the log group
	lp, err := cloudwatch.NewLogResourcePolicy(ctx, name+"-log-policy", &cloudwatch.LogResourcePolicyArgs{
		PolicyName:     pulumi.String(name + "-log-policy"),
		PolicyDocument: doc,
	}, opts...)
	if err != nil {
		return nil, nil, err
	}
	return lg, lp, nil
}

// domainAccessPolicy renders the resource policy once both role ARNs are known.
func domainAccessPolicy(settings *Settings, pipelineRole, workbenchRole *iam.Role) pulumi.StringOutput {
	return pulumi.All(pipelineRole.Arn, workbenchRole.Arn).ApplyT(func(args []interface{}) (string, error) {
		doc, err := policy.DomainAccess(settings.Region, settings.Account, settings.Names.Domain,
			args[0].(string), args[1].(string))
		if err != nil {
			return "", err
		}
		return doc.JSON()
	}).(pulumi.StringOutput)
}

// createDomain creates the VPC domain with fine-grained access control, its
// master user secret and the endpoint parameter
func createDomain(ctx *pulumi.Context, settings *Settings, network *NetworkResources, pipelineRole, workbenchRole *iam.Role, opts ...pulumi.ResourceOption) (*DomainResources, error) {
	name := settings.Names.Domain

	password, secret, version, err := createMasterSecret(ctx, settings, opts...)
	if err != nil {
		return nil, err
	}

	// Create security group for the domain
	sg, err := ec2.NewSecurityGroup(ctx, name+"-sg", &ec2.SecurityGroupArgs{
		VpcId:       network.VpcID,
		Description: pulumi.String("HTTPS to the search domain from inside the VPC"),
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

	lg, lp, err := createDomainLogGroup(ctx, settings, opts...)
	if err != nil {
		return nil, err
	}

	// Create the domain once its log policy exists
	domainOpts := append(append([]pulumi.ResourceOption{}, opts...),
		pulumi.DependsOn([]pulumi.Resource{lp}),
		pulumi.DeleteBeforeReplace(true),
		pulumi.Timeouts(&pulumi.CustomTimeouts{Create: "2h", Update: "2h"}),
	)
	domain, err := opensearch.NewDomain(ctx, name, &opensearch.DomainArgs{
		DomainName:    pulumi.String(name),
		EngineVersion: pulumi.String(settings.EngineVersion),
		ClusterConfig: &opensearch.DomainClusterConfigArgs{
			InstanceType:         pulumi.String(settings.InstanceType),
			InstanceCount:        pulumi.Int(settings.InstanceCount),
			ZoneAwarenessEnabled: pulumi.Bool(true),
			ZoneAwarenessConfig: &opensearch.DomainClusterConfigZoneAwarenessConfigArgs{
				AvailabilityZoneCount: pulumi.Int(len(settings.AvailabilityZones)),
			},
		},
		EbsOptions: &opensearch.DomainEbsOptionsArgs{
			EbsEnabled: pulumi.Bool(true),
			VolumeSize: pulumi.Int(settings.VolumeSize),
			VolumeType: pulumi.String("gp3"),
		},
		VpcOptions: &opensearch.DomainVpcOptionsArgs{
			SubnetIds:        network.PrivateSubnetIDs,
			SecurityGroupIds: pulumi.StringArray{sg.ID()},
		},
		EncryptAtRest: &opensearch.DomainEncryptAtRestArgs{
			Enabled: pulumi.Bool(true),
		},
		NodeToNodeEncryption: &opensearch.DomainNodeToNodeEncryptionArgs{
			Enabled: pulumi.Bool(true),
		},
		DomainEndpointOptions: &opensearch.DomainDomainEndpointOptionsArgs{
			EnforceHttps:      pulumi.Bool(true),
			TlsSecurityPolicy: pulumi.String(tlsSecurityPolicy),
		},
		AdvancedSecurityOptions: &opensearch.DomainAdvancedSecurityOptionsArgs{
			Enabled:                     pulumi.Bool(true),
			InternalUserDatabaseEnabled: pulumi.Bool(true),
			MasterUserOptions: &opensearch.DomainAdvancedSecurityOptionsMasterUserOptionsArgs{
				MasterUserName:     pulumi.String(settings.MasterUser),
				MasterUserPassword: password.Result,
			},
		},
		LogPublishingOptions: opensearch.DomainLogPublishingOptionArray{
			&opensearch.DomainLogPublishingOptionArgs{
				CloudwatchLogGroupArn: lg.Arn,
				LogType:               pulumi.String("ES_APPLICATION_LOGS"),
			},
		},
		AccessPolicies: domainAccessPolicy(settings, pipelineRole, workbenchRole),
		Tags:           nameTag(name),
	}, domainOpts...)
	if err != nil {
		return nil, err
	}

	// Workbench scripts discover the endpoint here.
	_, err = ssm.NewParameter(ctx, name+"-endpoint-param", &ssm.ParameterArgs{
		Name:  pulumi.String(naming.ParameterPath(settings.Names.Prefix, domainEndpointParameter)),
		Type:  pulumi.String("String"),
		Value: domain.Endpoint,
		Tags:  nameTag(domainEndpointParameter),
	}, opts...)
	if err != nil {
		return nil, err
	}

	return &DomainResources{
		Domain:        domain,
		Secret:        secret,
		SecretVersion: version,
		SecurityGroup: sg,
	}, nil
}
