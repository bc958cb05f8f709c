package policy

import (
	"fmt"

	"github.com/samber/lo"
)

var vpcAccessActions = []string{
	"ec2:CreateNetworkInterface",
	"ec2:DescribeNetworkInterfaces",
	"ec2:DeleteNetworkInterface",
	"ec2:DescribeVpcs",
	"ec2:DescribeSubnets",
	"ec2:DescribeSecurityGroups",
}

// DomainArns scopes a statement to a search domain and its sub-resources.
func DomainArns(region, account, domain string) []string {
	arn := fmt.Sprintf("arn:aws:es:%s:%s:domain/%s", region, account, domain)
	return []string{arn, arn + "/*"}
}

// BucketArns returns the bucket ARN followed by one object ARN per prefix.
func BucketArns(bucket string, prefixes ...string) []string {
	arns := []string{"arn:aws:s3:::" + bucket}
	for _, p := range prefixes {
		arns = append(arns, fmt.Sprintf("arn:aws:s3:::%s/%s/*", bucket, p))
	}
	return arns
}

// AssumeRole is the trust policy letting service assume a role.
func AssumeRole(service string) Document {
	return NewDocument(Statement{
		Effect:    EffectAllow,
		Principal: &Principal{Service: []string{service}},
		Action:    []string{"sts:AssumeRole"},
	})
}

// Scope carries the identifiers statements are scoped to.
type Scope struct {
	Region       string
	Account      string
	Domain       string
	Bucket       string
	SchemaPrefix string
	DataPrefix   string
	DLQPrefix    string
}

func (s Scope) validate() error {
	for name, v := range map[string]string{
		"region": s.Region, "account": s.Account, "domain": s.Domain, "bucket": s.Bucket,
	} {
		if v == "" {
			return fmt.Errorf("policy scope %s must not be empty", name)
		}
	}
	return nil
}

// PipelineRole is the inline policy of the ingestion pipeline identity.
func PipelineRole(s Scope) (Document, error) {
	if err := s.validate(); err != nil {
		return Document{}, err
	}
	prefixes := lo.Compact([]string{s.DataPrefix, s.DLQPrefix})
	return NewDocument(
		Statement{
			Sid:      "VPCAccess",
			Effect:   EffectAllow,
			Action:   vpcAccessActions,
			Resource: []string{"*"},
		},
		Statement{
			Sid:    "OpensearchAccess",
			Effect: EffectAllow,
			Action: []string{
				"es:ESHttp*",
				"es:DescribeDomain",
				"es:ListDomainNames",
				"es:DescribeDomainConfig",
				"es:GetCompatibleVersions",
			},
			Resource: DomainArns(s.Region, s.Account, s.Domain),
		},
		Statement{
			Sid:    "S3Access",
			Effect: EffectAllow,
			Action: []string{
				"s3:GetObject",
				"s3:ListBucket",
				"s3:GetBucketLocation",
				"s3:PutObject",
			},
			Resource: BucketArns(s.Bucket, prefixes...),
		},
	), nil
}

// Workbench is the inline policy of the administrative host. It manages
// schema packages: objects under the schema prefix and package APIs on the
// domain.
func Workbench(s Scope) (Document, error) {
	if err := s.validate(); err != nil {
		return Document{}, err
	}
	return NewDocument(
		Statement{
			Sid:      "S3Packages",
			Effect:   EffectAllow,
			Action:   []string{"s3:PutObject", "s3:GetObject", "s3:ListBucket"},
			Resource: BucketArns(s.Bucket, s.SchemaPrefix),
		},
		Statement{
			Sid:    "DomainPackages",
			Effect: EffectAllow,
			Action: []string{
				"es:ListPackagesForDomain",
				"es:AssociatePackage",
				"es:DissociatePackage",
				"es:DescribeDomain",
				"es:ESHttp*",
			},
			Resource: DomainArns(s.Region, s.Account, s.Domain),
		},
		Statement{
			Sid:    "OSPackages",
			Effect: EffectAllow,
			Action: []string{
				"es:ListDomainsForPackage",
				"es:CreatePackage",
				"es:UpdatePackage",
				"es:DescribePackages",
				"es:GetPackageVersionHistory",
			},
			Resource: []string{"*"},
		},
	), nil
}

// RoleMapper is the inline policy of the role-mapping function.
func RoleMapper(s Scope, secretArn string) (Document, error) {
	if err := s.validate(); err != nil {
		return Document{}, err
	}
	if secretArn == "" {
		return Document{}, fmt.Errorf("secret ARN must not be empty")
	}
	return NewDocument(
		Statement{
			Sid:      "VPCAccess",
			Effect:   EffectAllow,
			Action:   vpcAccessActions,
			Resource: []string{"*"},
		},
		Statement{
			Sid:    "OpensearchAccess",
			Effect: EffectAllow,
			Action: []string{
				"es:ESHttpGet",
				"es:ESHttpPut",
				"es:ESHttpPatch",
				"es:ESHttpDelete",
			},
			Resource: DomainArns(s.Region, s.Account, s.Domain),
		},
		Statement{
			Sid:    "SecretManagerAccess",
			Effect: EffectAllow,
			Action: []string{
				"secretsmanager:GetSecretValue",
				"secretsmanager:DescribeSecret",
			},
			Resource: []string{secretArn},
		},
	), nil
}

// DomainAccess is the resource policy of the search domain. Its AWS
// principal set is exactly {pipelineRoleArn, workbenchRoleArn}; dashboard
// access is anonymous and gated by the domain's network placement.
func DomainAccess(region, account, domain, pipelineRoleArn, workbenchRoleArn string) (Document, error) {
	if pipelineRoleArn == "" || workbenchRoleArn == "" {
		return Document{}, fmt.Errorf("pipeline and workbench role ARNs are required")
	}
	if pipelineRoleArn == workbenchRoleArn {
		return Document{}, fmt.Errorf("pipeline and workbench must be distinct principals")
	}
	resources := DomainArns(region, account, domain)
	return NewDocument(
		Statement{
			Sid:       "PipelineAccess",
			Effect:    EffectAllow,
			Principal: &Principal{AWS: []string{pipelineRoleArn, workbenchRoleArn}},
			Action: []string{
				"es:ESHttp*",
				"es:DescribeElasticsearchDomain",
				"es:ListDomainNames",
				"es:DescribeElasticsearchDomains",
			},
			Resource: resources,
		},
		Statement{
			Sid:       "DashboardAccess",
			Effect:    EffectAllow,
			Principal: &Principal{Anyone: true},
			Action:    []string{"es:ESHttp*"},
			Resource:  resources,
		},
	), nil
}

// TLSOnly is the bucket policy denying any request made without TLS.
func TLSOnly(bucket string) (Document, error) {
	if bucket == "" {
		return Document{}, fmt.Errorf("bucket must not be empty")
	}
	return NewDocument(Statement{
		Sid:       "DenyInsecureTransport",
		Effect:    EffectDeny,
		Principal: &Principal{Anyone: true},
		Action:    []string{"s3:*"},
		Resource:  []string{"arn:aws:s3:::" + bucket, "arn:aws:s3:::" + bucket + "/*"},
		Condition: map[string]interface{}{
			"Bool": map[string]string{"aws:SecureTransport": "false"},
		},
	}), nil
}
