package main

import (
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/s3"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ssm"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/naming"
	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/policy"
)

// StorageResources is the bucket holding schema packages and exported
// documents.
type StorageResources struct {
	Bucket *s3.BucketV2
	Policy *s3.BucketPolicy
}

// createStorage creates a private, versioned, encrypted bucket that only
// accepts TLS and is emptied when the stack is destroyed.
func createStorage(ctx *pulumi.Context, settings *Settings) (*StorageResources, error) {
	name := settings.Names.Bucket

	tlsOnly, err := policy.TLSOnly(name)
	if err != nil {
		return nil, err
	}
	tlsOnlyJSON, err := tlsOnly.JSON()
	if err != nil {
		return nil, err
	}

	// Create migration bucket
	bucket, err := s3.NewBucketV2(ctx, name, &s3.BucketV2Args{
		Bucket:       pulumi.String(name),
		ForceDestroy: pulumi.Bool(true),
		Tags:         nameTag(name),
	})
	if err != nil {
		return nil, err
	}

	// Enable versioning
	_, err = s3.NewBucketVersioningV2(ctx, name+"-versioning", &s3.BucketVersioningV2Args{
		Bucket: bucket.ID(),
		VersioningConfiguration: &s3.BucketVersioningV2VersioningConfigurationArgs{
			Status: pulumi.String("Enabled"),
		},
	})
	if err != nil {
		return nil, err
	}

	// Enable server-side encryption
	_, err = s3.NewBucketServerSideEncryptionConfigurationV2(ctx, name+"-sse", &s3.BucketServerSideEncryptionConfigurationV2Args{
		Bucket: bucket.ID(),
		Rules: s3.BucketServerSideEncryptionConfigurationV2RuleArray{
			&s3.BucketServerSideEncryptionConfigurationV2RuleArgs{
				ApplyServerSideEncryptionByDefault: &s3.BucketServerSideEncryptionConfigurationV2RuleApplyServerSideEncryptionByDefaultArgs{
					SseAlgorithm: pulumi.String("AES256"),
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	// Block all public access
	publicAccess, err := s3.NewBucketPublicAccessBlock(ctx, name+"-public-access", &s3.BucketPublicAccessBlockArgs{
		Bucket:                bucket.ID(),
		BlockPublicAcls:       pulumi.Bool(true),
		BlockPublicPolicy:     pulumi.Bool(true),
		IgnorePublicAcls:      pulumi.Bool(true),
		RestrictPublicBuckets: pulumi.Bool(true),
	})
	if err != nil {
		return nil, err
	}

	// Deny requests without TLS
	bucketPolicy, err := s3.NewBucketPolicy(ctx, name+"-policy", &s3.BucketPolicyArgs{
		Bucket: bucket.ID(),
		Policy: pulumi.String(tlsOnlyJSON),
	}, pulumi.DependsOn([]pulumi.Resource{publicAccess}))
	if err != nil {
		return nil, err
	}

	// Store the bucket name in Parameter Store
	_, err = ssm.NewParameter(ctx, name+"-name-param", &ssm.ParameterArgs{
		Name:  pulumi.String(naming.ParameterPath(settings.Names.Prefix, bucketNameParameter)),
		Type:  pulumi.String("String"),
		Value: bucket.Bucket,
		Tags:  nameTag(bucketNameParameter),
	})
	if err != nil {
		return nil, err
	}

	return &StorageResources{Bucket: bucket, Policy: bucketPolicy}, nil
}
