// Package awsclient builds the AWS API clients used by the operator CLI.
package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/opensearch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

type Client struct {
	cfg            aws.Config
	S3             *s3.Client
	STS            *sts.Client
	SecretsManager *secretsmanager.Client
	OpenSearch     *opensearch.Client
}

func NewClient(ctx context.Context, region, profile string) (*Client, error) {
	var optFns []func(*config.LoadOptions) error

	if region != "" {
		optFns = append(optFns, config.WithRegion(region))
	}

	if profile != "" {
		optFns = append(optFns, config.WithSharedConfigProfile(profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	return &Client{
		cfg:            cfg,
		S3:             s3.NewFromConfig(cfg),
		STS:            sts.NewFromConfig(cfg),
		SecretsManager: secretsmanager.NewFromConfig(cfg),
		OpenSearch:     opensearch.NewFromConfig(cfg),
	}, nil
}

func (c *Client) Region() string {
	return c.cfg.Region
}

// Config is the loaded SDK configuration, used to sign requests to the
// domain itself.
func (c *Client) Config() aws.Config {
	return c.cfg
}

// GetCallerIdentityAPI is the part of the STS client used to find the
// account id.
type GetCallerIdentityAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// AccountID returns the account of the calling identity.
func AccountID(ctx context.Context, api GetCallerIdentityAPI) (string, error) {
	out, err := api.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %w", err)
	}
	return aws.ToString(out.Account), nil
}
