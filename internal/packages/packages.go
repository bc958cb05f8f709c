// Package packages keeps analyzer dictionaries as OpenSearch custom packages
// associated with the migration domain.
package packages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/opensearch"
	"github.com/aws/aws-sdk-go-v2/service/opensearch/types"
	"github.com/sirupsen/logrus"

	"github.com/patelbharav/SolrMigration-To-OpenSearch/internal/artifacts"
)

const (
	DefaultPollInterval = 10 * time.Second
	DefaultWaitTimeout  = 15 * time.Minute
)

var ErrAssociationFailed = errors.New("package association failed")

// API is the part of the OpenSearch Service client used here.
type API interface {
	DescribePackages(ctx context.Context, params *opensearch.DescribePackagesInput, optFns ...func(*opensearch.Options)) (*opensearch.DescribePackagesOutput, error)
	CreatePackage(ctx context.Context, params *opensearch.CreatePackageInput, optFns ...func(*opensearch.Options)) (*opensearch.CreatePackageOutput, error)
	UpdatePackage(ctx context.Context, params *opensearch.UpdatePackageInput, optFns ...func(*opensearch.Options)) (*opensearch.UpdatePackageOutput, error)
	AssociatePackage(ctx context.Context, params *opensearch.AssociatePackageInput, optFns ...func(*opensearch.Options)) (*opensearch.AssociatePackageOutput, error)
	ListPackagesForDomain(ctx context.Context, params *opensearch.ListPackagesForDomainInput, optFns ...func(*opensearch.Options)) (*opensearch.ListPackagesForDomainOutput, error)
}

type Package struct {
	ID      string
	Name    string
	Version string
}

// Manager creates, updates and associates TXT-DICTIONARY packages. Package
// content is staged in the migration bucket under Prefix.
type Manager struct {
	API      API
	Objects  artifacts.HeadObjectAPI
	Uploader *artifacts.Uploader
	Domain   string
	// Prefix is the key prefix of package files, below the schema prefix.
	Prefix string

	PollInterval time.Duration
	WaitTimeout  time.Duration
	Log          logrus.FieldLogger
}

// Package implements schema.PackageSource.
func (m *Manager) Package(ctx context.Context, name string, content []byte) (string, error) {
	p, err := m.Ensure(ctx, name, content)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

// Ensure makes the package name hold content and be active on the domain.
// An existing package whose staged file already holds content is only
// associated if it is not yet.
func (m *Manager) Ensure(ctx context.Context, name string, content []byte) (Package, error) {
	log := m.Log.WithFields(logrus.Fields{"package": name, "domain": m.Domain})
	key := artifacts.KindSchema.Key(m.Prefix + "/" + name)
	bucket := m.Uploader.Bucket()

	existing, err := m.describe(ctx, name)
	if err != nil {
		return Package{}, err
	}

	var details *types.PackageDetails
	switch {
	case existing == nil:
		if err := m.Uploader.Put(ctx, key, content, "text/plain"); err != nil {
			return Package{}, err
		}
		out, err := m.API.CreatePackage(ctx, &opensearch.CreatePackageInput{
			PackageName:   aws.String(name),
			PackageType:   types.PackageTypeTxtDictionary,
			PackageSource: &types.PackageSource{S3BucketName: aws.String(bucket), S3Key: aws.String(key)},
		})
		if err != nil {
			return Package{}, fmt.Errorf("failed to create package %s: %w", name, err)
		}
		details = out.PackageDetails
		log.WithField("id", aws.ToString(details.PackageID)).Info("Created package")

	default:
		same, err := artifacts.Unchanged(ctx, m.Objects, bucket, key, content)
		if err != nil {
			return Package{}, err
		}
		if same {
			details = existing
			log.Info("Package is unchanged")
			break
		}
		if err := m.Uploader.Put(ctx, key, content, "text/plain"); err != nil {
			return Package{}, err
		}
		out, err := m.API.UpdatePackage(ctx, &opensearch.UpdatePackageInput{
			PackageID:     existing.PackageID,
			PackageSource: &types.PackageSource{S3BucketName: aws.String(bucket), S3Key: aws.String(key)},
		})
		if err != nil {
			return Package{}, fmt.Errorf("failed to update package %s: %w", name, err)
		}
		details = out.PackageDetails
		log.Info("Updated package")
	}

	id := aws.ToString(details.PackageID)
	pkg := Package{ID: id, Name: name, Version: aws.ToString(details.AvailablePackageVersion)}

	current, err := m.domainPackage(ctx, id)
	if err != nil {
		return Package{}, err
	}
	upToDate := current != nil && current.DomainPackageStatus == types.DomainPackageStatusActive &&
		(pkg.Version == "" || aws.ToString(current.PackageVersion) == pkg.Version)
	if !upToDate {
		if _, err := m.API.AssociatePackage(ctx, &opensearch.AssociatePackageInput{
			PackageID:  aws.String(id),
			DomainName: aws.String(m.Domain),
		}); err != nil {
			return Package{}, fmt.Errorf("failed to associate package %s with %s: %w", name, m.Domain, err)
		}
		log.Info("Associating package")
		current, err = m.waitForAssociation(ctx, id)
		if err != nil {
			return Package{}, err
		}
	}
	if pkg.Version == "" && current != nil {
		pkg.Version = aws.ToString(current.PackageVersion)
	}
	return pkg, nil
}

func (m *Manager) describe(ctx context.Context, name string) (*types.PackageDetails, error) {
	out, err := m.API.DescribePackages(ctx, &opensearch.DescribePackagesInput{
		Filters: []types.DescribePackagesFilter{{
			Name:  types.DescribePackagesFilterNamePackageName,
			Value: []string{name},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe package %s: %w", name, err)
	}
	for i := range out.PackageDetailsList {
		if aws.ToString(out.PackageDetailsList[i].PackageName) == name {
			return &out.PackageDetailsList[i], nil
		}
	}
	return nil, nil
}

func (m *Manager) domainPackage(ctx context.Context, id string) (*types.DomainPackageDetails, error) {
	in := &opensearch.ListPackagesForDomainInput{DomainName: aws.String(m.Domain)}
	for {
		out, err := m.API.ListPackagesForDomain(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("failed to list packages of %s: %w", m.Domain, err)
		}
		for i := range out.DomainPackageDetailsList {
			if aws.ToString(out.DomainPackageDetailsList[i].PackageID) == id {
				return &out.DomainPackageDetailsList[i], nil
			}
		}
		if aws.ToString(out.NextToken) == "" {
			return nil, nil
		}
		in.NextToken = out.NextToken
	}
}

// waitForAssociation polls the domain's packages until id is active or its
// association failed.
func (m *Manager) waitForAssociation(ctx context.Context, id string) (*types.DomainPackageDetails, error) {
	interval := m.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	timeout := m.WaitTimeout
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d, err := m.domainPackage(ctx, id)
		if err != nil {
			return nil, err
		}
		if d != nil {
			switch d.DomainPackageStatus {
			case types.DomainPackageStatusActive:
				m.Log.WithField("id", id).Info("Package is active")
				return d, nil
			case types.DomainPackageStatusAssociationFailed:
				reason := ""
				if d.ErrorDetails != nil {
					reason = aws.ToString(d.ErrorDetails.ErrorMessage)
				}
				return nil, fmt.Errorf("%w: %s on %s: %s", ErrAssociationFailed, id, m.Domain, reason)
			}
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("package %s is not active on %s: %w", id, m.Domain, ctx.Err())
		case <-ticker.C:
		}
	}
}
