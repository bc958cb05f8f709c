// Package naming derives resource names from the stack's name prefix.
package naming

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	DefaultPrefix    = "solr2os"
	DefaultIndexName = "solr-migration"

	// SchemaPrefix and DataPrefix are the bucket key prefixes for schema
	// packages and exported documents.
	SchemaPrefix = "migration_schema"
	DataPrefix   = "migration_data"
)

var (
	ErrEmptyPrefix = errors.New("name prefix must not be empty")
	ErrInvalidName = errors.New("invalid resource name")
)

var (
	// domain and pipeline names: 3-28 characters, lowercase, leading letter
	serviceNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]{2,27}$`)
	bucketNamePattern  = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)
	roleNamePattern    = regexp.MustCompile(`^[\w+=,.@-]{1,64}$`)
)

// Names holds every derived name of a deployment.
type Names struct {
	Prefix   string
	Vpc      string
	Domain   string
	Bucket   string
	Pipeline string
	Index    string

	PipelineRole  string
	WorkbenchRole string
	MapperRole    string
	MasterSecret  string
}

// Overrides replaces individual derived names. Empty fields keep the
// derived value.
type Overrides struct {
	Domain string
	Bucket string
	Index  string
}

// Derive computes names from prefix, applying overrides where set.
func Derive(prefix string, o Overrides) (Names, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return Names{}, ErrEmptyPrefix
	}
	n := Names{
		Prefix:   prefix,
		Vpc:      prefix + "-vpc",
		Domain:   prefix + "-domain",
		Bucket:   prefix + "-migration-bucket",
		Pipeline: prefix + "-pipeline",
		Index:    DefaultIndexName,

		PipelineRole:  prefix + "-pipeline-role",
		WorkbenchRole: prefix + "-workbench-role",
		MapperRole:    prefix + "-role-mapper-role",
		MasterSecret:  prefix + "-domain-master-user",
	}
	if o.Domain != "" {
		n.Domain = o.Domain
	}
	if o.Bucket != "" {
		n.Bucket = o.Bucket
	}
	if o.Index != "" {
		n.Index = o.Index
	}
	if err := n.validate(); err != nil {
		return Names{}, err
	}
	return n, nil
}

// validate checks the names against the service limits, so a bad prefix is
// rejected before anything is created.
func (n Names) validate() error {
	checks := []struct {
		kind, name string
		pattern    *regexp.Regexp
	}{
		{"domain", n.Domain, serviceNamePattern},
		{"pipeline", n.Pipeline, serviceNamePattern},
		{"bucket", n.Bucket, bucketNamePattern},
		{"role", n.PipelineRole, roleNamePattern},
		{"role", n.WorkbenchRole, roleNamePattern},
		{"role", n.MapperRole, roleNamePattern},
	}
	for _, c := range checks {
		if !c.pattern.MatchString(c.name) {
			return fmt.Errorf("%w: %s name %q (%d characters)", ErrInvalidName, c.kind, c.name, len(c.name))
		}
	}
	return nil
}

// BucketName returns name, or solr2os-migration-<account>-<region> when name
// is empty. Stacks without a configured prefix use the fallback.
func BucketName(name, account, region string) (string, error) {
	if name != "" {
		return name, nil
	}
	if account == "" || region == "" {
		return "", fmt.Errorf("account and region are required to derive a bucket name")
	}
	return fmt.Sprintf("%s-migration-%s-%s", DefaultPrefix, account, region), nil
}

// DataPath is the bucket-qualified location of exported documents.
func DataPath(bucket string) string {
	return bucket + "/" + DataPrefix
}

// PipelineLogGroup is the vended log group OSIS requires for its logs.
func PipelineLogGroup(pipeline string) string {
	return "/aws/vendedlogs/OpenSearchService/" + pipeline
}

// ParameterPath builds the SSM parameter name /<prefix>/<key>.
func ParameterPath(prefix, key string) string {
	return "/" + prefix + "/" + key
}

// RoleArn is the ARN of an IAM role created without a path.
func RoleArn(account, role string) string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", account, role)
}
