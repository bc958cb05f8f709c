// Package pipelineconfig renders the ingestion pipeline's configuration
// document from a template with ${name} placeholders.
package pipelineconfig

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrMissingValue          = errors.New("pipeline template value is empty")
	ErrUnresolvedPlaceholder = errors.New("pipeline template has unresolved placeholders")
)

// Placeholder names recognised in the template.
const (
	Region                      = "region"
	AccountID                   = "accountId"
	PipelineRoleArn             = "pipelineRoleArn"
	OpenSearchDomainVPCEndpoint = "openSearchDomainVPCEndpoint"
	BucketName                  = "bucketName"
	IndexName                   = "indexName"
)

// Only simple identifiers are placeholders; Data Prepper expressions such
// as ${/id} or ${{aws_secrets:...}} pass through untouched.
var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z][A-Za-z0-9_]*)\}`)

type Values struct {
	Region                      string
	AccountID                   string
	PipelineRoleArn             string
	OpenSearchDomainVPCEndpoint string
	BucketName                  string
	IndexName                   string
}

func (v Values) asMap() map[string]string {
	return map[string]string{
		Region:                      v.Region,
		AccountID:                   v.AccountID,
		PipelineRoleArn:             v.PipelineRoleArn,
		OpenSearchDomainVPCEndpoint: v.OpenSearchDomainVPCEndpoint,
		BucketName:                  v.BucketName,
		IndexName:                   v.IndexName,
	}
}

// Validate fails when any of the six values is empty.
func (v Values) Validate() error {
	var missing []string
	for name, val := range v.asMap() {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s", ErrMissingValue, strings.Join(missing, ", "))
	}
	return nil
}

// Load reads a template file.
func Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read pipeline template %s: %w", path, err)
	}
	return string(data), nil
}

// Render substitutes every placeholder literally and checks that the result
// is still a YAML document.
func Render(template string, v Values) (string, error) {
	if err := v.Validate(); err != nil {
		return "", err
	}
	values := v.asMap()

	unknown := map[string]struct{}{}
	out := placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		name := placeholderPattern.FindStringSubmatch(m)[1]
		if val, ok := values[name]; ok {
			return val
		}
		unknown[name] = struct{}{}
		return m
	})
	if len(unknown) > 0 {
		names := make([]string, 0, len(unknown))
		for n := range unknown {
			names = append(names, n)
		}
		sort.Strings(names)
		return "", fmt.Errorf("%w: %s", ErrUnresolvedPlaceholder, strings.Join(names, ", "))
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal([]byte(out), &doc); err != nil {
		return "", fmt.Errorf("rendered pipeline configuration is not valid YAML: %w", err)
	}
	if len(doc) == 0 {
		return "", fmt.Errorf("rendered pipeline configuration is empty")
	}
	return out, nil
}

// Check fails when template uses a placeholder Render cannot fill. It needs
// no values, so it can run before any of them is known.
func Check(template string) error {
	known := Values{}.asMap()
	var unknown []string
	for _, name := range Placeholders(template) {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: %s", ErrUnresolvedPlaceholder, strings.Join(unknown, ", "))
	}
	return nil
}

// Placeholders lists the distinct placeholder names used in template.
func Placeholders(template string) []string {
	seen := map[string]struct{}{}
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		seen[m[1]] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
