// Package rolemapping maps IAM principals to an internal role of the search
// domain's security plugin.
package rolemapping

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/samber/lo"
)

// DefaultRoleName is the internal role granted to the migration identities.
const DefaultRoleName = "all_access"

var (
	ErrMalformedEndpoint = errors.New("malformed domain endpoint")
	ErrInvalidRequest    = errors.New("invalid role mapping request")
)

// Action is the lifecycle step a request is applied for.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ParseAction accepts the lowercase action names and their capitalised
// forms.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return a, nil
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, s)
}

// Request is the invocation contract of the role mapping operation.
type Request struct {
	DomainEndpoint string `json:"DomainEndpoint"`
	RoleName       string `json:"RoleName"`
	IamRoleArns    string `json:"IamRoleArns"`
	Region         string `json:"Region"`
}

// Arns returns the trimmed, distinct, non-empty ARNs of the comma-joined
// list in their original order.
func (r Request) Arns() []string {
	return ParseArns(r.IamRoleArns)
}

func ParseArns(list string) []string {
	arns := lo.Map(strings.Split(list, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})
	return lo.Uniq(lo.Compact(arns))
}

// Validate checks the request before any remote call is made.
func (r Request) Validate() error {
	if _, err := EndpointURL(r.DomainEndpoint); err != nil {
		return err
	}
	if r.RoleName == "" || strings.ContainsAny(r.RoleName, "/?# ") {
		return fmt.Errorf("%w: role name %q", ErrInvalidRequest, r.RoleName)
	}
	arns := r.Arns()
	if len(arns) == 0 {
		return fmt.Errorf("%w: no IAM role ARNs", ErrInvalidRequest)
	}
	for _, arn := range arns {
		if !strings.HasPrefix(arn, "arn:") {
			return fmt.Errorf("%w: %q is not an ARN", ErrInvalidRequest, arn)
		}
	}
	return nil
}

// EndpointURL turns a domain endpoint into the base URL of the security API.
// A bare host name is reached over HTTPS.
func EndpointURL(endpoint string) (*url.URL, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformedEndpoint)
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEndpoint, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrMalformedEndpoint, u.Scheme)
	}
	if u.Host == "" || strings.ContainsAny(u.Host, " /") {
		return nil, fmt.Errorf("%w: missing host in %q", ErrMalformedEndpoint, endpoint)
	}
	if strings.Trim(u.Path, "/") != "" || u.RawQuery != "" || u.User != nil {
		return nil, fmt.Errorf("%w: %q must be a bare host", ErrMalformedEndpoint, endpoint)
	}
	u.Path = ""
	return u, nil
}
