// Package policy builds the IAM policy documents attached to the migration
// identities and the search domain.
package policy

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
)

const (
	Version     = "2012-10-17"
	EffectAllow = "Allow"
	EffectDeny  = "Deny"
)

// Document is an IAM policy document.
type Document struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// Statement is a single policy statement. Principal is only set on
// resource-based policies.
type Statement struct {
	Sid       string                 `json:"Sid,omitempty"`
	Effect    string                 `json:"Effect"`
	Principal *Principal             `json:"Principal,omitempty"`
	Action    []string               `json:"Action"`
	Resource  []string               `json:"Resource,omitempty"`
	Condition map[string]interface{} `json:"Condition,omitempty"`
}

// Principal marshals as "*" when Anyone is set, otherwise as an object of
// AWS and Service identifiers.
type Principal struct {
	Anyone  bool
	AWS     []string
	Service []string
}

func (p Principal) MarshalJSON() ([]byte, error) {
	if p.Anyone {
		return json.Marshal("*")
	}
	m := map[string]interface{}{}
	if len(p.AWS) > 0 {
		m["AWS"] = p.AWS
	}
	if len(p.Service) > 0 {
		m["Service"] = p.Service
	}
	return json.Marshal(m)
}

func NewDocument(statements ...Statement) Document {
	return Document{Version: Version, Statement: statements}
}

// JSON renders the document.
func (d Document) JSON() (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}
	out, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal policy document: %w", err)
	}
	return string(out), nil
}

// Validate enforces one service scope per statement: every resource of a
// statement names the same service, or the statement is account-wide ("*").
func (d Document) Validate() error {
	if len(d.Statement) == 0 {
		return fmt.Errorf("policy document has no statements")
	}
	sids := map[string]bool{}
	for i, s := range d.Statement {
		if s.Effect != EffectAllow && s.Effect != EffectDeny {
			return fmt.Errorf("statement %d: invalid effect %q", i, s.Effect)
		}
		if len(s.Action) == 0 {
			return fmt.Errorf("statement %d: no actions", i)
		}
		if s.Sid != "" {
			if sids[s.Sid] {
				return fmt.Errorf("statement %d: duplicate sid %s", i, s.Sid)
			}
			sids[s.Sid] = true
		}
		if lo.Contains(s.Resource, "*") && len(s.Resource) > 1 {
			return fmt.Errorf("statement %d: wildcard resource mixed with scoped resources", i)
		}
		services := lo.Uniq(lo.FilterMap(s.Resource, func(r string, _ int) (string, bool) {
			return serviceOf(r), r != "*"
		}))
		if len(services) > 1 {
			sort.Strings(services)
			return fmt.Errorf("statement %d: mixes resource scopes %s", i, strings.Join(services, ", "))
		}
	}
	return nil
}

// AWSPrincipals returns the distinct AWS principals named by any statement,
// sorted.
func (d Document) AWSPrincipals() []string {
	var out []string
	for _, s := range d.Statement {
		if s.Principal != nil {
			out = append(out, s.Principal.AWS...)
		}
	}
	out = lo.Uniq(out)
	sort.Strings(out)
	return out
}

// serviceOf returns the service field of an ARN.
func serviceOf(arn string) string {
	parts := strings.SplitN(arn, ":", 4)
	if len(parts) < 3 {
		return arn
	}
	return parts[2]
}

// AWSPrincipalsFromJSON extracts the sorted, distinct AWS principals of a
// rendered document. A "*" principal is reported as "*".
func AWSPrincipalsFromJSON(doc string) ([]string, error) {
	var raw struct {
		Statement []struct {
			Principal json.RawMessage `json:"Principal"`
		} `json:"Statement"`
	}
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse policy document: %w", err)
	}
	var out []string
	for _, s := range raw.Statement {
		if len(s.Principal) == 0 {
			continue
		}
		var anyone string
		if err := json.Unmarshal(s.Principal, &anyone); err == nil {
			out = append(out, anyone)
			continue
		}
		var p struct {
			AWS []string `json:"AWS"`
		}
		if err := json.Unmarshal(s.Principal, &p); err != nil {
			return nil, fmt.Errorf("failed to parse principal: %w", err)
		}
		out = append(out, p.AWS...)
	}
	out = lo.Uniq(out)
	sort.Strings(out)
	return out, nil
}
