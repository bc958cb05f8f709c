package rolemapping

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

const DefaultTimeout = 25 * time.Second

// Change is one lifecycle step. Previous is the request of the last
// successful apply and is only meaningful for updates.
type Change struct {
	Action   Action
	Request  Request
	Previous *Request
}

// Result describes what an apply did to the role's backend roles.
type Result struct {
	Role         string
	BackendRoles []string
	Added        []string
	Removed      []string
	Created      bool

	// Released holds the ARNs taken off the previously mapped role when an
	// update moved them to a different role.
	Released []string
}

// Changed reports whether a remote mapping was written.
func (r Result) Changed() bool {
	return r.Created || len(r.Added) > 0 || len(r.Removed) > 0 || len(r.Released) > 0
}

// Mapper applies role mapping changes. Create and update merge the requested
// ARNs into the role's backend roles, leaving unrelated entries alone; delete
// removes only the requested ARNs. Re-applying the same change is a no-op.
type Mapper struct {
	Secrets SecretSource
	// Transport overrides the HTTP transport of the security client.
	Transport http.RoundTripper
	Timeout   time.Duration
	Log       logrus.FieldLogger
}

func (m *Mapper) logger() logrus.FieldLogger {
	if m.Log == nil {
		return logrus.StandardLogger()
	}
	return m.Log
}

// Apply runs change against the domain. Any error is fatal for the step and
// leaves the previously applied mapping in place.
func (m *Mapper) Apply(ctx context.Context, change Change) (Result, error) {
	req := change.Request
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	base, err := EndpointURL(req.DomainEndpoint)
	if err != nil {
		return Result{}, err
	}

	timeout := m.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log := m.logger().WithFields(logrus.Fields{
		"action":         change.Action,
		"roleName":       req.RoleName,
		"domainEndpoint": base.Host,
	})

	creds, err := m.Secrets.Credentials(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load domain credentials: %w", err)
	}
	client, err := NewClient(base, creds, m.Transport)
	if err != nil {
		return Result{}, err
	}

	var res Result
	switch change.Action {
	case ActionCreate, ActionUpdate:
		var stale, released []string
		if prev := change.Previous; change.Action == ActionUpdate && prev != nil {
			if prev.RoleName == req.RoleName {
				stale = lo.Without(prev.Arns(), req.Arns()...)
			} else {
				released, err = m.release(ctx, client, base, *prev, log)
				if err != nil {
					break
				}
			}
		}
		res, err = m.merge(ctx, client, req.RoleName, req.Arns(), stale)
		res.Released = released
	case ActionDelete:
		res, err = m.remove(ctx, client, req.RoleName, req.Arns())
	default:
		return Result{}, fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, change.Action)
	}
	if err != nil {
		if IsAuthFailure(err) {
			log.WithError(err).Error("Domain rejected the master user credentials")
		}
		return Result{}, err
	}

	log.WithFields(logrus.Fields{
		"added":    res.Added,
		"removed":  res.Removed,
		"created":  res.Created,
		"released": res.Released,
	}).Info("Role mapping applied")
	return res, nil
}

// release takes the previous ARNs off the previously mapped role after an
// update renamed the role. A previous request against another domain is
// skipped: that domain was replaced and took its mappings with it.
func (m *Mapper) release(ctx context.Context, c *Client, base *url.URL, prev Request, log logrus.FieldLogger) ([]string, error) {
	prevBase, err := EndpointURL(prev.DomainEndpoint)
	if err != nil || prevBase.Host != base.Host {
		log.WithField("previousEndpoint", prev.DomainEndpoint).Info("Previous mapping belongs to another domain, not released")
		return nil, nil
	}
	res, err := m.remove(ctx, c, prev.RoleName, prev.Arns())
	if err != nil {
		return nil, err
	}
	return res.Removed, nil
}

func (m *Mapper) merge(ctx context.Context, c *Client, role string, arns, stale []string) (Result, error) {
	current, err := c.GetMapping(ctx, role)
	if IsNotFound(err) {
		if err := c.PutMapping(ctx, role, Mapping{BackendRoles: arns}); err != nil {
			return Result{}, fmt.Errorf("failed to create role mapping %s: %w", role, err)
		}
		return Result{Role: role, BackendRoles: arns, Added: arns, Created: true}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to read role mapping %s: %w", role, err)
	}

	kept := lo.Without(current.BackendRoles, stale...)
	removed := lo.Intersect(current.BackendRoles, stale)
	added := lo.Without(arns, kept...)
	desired := append(kept, added...)

	res := Result{Role: role, BackendRoles: desired, Added: added, Removed: removed}
	if !res.Changed() {
		return res, nil
	}
	op := "add"
	if len(removed) > 0 {
		op = "replace"
	}
	if err := c.PatchBackendRoles(ctx, role, op, desired); err != nil {
		return Result{}, fmt.Errorf("failed to update role mapping %s: %w", role, err)
	}
	return res, nil
}

func (m *Mapper) remove(ctx context.Context, c *Client, role string, arns []string) (Result, error) {
	current, err := c.GetMapping(ctx, role)
	if IsNotFound(err) {
		return Result{Role: role}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to read role mapping %s: %w", role, err)
	}

	desired := lo.Without(current.BackendRoles, arns...)
	removed := lo.Intersect(current.BackendRoles, arns)
	res := Result{Role: role, BackendRoles: desired, Removed: removed}
	if len(removed) == 0 {
		return res, nil
	}
	if err := c.PatchBackendRoles(ctx, role, "replace", desired); err != nil {
		return Result{}, fmt.Errorf("failed to remove from role mapping %s: %w", role, err)
	}
	return res, nil
}
