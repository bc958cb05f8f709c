package rolemapping

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/opensearch-project/opensearch-go/v4"
	"github.com/opensearch-project/opensearch-go/v4/plugins/security"
)

// HTTPStatusError is a security API call that reached the domain and was
// answered with a non-success status.
type HTTPStatusError struct {
	Method     string
	Role       string
	StatusCode int
	Err        error
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s rolesmapping/%s: HTTP %d: %v", e.Method, e.Role, e.StatusCode, e.Err)
}

func (e *HTTPStatusError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a 404 from the security API.
func IsNotFound(err error) bool {
	var httpErr *HTTPStatusError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

// IsAuthFailure reports whether the domain rejected the credentials.
func IsAuthFailure(err error) bool {
	var httpErr *HTTPStatusError
	return errors.As(err, &httpErr) &&
		(httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden)
}

// Mapping is a role mapping of the security plugin. Only backend roles are
// managed here; hosts and users are carried through unchanged.
type Mapping struct {
	BackendRoles []string `json:"backend_roles"`
	Hosts        []string `json:"hosts,omitempty"`
	Users        []string `json:"users,omitempty"`
}

// Client drives the rolesmapping endpoints of the security plugin with
// basic auth.
type Client struct {
	api *security.Client
}

// NewClient connects to the domain at base. A nil transport uses the
// library default.
func NewClient(base *url.URL, creds Credentials, transport http.RoundTripper) (*Client, error) {
	api, err := security.NewClient(security.Config{
		Client: opensearch.Config{
			Addresses: []string{base.String()},
			Username:  creds.Username,
			Password:  creds.Password,
			Transport: transport,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create security client for %s: %w", base.Host, err)
	}
	return &Client{api: api}, nil
}

// statusError wraps err with the status of resp. Calls that never got an
// answer are returned as transport errors.
func statusError(method, role string, resp *opensearch.Response, err error) error {
	if resp == nil {
		return fmt.Errorf("%s rolesmapping/%s: %w", method, role, err)
	}
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return err
	}
	return &HTTPStatusError{Method: method, Role: role, StatusCode: resp.StatusCode, Err: err}
}

// GetMapping returns the mapping of role. A missing mapping is an
// *HTTPStatusError for which IsNotFound is true.
func (c *Client) GetMapping(ctx context.Context, role string) (Mapping, error) {
	resp, err := c.api.RolesMapping.Get(ctx, &security.RolesMappingGetReq{Role: role})
	if err != nil {
		return Mapping{}, statusError(http.MethodGet, role, resp.Inspect().Response, err)
	}
	item, ok := resp.RolesMapping[role]
	if !ok {
		return Mapping{}, fmt.Errorf("role mapping response does not contain %s", role)
	}
	return Mapping{BackendRoles: item.BackendRoles, Hosts: item.Hosts, Users: item.Users}, nil
}

// PutMapping creates or replaces the mapping of role.
func (c *Client) PutMapping(ctx context.Context, role string, m Mapping) error {
	resp, err := c.api.RolesMapping.Put(ctx, security.RolesMappingPutReq{
		Role: role,
		Body: security.RolesMappingPutBody{
			BackendRoles: m.BackendRoles,
			Hosts:        m.Hosts,
			Users:        m.Users,
		},
	})
	if err != nil {
		return statusError(http.MethodPut, role, resp.Inspect().Response, err)
	}
	return nil
}

// PatchBackendRoles sets backend_roles with a single JSON Patch operation.
// op is "add" or "replace".
func (c *Client) PatchBackendRoles(ctx context.Context, role, op string, backendRoles []string) error {
	if backendRoles == nil {
		backendRoles = []string{}
	}
	resp, err := c.api.RolesMapping.Patch(ctx, security.RolesMappingPatchReq{
		Role: role,
		Body: security.RolesMappingPatchBody{
			{OP: op, Path: "/backend_roles", Value: backendRoles},
		},
	})
	if err != nil {
		return statusError(http.MethodPatch, role, resp.Inspect().Response, err)
	}
	return nil
}
