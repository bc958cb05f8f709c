package rolemapping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	pipelineArn  = "arn:aws:iam::111111111111:role/acme-pipeline-role"
	workbenchArn = "arn:aws:iam::111111111111:role/acme-workbench-role"
	unrelatedArn = "arn:aws:iam::111111111111:role/someone-else"
)

const rolesMappingPath = "/_plugins/_security/api/rolesmapping"

type jsonPatchOp struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value"`
}

// fakeSecurityAPI is an in-memory rolesmapping endpoint.
type fakeSecurityAPI struct {
	t *testing.T

	mu       sync.Mutex
	mappings map[string]Mapping
	methods  []string
	patches  [][]jsonPatchOp
}

func newFakeSecurityAPI(t *testing.T) (*fakeSecurityAPI, *httptest.Server) {
	f := &fakeSecurityAPI{t: t, mappings: map[string]Mapping{}}
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)
	return f, ts
}

// fail reports a malformed request from the handler goroutine, where the
// test must not be stopped.
func (f *fakeSecurityAPI) fail(w http.ResponseWriter, err error) {
	assert.NoError(f.t, err)
	w.WriteHeader(http.StatusInternalServerError)
}

func (f *fakeSecurityAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !strings.HasPrefix(r.URL.Path, rolesMappingPath+"/") {
		_, _ = w.Write([]byte(`{"version":{"distribution":"opensearch","number":"2.19.0"}}`))
		return
	}
	user, pass, ok := r.BasicAuth()
	if !ok || user != "admin" || pass != "s3cret!" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status":"UNAUTHORIZED","message":"Unauthorized"}`))
		return
	}
	role := strings.TrimPrefix(r.URL.Path, rolesMappingPath+"/")
	f.methods = append(f.methods, r.Method)

	switch r.Method {
	case http.MethodGet:
		m, exists := f.mappings[role]
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":"NOT_FOUND","message":"not found"}`))
			return
		}
		if err := json.NewEncoder(w).Encode(map[string]Mapping{role: m}); err != nil {
			f.fail(w, err)
		}
	case http.MethodPut:
		var m Mapping
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			f.fail(w, err)
			return
		}
		f.mappings[role] = m
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"status":"CREATED","message":"created"}`))
	case http.MethodPatch:
		var ops []jsonPatchOp
		if err := json.NewDecoder(r.Body).Decode(&ops); err != nil {
			f.fail(w, err)
			return
		}
		f.patches = append(f.patches, ops)
		m := f.mappings[role]
		for _, op := range ops {
			values, ok := op.Value.([]interface{})
			if !assert.Equal(f.t, "/backend_roles", op.Path) || !assert.True(f.t, ok, "patch value") {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			roles := []string{}
			for _, v := range values {
				roles = append(roles, fmt.Sprint(v))
			}
			m.BackendRoles = roles
		}
		f.mappings[role] = m
		_, _ = w.Write([]byte(`{"status":"OK","message":"updated"}`))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeSecurityAPI) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.methods {
		if m != http.MethodGet {
			n++
		}
	}
	return n
}

func staticCreds(user, pass string) SecretSource {
	return SourceFunc(func(context.Context) (Credentials, error) {
		return Credentials{Username: user, Password: pass}, nil
	})
}

func newMapper(ts *httptest.Server) *Mapper {
	logger, _ := test.NewNullLogger()
	return &Mapper{
		Secrets:   staticCreds("admin", "s3cret!"),
		Transport: ts.Client().Transport,
		Log:       logger,
	}
}

func request(ts *httptest.Server, arns ...string) Request {
	return Request{
		DomainEndpoint: ts.URL,
		RoleName:       DefaultRoleName,
		IamRoleArns:    strings.Join(arns, ","),
		Region:         "us-east-1",
	}
}

func TestApplyCreatesMissingMapping(t *testing.T) {
	api, ts := newFakeSecurityAPI(t)
	m := newMapper(ts)

	res, err := m.Apply(context.Background(), Change{Action: ActionCreate, Request: request(ts, pipelineArn, workbenchArn)})
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.Equal(t, []string{pipelineArn, workbenchArn}, api.mappings[DefaultRoleName].BackendRoles)
	assert.Equal(t, []string{http.MethodGet, http.MethodPut}, api.methods)
}

func TestApplyIsIdempotent(t *testing.T) {
	api, ts := newFakeSecurityAPI(t)
	api.mappings[DefaultRoleName] = Mapping{BackendRoles: []string{unrelatedArn}, Users: []string{"admin"}}
	m := newMapper(ts)

	change := Change{Action: ActionCreate, Request: request(ts, pipelineArn, workbenchArn)}
	first, err := m.Apply(context.Background(), change)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{pipelineArn, workbenchArn}, first.Added)

	second, err := m.Apply(context.Background(), change)
	require.NoError(t, err)
	assert.False(t, second.Changed())

	change.Action = ActionUpdate
	_, err = m.Apply(context.Background(), change)
	require.NoError(t, err)

	assert.Equal(t, []string{unrelatedArn, pipelineArn, workbenchArn}, api.mappings[DefaultRoleName].BackendRoles)
	assert.Equal(t, []string{"admin"}, api.mappings[DefaultRoleName].Users)
	assert.Equal(t, 1, api.writes())
	require.Len(t, api.patches, 1)
	assert.Equal(t, "add", api.patches[0][0].Op)
}

func TestApplyCollapsesDuplicateArns(t *testing.T) {
	api, ts := newFakeSecurityAPI(t)
	api.mappings[DefaultRoleName] = Mapping{BackendRoles: []string{pipelineArn}}
	m := newMapper(ts)

	req := request(ts)
	req.IamRoleArns = " " + pipelineArn + ", " + workbenchArn + "," + pipelineArn + ",,"
	_, err := m.Apply(context.Background(), Change{Action: ActionCreate, Request: req})
	require.NoError(t, err)

	assert.Equal(t, []string{pipelineArn, workbenchArn}, api.mappings[DefaultRoleName].BackendRoles)
}

func TestApplyUpdateDropsPreviousArns(t *testing.T) {
	api, ts := newFakeSecurityAPI(t)
	api.mappings[DefaultRoleName] = Mapping{BackendRoles: []string{unrelatedArn, pipelineArn, workbenchArn}}
	m := newMapper(ts)

	newWorkbench := "arn:aws:iam::111111111111:role/acme-workbench-role-2"
	prev := request(ts, pipelineArn, workbenchArn)
	res, err := m.Apply(context.Background(), Change{
		Action:   ActionUpdate,
		Request:  request(ts, pipelineArn, newWorkbench),
		Previous: &prev,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{workbenchArn}, res.Removed)
	assert.Equal(t, []string{newWorkbench}, res.Added)
	assert.Equal(t, []string{unrelatedArn, pipelineArn, newWorkbench}, api.mappings[DefaultRoleName].BackendRoles)
	assert.Equal(t, "replace", api.patches[0][0].Op)
}

func TestApplyUpdateToAnotherRoleReleasesPreviousRole(t *testing.T) {
	api, ts := newFakeSecurityAPI(t)
	api.mappings[DefaultRoleName] = Mapping{BackendRoles: []string{unrelatedArn}}
	m := newMapper(ts)

	prev := request(ts, pipelineArn)
	_, err := m.Apply(context.Background(), Change{Action: ActionCreate, Request: prev})
	require.NoError(t, err)
	require.Contains(t, api.mappings[DefaultRoleName].BackendRoles, pipelineArn)

	next := request(ts, pipelineArn)
	next.RoleName = "readall"
	res, err := m.Apply(context.Background(), Change{Action: ActionUpdate, Request: next, Previous: &prev})
	require.NoError(t, err)

	assert.Equal(t, []string{pipelineArn}, res.Released)
	assert.True(t, res.Created)
	assert.NotContains(t, api.mappings[DefaultRoleName].BackendRoles, pipelineArn)
	assert.Equal(t, []string{unrelatedArn}, api.mappings[DefaultRoleName].BackendRoles)
	assert.Equal(t, []string{pipelineArn}, api.mappings["readall"].BackendRoles)

	// re-applying the same update finds nothing left on the previous role
	again, err := m.Apply(context.Background(), Change{Action: ActionUpdate, Request: next, Previous: &prev})
	require.NoError(t, err)
	assert.False(t, again.Changed())
}

func TestApplyUpdateFromAnotherDomainLeavesItAlone(t *testing.T) {
	api, ts := newFakeSecurityAPI(t)
	m := newMapper(ts)

	prev := request(ts, pipelineArn)
	prev.DomainEndpoint = "vpc-old-domain.us-east-1.es.amazonaws.com"
	next := request(ts, pipelineArn)
	next.RoleName = "readall"
	res, err := m.Apply(context.Background(), Change{Action: ActionUpdate, Request: next, Previous: &prev})
	require.NoError(t, err)

	assert.Empty(t, res.Released)
	assert.Equal(t, []string{pipelineArn}, api.mappings["readall"].BackendRoles)
}

func TestApplyDeleteKeepsUnrelatedEntries(t *testing.T) {
	api, ts := newFakeSecurityAPI(t)
	api.mappings[DefaultRoleName] = Mapping{BackendRoles: []string{pipelineArn, unrelatedArn, workbenchArn}}
	m := newMapper(ts)

	change := Change{Action: ActionDelete, Request: request(ts, pipelineArn, workbenchArn)}
	_, err := m.Apply(context.Background(), change)
	require.NoError(t, err)
	assert.Equal(t, []string{unrelatedArn}, api.mappings[DefaultRoleName].BackendRoles)
	assert.Equal(t, "replace", api.patches[0][0].Op)

	// a second delete has nothing left to remove
	res, err := m.Apply(context.Background(), change)
	require.NoError(t, err)
	assert.False(t, res.Changed())
	assert.Len(t, api.patches, 1)
}

func TestApplyDeleteOfMissingMapping(t *testing.T) {
	api, ts := newFakeSecurityAPI(t)
	m := newMapper(ts)

	res, err := m.Apply(context.Background(), Change{Action: ActionDelete, Request: request(ts, pipelineArn)})
	require.NoError(t, err)
	assert.False(t, res.Changed())
	assert.Zero(t, api.writes())
}

func TestApplyAuthFailureIsFatal(t *testing.T) {
	api, ts := newFakeSecurityAPI(t)
	api.mappings[DefaultRoleName] = Mapping{BackendRoles: []string{unrelatedArn}}
	logger, hook := test.NewNullLogger()
	m := &Mapper{Secrets: staticCreds("admin", "wrong"), Transport: ts.Client().Transport, Log: logger}

	_, err := m.Apply(context.Background(), Change{Action: ActionCreate, Request: request(ts, pipelineArn)})
	require.Error(t, err)
	assert.True(t, IsAuthFailure(err))

	var httpErr *HTTPStatusError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Equal(t, []string{unrelatedArn}, api.mappings[DefaultRoleName].BackendRoles)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	for _, e := range hook.AllEntries() {
		line, _ := e.String()
		assert.NotContains(t, line, "wrong")
	}
}

func TestApplyServerErrorIsFatal(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer ts.Close()

	_, err := newMapper(ts).Apply(context.Background(), Change{Action: ActionCreate, Request: request(ts, pipelineArn)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")
}

func TestApplySecretFailure(t *testing.T) {
	api, ts := newFakeSecurityAPI(t)
	m := newMapper(ts)
	m.Secrets = SourceFunc(func(context.Context) (Credentials, error) {
		return Credentials{}, errors.New("access denied")
	})

	_, err := m.Apply(context.Background(), Change{Action: ActionCreate, Request: request(ts, pipelineArn)})
	require.ErrorContains(t, err, "access denied")
	assert.Empty(t, api.methods)
}

func TestApplyRejectsMalformedEndpoint(t *testing.T) {
	m := &Mapper{Secrets: staticCreds("admin", "s3cret!")}
	for _, endpoint := range []string{"", "ftp://host", "https://", "host/path", "https://host/_plugins"} {
		_, err := m.Apply(context.Background(), Change{
			Action:  ActionCreate,
			Request: Request{DomainEndpoint: endpoint, RoleName: DefaultRoleName, IamRoleArns: pipelineArn},
		})
		assert.ErrorIs(t, err, ErrMalformedEndpoint, endpoint)
	}
}

func TestRequestValidation(t *testing.T) {
	base := Request{DomainEndpoint: "vpc-acme.us-east-1.es.amazonaws.com", RoleName: DefaultRoleName, IamRoleArns: pipelineArn}
	require.NoError(t, base.Validate())

	noArns := base
	noArns.IamRoleArns = " , "
	assert.ErrorIs(t, noArns.Validate(), ErrInvalidRequest)

	badArn := base
	badArn.IamRoleArns = "not-an-arn"
	assert.ErrorIs(t, badArn.Validate(), ErrInvalidRequest)

	badRole := base
	badRole.RoleName = "all_access/../x"
	assert.ErrorIs(t, badRole.Validate(), ErrInvalidRequest)
}

func TestEndpointURL(t *testing.T) {
	u, err := EndpointURL("vpc-acme.us-east-1.es.amazonaws.com")
	require.NoError(t, err)
	assert.Equal(t, "https://vpc-acme.us-east-1.es.amazonaws.com", u.String())

	u, err = EndpointURL("https://vpc-acme.us-east-1.es.amazonaws.com/")
	require.NoError(t, err)
	assert.Equal(t, "vpc-acme.us-east-1.es.amazonaws.com", u.Host)
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("Delete")
	require.NoError(t, err)
	assert.Equal(t, ActionDelete, a)

	_, err = ParseAction("read")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
