package policy

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type PolicySuite struct {
	suite.Suite
	scope Scope
}

func (s *PolicySuite) SetupTest() {
	s.scope = Scope{
		Region:       "us-east-1",
		Account:      "111111111111",
		Domain:       "acme-domain",
		Bucket:       "acme-migration-bucket",
		SchemaPrefix: "migration_schema",
		DataPrefix:   "migration_data",
		DLQPrefix:    "migration_dlq",
	}
}

func (s *PolicySuite) TestDomainAccessPrincipalsAreExact() {
	pairs := [][2]string{
		{"arn:aws:iam::111111111111:role/pipeline", "arn:aws:iam::111111111111:role/workbench"},
		{"arn:aws:iam::222222222222:role/a", "arn:aws:iam::333333333333:role/b"},
	}
	for _, p := range pairs {
		doc, err := DomainAccess("us-east-1", "111111111111", "acme-domain", p[0], p[1])
		s.Require().NoError(err)

		out, err := doc.JSON()
		s.Require().NoError(err)

		principals, err := AWSPrincipalsFromJSON(out)
		s.Require().NoError(err)
		s.ElementsMatch([]string{"*", p[0], p[1]}, principals)
		s.ElementsMatch([]string{p[0], p[1]}, doc.AWSPrincipals())
	}
}

func (s *PolicySuite) TestDomainAccessRejectsMissingPrincipals() {
	_, err := DomainAccess("us-east-1", "111111111111", "d", "", "arn:b")
	s.Error(err)
	_, err = DomainAccess("us-east-1", "111111111111", "d", "arn:a", "arn:a")
	s.Error(err)
}

func (s *PolicySuite) TestIdentityPoliciesAreSingleScoped() {
	pipeline, err := PipelineRole(s.scope)
	s.Require().NoError(err)
	s.NoError(pipeline.Validate())

	workbench, err := Workbench(s.scope)
	s.Require().NoError(err)
	s.NoError(workbench.Validate())

	mapper, err := RoleMapper(s.scope, "arn:aws:secretsmanager:us-east-1:111111111111:secret:acme-abc")
	s.Require().NoError(err)
	s.NoError(mapper.Validate())
}

func (s *PolicySuite) TestValidateRejectsMixedScopes() {
	doc := NewDocument(Statement{
		Effect:   EffectAllow,
		Action:   []string{"s3:GetObject", "es:ESHttpGet"},
		Resource: append(BucketArns("b"), DomainArns("r", "a", "d")...),
	})
	s.ErrorContains(doc.Validate(), "mixes resource scopes es, s3")

	doc = NewDocument(Statement{Effect: EffectAllow, Action: []string{"s3:GetObject"}, Resource: []string{"*", "arn:aws:s3:::b"}})
	s.Error(doc.Validate())
}

func (s *PolicySuite) TestValidateRejectsDuplicateSid() {
	st := Statement{Sid: "OpensearchAccess", Effect: EffectAllow, Action: []string{"es:ESHttp*"}, Resource: []string{"*"}}
	s.ErrorContains(NewDocument(st, st).Validate(), "duplicate sid")
}

func (s *PolicySuite) TestPipelineRoleScopesObjectPrefixes() {
	doc, err := PipelineRole(s.scope)
	s.Require().NoError(err)
	s.Equal([]string{
		"arn:aws:s3:::acme-migration-bucket",
		"arn:aws:s3:::acme-migration-bucket/migration_data/*",
		"arn:aws:s3:::acme-migration-bucket/migration_dlq/*",
	}, doc.Statement[2].Resource)
}

func (s *PolicySuite) TestEmptyScopeRejected() {
	_, err := Workbench(Scope{Region: "r"})
	s.Error(err)
}

func (s *PolicySuite) TestAssumeRoleRendering() {
	out, err := AssumeRole("osis-pipelines.amazonaws.com").JSON()
	s.Require().NoError(err)

	var decoded map[string]interface{}
	s.Require().NoError(json.Unmarshal([]byte(out), &decoded))
	stmt := decoded["Statement"].([]interface{})[0].(map[string]interface{})
	s.Equal(map[string]interface{}{"Service": []interface{}{"osis-pipelines.amazonaws.com"}}, stmt["Principal"])
	s.NotContains(stmt, "Resource")
	s.Equal(fmt.Sprint([]interface{}{"sts:AssumeRole"}), fmt.Sprint(stmt["Action"]))
}

func (s *PolicySuite) TestTLSOnlyDeniesInsecureTransport() {
	doc, err := TLSOnly("acme-bucket")
	s.Require().NoError(err)
	out, err := doc.JSON()
	s.Require().NoError(err)

	s.Contains(out, `"Effect":"Deny"`)
	s.Contains(out, `"Principal":"*"`)
	s.Contains(out, `{"Bool":{"aws:SecureTransport":"false"}}`)
	s.Contains(out, `"arn:aws:s3:::acme-bucket/*"`)

	_, err = TLSOnly("")
	s.Error(err)
}

func TestPolicySuite(t *testing.T) {
	suite.Run(t, new(PolicySuite))
}
