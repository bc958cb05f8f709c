package rolemapping

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Credentials authenticate against the domain's internal user database.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// String keeps the password out of logs and error messages.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Username:%s}", c.Username)
}

type SecretSource interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// SourceFunc adapts a function to a SecretSource.
type SourceFunc func(ctx context.Context) (Credentials, error)

func (f SourceFunc) Credentials(ctx context.Context) (Credentials, error) {
	return f(ctx)
}

// GetSecretValueAPI is the part of the Secrets Manager client used here.
type GetSecretValueAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerSource reads the master user secret, a JSON document with
// username and password keys.
type SecretsManagerSource struct {
	api  GetSecretValueAPI
	name string
}

func NewSecretsManagerSource(api GetSecretValueAPI, name string) *SecretsManagerSource {
	return &SecretsManagerSource{api: api, name: name}
}

func (s *SecretsManagerSource) Credentials(ctx context.Context) (Credentials, error) {
	if s.name == "" {
		return Credentials{}, fmt.Errorf("secret name is not set")
	}
	out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.name),
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read secret %s: %w", s.name, err)
	}
	var creds Credentials
	if err := json.Unmarshal([]byte(aws.ToString(out.SecretString)), &creds); err != nil {
		return Credentials{}, fmt.Errorf("secret %s is not a credentials document: %w", s.name, err)
	}
	if creds.Username == "" || creds.Password == "" {
		return Credentials{}, fmt.Errorf("secret %s is missing username or password", s.name)
	}
	return creds, nil
}
