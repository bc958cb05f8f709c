package rolemapping

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecrets struct {
	value string
	err   error
	asked string
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.asked = aws.ToString(in.SecretId)
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(f.value)}, nil
}

func TestSecretsManagerSource(t *testing.T) {
	api := &fakeSecrets{value: `{"username":"admin","password":"s3cret!"}`}
	creds, err := NewSecretsManagerSource(api, "acme-domain-master").Credentials(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "acme-domain-master", api.asked)
	assert.Equal(t, Credentials{Username: "admin", Password: "s3cret!"}, creds)
	assert.NotContains(t, fmt.Sprint(creds), "s3cret!")
	assert.NotContains(t, fmt.Sprintf("%v", creds), "s3cret!")
}

func TestSecretsManagerSourceErrors(t *testing.T) {
	_, err := NewSecretsManagerSource(&fakeSecrets{}, "").Credentials(context.Background())
	assert.Error(t, err)

	_, err = NewSecretsManagerSource(&fakeSecrets{err: errors.New("AccessDenied")}, "s").Credentials(context.Background())
	assert.ErrorContains(t, err, "AccessDenied")

	_, err = NewSecretsManagerSource(&fakeSecrets{value: "plain"}, "s").Credentials(context.Background())
	assert.Error(t, err)

	_, err = NewSecretsManagerSource(&fakeSecrets{value: `{"username":"admin"}`}, "s").Credentials(context.Background())
	assert.ErrorContains(t, err, "missing username or password")
}
