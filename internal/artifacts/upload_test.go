package artifacts

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string]string
	types   map[string]string
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	k := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[k] = string(body)
	if f.types != nil {
		f.types[k] = aws.ToString(in.ContentType)
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	sum := md5.Sum([]byte(body))
	return &s3.HeadObjectOutput{ETag: aws.String(`"` + hex.EncodeToString(sum[:]) + `"`)}, nil
}

func writeFile(t *testing.T, p, content string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestUploadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "synonyms.txt"), "a,b")
	writeFile(t, filepath.Join(dir, "stopwords", "en.txt"), "the")

	api := &fakeS3{objects: map[string]string{}}
	log, _ := test.NewNullLogger()
	keys, err := NewUploader(api, "acme-migration-bucket", log).Upload(context.Background(), KindSchema, dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"migration_schema/stopwords/en.txt", "migration_schema/synonyms.txt"}, keys)
	assert.Equal(t, "the", api.objects["acme-migration-bucket/migration_schema/stopwords/en.txt"])
}

func TestUploadSingleFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "docs.ndjson")
	writeFile(t, file, `{"id":"1"}`)

	api := &fakeS3{objects: map[string]string{}}
	log, _ := test.NewNullLogger()
	keys, err := NewUploader(api, "b", log).Upload(context.Background(), KindData, file)
	require.NoError(t, err)
	assert.Equal(t, []string{"migration_data/docs.ndjson"}, keys)
}

func TestUploadErrors(t *testing.T) {
	log, _ := test.NewNullLogger()
	_, err := NewUploader(&fakeS3{}, "b", log).Upload(context.Background(), KindData, "missing")
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "docs.ndjson")
	writeFile(t, file, "{}")
	_, err = NewUploader(&fakeS3{err: errors.New("AccessDenied")}, "b", log).Upload(context.Background(), KindData, file)
	assert.ErrorContains(t, err, "s3://b/migration_data/docs.ndjson")
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("schema")
	require.NoError(t, err)
	assert.Equal(t, "migration_schema", k.Prefix())

	_, err = ParseKind("logs")
	assert.Error(t, err)
}

func TestPut(t *testing.T) {
	api := &fakeS3{objects: map[string]string{}, types: map[string]string{}}
	log, _ := test.NewNullLogger()
	u := NewUploader(api, "b", log)

	key := KindData.Key("techproducts/techproducts_batch_1.ndjson")
	require.NoError(t, u.Put(context.Background(), key, []byte("{\"id\":\"1\"}\n"), "application/x-ndjson"))

	assert.Equal(t, "{\"id\":\"1\"}\n", api.objects["b/migration_data/techproducts/techproducts_batch_1.ndjson"])
	assert.Equal(t, "application/x-ndjson", api.types["b/migration_data/techproducts/techproducts_batch_1.ndjson"])
	assert.Equal(t, "b", u.Bucket())
}

func TestUnchanged(t *testing.T) {
	ctx := context.Background()
	api := &fakeS3{objects: map[string]string{"b/migration_schema/p": "a,b"}}

	same, err := Unchanged(ctx, api, "b", "migration_schema/p", []byte("a,b"))
	require.NoError(t, err)
	assert.True(t, same)

	same, err = Unchanged(ctx, api, "b", "migration_schema/p", []byte("a,b,c"))
	require.NoError(t, err)
	assert.False(t, same)

	same, err = Unchanged(ctx, api, "b", "migration_schema/missing", []byte("a"))
	require.NoError(t, err)
	assert.False(t, same)

	_, err = Unchanged(ctx, &fakeS3{err: errors.New("AccessDenied")}, "b", "k", nil)
	assert.ErrorContains(t, err, "AccessDenied")
}
